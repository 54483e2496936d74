// Package heartbeat stores per-source liveness timestamps (spec.md §4.8)
// so external monitoring can alert on stalled recurring tasks.
package heartbeat

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/finnish-heritage-agency/passari-workflow/internal/redisclient"
)

// Sources are the recurring tasks whose liveness is tracked. Listed
// explicitly so GetAll always reports every known source, even ones
// that have never beaten once.
var Sources = []string{
	"sync_objects",
	"sync_attachments",
	"sync_hashes",
	"sync_processed_sips",
	"enqueue_objects",
}

type Store struct {
	redis *redisclient.Client
}

func NewStore(redis *redisclient.Client) *Store {
	return &Store{redis: redis}
}

// Beat records now() as the liveness timestamp for source.
func (s *Store) Beat(ctx context.Context, source string, now time.Time) error {
	return s.redis.Raw().Set(ctx, redisclient.HeartbeatKey(source), now.Unix(), 0).Err()
}

// Get returns the last beat for source, and whether one has ever been
// recorded.
func (s *Store) Get(ctx context.Context, source string) (time.Time, bool, error) {
	v, err := s.redis.Raw().Get(ctx, redisclient.HeartbeatKey(source)).Result()
	if err == goredis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// GetAll returns a timestamp (or nil, for "never beaten") for every
// known source.
func (s *Store) GetAll(ctx context.Context) (map[string]*time.Time, error) {
	out := make(map[string]*time.Time, len(Sources))
	for _, source := range Sources {
		t, ok, err := s.Get(ctx, source)
		if err != nil {
			return nil, err
		}
		if !ok {
			out[source] = nil
			continue
		}
		tCopy := t
		out[source] = &tCopy
	}
	return out, nil
}
