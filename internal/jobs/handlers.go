package jobs

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/finnish-heritage-agency/passari-workflow/internal/data/repos"
	"github.com/finnish-heritage-agency/passari-workflow/internal/external"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/dbctx"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/logger"
	"github.com/finnish-heritage-agency/passari-workflow/internal/queue"
	"github.com/finnish-heritage-agency/passari-workflow/internal/redisclient"
)

// Handlers bundles the four stage handlers' shared dependencies: the
// persistence repos, the queue (to enqueue the next stage), the Redis
// client (for the per-object lock envelope every handler shares), the
// external collaborators, and the filesystem roots they read/write.
type Handlers struct {
	DB          *gorm.DB
	Objects     *repos.ObjectRepo
	Packages    *repos.PackageRepo
	Attachments *repos.AttachmentRepo
	Queue       *queue.Queue
	Redis       *redisclient.Client

	Downloader external.Downloader
	SIPBuilder external.SIPBuilder
	Uploader   external.Uploader
	Confirmer  external.ConfirmStep

	PackageDir string
	ArchiveDir string

	Log *logger.Logger
}

// withObjectLock is the per-object mutex envelope every stage handler
// runs under (spec.md §4.2): it serializes all four stages for one
// object so stage N+1 never starts before stage N's commit has landed.
func (h *Handlers) withObjectLock(ctx context.Context, objectID int64, fn func(ctx context.Context) error) error {
	lock, err := h.Redis.AcquireLock(ctx, redisclient.ObjectLockKey(objectID), redisclient.ObjectLockTTL, 250*time.Millisecond)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}()
	return fn(ctx)
}

func (h *Handlers) dc(ctx context.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctx}
}
