// Package app wires the workflow's dependencies into one App, the way
// the teacher's internal/app.New does: config, then storage clients,
// then repos, then the services that sit on top of them. cmd/pasctl is
// the only caller; every CLI command and the long-running worker
// process share this one construction path.
package app

import (
	"fmt"

	"github.com/finnish-heritage-agency/passari-workflow/internal/config"
	"github.com/finnish-heritage-agency/passari-workflow/internal/data/db"
	"github.com/finnish-heritage-agency/passari-workflow/internal/data/repos"
	"github.com/finnish-heritage-agency/passari-workflow/internal/dpres"
	"github.com/finnish-heritage-agency/passari-workflow/internal/enqueue"
	"github.com/finnish-heritage-agency/passari-workflow/internal/external"
	"github.com/finnish-heritage-agency/passari-workflow/internal/freeze"
	"github.com/finnish-heritage-agency/passari-workflow/internal/heartbeat"
	"github.com/finnish-heritage-agency/passari-workflow/internal/jobs"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/logger"
	"github.com/finnish-heritage-agency/passari-workflow/internal/queue"
	"github.com/finnish-heritage-agency/passari-workflow/internal/redisclient"
	"github.com/finnish-heritage-agency/passari-workflow/internal/sync"
	"github.com/finnish-heritage-agency/passari-workflow/internal/worker"
)

// App bundles every wired component a CLI command or the worker process
// might need. Not every command uses every field; cmd/pasctl picks
// what a given subcommand requires.
type App struct {
	Cfg        config.Config
	Log        *logger.Logger
	Postgres   *db.PostgresService
	Redis      *redisclient.Client
	Heartbeat  *heartbeat.Store
	Queue      *queue.Queue
	Objects    *repos.ObjectRepo
	Attachments *repos.AttachmentRepo
	Packages   *repos.PackageRepo
	SyncStatus *repos.SyncStatusRepo

	Sync    *sync.Service
	DPRES   *dpres.Service
	Enqueue *enqueue.Service
	Freeze  *freeze.Service
	Jobs    *jobs.Handlers
	Worker  *worker.Pool
}

// New loads configuration, connects to Postgres and Redis, runs the
// schema migration, and wires every service on top. Every external
// collaborator spec.md §1 places out of scope — CMS, the downloader, the
// SIP builder, the uploader, the confirm step — is reached through the
// one configured subprocess adapter (internal/external.CLIAdapter).
func New() (*App, error) {
	cfg, path, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewAtLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if path != "" {
		log.Info("loaded config", "path", path)
	}

	pg, err := db.NewPostgresService(cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	redisClient, err := redisclient.New(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	heartbeatStore := heartbeat.NewStore(redisClient)
	q := queue.New(redisClient)

	objectRepo := repos.NewObjectRepo(pg.DB())
	attachmentRepo := repos.NewAttachmentRepo(pg.DB())
	packageRepo := repos.NewPackageRepo(pg.DB())
	syncStatusRepo := repos.NewSyncStatusRepo(pg.DB())

	cliAdapter := &external.CLIAdapter{
		DownloaderPath:     cfg.Tools.DownloaderPath,
		SIPBuilderPath:     cfg.Tools.SIPBuilderPath,
		UploaderPath:       cfg.Tools.UploaderPath,
		ConfirmPath:        cfg.Tools.ConfirmPath,
		CMSObjectsPath:     cfg.Tools.CMSObjectsPath,
		CMSAttachmentsPath: cfg.Tools.CMSAttachmentsPath,
	}

	handlers := &jobs.Handlers{
		DB:          pg.DB(),
		Objects:     objectRepo,
		Packages:    packageRepo,
		Attachments: attachmentRepo,
		Queue:       q,
		Redis:       redisClient,
		Downloader:  cliAdapter,
		SIPBuilder:  cliAdapter,
		Uploader:    cliAdapter,
		Confirmer:   cliAdapter,
		PackageDir:  cfg.Package.PackageDir,
		ArchiveDir:  cfg.Package.ArchiveDir,
		Log:         log,
	}

	freezeService := &freeze.Service{
		Objects:    objectRepo,
		Packages:   packageRepo,
		Queue:      q,
		Redis:      redisClient,
		Log:        log,
		PackageDir: cfg.Package.PackageDir,
		ArchiveDir: cfg.Package.ArchiveDir,
	}

	enqueueService := &enqueue.Service{
		Objects:           objectRepo,
		Packages:          packageRepo,
		Queue:             q,
		Redis:             redisClient,
		PreservationDelay: cfg.PreservationDelay(),
		UpdateDelay:       cfg.UpdateDelay(),
		Log:               log,
	}

	dpresService := &dpres.Service{
		Cfg:        cfg.DPRES,
		Packages:   packageRepo,
		Queue:      q,
		Heartbeat:  heartbeatStore,
		PackageDir: cfg.Package.PackageDir,
		Log:        log,
	}

	syncService := &sync.Service{
		DB:          pg.DB(),
		Objects:     objectRepo,
		Attachments: attachmentRepo,
		SyncStatus:  syncStatusRepo,
		Heartbeat:   heartbeatStore,
		CMS:         cliAdapter,
		Log:         log,
	}

	pool := worker.NewPool(q, handlers, enqueueService, log)

	return &App{
		Cfg:         cfg,
		Log:         log,
		Postgres:    pg,
		Redis:       redisClient,
		Heartbeat:   heartbeatStore,
		Queue:       q,
		Objects:     objectRepo,
		Attachments: attachmentRepo,
		Packages:    packageRepo,
		SyncStatus:  syncStatusRepo,
		Sync:        syncService,
		DPRES:       dpresService,
		Enqueue:     enqueueService,
		Freeze:      freezeService,
		Jobs:        handlers,
		Worker:      pool,
	}, nil
}

// Close releases the connections New acquired.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
