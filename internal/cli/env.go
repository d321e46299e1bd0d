package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tgienger/devdesk/internal/backup"
	"github.com/tgienger/devdesk/internal/bridge"
	"github.com/tgienger/devdesk/internal/config"
	"github.com/tgienger/devdesk/internal/db"
	"github.com/tgienger/devdesk/internal/logging"
	"github.com/tgienger/devdesk/internal/search"
	"github.com/tgienger/devdesk/internal/service"
)

// env is an open, migrated store with everything built on top of it.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *db.DB
	report   *db.MigrateReport
	meili    *search.Meili // nil when not configured
	search   *search.Service
	services *service.Services
	backups  *backup.Manager
	bridge   *bridge.Dispatcher
}

// openEnv loads the config, opens the database and runs the schema
// manager. A migration failure is fatal to the command.
func openEnv(ctx context.Context, o *options, logOut io.Writer) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)

	store, err := db.Open(ctx, db.Options{
		Path:   cfg.DatabasePath(),
		Driver: db.Driver(cfg.Database.Driver),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	report, err := store.Migrate(ctx, cfg.BootstrapAccount())
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger, db: store, report: report}

	var mirror search.Mirror
	if cfg.Search.Meili.URL != "" {
		e.meili = search.NewMeili(cfg.Search.Meili.URL, cfg.Search.Meili.APIKey, logger)
		mirror = e.meili
	}
	e.search = search.NewService(search.NewFTS(store), mirror, logger)

	e.services = service.New(service.Deps{
		DB:         store,
		Search:     e.search,
		Logger:     logger,
		BcryptCost: cfg.Security.BcryptCost,
	})

	var uploader backup.Uploader
	if s3 := cfg.Backup.S3; s3.Endpoint != "" {
		up, err := backup.NewS3Uploader(backup.S3Options{
			Endpoint:  s3.Endpoint,
			Bucket:    s3.Bucket,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			UseSSL:    s3.UseSSL,
			Prefix:    s3.Prefix,
		})
		if err != nil {
			e.Close()
			return nil, err
		}
		uploader = up
	}
	e.backups = backup.NewManager(store, backup.Options{
		Dir:      cfg.Backup.Dir,
		Keep:     cfg.Backup.Keep,
		Uploader: uploader,
		Logger:   logger,
	})

	e.bridge = bridge.New(bridge.Deps{DB: store, Services: e.services, Backup: e.backups})
	return e, nil
}

// startScheduler runs automatic backups when backup.schedule is set. The
// returned stop function is always safe to call.
func (e *env) startScheduler() (stop func(), err error) {
	if e.cfg.Backup.Schedule == "" {
		return func() {}, nil
	}
	s, err := backup.NewScheduler(e.backups, e.cfg.Backup.Schedule, e.logger)
	if err != nil {
		return nil, fmt.Errorf("start backup scheduler: %w", err)
	}
	s.Start()
	return func() { s.Stop(context.Background()) }, nil
}

// Close waits for pending mirror writes and closes the database.
func (e *env) Close() {
	if e.search != nil {
		e.search.Wait()
	}
	if e.meili != nil {
		e.meili.Close()
	}
	if err := e.db.Close(); err != nil {
		e.logger.Warn("close database", "error", err)
	}
}
