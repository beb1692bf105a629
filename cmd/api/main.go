package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	appchecks "github.com/bryanwahyu/checkflow/internal/application/checks"
	"github.com/bryanwahyu/checkflow/internal/application/intake"
	"github.com/bryanwahyu/checkflow/internal/config"
	"github.com/bryanwahyu/checkflow/internal/domain/capture"
	domain "github.com/bryanwahyu/checkflow/internal/domain/checks"
	oai "github.com/bryanwahyu/checkflow/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/checkflow/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/checkflow/internal/infra/db/postgres"
	"github.com/bryanwahyu/checkflow/internal/infra/httpserver"
	"github.com/bryanwahyu/checkflow/internal/infra/memory"
	redisx "github.com/bryanwahyu/checkflow/internal/infra/redis"
	"github.com/bryanwahyu/checkflow/internal/infra/scanner"
	minioStore "github.com/bryanwahyu/checkflow/internal/infra/storage"
	"github.com/bryanwahyu/checkflow/internal/metrics"
	"github.com/bryanwahyu/checkflow/internal/middleware"
)

type migrator interface {
	domain.Repository
	Migrate(ctx context.Context) error
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		logrus.WithError(err).Fatal("config load error")
	}
	logg := cfg.NewLogger(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.WithError(err).Fatal("checkflow stopped")
	}
	logg.Info("checkflow stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logrus.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	health := map[string]middleware.HealthChecker{}
	ready := map[string]middleware.HealthChecker{}

	// last error slot: redis kalau ada, kalau tidak di memory
	var errSlot domain.ErrorSlot = memory.NewErrorSlot()
	rdb, err := redisx.New(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		errSlot = redisx.NewErrorSlot(rdb.Client)
		health["redis"] = rdb
		ready["redis"] = rdb
	}

	svcOpts := []appchecks.Option{
		appchecks.WithErrorSlot(errSlot),
		appchecks.WithLogger(logg),
		appchecks.WithMetrics(m),
		appchecks.WithPageSize(cfg.Query.PageSize),
	}

	// database mirror (opsional)
	if cfg.Database.Driver != "" {
		db, repo, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		dbCheck := &middleware.DatabaseHealthChecker{DB: db}
		health["database"] = dbCheck
		ready["database"] = dbCheck
		svcOpts = append(svcOpts, appchecks.WithRepository(repo))
	}

	// scanner control channel, dipakai untuk command SCAN
	var control *scanner.Control
	if cfg.Scanner.ControlURL != "" {
		control = scanner.NewControl(cfg.Scanner.ControlURL,
			scanner.WithReconnect(cfg.Scanner.Reconnect),
			scanner.WithLogger(logg),
		)
		health["scanner_control"] = control
		svcOpts = append(svcOpts, appchecks.WithCommandSender(control))
	}

	svc, err := appchecks.New(memory.NewStore(), svcOpts...)
	if err != nil {
		return err
	}
	if cfg.Database.Driver != "" {
		n, err := svc.Restore(ctx)
		if err != nil {
			return fmt.Errorf("restore records: %w", err)
		}
		logg.WithField("records", n).Info("records restored")
	}

	xopts := []intake.ExtractorOption{
		intake.WithExtractorLogger(logg),
		intake.WithExtractorMetrics(m),
		intake.WithOCRSessions(cfg.Intake.OCRSessions),
	}

	// init minio
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		health["minio"] = store
		xopts = append(xopts, intake.WithImageStore(store))
	}

	// OCR lewat model vision
	if cfg.OpenAI.APIKey != "" {
		var ocr *oai.Client
		if cfg.OpenAI.BaseURL != "" {
			ocr = oai.NewClientWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
		} else {
			ocr = oai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		}
		xopts = append(xopts, intake.WithTextExtractor(ocr))
	} else {
		logg.Warn("no OCR engine configured, only device fields will be extracted")
	}

	worker, err := intake.NewWorker(intake.NewExtractor(xopts...), svc, cfg.Intake.Workers, logg, m)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.Intake.RatePerSec, cfg.Intake.RateBurst)
	handler := httpserver.NewRouter(httpserver.Deps{
		Checks:       svc,
		Intake:       worker,
		Log:          logg,
		Metrics:      m,
		Gatherer:     reg,
		Operators:    cfg.Auth.Operators,
		Health:       health,
		Ready:        ready,
		CaptureLimit: limiter,
		CORSOrigins:  cfg.Server.CORSOrigins,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	inbox := make(chan capture.Event, cfg.Intake.Buffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(worker.Run(gctx, inbox)) })

	if cfg.Scanner.FeedURL != "" {
		feed := scanner.NewFeed(cfg.Scanner.FeedURL,
			scanner.WithReconnect(cfg.Scanner.Reconnect),
			scanner.WithLogger(logg),
			scanner.WithFailureReporter(svc),
		)
		g.Go(func() error {
			defer close(inbox)
			return ignoreCanceled(feed.Run(gctx, inbox))
		})
	} else {
		logg.Warn("no scanner feed configured, captures are accepted over HTTP only")
	}

	if control != nil {
		g.Go(func() error { return ignoreCanceled(control.Run(gctx)) })
	}

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				limiter.Sweep()
			}
		}
	})

	// run server
	g.Go(func() error {
		logg.WithField("addr", addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logg.Info("shutting down server...")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

func openRepository(ctx context.Context, cfg *config.Config) (*sql.DB, migrator, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		return db, mysqlp.NewCheckRepository(db), nil
	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		return db, pgp.NewCheckRepository(db), nil
	}
	return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
