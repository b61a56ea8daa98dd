// Command spooler runs the queue worker that executes spooled tasks.
//
// Run with -requeue-dead to move dead-lettered entries of a queue back to
// pending and exit, for example after deploying a worker that knows a task
// the previous one did not.
//
// The process serves GET /healthz on SPOOL_HEALTH_ADDR, backed by the
// selected store's connectivity check.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/config"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/environment"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/mail"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/spool"
)

type appConfig struct {
	Environment   string        `env:"ENVIRONMENT" envDefault:"development"`
	Store         string        `env:"SPOOL_STORE" envDefault:"memory"`
	BodyStore     string        `env:"SPOOL_BODY_STORE" envDefault:"inline"`
	TemplatesDir  string        `env:"MAIL_TEMPLATES_DIR" envDefault:"templates"`
	PurgeAfter    time.Duration `env:"SPOOL_PURGE_COMPLETED_AFTER" envDefault:"168h"`
	PurgeInterval time.Duration `env:"SPOOL_PURGE_INTERVAL" envDefault:"1h"`
	HealthAddr    string        `env:"SPOOL_HEALTH_ADDR" envDefault:":8081"`
}

func main() {
	requeue := flag.String("requeue-dead", "", "requeue dead-lettered entries of the named queue and exit")
	requeueLimit := flag.Int("requeue-limit", 100, "dead entries fetched per batch with -requeue-dead")
	flag.Parse()

	var cfg appConfig
	config.MustLoad(&cfg)

	env := environment.Parse(cfg.Environment)
	log := logger.New(logger.WithEnvironment(env, "spooler"))
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = environment.WithContext(ctx, env)

	var err error
	if *requeue != "" {
		err = requeueDead(ctx, cfg, log, *requeue, *requeueLimit)
	} else {
		err = run(ctx, cfg, log)
	}
	if err != nil {
		log.Error("spooler stopped with error", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	var (
		spoolCfg spool.Config
		queueCfg queue.Config
		mailCfg  mail.Config
	)
	if err := errors.Join(config.Load(&spoolCfg), config.Load(&queueCfg), config.Load(&mailCfg)); err != nil {
		return err
	}

	st, err := openStore(ctx, cfg.Store, environment.FromContext(ctx), log)
	if err != nil {
		return err
	}
	defer st.close()

	spoolOpts := []spool.Option{
		spool.WithConfig(spoolCfg),
		spool.WithLogger(log),
		spool.WithObserver(logOutcome(log)),
	}
	bodies, err := openBodyStore(ctx, cfg.BodyStore)
	if err != nil {
		return err
	}
	if bodies != nil {
		spoolOpts = append(spoolOpts, spool.WithBodyStore(bodies))
	}
	if spoolCfg.Enabled {
		enqueuer, err := queue.NewEnqueuer(st.repo, queue.WithDefaultQueue(spoolCfg.Queue))
		if err != nil {
			return err
		}
		spoolOpts = append(spoolOpts, spool.WithBackend(queue.NewBackend(enqueuer)))
	}
	spooler := spool.New(spoolOpts...)

	mailer, err := mail.NewMailer(mailCfg, os.DirFS(cfg.TemplatesDir), mail.WithLogger(log))
	if err != nil {
		return err
	}
	if _, err := mailer.Register(spooler); err != nil {
		return err
	}

	worker, err := queue.NewWorker(st.repo, queue.SpoolHandler(spooler),
		append(queueCfg.WorkerOptions(), queue.WithWorkerLogger(log))...)
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "spooler started",
		slog.String("store", cfg.Store),
		slog.String("body_store", cfg.BodyStore),
		slog.Any("queues", queueCfg.Queues),
		slog.Any("tasks", spooler.Registry().Names()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	if st.purge != nil && cfg.PurgeInterval > 0 {
		g.Go(purgeLoop(ctx, st.purge, cfg.PurgeInterval, cfg.PurgeAfter, log))
	}
	if cfg.HealthAddr != "" {
		g.Go(serveHealth(ctx, cfg.HealthAddr, healthRouter(st.healthcheck, log), log))
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("spooler stopped")
	return nil
}

func requeueDead(ctx context.Context, cfg appConfig, log *slog.Logger, queueName string, limit int) error {
	st, err := openStore(ctx, cfg.Store, environment.FromContext(ctx), log)
	if err != nil {
		return err
	}
	defer st.close()

	n, err := queue.RequeueAll(ctx, st.repo, queueName, limit)
	if err != nil {
		return fmt.Errorf("requeue dead entries of %q: %w", queueName, err)
	}
	log.InfoContext(ctx, "dead entries requeued", logger.Queue(queueName), slog.Int("count", n))
	return nil
}

// logOutcome records terminal failures with the job they belong to.
func logOutcome(log *slog.Logger) spool.Observer {
	return func(ctx context.Context, e spool.Event) {
		if e.State != spool.StateFailedTerminal || e.Job == nil {
			return
		}
		log.DebugContext(ctx, "spooled job dropped",
			logger.Task(e.Job.Task),
			logger.JobID(e.Job.ID),
			logger.State(string(e.State)),
			logger.Error(e.Err))
	}
}

// purgeLoop deletes completed entries older than retention every interval.
func purgeLoop(ctx context.Context, purge func(context.Context, time.Time) (int64, error), interval, retention time.Duration, log *slog.Logger) func() error {
	return func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := purge(ctx, time.Now().Add(-retention))
				if err != nil {
					log.WarnContext(ctx, "failed to purge completed entries", logger.Error(err))
					continue
				}
				if n > 0 {
					log.InfoContext(ctx, "purged completed entries", slog.Int64("count", n))
				}
			}
		}
	}
}
