package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tolkflow/audience"
	"tolkflow/auth"
	"tolkflow/booking"
	"tolkflow/config"
	"tolkflow/db"
	"tolkflow/event"
	"tolkflow/notify"
	"tolkflow/reporting"
	"tolkflow/user"
)

const (
	outboxInterval = 5 * time.Second
	expiryInterval = time.Minute
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := user.NewRepository(pool)
	bookings := booking.NewRepository(pool)
	outbox := event.NewOutbox(pool)

	selector := audience.NewSelector(users, bookings, cfg.NightStartHour, cfg.NightEndHour)
	dispatcher := notify.NewDispatcher(
		selector,
		users,
		notify.NewSMTPMailer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From),
		notify.NewOneSignalClient(cfg.Push.Endpoint, cfg.Push.AppID, cfg.Push.APIKey, log),
		notify.NewSMSGateway(cfg.SMS.Endpoint, cfg.SMS.APIKey),
		log,
		cfg.SMS.FromNumber,
		cfg.NightStartHour,
		cfg.NightEndHour,
		cfg.BusinessStartHour,
	)

	bookingService := booking.NewService(pool, bookings, users, dispatcher, outbox, log).
		WithCancellationPhone(cfg.CancellationPhone)

	authRepo := auth.NewRepository(pool)
	server := &Server{
		bookings:  bookingService,
		reports:   reporting.NewService(pool, log),
		auth:      auth.NewService(authRepo, cfg.JWTSecret),
		directory: users,
		board:     selector,
		log:       log,
	}

	worker := event.NewWorker(pool, outbox, log, outboxInterval)
	worker.Subscribe(booking.TopicJobCreated, auditHandler(log, "booking created"))
	worker.Subscribe(booking.TopicJobCancelled, auditHandler(log, "booking cancelled"))
	worker.Subscribe(booking.TopicSessionEnded, auditHandler(log, "session ended"))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Run(ctx)
	})

	g.Go(func() error {
		expireOverdueJobs(ctx, bookings, dispatcher, log)
		return nil
	})

	g.Go(func() error {
		log.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// expireOverdueJobs sweeps pending bookings past their acceptance window and
// tells the customers nobody took the job.
func expireOverdueJobs(ctx context.Context, repo *booking.PGRepository, dispatcher *notify.Dispatcher, log *slog.Logger) {
	ticker := time.NewTicker(expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, err := repo.ExpirePending(ctx, now)
			if err != nil {
				log.Error("expiry sweep failed", "error", err)
				continue
			}
			for _, job := range expired {
				log.Info("booking expired without acceptance", "job_id", job.ID)
				dispatcher.JobExpired(ctx, job)
			}
		}
	}
}

func auditHandler(log *slog.Logger, what string) event.Handler {
	return func(ctx context.Context, msg event.Message) {
		log.Info(what, "event_id", msg.ID, "payload", msg.Payload)
	}
}
