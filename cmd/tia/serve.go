package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/PabloGalante/tia-chat/internal/adapters/http"
	"github.com/PabloGalante/tia-chat/internal/adapters/responder"
	memstore "github.com/PabloGalante/tia-chat/internal/adapters/storage/memory"
	"github.com/PabloGalante/tia-chat/internal/app/chat"
	"github.com/PabloGalante/tia-chat/internal/app/reply"
	"github.com/PabloGalante/tia-chat/internal/config"
	"github.com/PabloGalante/tia-chat/internal/domain"
	"github.com/PabloGalante/tia-chat/internal/observability"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides config)")

	return cmd
}

// app holds the wired components behind one HTTP handler.
type app struct {
	handler   http.Handler
	scheduler *reply.Scheduler
	rules     int
}

// buildApp wires the stores, engine, scheduler and façade, and seeds the
// default session so clients can list it before anything was posted.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	engine, err := responder.Load(cfg.RulesFile)
	if err != nil {
		return nil, errors.Wrap(err, "load reply rules")
	}

	sessions := memstore.NewSessionStore()
	messages := memstore.NewMessageStore()

	sched, err := reply.NewScheduler(engine, messages,
		reply.WithDelayRange(cfg.ReplyMinDelay(), cfg.ReplyMaxDelay()))
	if err != nil {
		return nil, err
	}

	defaults := domain.SessionDefaults{Title: cfg.DefaultSessionTitle}
	if cfg.DefaultUserID != "" {
		uid := domain.UserID(cfg.DefaultUserID)
		defaults.UserID = &uid
	}
	svc := chat.NewService(sessions, messages, sched,
		chat.WithDefaultSession(domain.SessionID(cfg.DefaultSessionID), defaults))

	if _, err := svc.DefaultSession(ctx); err != nil {
		return nil, errors.Wrap(err, "seed default session")
	}

	handler, err := httpadapter.NewServer(svc)
	if err != nil {
		return nil, err
	}

	return &app{handler: handler, scheduler: sched, rules: len(engine.Rules())}, nil
}

// serve runs the API until ctx is cancelled.
func serve(ctx context.Context, cfg config.Config) error {
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.Addr)
	}

	log := observability.WithFields(map[string]any{
		"addr":            ln.Addr().String(),
		"default_session": cfg.DefaultSessionID,
	})
	log.Info().
		Int("rules", a.rules).
		Dur("reply_min_delay", cfg.ReplyMinDelay()).
		Dur("reply_max_delay", cfg.ReplyMaxDelay()).
		Msg("starting chat server")

	return a.run(ctx, ln, cfg.ShutdownTimeout())
}

// run serves on ln until ctx is cancelled, then shuts the listener down and
// drains replies that are still scheduled, both bounded by shutdownTimeout.
func (a *app) run(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	log := observability.WithFields(map[string]any{"addr": ln.Addr().String()})

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		shutdownErr := srv.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("server shutdown error")
		}
		if err := a.scheduler.Wait(shutdownCtx); err != nil {
			log.Warn().Err(err).Int("pending", a.scheduler.Pending()).Msg("dropping scheduled replies")
		}
		if shutdownErr != nil {
			return shutdownErr
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	return eg.Wait()
}
