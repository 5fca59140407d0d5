package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"carteira/internal/amqp"
	"carteira/internal/cli"
	"carteira/internal/config"
	apphttp "carteira/internal/http"
	applog "carteira/internal/log"
	"carteira/internal/notify"
	"carteira/internal/services"
	"carteira/internal/session"
	"carteira/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	root := &cobra.Command{
		Use:           "carteira",
		Short:         "Personal finance front-end for a remote ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := serveCmd()
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, statusCmd(), logoutCmd(), eventsCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var host, port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web interface (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, cfg := cli.Bootstrap()
			if host != "" {
				cfg.Host = host
			}
			if port != "" {
				cfg.Port = port
			}
			return serve(logger, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides HOST)")
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

func serve(logger *applog.Logger, cfg *config.Config) error {
	res := cli.InitBackend(context.Background(), logger, cfg)

	inbox := notify.NewInbox(20)
	notifier := notify.Multi(inbox, notify.NewLogNotifier(logger))

	sess := session.NewManager(res.Gateway, res.Identity, notifier, logger)
	ledger := services.NewLedgerService(res.Gateway, sess, notifier, res.Events, logger)

	startupCtx, cancel := context.WithTimeout(context.Background(), cfg.APITimeout)
	if snap := sess.Resume(startupCtx); snap.Authenticated() {
		if err := ledger.Refresh(startupCtx); err != nil {
			logger.Warn("Initial refresh failed", applog.FieldError, err)
		}
	}
	cancel()
	// resume messages are not meant for the first page
	inbox.Drain()

	var refresher *worker.Refresher
	if cfg.RefreshEnabled() {
		r, err := worker.NewRefresher(ledger, sess, cfg.RefreshSchedule, logger)
		if err != nil {
			return err
		}
		refresher = r
		refresher.Start()
	}

	srv, err := apphttp.NewServer(cfg.Addr(), apphttp.Deps{
		Ledger:      ledger,
		Session:     sess,
		Inbox:       inbox,
		Logger:      logger,
		RecentLimit: cfg.RecentLimit,
	})
	if err != nil {
		return err
	}
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.APITimeout + 10*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if refresher != nil {
			if err := refresher.Stop(ctx); err != nil {
				logger.Warn("Refresher did not stop in time", applog.FieldError, err)
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", applog.FieldError, err)
		}
	})

	logger.Info("Starting carteira server",
		"addr", srv.Addr,
		"backend", cfg.LedgerBackend,
		"refresh_schedule", cfg.RefreshSchedule,
		"events", res.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "addr", srv.Addr)
		return err
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, cfg := cli.Bootstrap()
			res := cli.InitBackend(cmd.Context(), logger, cfg)
			defer func() { _ = res.Cleanup() }()

			sess := session.NewManager(res.Gateway, res.Identity, notify.NewLogNotifier(logger), logger)
			snap := sess.Resume(cmd.Context())
			if !snap.Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Nenhum usuário conectado.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conectado como %s <%s> (id %d)\n", snap.User.Name, snap.User.Email, snap.User.ID)
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, cfg := cli.Bootstrap()
			res := cli.InitBackend(cmd.Context(), logger, cfg)
			defer func() { _ = res.Cleanup() }()

			sess := session.NewManager(res.Gateway, res.Identity, notify.Discard, logger)
			sess.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Sessão encerrada.")
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	var queue, binding string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow the ledger events published to AMQP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, cfg := cli.Bootstrap()
			if !cfg.AMQPEnabled() {
				return errors.New("AMQP_URL is not set")
			}
			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
			if err != nil {
				return err
			}
			defer client.Close()

			log := logger.WithComponent(applog.ComponentAMQP)
			ctx, done := cli.GracefulShutdown(logger, 5*time.Second, nil)
			err = client.FollowLedgerEvents(ctx, queue, binding, func(ctx context.Context, ev *amqp.LedgerEvent) error {
				args := []any{
					"kind", ev.Kind,
					applog.FieldOwnerID, ev.OwnerID,
					applog.FieldEntityID, ev.EntityID,
					"at", ev.Timestamp.Format(time.RFC3339),
				}
				if ev.Amount != nil {
					args = append(args, applog.FieldAmount, ev.Amount.String())
				}
				log.InfoContext(ctx, "Ledger event", args...)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				cli.WaitForShutdown(ctx, done)
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "carteira.events", "queue to bind and consume from")
	cmd.Flags().StringVar(&binding, "binding", "ledger.#", "routing key pattern")
	return cmd
}
