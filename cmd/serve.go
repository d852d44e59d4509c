package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cardlens/benefit-cli/internal/monitoring"
	"github.com/cardlens/benefit-cli/internal/server"
	"github.com/cardlens/benefit-cli/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var cachePinger monitoring.Pinger
		if e.RedisCache != nil {
			cachePinger = e.RedisCache
		}
		collector := monitoring.NewCollector(e.Store, e.Manager, cachePinger)
		alerter := monitoring.NewAlerter(cfg.Monitor)
		checker := monitoring.NewChecker(collector, alerter, cfg.Monitor)
		go checker.Run(ctx)

		janitor, err := session.NewJanitor(e.Manager, cfg.Session.JanitorSpec)
		if err != nil {
			return err
		}
		janitor.Start()
		defer janitor.Stop()

		api := server.New(e.Manager, collector, cfg.Monitor.LookbackHours)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, port),
			Handler: api.Handler(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
