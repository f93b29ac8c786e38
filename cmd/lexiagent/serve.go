package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rahul/lexigpt/internal/gateway"
	"github.com/rahul/lexigpt/internal/httpapi"
	"github.com/rahul/lexigpt/internal/observability"
)

func newServeCmd() *cobra.Command {
	var dashboard bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, the optional Telegram gateway and the ingestion agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(dashboard)
		},
	}
	cmd.Flags().BoolVar(&dashboard, "dashboard", true, "draw the live status line when attached to a terminal")
	return cmd
}

func serve(dashboard bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	deps := httpapi.Deps{
		Agent:      a.agent,
		Events:     a.sink,
		Chat:       a.chat,
		Sessions:   a.history,
		Search:     a.retriever,
		Docs:       a.docs,
		Status:     a.status,
		KeepAlive:  a.cfg.Agent.KeepAlive,
		RecentLogs: a.cfg.Agent.RecentLogs,
		Logger:     a.logger.With("component", "http"),
	}
	if a.ingester != nil {
		deps.Ingest = a.ingester
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if observability.IsTerminal(os.Stdout) {
		observability.PrintBanner(os.Stdout, a.cfg.HTTP.Addr)
		if dashboard {
			go observability.RunDashboard(ctx, a.status, time.Second)
		}
	}

	if tgCfg, ok := a.cfg.GetTelegramConfig(); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, a.agent, a.logger.With("component", "telegram"))
		if err != nil {
			a.logger.Error("telegram gateway disabled", "error", err)
		} else {
			go func() {
				if err := tg.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					a.logger.Error("telegram gateway stopped", "error", err)
				}
			}()
			defer tg.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
