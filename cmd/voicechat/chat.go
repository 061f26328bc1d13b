package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-tavern/client/internal/app"
	"github.com/zhouzirui/z-tavern/client/internal/handler"
	"github.com/zhouzirui/z-tavern/client/internal/ui"
	"github.com/zhouzirui/z-tavern/client/internal/ui/terminal"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat (default)",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, closer, err := setup(true)
	if err != nil {
		return err
	}
	defer closer.Close()

	session, err := terminal.Open(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer session.Close()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("close client")
		}
	}()

	hub := a.Hub()
	hub.AddListener(session.Renderer.Listener())
	if cfg.Notify.Enabled {
		hub.AddListener(ui.NewNotifier().Listener())
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a.Init(ctx)
	go a.Run(ctx)

	if cfg.Control.Enabled() {
		router := handler.NewRouter(a, hub, a.Metrics().Handler())
		go func() {
			if err := serveControl(ctx, cfg.Control.Addr, router); err != nil {
				log.WithError(err).Error("control server stopped")
			}
		}()
	}

	console := terminal.NewConsole(a, session.Renderer, session.Terminal, session.Terminal)
	return console.Run(ctx)
}

// serveControl 运行本地控制 API，ctx 结束时优雅关闭
func serveControl(ctx context.Context, addr string, router http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", addr).Info("control API listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
