package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-tavern/client/internal/app"
	"github.com/zhouzirui/z-tavern/client/internal/config"
	"github.com/zhouzirui/z-tavern/client/internal/logging"
)

var log = logging.For("main")

var configPath string

var rootCmd = &cobra.Command{
	Use:   "voicechat",
	Short: "Terminal voice chat client for the speech backend",
	Long: `voicechat records speech from the microphone, sends it to the backend
for transcription and a reply, and plays the spoken response.
Without a subcommand it starts the interactive chat.`,
	SilenceUsage: true,
	RunE:         runChat,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment variables override it)")
}

// setup 加载 .env、配置文件并初始化日志；quiet 时日志不写 stderr
func setup(quiet bool) (*config.Config, io.Closer, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	closer := logging.Init(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Quiet:      quiet,
	})
	return cfg, closer, nil
}

// withApp 为一次性子命令创建并初始化客户端
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error, opts ...app.Option) error {
	cfg, closer, err := setup(false)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("close client")
		}
	}()

	return fn(cmd.Context(), a)
}
