package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-tavern/client/internal/app"
	"github.com/zhouzirui/z-tavern/client/internal/service/gateway"
	"github.com/zhouzirui/z-tavern/client/internal/service/settings"
	"github.com/zhouzirui/z-tavern/client/internal/ui"
	"github.com/zhouzirui/z-tavern/client/internal/ui/terminal"
)

var errBackendOffline = errors.New("backend offline")

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, closer, err := setup(false)
		if err != nil {
			return err
		}
		defer closer.Close()

		client := gateway.New(cfg.Backend.BaseURL, gateway.WithTimeout(cfg.Backend.Timeout))
		if !client.HealthCheck(cmd.Context()) {
			fmt.Println(ui.OfflineText)
			return fmt.Errorf("%w: %s", errBackendOffline, cfg.Backend.BaseURL)
		}
		fmt.Println(ui.OnlineText)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send one text message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			attachPrinter(a)
			a.Init(ctx)
			if err := a.SendText(ctx, strings.Join(args, " ")); err != nil {
				return err
			}
			return waitForReply(ctx, a)
		})
	},
}

var processCmd = &cobra.Command{
	Use:   "process <file.wav>",
	Short: "Submit a recorded WAV file as a voice message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			attachPrinter(a)
			a.Init(ctx)
			if err := a.ProcessFile(ctx, args[0]); err != nil {
				return err
			}
			return waitForReply(ctx, a)
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear the saved chat history",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved chat history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			a.Init(ctx)
			msgs := a.Messages()
			if len(msgs) == 0 {
				fmt.Println(ui.WelcomeText)
				return nil
			}
			for _, m := range msgs {
				line := fmt.Sprintf("[%s] %s: %s", m.Timestamp, m.Sender, m.Text)
				if m.AudioURL != "" {
					line += "  (" + m.AudioURL + ")"
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

var clearYes bool

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the saved chat history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			a.Init(ctx)
			if err := a.ClearHistory(clearYes); err != nil {
				if errors.Is(err, app.ErrNotConfirmed) {
					return fmt.Errorf("%w: pass --yes to clear the history", err)
				}
				return err
			}
			fmt.Println("History cleared.")
			return nil
		})
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change preferences",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			a.Init(ctx)
			printSettings(a)
			return nil
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <autoplay|dark|sensitivity> <value>",
	Short: "Change one preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			a.Init(ctx)
			if err := applySetting(a, args[0], args[1]); err != nil {
				return err
			}
			printSettings(a)
			return nil
		})
	},
}

func init() {
	historyClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "confirm clearing the history")
	historyCmd.AddCommand(historyShowCmd, historyClearCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(healthCmd, sendCmd, processCmd, historyCmd, settingsCmd)
}

// attachPrinter 一次性命令只打印消息和错误
func attachPrinter(a *app.App) {
	renderer := terminal.NewRenderer(os.Stdout, nil, nil)
	listener := renderer.Listener()
	a.Hub().AddListener(func(ev ui.Event) {
		switch ev.Type {
		case ui.EventMessage, ui.EventError:
			listener(ev)
		}
	})
}

// waitForReply 等待自动播放的回复音频播完；Ctrl-C 直接结束
func waitForReply(ctx context.Context, a *app.App) error {
	if err := a.WaitPlayback(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func applySetting(a *app.App, key, value string) error {
	switch key {
	case "autoplay":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("autoplay: %w", err)
		}
		return a.SetAutoPlay(enabled)
	case "dark":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("dark: %w", err)
		}
		return a.SetDarkMode(enabled)
	case "sensitivity":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("sensitivity: %w", err)
		}
		return a.SetMicSensitivity(n)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
}

func printSettings(a *app.App) {
	s := a.Settings()
	fmt.Printf("autoplay:    %t\n", s.AutoPlayAudio)
	fmt.Printf("dark:        %t\n", s.DarkMode)
	fmt.Printf("sensitivity: %s\n", settings.SensitivityLabel(s.MicSensitivity))
}
