package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/capturr"
	"github.com/loykin/capturr/internal/notify"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the capture scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(globalFlags.ConfigPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := capturr.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(cfg.Log.NewSlogger())

	if err := capturr.RegisterMetricsDefault(); err != nil {
		slog.Warn("failed to register metrics", "error", err)
	}
	if cfg.Metrics != nil && cfg.Metrics.Listen != "" {
		go func() {
			if err := capturr.ServeMetrics(cfg.Metrics.Listen); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	var sinks []capturr.HistorySink
	if cfg.HistoryDSN != "" {
		sink, err := capturr.NewHistorySink(cfg.HistoryDSN)
		if err != nil {
			return fmt.Errorf("open history sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	client := &http.Client{Timeout: notify.DefaultTimeout}
	notifier := capturr.NewNotifier(cfg, client)

	orch := capturr.New(cfg, notifier, sinks...)
	if err := orch.Start(); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	slog.Info("capture scheduler started",
		"sources", len(cfg.Sources),
		"check_interval", cfg.CheckInterval,
		"output", cfg.OutputDirectory)

	var server *http.Server
	if cfg.Server != nil && cfg.Server.Listen != "" {
		server, err = capturr.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, orch, notifier)
		if err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
		slog.Info("control API listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	orch.Stop()
	if server != nil {
		_ = server.Close()
	}
	return nil
}

func createValidateCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and print the schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := capturr.LoadConfig(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			now := time.Now()
			fmt.Printf("config ok: %d source(s), output %s\n", len(cfg.Sources), cfg.OutputDirectory)
			for _, src := range cfg.Sources {
				fmt.Printf("  %s (%s)\n", src.Name, src.URL)
				for _, w := range src.Windows {
					fmt.Printf("    %s\n", w)
				}
				if next, w, ok := capturr.NextWindow(now, src); ok {
					fmt.Printf("    next: %s (%s)\n", next.Format(time.RFC1123), w.Duration())
				}
			}
			return nil
		},
	}
}

func createStatusCommand(apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List in-flight recordings on a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(apiFlags.URL, 0)
			recs, err := client.Status()
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("no recordings in flight")
				return nil
			}
			for _, r := range recs {
				fmt.Printf("%s attempt=%d window=[%s, %s] -> %s\n",
					r.Source, r.Attempt,
					r.WindowStart.Format("15:04:05"), r.WindowEnd.Format("15:04:05"),
					r.Output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiFlags.URL, "api-url", "", "daemon API base URL (default http://127.0.0.1:8391/api)")
	return cmd
}

func createStopCommand(apiFlags *APIFlags) *cobra.Command {
	var source string
	var window int64
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop an in-flight recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" {
				return fmt.Errorf("--source is required")
			}
			client := NewAPIClient(apiFlags.URL, 0)
			if err := client.Stop(source, window); err != nil {
				return err
			}
			fmt.Printf("stop requested for %s\n", source)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source name")
	cmd.Flags().Int64Var(&window, "window", 0, "window start as unix seconds (optional)")
	cmd.Flags().StringVar(&apiFlags.URL, "api-url", "", "daemon API base URL (default http://127.0.0.1:8391/api)")
	return cmd
}

func createTestNotifyCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test message to the configured webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := capturr.LoadConfig(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			if cfg.WebhookURL == "" {
				return fmt.Errorf("no webhook_url configured")
			}
			notifier := capturr.NewNotifier(cfg, nil)
			ctx, cancel := context.WithTimeout(context.Background(), notify.DefaultTimeout)
			defer cancel()
			if err := notifier.Send(ctx, notify.Test()); err != nil {
				return fmt.Errorf("notification failed: %w", err)
			}
			fmt.Println("notification sent")
			return nil
		},
	}
}
