package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"indoor-tracker/internal/config"
	"indoor-tracker/internal/metrics"
	"indoor-tracker/internal/service"
	"indoor-tracker/internal/wifi"
)

var version = "dev" // Default version, can be overridden during build

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "indoor-tracker",
	Short: "Motion-triggered location and environment tracker",
	Long: `Polls the cellular module's motion counter and, after movement, resolves a
location (GPS, falling back to Wi-Fi triangulation), samples the environmental
sensor and submits one reading for cloud delivery.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Load(cmd.Flags()); err != nil {
			return err
		}
		setupLogger()
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracking loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		m := metrics.New()
		if cfg.MetricsAddr != "" {
			go func() {
				if err := metrics.Serve(ctx, cfg.MetricsAddr, m, logger); err != nil {
					logger.Error("Metrics server failed", "error", err)
				}
			}()
		}

		svc, err := service.Open(ctx, cfg, logger, m)
		if err != nil {
			return err
		}
		defer svc.Close()

		logger.Info("indoor-tracker starting", "version", version, "variant", cfg.Variant)
		return svc.Run(ctx)
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Configure the card and run a single cycle regardless of motion",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		svc, err := service.Open(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Setup(ctx); err != nil {
			return err
		}

		res, err := svc.ForceCycle(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("motion: %d\nlocation: %s\n", res.Motion, res.Location)
		if res.Record != nil {
			r := res.Record
			fmt.Printf("temperature: %.1f C\n", r.Temperature)
			fmt.Printf("humidity: %.1f %%\n", r.Humidity)
			fmt.Printf("pressure: %.3f hPa\n", r.Pressure)
			fmt.Printf("altitude: %.2f m\n", r.Altitude)
			fmt.Printf("sea level pressure: %.3f hPa\n", r.SeaLevelPressure)
			if r.Gas != nil {
				fmt.Printf("gas: %.0f ohm\n", *r.Gas)
			}
			fmt.Printf("voltage: %.2f V\nbars: %d\nrssi: %d\n", r.Voltage, r.Bars, r.RSSI)
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Print visible access points in triangulation format",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		scanner, err := service.OpenScanner(cfg, logger)
		if err != nil {
			return err
		}
		defer scanner.Close()

		aps, err := scanner.Scan(ctx)
		if err != nil {
			return err
		}

		if len(aps) == 0 {
			fmt.Println("No access points found.")
			return nil
		}
		fmt.Print(wifi.Format(aps))
		logger.Debug("Scan completed", "count", len(aps))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("indoor-tracker %s\n", version)
	},
}

func init() {
	cfg = config.New(rootCmd.PersistentFlags())
	rootCmd.AddCommand(runCmd, onceCmd, scanCmd, versionCmd)
}

// setupLogger configures the logger based on the verbose flag. Under systemd the
// journal already timestamps every line.
func setupLogger() {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if os.Getenv("JOURNAL_STREAM") != "" {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	slog.SetDefault(logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
