package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fleet-asset-report/internal/api"
	"fleet-asset-report/internal/config"
	"fleet-asset-report/internal/models"
	"fleet-asset-report/internal/parser"
	"fleet-asset-report/internal/report"
	"fleet-asset-report/internal/sample"
	"fleet-asset-report/internal/sink"
)

var (
	configFile string
	v          = config.New()
	cfg        *config.Config
)

var errNoData = errors.New("no data available for the specified time period")

// commandKeys maps subcommand-local flags to config keys. They are bound for
// the command being run only, since several commands share a key.
var commandKeys = map[string]string{
	"listen": "server.listen",
	"output": "output.path",
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "fleet-report",
		Short: "Fleet asset report - per-vehicle utilization from trips and raw telemetry",
		Long: `Builds the asset utilization report by joining the trip metadata table with
per-vehicle telemetry tables from the raw location dump archive. Reports are
written to a CSV or SQLite file and can be requested over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for name, key := range commandKeys {
				if flag := cmd.Flags().Lookup(name); flag != nil {
					if err := v.BindPFlag(key, flag); err != nil {
						return err
					}
				}
			}

			var err error
			if cfg, err = config.Load(v, configFile); err != nil {
				return err
			}
			return setupLogging(cfg.Log)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: config.yaml in ., ./config, /etc/fleet-report)")
	flags.String("trips", "Trip-Info.csv", "Path to the trip metadata CSV")
	flags.String("archive", "NU-raw-location-dump.zip", "Path to the telemetry zip archive")
	flags.Int("workers", 0, "Vehicles processed concurrently (0 or 1 runs sequentially)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, json)")

	bindFlags(rootCmd, map[string]string{
		"input.trips":    "trips",
		"input.archive":  "archive",
		"report.workers": "workers",
		"log.level":      "log-level",
		"log.format":     "log-format",
	})

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(summarizeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bindFlags ties config keys to persistent flags of cmd
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

func setupLogging(lc config.LogConfig) error {
	if !strings.EqualFold(lc.Format, "json") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	log.Logger = log.Logger.Level(level)
	return nil
}

func newBuilder() *report.Builder {
	return report.NewBuilder(report.Config{
		TripsPath:   cfg.Input.Trips,
		ArchivePath: cfg.Input.Archive,
		Workers:     cfg.Report.Workers,
	})
}

// serveCmd starts the REST API server
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := api.NewServer(newBuilder(), sink.ForPath(cfg.Output.Path))
			httpServer := &http.Server{
				Addr:              cfg.Server.Listen,
				Handler:           server.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			log.Info().
				Str("listen", cfg.Server.Listen).
				Str("trips", cfg.Input.Trips).
				Str("archive", cfg.Input.Archive).
				Str("output", cfg.Output.Path).
				Msg("Starting fleet report API server")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info().Msg("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().String("listen", ":8000", "Address to listen on")
	cmd.Flags().StringP("output", "o", "asset_report.csv", "Report file written on every request (.db/.sqlite for SQLite)")
	return cmd
}

// reportCmd builds one report and writes it to the output file
func reportCmd() *cobra.Command {
	var start, end float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the asset report for a time window",
		RunE: func(cmd *cobra.Command, args []string) error {
			window := models.WindowFromEpoch(start, end)

			rep, err := newBuilder().Build(cmd.Context(), window)
			if err != nil {
				return err
			}
			if rep.Empty() {
				return errNoData
			}

			if err := sink.ForPath(cfg.Output.Path).Write(rep.Rows); err != nil {
				return fmt.Errorf("error writing report: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			fmt.Fprintf(out, "Report %s: %d vehicles in %v, written to %s\n\n",
				rep.RunID, len(rep.Rows), rep.Duration.Round(time.Millisecond), cfg.Output.Path)
			fmt.Fprintf(out, "%-14s %10s %6s %10s %-20s %10s\n", "Plate", "Distance", "Trips", "AvgSpeed", "Transporter", "Violations")
			for _, r := range rep.Rows {
				fmt.Fprintf(out, "%-14s %10.2f %6d %10.4f %-20s %10d\n",
					r.Plate, r.DistanceKM, r.TripCount, r.AvgSpeed, r.TransporterName, r.Violations)
			}
			if len(rep.Skipped) > 0 {
				fmt.Fprintf(out, "\nSkipped (no telemetry): %s\n", strings.Join(rep.Skipped, ", "))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&start, "start", 0, "Window start, epoch seconds")
	cmd.Flags().Float64Var(&end, "end", 0, "Window end, epoch seconds")
	cmd.Flags().StringP("output", "o", "asset_report.csv", "Report file (.db/.sqlite for SQLite)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

// generateCmd writes a synthetic trip table and telemetry archive
func generateCmd() *cobra.Command {
	var vehicles, tripsPerVehicle, points int
	var start float64
	var seed int64

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample trip metadata and a telemetry archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			begin := time.Now().Add(-24 * time.Hour).Truncate(time.Hour)
			if cmd.Flags().Changed("start") {
				begin = models.EpochToTime(start)
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}

			ds := sample.Generate(sample.Options{
				Vehicles:        vehicles,
				TripsPerVehicle: tripsPerVehicle,
				PointsPerTrip:   points,
				Start:           begin,
			}, rand.New(rand.NewSource(seed)))

			if err := ds.WriteFiles(cfg.Input.Trips, cfg.Input.Archive); err != nil {
				return err
			}

			log.Info().
				Int("vehicles", len(ds.Tables)).
				Int("trips", len(ds.Trips)).
				Int64("seed", seed).
				Str("trips_file", cfg.Input.Trips).
				Str("archive", cfg.Input.Archive).
				Msg("Sample data written")

			fmt.Printf("Try: fleet-report report --trips %s --archive %s --start %d --end %d\n",
				cfg.Input.Trips, cfg.Input.Archive, begin.Unix(), begin.Add(24*time.Hour).Unix())
			return nil
		},
	}

	cmd.Flags().IntVarP(&vehicles, "vehicles", "n", 10, "Number of vehicles")
	cmd.Flags().IntVar(&tripsPerVehicle, "trips-per-vehicle", 3, "Trips per vehicle")
	cmd.Flags().IntVar(&points, "points", 50, "Telemetry points per trip")
	cmd.Flags().Float64Var(&start, "start", 0, "First trip time, epoch seconds (default: 24h ago)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (default: time based)")
	return cmd
}

// summarizeCmd reduces a single telemetry file on disk
func summarizeCmd() *cobra.Command {
	var file string
	var start, end float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize one vehicle telemetry CSV for a time window",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := parser.NewParser(models.WindowFromEpoch(start, end)).ParseFile(file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}

			fmt.Fprintf(out, "Plate:       %s\n", summary.Plate)
			fmt.Fprintf(out, "Distance:    %.3f km\n", summary.TotalDistanceKM)
			fmt.Fprintf(out, "Speed sum:   %.1f\n", summary.TotalSpeed)
			fmt.Fprintf(out, "Violations:  %.0f\n", summary.ViolationCount)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Telemetry CSV file")
	cmd.Flags().Float64Var(&start, "start", 0, "Window start, epoch seconds")
	cmd.Flags().Float64Var(&end, "end", 0, "Window end, epoch seconds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}
