package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/songlake/lake/pkg/config"
	"github.com/malbeclabs/songlake/lake/pkg/duck"
	"github.com/malbeclabs/songlake/lake/pkg/etl"
	"github.com/malbeclabs/songlake/lake/pkg/etl/metrics"
	"github.com/malbeclabs/songlake/lake/pkg/logger"
	"github.com/malbeclabs/songlake/lake/pkg/storage"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const dotenvPath = ".env"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", config.DefaultPath, "path to the TOML credential file")
	inputFlag := flag.String("input", "", "input root holding song_data/ and log_data/ (or set SONGLAKE_INPUT env var)")
	outputFlag := flag.String("output", "", "output root for the star schema tables (or set SONGLAKE_OUTPUT env var)")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	metricsAddrFlag := flag.String("metrics-addr", "", "address to listen on for prometheus metrics while the job runs")
	showVersionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersionFlag {
		fmt.Printf("songlake %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logger.New(*verboseFlag)

	lookup, err := config.EnvLookup(dotenvPath)
	if err != nil {
		return err
	}

	// The default credential file is optional; an explicit one must exist.
	configPath := *configFlag
	if !flag.CommandLine.Changed("config") {
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			log.Warn("credential file not found, using environment only", "path", configPath)
			configPath = ""
		}
	}

	cfg, err := config.Load(configPath, lookup)
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(inputFlag, outputFlag)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
	if *metricsAddrFlag != "" {
		listener, err := net.Listen("tcp", *metricsAddrFlag)
		if err != nil {
			return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
		}
		log.Info("prometheus metrics server listening", "address", listener.Addr().String())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Handler: mux}
		go func() {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("prometheus metrics server failed", "error", err)
			}
		}()
		defer server.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var s3Config *duck.S3Config
	if cfg.UsesS3() {
		s3Config = cfg.S3()
	}

	engine, err := duck.NewEngine(ctx, log, duck.EngineConfig{
		Roots:   []string{cfg.ETL.Input, cfg.ETL.Output},
		S3:      s3Config,
		Threads: cfg.ETL.Threads,
	})
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer engine.Close()

	conn, err := engine.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	store, err := storage.New(ctx, log, cfg.ETL.Output, s3Config)
	if err != nil {
		return fmt.Errorf("failed to open output storage: %w", err)
	}

	job, err := etl.New(log, &etl.Config{
		Clock:          clockwork.NewRealClock(),
		Input:          cfg.ETL.Input,
		Output:         cfg.ETL.Output,
		StartTimeClock: cfg.ETL.StartTimeClock,
	}, conn, store)
	if err != nil {
		return err
	}

	manifest, err := job.Run(ctx)
	if manifest != nil && len(manifest.Tables) > 0 {
		printSummary(os.Stdout, manifest)
	}
	return err
}

func printSummary(w io.Writer, m *etl.Manifest) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetHeader([]string{"Table", "Rows", "Partitions", "Partition By", "Path"})
	for _, t := range m.Tables {
		table.Append([]string{
			t.Name,
			strconv.FormatInt(t.Rows, 10),
			strconv.FormatInt(t.Partitions, 10),
			strings.Join(t.PartitionBy, ", "),
			duck.RedactedStorageURI(t.Path),
		})
	}
	table.Render()
}
