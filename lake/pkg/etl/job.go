package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/songlake/lake/pkg/duck"
	"github.com/malbeclabs/songlake/lake/pkg/etl/metrics"
	"github.com/malbeclabs/songlake/lake/pkg/storage"
)

type Config struct {
	Clock clockwork.Clock

	// Input is the root holding song_data/ and log_data/.
	Input string
	// Output is the root the tables and the run manifest are written under.
	Output string

	// StartTimeClock selects the start_time layout, "12h" or "24h".
	StartTimeClock string

	// RunID identifies the run in the manifest. A random id is used when empty.
	RunID string
}

func (cfg *Config) Validate() error {
	if cfg.Clock == nil {
		return errors.New("clock is required")
	}
	if err := duck.ValidateStorageURI(cfg.Input); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	if err := duck.ValidateStorageURI(cfg.Output); err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}
	if _, ok := startTimeLayouts[cfg.StartTimeClock]; !ok {
		return fmt.Errorf("invalid start time clock: %q", cfg.StartTimeClock)
	}
	return nil
}

// Job runs the catalog and activity pipelines on one engine connection.
type Job struct {
	log    *slog.Logger
	cfg    *Config
	conn   duck.Connection
	store  storage.Store
	writer *tableWriter
}

// New returns a job writing through store, which must be opened on cfg.Output.
func New(log *slog.Logger, cfg *Config, conn duck.Connection, store storage.Store) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, errors.New("connection is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.Root() != cfg.Output {
		return nil, fmt.Errorf("store root %q does not match output %q", store.Root(), cfg.Output)
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	log = log.With("run_id", cfg.RunID)
	return &Job{
		log:   log,
		cfg:   cfg,
		conn:  conn,
		store: store,
		writer: &tableWriter{
			log:    log,
			conn:   conn,
			store:  store,
			output: cfg.Output,
		},
	}, nil
}

// Run executes the catalog pipeline, then the activity pipeline, and writes the run
// manifest. The first failure stops the run; tables written before it stay in place.
func (j *Job) Run(ctx context.Context) (*Manifest, error) {
	manifest := &Manifest{
		RunID:          j.cfg.RunID,
		StartedAt:      j.cfg.Clock.Now().UTC(),
		Input:          j.cfg.Input,
		Output:         j.cfg.Output,
		StartTimeClock: j.cfg.StartTimeClock,
	}
	j.log.Info("starting run", "input", duck.RedactedStorageURI(j.cfg.Input), "output", duck.RedactedStorageURI(j.cfg.Output), "start_time_clock", j.cfg.StartTimeClock)

	catalog, err := j.RunCatalog(ctx)
	manifest.Tables = append(manifest.Tables, catalog...)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failure").Inc()
		return manifest, fmt.Errorf("catalog pipeline failed: %w", err)
	}

	activity, err := j.RunActivity(ctx)
	manifest.Tables = append(manifest.Tables, activity...)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failure").Inc()
		return manifest, fmt.Errorf("activity pipeline failed: %w", err)
	}

	manifest.FinishedAt = j.cfg.Clock.Now().UTC()
	if err := writeManifest(ctx, j.store, manifest); err != nil {
		metrics.RunsTotal.WithLabelValues("failure").Inc()
		return manifest, err
	}

	metrics.RunsTotal.WithLabelValues("success").Inc()
	j.log.Info("run finished", "tables", len(manifest.Tables), "duration", manifest.FinishedAt.Sub(manifest.StartedAt))
	return manifest, nil
}

func (j *Job) stage(ctx context.Context, pipeline, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := j.cfg.Clock.Now()
	j.log.Debug("stage started", "pipeline", pipeline, "stage", name)
	err := fn(ctx)
	duration := j.cfg.Clock.Since(start)
	metrics.StageDuration.WithLabelValues(pipeline, name).Observe(duration.Seconds())
	if err != nil {
		j.log.Error("stage failed", "pipeline", pipeline, "stage", name, "duration", duration, "error", err)
		return err
	}
	j.log.Debug("stage finished", "pipeline", pipeline, "stage", name, "duration", duration.Round(time.Millisecond))
	return nil
}
