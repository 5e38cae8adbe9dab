package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/malbeclabs/songlake/lake/pkg/storage"
)

// Manifest records a successful run under the output root.
type Manifest struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Input          string        `json:"input"`
	Output         string        `json:"output"`
	StartTimeClock string        `json:"start_time_clock"`
	Tables         []TableResult `json:"tables"`
}

// Table returns the result recorded for the named table.
func (m *Manifest) Table(name string) (TableResult, bool) {
	for _, t := range m.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableResult{}, false
}

func writeManifest(ctx context.Context, store storage.Store, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run manifest: %w", err)
	}
	if err := store.Put(ctx, ManifestKey, data, "application/json"); err != nil {
		return fmt.Errorf("failed to write run manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest of the last successful run under store's root.
func ReadManifest(ctx context.Context, store storage.Store) (*Manifest, error) {
	data, err := store.Get(ctx, ManifestKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read run manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse run manifest: %w", err)
	}
	return &m, nil
}
