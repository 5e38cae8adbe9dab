package etl

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/songlake/lake/pkg/duck"
	"github.com/malbeclabs/songlake/lake/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testRunStart = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testSong struct {
	NumSongs        int      `json:"num_songs"`
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	ArtistID        string   `json:"artist_id"`
	ArtistName      string   `json:"artist_name"`
	ArtistLocation  *string  `json:"artist_location,omitempty"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	Year            int      `json:"year"`
	Duration        float64  `json:"duration"`
}

type testEvent struct {
	Artist        string  `json:"artist,omitempty"`
	Auth          string  `json:"auth"`
	FirstName     string  `json:"firstName"`
	Gender        string  `json:"gender"`
	ItemInSession int     `json:"itemInSession"`
	LastName      string  `json:"lastName"`
	Length        float64 `json:"length,omitempty"`
	Level         string  `json:"level"`
	Location      string  `json:"location"`
	Method        string  `json:"method"`
	Page          string  `json:"page"`
	Registration  float64 `json:"registration"`
	SessionID     int64   `json:"sessionId"`
	Song          string  `json:"song,omitempty"`
	Status        int     `json:"status"`
	TS            int64   `json:"ts"`
	UserAgent     string  `json:"userAgent"`
	UserID        string  `json:"userId"`
}

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }

// setanta is a catalog row whose title matches the plays returned by play.
func setanta() testSong {
	return testSong{
		NumSongs:        1,
		SongID:          "SOZCTXZ12AB0182364",
		Title:           "Setanta matins",
		ArtistID:        "AR5KOSW1187FB35FF4",
		ArtistName:      "Elena",
		ArtistLocation:  strPtr("Dubai UAE"),
		ArtistLatitude:  floatPtr(49.80388),
		ArtistLongitude: floatPtr(15.47491),
		Year:            0,
		Duration:        269.58322,
	}
}

// play returns a NextSong event for user 26 in session 583.
func play(ts int64, song string) testEvent {
	return testEvent{
		Artist:        "Elena",
		Auth:          "Logged In",
		FirstName:     "Lily",
		Gender:        "F",
		ItemInSession: 5,
		LastName:      "Koch",
		Length:        269.58322,
		Level:         "paid",
		Location:      "San Jose-Sunnyvale-Santa Clara, CA",
		Method:        "PUT",
		Page:          "NextSong",
		Registration:  1541048010796,
		SessionID:     583,
		Song:          song,
		Status:        200,
		TS:            ts,
		UserAgent:     "Mozilla/5.0",
		UserID:        "26",
	}
}

// writeSong writes one catalog record per file, nested three levels deep like the
// published dataset.
func writeSong(t *testing.T, inputDir string, nested string, song testSong) {
	t.Helper()
	data, err := json.Marshal(song)
	require.NoError(t, err)
	dir := filepath.Join(inputDir, "song_data", filepath.FromSlash(nested))
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, song.SongID+"-"+song.ArtistID+".json"), data, 0644))
}

func writeSongFile(t *testing.T, inputDir string, rel string, body string) {
	t.Helper()
	p := filepath.Join(inputDir, "song_data", filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
}

// writeEvents writes newline-delimited events to log_data/<rel>.
func writeEvents(t *testing.T, inputDir string, rel string, events ...testEvent) {
	t.Helper()
	var lines []string
	for _, e := range events {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		lines = append(lines, string(data))
	}
	p := filepath.Join(inputDir, "log_data", filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

type testEnv struct {
	// localInput is where fixtures are written. For local runs it is the input root itself.
	localInput string

	input  string
	output string
	engine *duck.Engine
	conn   duck.Connection
	store  storage.Store
	clock  *clockwork.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	input := t.TempDir()
	output := filepath.Join(t.TempDir(), "out")

	env := &testEnv{
		localInput: input,
		input:      "file://" + input,
		output:     "file://" + output,
		clock:      clockwork.NewFakeClockAt(testRunStart),
	}

	engine, err := duck.NewEngine(ctx, testLogger(), duck.EngineConfig{Roots: []string{env.input, env.output}})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	env.engine = engine

	conn, err := engine.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	env.conn = conn

	store, err := storage.New(ctx, testLogger(), env.output, nil)
	require.NoError(t, err)
	env.store = store

	return env
}

func (e *testEnv) inputDir(t *testing.T) string {
	t.Helper()
	return e.localInput
}

func (e *testEnv) outputDir(t *testing.T) string {
	t.Helper()
	p, err := duck.EnginePath(e.output)
	require.NoError(t, err)
	return p
}

func (e *testEnv) job(t *testing.T, clock string) *Job {
	t.Helper()
	job, err := New(testLogger(), &Config{
		Clock:          e.clock,
		Input:          e.input,
		Output:         e.output,
		StartTimeClock: clock,
		RunID:          "test-run",
	}, e.conn, e.store)
	require.NoError(t, err)
	return job
}

// readTable reads a written table back through the engine, hive partition columns included.
func (e *testEnv) readTable(t *testing.T, table Table, columns string, orderBy string) *sql.Rows {
	t.Helper()
	dir, err := duck.EnginePath(TablePath(e.output, table))
	require.NoError(t, err)
	path := dir + "/**/*.parquet"
	q := "SELECT " + columns + " FROM read_parquet(" + duck.QuoteLiteral(path) + ", hive_partitioning = true)"
	if orderBy != "" {
		q += " ORDER BY " + orderBy
	}
	rows, err := e.conn.QueryContext(context.Background(), q)
	require.NoError(t, err)
	t.Cleanup(func() { rows.Close() })
	return rows
}
