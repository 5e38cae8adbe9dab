package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLake_Logger_DropsEmptyStringAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, false, true)
	log.Info("stage finished", "table", "songs", "partition", "", "rows", 3)

	out := buf.String()
	require.Contains(t, out, "stage finished")
	require.Contains(t, out, "table=songs")
	require.Contains(t, out, "rows=3")
	require.NotContains(t, out, "partition=")
}

func TestLake_Logger_VerboseEnablesDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithWriter(&buf, false, true).Debug("hidden")
	require.Empty(t, buf.String())

	NewWithWriter(&buf, true, true).Debug("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestLake_Logger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2018, 11, 11, 2, 33, 56, 796_000_000, time.FixedZone("PST", -8*3600))
	require.Equal(t, "2018-11-11T10:33:56.796Z", formatRFC3339Millis(ts))
}
