// Package etl reshapes the raw song catalog and activity logs into a star schema and
// writes each table as Parquet under the output root.
package etl

import (
	"github.com/malbeclabs/songlake/lake/pkg/duck"
)

const (
	songDataGlob = "song_data/*/*/*/*.json"
	logDataGlob  = "log_data/*/*/*.json"

	// ManifestKey is the object written under the output root after a successful run.
	ManifestKey = "_run.json"
)

// Table describes one output table.
type Table struct {
	Name        string
	PartitionBy []string
}

// Dir is the table's directory relative to the output root.
func (t Table) Dir() string {
	return t.Name + ".parquet"
}

var (
	SongsTable     = Table{Name: "songs", PartitionBy: []string{"year", "artist_id"}}
	ArtistsTable   = Table{Name: "artists"}
	UsersTable     = Table{Name: "users"}
	TimeTable      = Table{Name: "time", PartitionBy: []string{"year", "month"}}
	SongplaysTable = Table{Name: "songplays", PartitionBy: []string{"year", "month"}}
)

// Tables lists every output table in write order.
var Tables = []Table{SongsTable, ArtistsTable, UsersTable, TimeTable, SongplaysTable}

// SongDataPath is the glob matching the catalog files under input.
func SongDataPath(input string) string {
	return duck.JoinURI(input, songDataGlob)
}

// LogDataPath is the glob matching the activity log files under input.
func LogDataPath(input string) string {
	return duck.JoinURI(input, logDataGlob)
}

// TablePath is the URI of table's directory under output.
func TablePath(output string, table Table) string {
	return duck.JoinURI(output, table.Dir())
}
