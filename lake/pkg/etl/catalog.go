package etl

import (
	"context"
	"fmt"

	"github.com/malbeclabs/songlake/lake/pkg/duck"
)

// songColumns is the catalog record schema. A key absent from a record reads as NULL and
// keys outside it are ignored.
const songColumns = `{
	num_songs: 'BIGINT',
	song_id: 'VARCHAR',
	title: 'VARCHAR',
	artist_id: 'VARCHAR',
	artist_name: 'VARCHAR',
	artist_location: 'VARCHAR',
	artist_latitude: 'DOUBLE',
	artist_longitude: 'DOUBLE',
	year: 'BIGINT',
	duration: 'DOUBLE'
}`

// Songs keep one row per song_id. Exact duplicates collapse and rows that disagree on
// the other columns resolve to the first in column order. Rows without a song_id are
// only collapsed when they are exact duplicates.
const songsViewSQL = `
CREATE OR REPLACE TEMP VIEW songs_table AS
SELECT * FROM (
	SELECT song_id, title, artist_id, year, duration
	FROM song_staging
	WHERE song_id IS NOT NULL
	QUALIFY row_number() OVER (
		PARTITION BY song_id
		ORDER BY title NULLS LAST, artist_id NULLS LAST, year NULLS LAST, duration NULLS LAST
	) = 1
)
UNION ALL
SELECT DISTINCT song_id, title, artist_id, year, duration
FROM song_staging
WHERE song_id IS NULL`

// Artists follow the same rule keyed on artist_id.
const artistsViewSQL = `
CREATE OR REPLACE TEMP VIEW artists_table AS
SELECT * FROM (
	SELECT
		artist_id,
		artist_name AS name,
		artist_location AS location,
		artist_latitude AS latitude,
		artist_longitude AS longitude
	FROM song_staging
	WHERE artist_id IS NOT NULL
	QUALIFY row_number() OVER (
		PARTITION BY artist_id
		ORDER BY artist_name NULLS LAST, artist_location NULLS LAST, artist_latitude NULLS LAST, artist_longitude NULLS LAST
	) = 1
)
UNION ALL
SELECT DISTINCT
	artist_id,
	artist_name AS name,
	artist_location AS location,
	artist_latitude AS latitude,
	artist_longitude AS longitude
FROM song_staging
WHERE artist_id IS NULL`

func stageSongsSQL(path string) string {
	return fmt.Sprintf(`CREATE OR REPLACE TEMP TABLE song_staging AS
SELECT * FROM read_json(%s, format = 'auto', columns = %s)`, duck.QuoteLiteral(path), songColumns)
}

// RunCatalog loads the song catalog and writes the songs and artists tables.
func (j *Job) RunCatalog(ctx context.Context) ([]TableResult, error) {
	const pipeline = "catalog"

	path, err := duck.EnginePath(SongDataPath(j.cfg.Input))
	if err != nil {
		return nil, err
	}

	if err := j.stage(ctx, pipeline, "stage_songs", func(ctx context.Context) error {
		if _, err := j.conn.ExecContext(ctx, stageSongsSQL(path)); err != nil {
			return fmt.Errorf("failed to load song data: %w", err)
		}
		var n int64
		if err := j.conn.QueryRowContext(ctx, "SELECT count(*) FROM song_staging").Scan(&n); err != nil {
			return fmt.Errorf("failed to count song records: %w", err)
		}
		j.log.Info("loaded song data", "path", duck.RedactedStorageURI(SongDataPath(j.cfg.Input)), "records", n)
		return nil
	}); err != nil {
		return nil, err
	}

	var results []TableResult
	for _, step := range []struct {
		table Table
		view  string
		sql   string
	}{
		{SongsTable, "songs_table", songsViewSQL},
		{ArtistsTable, "artists_table", artistsViewSQL},
	} {
		var result TableResult
		if err := j.stage(ctx, pipeline, step.table.Name, func(ctx context.Context) error {
			if _, err := j.conn.ExecContext(ctx, step.sql); err != nil {
				return fmt.Errorf("failed to derive %s table: %w", step.table.Name, err)
			}
			var err error
			result, err = j.writer.write(ctx, step.table, step.view)
			return err
		}); err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
