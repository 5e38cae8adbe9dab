package etl

import (
	"context"
	"fmt"

	"github.com/malbeclabs/songlake/lake/pkg/duck"
)

// logColumns is the activity event schema.
const logColumns = `{
	artist: 'VARCHAR',
	auth: 'VARCHAR',
	firstName: 'VARCHAR',
	gender: 'VARCHAR',
	itemInSession: 'BIGINT',
	lastName: 'VARCHAR',
	length: 'DOUBLE',
	level: 'VARCHAR',
	location: 'VARCHAR',
	method: 'VARCHAR',
	page: 'VARCHAR',
	registration: 'DOUBLE',
	sessionId: 'BIGINT',
	song: 'VARCHAR',
	status: 'BIGINT',
	ts: 'BIGINT',
	userAgent: 'VARCHAR',
	userId: 'VARCHAR'
}`

// start_time layouts. The 12h layout has no AM/PM marker, so 03:00 and 15:00 print alike.
var startTimeLayouts = map[string]string{
	"12h": "%Y-%m-%d %I:%M:%S",
	"24h": "%Y-%m-%d %H:%M:%S",
}

// Users keep the state of their most recent play. Plays sharing that ts resolve to the
// one staged last.
const usersViewSQL = `
CREATE OR REPLACE TEMP VIEW users_table AS
SELECT
	userId AS user_id,
	firstName AS first_name,
	lastName AS last_name,
	gender,
	level
FROM logs
QUALIFY row_number() OVER (PARTITION BY userId ORDER BY ts DESC NULLS LAST, seq DESC) = 1`

const timeViewSQL = `
CREATE OR REPLACE TEMP VIEW time_table AS
SELECT
	start_time,
	hour(t) AS hour,
	day(t) AS day,
	weekofyear(t) AS week,
	month(t) AS month,
	year(t) AS year,
	dayofweek(t) + 1 AS weekday
FROM (SELECT start_time, CAST(start_time AS TIMESTAMP) AS t FROM logs)`

const songplaysViewSQL = `
CREATE OR REPLACE TEMP VIEW songplays_table AS
SELECT
	row_number() OVER (ORDER BY logs.seq, songs.song_id, songs.artist_id) - 1 AS songplay_id,
	logs.start_time,
	logs.userId AS user_id,
	logs.level,
	songs.song_id,
	songs.artist_id,
	logs.sessionId AS session_id,
	logs.location,
	logs.userAgent AS user_agent,
	year(CAST(logs.start_time AS TIMESTAMP)) AS year,
	month(CAST(logs.start_time AS TIMESTAMP)) AS month
FROM logs
JOIN songs_written AS songs ON logs.song = songs.title`

func stageLogsSQL(path string) string {
	return fmt.Sprintf(`CREATE OR REPLACE TEMP TABLE log_staging AS
SELECT * FROM read_json(%s, format = 'auto', columns = %s)`, duck.QuoteLiteral(path), logColumns)
}

// logsViewSQL keeps song plays only. seq is the event's position in the staged logs,
// which follow file path order and line order within a file.
func logsViewSQL(clock string) string {
	return fmt.Sprintf(`
CREATE OR REPLACE TEMP VIEW logs AS
SELECT
	rowid AS seq,
	*,
	strftime(make_timestamp(ts * 1000), %s) AS start_time
FROM log_staging
WHERE page = 'NextSong'`, duck.QuoteLiteral(startTimeLayouts[clock]))
}

func songsWrittenViewSQL(path string) string {
	return fmt.Sprintf(`
CREATE OR REPLACE TEMP VIEW songs_written AS
SELECT * FROM read_parquet(%s, hive_partitioning = true, hive_types = {'year': BIGINT, 'artist_id': VARCHAR})`,
		duck.QuoteLiteral(path+"/**/*.parquet"))
}

// RunActivity loads the activity logs and writes the users, time and songplays tables.
// The songplays join reads the songs table back from the output root, so the catalog
// pipeline must have written it first.
func (j *Job) RunActivity(ctx context.Context) ([]TableResult, error) {
	const pipeline = "activity"

	path, err := duck.EnginePath(LogDataPath(j.cfg.Input))
	if err != nil {
		return nil, err
	}
	songsPath, err := duck.EnginePath(TablePath(j.cfg.Output, SongsTable))
	if err != nil {
		return nil, err
	}

	if err := j.stage(ctx, pipeline, "stage_logs", func(ctx context.Context) error {
		if _, err := j.conn.ExecContext(ctx, stageLogsSQL(path)); err != nil {
			return fmt.Errorf("failed to load log data: %w", err)
		}
		if _, err := j.conn.ExecContext(ctx, logsViewSQL(j.cfg.StartTimeClock)); err != nil {
			return fmt.Errorf("failed to filter song plays: %w", err)
		}
		var total, plays int64
		if err := j.conn.QueryRowContext(ctx, "SELECT count(*) FROM log_staging").Scan(&total); err != nil {
			return fmt.Errorf("failed to count log records: %w", err)
		}
		if err := j.conn.QueryRowContext(ctx, "SELECT count(*) FROM logs").Scan(&plays); err != nil {
			return fmt.Errorf("failed to count song plays: %w", err)
		}
		j.log.Info("loaded log data", "path", duck.RedactedStorageURI(LogDataPath(j.cfg.Input)), "records", total, "song_plays", plays)
		return nil
	}); err != nil {
		return nil, err
	}

	var results []TableResult
	for _, step := range []struct {
		table Table
		view  string
		sql   []string
	}{
		{UsersTable, "users_table", []string{usersViewSQL}},
		{TimeTable, "time_table", []string{timeViewSQL}},
		{SongplaysTable, "songplays_table", []string{songsWrittenViewSQL(songsPath), songplaysViewSQL}},
	} {
		var result TableResult
		if err := j.stage(ctx, pipeline, step.table.Name, func(ctx context.Context) error {
			for _, stmt := range step.sql {
				if _, err := j.conn.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("failed to derive %s table: %w", step.table.Name, err)
				}
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
