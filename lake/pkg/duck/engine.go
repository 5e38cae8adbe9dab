package duck

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/duckdb/duckdb-go/v2"
)

type DB interface {
	Close() error
	Conn(ctx context.Context) (Connection, error)
}

type Connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Close() error
}

// EngineConfig configures the embedded engine.
type EngineConfig struct {
	// Roots are the storage URIs the engine reads from or writes to. Any s3:// root
	// loads the object-storage driver and requires S3.
	Roots []string

	// S3 carries the object-storage credentials and endpoint.
	S3 *S3Config

	// Threads caps engine parallelism. Zero keeps the engine default.
	Threads int
}

func (cfg *EngineConfig) Validate() error {
	for _, root := range cfg.Roots {
		if err := ValidateStorageURI(root); err != nil {
			return err
		}
		if IsS3(root) && cfg.S3 == nil {
			return fmt.Errorf("S3 configuration is required when using s3:// storage URI")
		}
	}
	if cfg.S3 != nil {
		if err := cfg.S3.Validate(); err != nil {
			return fmt.Errorf("invalid S3 configuration: %w", err)
		}
	}
	if cfg.Threads < 0 {
		return fmt.Errorf("threads must not be negative")
	}
	return nil
}

func (cfg *EngineConfig) usesS3() bool {
	for _, root := range cfg.Roots {
		if IsS3(root) {
			return true
		}
	}
	return false
}

// Engine is an in-memory DuckDB instance used as the dataframe and SQL engine.
type Engine struct {
	log *slog.Logger
	db  *sql.DB
}

type engineConn struct {
	conn *sql.Conn
}

func (c *engineConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *engineConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *engineConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *engineConn) Close() error {
	return c.conn.Close()
}

// NewEngine opens the engine and, when object storage is involved, installs the storage
// driver and injects the credentials as both an engine secret and driver settings.
// Any failure is returned as is; the caller decides whether the run can continue.
func NewEngine(ctx context.Context, log *slog.Logger, cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	engine := &Engine{log: log, db: db}
	if err := engine.configure(ctx, cfg); err != nil {
		db.Close()
		return nil, err
	}
	return engine, nil
}

func (e *Engine) configure(ctx context.Context, cfg EngineConfig) error {
	if cfg.Threads > 0 {
		if _, err := e.db.ExecContext(ctx, fmt.Sprintf("SET GLOBAL threads = %d", cfg.Threads)); err != nil {
			return fmt.Errorf("failed to set threads: %w", err)
		}
	}

	if !cfg.usesS3() {
		return nil
	}

	for _, ext := range []string{"httpfs", "aws"} {
		if _, err := e.db.ExecContext(ctx, fmt.Sprintf("INSTALL '%s'", ext)); err != nil {
			return fmt.Errorf("failed to install extension %s: %w", ext, err)
		}
		if _, err := e.db.ExecContext(ctx, fmt.Sprintf("LOAD '%s'", ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	s3cfg := cfg.S3.WithDefaults()
	if _, err := e.db.ExecContext(ctx, secretSQL(s3cfg)); err != nil {
		return fmt.Errorf("failed to create S3 secret: %w", err)
	}
	for _, stmt := range driverSettingsSQL(s3cfg) {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply S3 driver setting: %w", err)
		}
	}

	e.log.Info("configured S3 storage", "endpoint", s3cfg.Endpoint, "region", s3cfg.Region, "static_credentials", s3cfg.HasStaticCredentials())
	return nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// Conn returns a dedicated connection. Temporary tables and views are scoped to it.
func (e *Engine) Conn(ctx context.Context) (Connection, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	return &engineConn{conn: conn}, nil
}
