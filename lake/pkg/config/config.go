package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/malbeclabs/songlake/lake/pkg/duck"
)

const (
	DefaultPath   = "dl.cfg"
	DefaultInput  = "s3://udacity-dend/"
	DefaultOutput = "s3://myawsbucket-cat/"

	// Clock12h formats start_time with a 12-hour clock and no AM/PM marker.
	Clock12h = "12h"
	// Clock24h formats start_time with a 24-hour clock.
	Clock24h = "24h"
)

// Config represents the complete configuration for the ETL job.
type Config struct {
	AWS AWSConfig `toml:"aws"`
	ETL ETLConfig `toml:"etl"`
}

// AWSConfig contains object-storage credentials and endpoint.
type AWSConfig struct {
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Region          string `toml:"region"`
	EndpointURL     string `toml:"endpoint_url"`
	URLStyle        string `toml:"url_style"`
}

// ETLConfig contains the job's storage roots and output options.
type ETLConfig struct {
	Input          string `toml:"input"`
	Output         string `toml:"output"`
	StartTimeClock string `toml:"start_time_clock"`
	Threads        int    `toml:"threads"`
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		AWS: AWSConfig{
			Region: duck.DefaultS3Region,
		},
		ETL: ETLConfig{
			Input:          DefaultInput,
			Output:         DefaultOutput,
			StartTimeClock: Clock12h,
		},
	}
}

// EnvLookup returns a lookup over the process environment, falling back to values read
// from the given dotenv files. The files are read, never exported into the environment.
func EnvLookup(dotenvPaths ...string) (LookupFunc, error) {
	values := map[string]string{}
	for _, p := range dotenvPaths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		fileValues, err := godotenv.Read(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", p, err)
		}
		for k, v := range fileValues {
			if _, ok := values[k]; !ok {
				values[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}, nil
}

// MapLookup returns a lookup over a fixed map.
func MapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// Load loads configuration from a TOML file and environment variables, and applies defaults.
// Priority: CLI flags > SONGLAKE_* environment > config file > AWS_* environment > defaults
func Load(configPath string, lookup LookupFunc) (*Config, error) {
	cfg := DefaultConfig()
	if lookup == nil {
		lookup = MapLookup(nil)
	}

	// Load from TOML file if it exists
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}

	// Standard AWS variables only fill in credentials the file left empty
	if cfg.AWS.AccessKeyID == "" && cfg.AWS.SecretAccessKey == "" {
		if v, ok := lookup("AWS_ACCESS_KEY_ID"); ok {
			cfg.AWS.AccessKeyID = v
		}
		if v, ok := lookup("AWS_SECRET_ACCESS_KEY"); ok {
			cfg.AWS.SecretAccessKey = v
		}
	}

	// Override with environment variables
	if v, ok := lookup("SONGLAKE_AWS_ACCESS_KEY_ID"); ok && v != "" {
		cfg.AWS.AccessKeyID = v
	}
	if v, ok := lookup("SONGLAKE_AWS_SECRET_ACCESS_KEY"); ok && v != "" {
		cfg.AWS.SecretAccessKey = v
	}
	if v, ok := lookup("SONGLAKE_AWS_REGION"); ok && v != "" {
		cfg.AWS.Region = v
	}
	if v, ok := lookup("SONGLAKE_AWS_ENDPOINT_URL"); ok && v != "" {
		cfg.AWS.EndpointURL = v
	}
	if v, ok := lookup("SONGLAKE_INPUT"); ok && v != "" {
		cfg.ETL.Input = v
	}
	if v, ok := lookup("SONGLAKE_OUTPUT"); ok && v != "" {
		cfg.ETL.Output = v
	}
	if v, ok := lookup("SONGLAKE_START_TIME_CLOCK"); ok && v != "" {
		cfg.ETL.StartTimeClock = v
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := duck.ValidateStorageURI(c.ETL.Input); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	if err := duck.ValidateStorageURI(c.ETL.Output); err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}
	if c.ETL.StartTimeClock != Clock12h && c.ETL.StartTimeClock != Clock24h {
		return fmt.Errorf("invalid start_time_clock: %s. Must be '12h' or '24h'", c.ETL.StartTimeClock)
	}
	if c.ETL.Threads < 0 {
		return fmt.Errorf("threads cannot be negative")
	}
	if c.UsesS3() {
		if err := c.S3().Validate(); err != nil {
			return fmt.Errorf("invalid AWS configuration: %w", err)
		}
	}
	return nil
}

// ApplyOverrides applies CLI flag overrides to the configuration.
func (c *Config) ApplyOverrides(input, output *string) {
	if input != nil && *input != "" {
		c.ETL.Input = *input
	}
	if output != nil && *output != "" {
		c.ETL.Output = *output
	}
}

// UsesS3 reports whether either storage root is on S3.
func (c *Config) UsesS3() bool {
	return duck.IsS3(c.ETL.Input) || duck.IsS3(c.ETL.Output)
}

// S3 returns the storage configuration handed to the engine and the storage layer.
func (c *Config) S3() *duck.S3Config {
	cfg := duck.S3Config{
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
		Endpoint:        c.AWS.EndpointURL,
		Region:          c.AWS.Region,
		URLStyle:        c.AWS.URLStyle,
	}.WithDefaults()
	return &cfg
}
