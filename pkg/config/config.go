// Package config loads the YAML configuration of imagery-dater.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1F47E/imagery-dater/pkg/batch"
	"github.com/1F47E/imagery-dater/pkg/input"
	"github.com/1F47E/imagery-dater/pkg/oracle"
	"github.com/1F47E/imagery-dater/pkg/sink"
)

// DefaultFile is looked up in the working directory when no path is given
const DefaultFile = "imagery-dater.yaml"

// Config structure for YAML configuration
type Config struct {
	Resolver struct {
		RadiusM      int           `yaml:"radius_m"`
		QueryTimeout time.Duration `yaml:"query_timeout"`
		CallTimeout  time.Duration `yaml:"call_timeout"`
	} `yaml:"resolver"`
	Batch struct {
		Mode        string `yaml:"mode"`
		Concurrency int    `yaml:"concurrency"`
		ChunkSize   int    `yaml:"chunk_size"`
	} `yaml:"batch"`
	Oracle struct {
		Endpoint  string        `yaml:"endpoint"`
		Timeout   time.Duration `yaml:"timeout"`
		UserAgent string        `yaml:"user_agent"`
		HTTP2     bool          `yaml:"http2"`
	} `yaml:"oracle"`
	Input struct {
		Selector string `yaml:"selector"`
	} `yaml:"input"`
	Output struct {
		CSVDir string `yaml:"csv_dir"`
	} `yaml:"output"`
	Index struct {
		File string `yaml:"file"`
	} `yaml:"index"`
	PostGIS struct {
		Enabled        bool   `yaml:"enabled"`
		Host           string `yaml:"host"`
		Port           int    `yaml:"port"`
		User           string `yaml:"user"`
		Password       string `yaml:"password"`
		Database       string `yaml:"database"`
		SSLMode        string `yaml:"sslmode"`
		MaxConnections int    `yaml:"max_connections"`
	} `yaml:"postgis"`
	Path struct {
		SegmentGap time.Duration `yaml:"segment_gap"`
	} `yaml:"path"`
	Logging struct {
		Debug bool   `yaml:"debug"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// Default returns the configuration used when no file overrides it
func Default() Config {
	var c Config

	bc := batch.DefaultConfig()
	c.Resolver.RadiusM = bc.Radius
	c.Batch.Mode = string(bc.Mode)
	c.Batch.Concurrency = bc.Concurrency
	c.Batch.ChunkSize = bc.ChunkSize

	tc := oracle.DefaultTransportConfig()
	c.Oracle.Endpoint = oracle.DefaultEndpoint
	c.Oracle.Timeout = tc.Timeout
	c.Oracle.HTTP2 = tc.HTTP2

	c.Input.Selector = input.DefaultSelector
	c.Output.CSVDir = "csv"
	c.Index.File = "data/captures.gob"

	c.PostGIS.Host = "localhost"
	c.PostGIS.Port = 5432
	c.PostGIS.User = "postgres"
	c.PostGIS.Database = "geodb"
	c.PostGIS.MaxConnections = 10

	c.Path.SegmentGap = 30 * time.Minute
	c.Logging.File = "logs/imagery-dater.log"
	return c
}

// Load reads the config file at path on top of the defaults. An empty path
// loads DefaultFile if it exists and the defaults otherwise.
func Load(path string) (Config, error) {
	c := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// Validate checks every section for values the tool cannot run with
func (c Config) Validate() error {
	if err := c.BatchConfig().Validate(); err != nil {
		return err
	}
	if c.Resolver.CallTimeout < 0 {
		return fmt.Errorf("call timeout must not be negative, got %v", c.Resolver.CallTimeout)
	}
	if c.Oracle.Endpoint == "" {
		return errors.New("oracle endpoint is required")
	}
	if c.Oracle.Timeout < 0 {
		return fmt.Errorf("oracle timeout must not be negative, got %v", c.Oracle.Timeout)
	}
	if c.Path.SegmentGap < 0 {
		return fmt.Errorf("segment gap must not be negative, got %v", c.Path.SegmentGap)
	}
	if c.PostGIS.Enabled && (c.PostGIS.Host == "" || c.PostGIS.Database == "") {
		return errors.New("postgis host and database are required when postgis is enabled")
	}
	return nil
}

// BatchConfig returns the orchestrator settings
func (c Config) BatchConfig() batch.Config {
	return batch.Config{
		Mode:         batch.Mode(c.Batch.Mode),
		Concurrency:  c.Batch.Concurrency,
		ChunkSize:    c.Batch.ChunkSize,
		Radius:       c.Resolver.RadiusM,
		QueryTimeout: c.Resolver.QueryTimeout,
	}
}

// TransportConfig returns the oracle HTTP client settings
func (c Config) TransportConfig() oracle.TransportConfig {
	tc := oracle.DefaultTransportConfig()
	tc.Timeout = c.Oracle.Timeout
	tc.HTTP2 = c.Oracle.HTTP2
	if c.Batch.Concurrency > tc.MaxIdleConnsPerHost {
		tc.MaxIdleConnsPerHost = c.Batch.Concurrency
	}
	return tc
}

// PostGISConfig returns the capture database settings
func (c Config) PostGISConfig() sink.PostGISConfig {
	return sink.PostGISConfig{
		Host:           c.PostGIS.Host,
		Port:           c.PostGIS.Port,
		User:           c.PostGIS.User,
		Password:       c.PostGIS.Password,
		Database:       c.PostGIS.Database,
		SSLMode:        c.PostGIS.SSLMode,
		MaxConnections: c.PostGIS.MaxConnections,
	}
}
