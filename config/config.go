package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-ozzo/ozzo-validation/v3"
	"github.com/go-ozzo/ozzo-validation/v3/is"
	"go.uber.org/zap"
)

// MySQLConfig holds connection parameters shared by the portal database and
// the sandbox databases the worker grades against.
type MySQLConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     string `json:"port"`
}

// DSN builds a go-sql-driver DSN for the given database name.
// parseTime is required so DATE/DATETIME columns scan as time.Time.
func (c *MySQLConfig) DSN(database string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", c.Username, c.Password, c.Host, c.Port, database)
}

func (c *MySQLConfig) Validate() error {
	return validation.ValidateStruct(
		c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
		validation.Field(&c.Host, validation.Required, is.Host),
		validation.Field(&c.Port, validation.Required, is.Port),
	)
}

// MainDBConfig points at the portal database holding the queue, submissions,
// questions and the sandbox database registry.
type MainDBConfig struct {
	MySQLConfig
	Database string `json:"database"`
}

func (c *MainDBConfig) Validate() error {
	if err := c.MySQLConfig.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(
		c,
		validation.Field(&c.Database, validation.Required),
	)
}

const minPollInterval = 100

// WorkerConfig controls the grading loop.
type WorkerConfig struct {
	// PollInterval is the idle delay between queue polls, in milliseconds.
	PollInterval int `json:"poll_interval"`
}

func (c *WorkerConfig) Validate() error {
	return validation.ValidateStruct(
		c,
		validation.Field(&c.PollInterval, validation.Required, validation.Min(minPollInterval)),
	)
}

type Config struct {
	LoggerConfig zap.Config `json:"logger"`

	MainDBConfig MainDBConfig `json:"main_db"`

	// SandboxDBConfig carries the credentials used to open per-entry
	// connections; the database name comes from the registry at runtime.
	SandboxDBConfig MySQLConfig `json:"sandbox_db"`

	WorkerConfig WorkerConfig `json:"worker"`
}

func (c *Config) Validate() error {
	if err := c.MainDBConfig.Validate(); err != nil {
		return err
	}
	if err := c.SandboxDBConfig.Validate(); err != nil {
		return err
	}
	if err := c.WorkerConfig.Validate(); err != nil {
		return err
	}
	return nil
}

func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return err
		}
		return c.Validate()
	default:
		return fmt.Errorf("unknown configuration file extension: %s", ext)
	}
}

const defaultConfigFile = "config.json"

func (c *Config) LoadDefault() error {
	return c.LoadFromFile(defaultConfigFile)
}
