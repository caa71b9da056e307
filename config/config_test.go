package config

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/assert"
)

func validMySQL() MySQLConfig {
	return MySQLConfig{Username: "grader", Password: "secret", Host: "localhost", Port: "3306"}
}

func TestMySQLConfigDSN(t *testing.T) {
	c := validMySQL()
	assert.Equal(t, c.DSN("portal"), "grader:secret@tcp(localhost:3306)/portal?parseTime=true")
}

func TestMySQLConfigValidate(t *testing.T) {
	c := validMySQL()
	assert.NilError(t, c.Validate())

	c.Port = "notaport"
	assert.Assert(t, c.Validate() != nil)

	c = validMySQL()
	c.Username = ""
	assert.Assert(t, c.Validate() != nil)
}

func TestWorkerConfigValidate(t *testing.T) {
	c := WorkerConfig{PollInterval: 3000}
	assert.NilError(t, c.Validate())

	c.PollInterval = 50
	assert.Assert(t, c.Validate() != nil)

	c.PollInterval = 0
	assert.Assert(t, c.Validate() != nil)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"logger": {
			"level": "info",
			"encoding": "json",
			"outputPaths": ["stdout"],
			"errorOutputPaths": ["stderr"],
			"encoderConfig": {"messageKey": "message", "levelKey": "level", "levelEncoder": "lowercase"}
		},
		"main_db": {
			"username": "grader", "password": "secret",
			"host": "localhost", "port": "3306", "database": "portal"
		},
		"sandbox_db": {
			"username": "sandbox", "password": "secret",
			"host": "localhost", "port": "3306"
		},
		"worker": {"poll_interval": 3000}
	}`
	assert.NilError(t, os.WriteFile(path, []byte(data), 0o600))

	var cfg Config
	assert.NilError(t, cfg.LoadFromFile(path))
	assert.Equal(t, cfg.MainDBConfig.Database, "portal")
	assert.Equal(t, cfg.WorkerConfig.PollInterval, 3000)
}

func TestLoadFromFileUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NilError(t, os.WriteFile(path, []byte("{}"), 0o600))

	var cfg Config
	assert.Assert(t, (&cfg).LoadFromFile(path) != nil)
}
