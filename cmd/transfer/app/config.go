package app

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/survey-transfer/internal/classify"
	"github.com/roman-kulish/survey-transfer/internal/device"
	"github.com/roman-kulish/survey-transfer/internal/transfer"
)

const (
	BackendCSV    = "csv"
	BackendSqlite = "sqlite"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings"`
	Paths    PathsConfig    `yaml:"paths"`
	Storage  StorageConfig  `yaml:"storage"`
	Devices  DevicesConfig  `yaml:"devices"`
	Transfer TransferConfig `yaml:"transfer"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// PathsConfig locates the output tree and the CSV tables
type PathsConfig struct {
	OutputRoot   string `yaml:"outputRoot"`
	RouteCatalog string `yaml:"routeCatalog"`
	PendingLog   string `yaml:"pendingLog"`
	FlightLog    string `yaml:"flightLog"`
}

// StorageConfig selects where the route catalog and flight log live. The
// pending log is always a CSV file.
type StorageConfig struct {
	Backend  string `yaml:"backend"`
	Database string `yaml:"database"`
}

// DevicesConfig tells where to look for drone storage. Explicit roots take
// precedence over scanning the mount points.
type DevicesConfig struct {
	Roots       []string `yaml:"roots"`
	DCIMFolder  string   `yaml:"dcimFolder"`
	MountPoints []string `yaml:"mountPoints"`
}

// TransferConfig represents copy settings
type TransferConfig struct {
	Workers      int    `yaml:"workers"`
	PhantomRoute string `yaml:"phantomRoute"`
}

// NewConfig returns the configuration defaults
func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Storage:  StorageConfig{Backend: BackendCSV},
		Devices: DevicesConfig{
			DCIMFolder:  device.DefaultDCIMFolder,
			MountPoints: device.DefaultMountPoints,
		},
		Transfer: TransferConfig{
			Workers:      transfer.MaxWorkers,
			PhantomRoute: classify.DefaultPhantomRoute,
		},
	}
}

// LoadConfig reads the YAML configuration at path over the defaults
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := NewConfig()
	if err = yaml.NewDecoder(f).Decode(c); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var err error
	switch {
	case c.Paths.OutputRoot == "":
		err = errors.New("paths.outputRoot is required")
	case c.Paths.PendingLog == "":
		err = errors.New("paths.pendingLog is required")
	case c.Transfer.Workers < 1 || c.Transfer.Workers > transfer.MaxWorkers:
		err = fmt.Errorf("transfer.workers must be between 1 and %d, got %d", transfer.MaxWorkers, c.Transfer.Workers)
	case c.Devices.DCIMFolder == "":
		err = errors.New("devices.dcimFolder must not be empty")
	}
	if err != nil {
		return err
	}

	switch c.Storage.Backend {
	case BackendCSV:
		if c.Paths.RouteCatalog == "" || c.Paths.FlightLog == "" {
			return errors.New("paths.routeCatalog and paths.flightLog are required with the csv backend")
		}
	case BackendSqlite:
		if c.Storage.Database == "" {
			return errors.New("storage.database is required with the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown storage backend '%s'", c.Storage.Backend)
	}
	return nil
}
