package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Data        DataConfig        `mapstructure:"data"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Settings    SettingsConfig    `mapstructure:"settings"`
	Validation  ValidationConfig  `mapstructure:"validation"`
	Window      WindowConfig      `mapstructure:"window"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig holds the loopback HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DataConfig holds the location of persisted application data.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SettingsConfig names the settings document holding the setup state.
type SettingsConfig struct {
	Document string `mapstructure:"document"`
}

// ValidationConfig configures the API key validation endpoint.
type ValidationConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// WindowConfig holds native shell options.
type WindowConfig struct {
	NoTray bool `mapstructure:"no_tray"`
}

// MaintenanceConfig holds the database housekeeping schedule.
type MaintenanceConfig struct {
	Cron string `mapstructure:"cron"`
}

const (
	DefaultSettingsDocument   = "store.settings"
	DefaultValidationEndpoint = "https://api.openai.com/v1/models"
)

// DefaultDataDir returns the per-user directory holding databases, settings
// documents and logs.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "Open2E")
	}
	return "./data"
}

// Default returns a Config with default values.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7410,
		},
		Data: DataConfig{
			Dir: dataDir,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Path:       filepath.Join(dataDir, "logs"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Settings: SettingsConfig{
			Document: DefaultSettingsDocument,
		},
		Validation: ValidationConfig{
			Endpoint: DefaultValidationEndpoint,
			Timeout:  15 * time.Second,
		},
		Maintenance: MaintenanceConfig{
			Cron: "0 3 * * *",
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > .env file > config file > defaults
func Load(configPath string) (*Config, error) {
	// .env is optional; a missing file is the normal case
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath(DefaultDataDir())
	}

	v.SetEnvPrefix("OPEN2E")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Log path follows a relocated data dir unless set explicitly.
	if !v.IsSet("logging.path") {
		cfg.Logging.Path = filepath.Join(cfg.Data.Dir, "logs")
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("data.dir", d.Data.Dir)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("settings.document", d.Settings.Document)

	v.SetDefault("validation.endpoint", d.Validation.Endpoint)
	v.SetDefault("validation.timeout", d.Validation.Timeout)

	v.SetDefault("window.no_tray", false)

	v.SetDefault("maintenance.cron", d.Maintenance.Cron)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// DatabasePath returns the path of a named SQLite database in the data dir.
func (c *DataConfig) DatabasePath(name string) string {
	return filepath.Join(c.Dir, name+".db")
}

// FindAvailablePort returns the first port at or after start that can be
// bound on the loopback interface.
func FindAvailablePort(start, attempts int) (int, error) {
	for port := start; port < start+attempts; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", port)))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no available port in range %d-%d", start, start+attempts-1)
}
