// Package config loads devdesk settings from config.yaml and DEVDESK_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/tgienger/devdesk/internal/db"
)

// FileName is the config file looked up in the data directory.
const FileName = "config.yaml"

// EnvPrefix prefixes every environment override, e.g. DEVDESK_LOG_LEVEL.
const EnvPrefix = "DEVDESK"

// Config is the top-level devdesk configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" yaml:"data_dir"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Security  SecurityConfig  `mapstructure:"security" yaml:"security"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap" yaml:"bootstrap"`
	Backup    BackupConfig    `mapstructure:"backup" yaml:"backup"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
}

type DatabaseConfig struct {
	File   string `mapstructure:"file" yaml:"file"`
	Driver string `mapstructure:"driver" yaml:"driver"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type SecurityConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// BootstrapConfig is the administrator seeded into a fresh database.
type BootstrapConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Email    string `mapstructure:"email" yaml:"email"`
	FullName string `mapstructure:"full_name" yaml:"full_name"`
	Password string `mapstructure:"password" yaml:"password"`
}

type BackupConfig struct {
	Dir      string   `mapstructure:"dir" yaml:"dir"`
	Schedule string   `mapstructure:"schedule" yaml:"schedule"` // cron expression, empty disables
	Keep     int      `mapstructure:"keep" yaml:"keep"`
	S3       S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config points at an S3-compatible bucket for off-site backup copies.
// An empty endpoint disables uploads.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
}

type SearchConfig struct {
	Meili MeiliConfig `mapstructure:"meili" yaml:"meili"`
}

// MeiliConfig enables the Meilisearch mirror when URL is set.
type MeiliConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// DefaultDataDir returns $XDG_DATA_HOME/devdesk, falling back to
// ~/.local/share/devdesk.
func DefaultDataDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "devdesk"), nil
}

// SetDefaults registers every key with its default so environment
// overrides are honoured by Unmarshal.
func SetDefaults(v *viper.Viper) {
	dataDir, err := DefaultDataDir()
	if err != nil {
		dataDir = ".devdesk"
	}
	boot := db.DefaultBootstrap()

	v.SetDefault("data_dir", dataDir)
	v.SetDefault("database.file", filepath.Join("data", "devdesk.db"))
	v.SetDefault("database.driver", string(db.DriverModernc))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("security.bcrypt_cost", bcrypt.DefaultCost)
	v.SetDefault("bootstrap.username", boot.Username)
	v.SetDefault("bootstrap.email", boot.Email)
	v.SetDefault("bootstrap.full_name", boot.FullName)
	v.SetDefault("bootstrap.password", boot.Password)
	v.SetDefault("backup.dir", "")
	v.SetDefault("backup.schedule", "")
	v.SetDefault("backup.keep", 10)
	v.SetDefault("backup.s3.endpoint", "")
	v.SetDefault("backup.s3.bucket", "")
	v.SetDefault("backup.s3.access_key", "")
	v.SetDefault("backup.s3.secret_key", "")
	v.SetDefault("backup.s3.use_ssl", true)
	v.SetDefault("backup.s3.prefix", "devdesk/")
	v.SetDefault("search.meili.url", "")
	v.SetDefault("search.meili.api_key", "")
}

// NewViper returns a viper instance with defaults and environment
// overrides wired. When file is empty, config.yaml is searched in the
// data directory.
func NewViper(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("data_dir"))
	}
	return v
}

// Default returns the configuration with no file and no overrides.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, _ := decode(v)
	return cfg
}

// Load reads the config file, applies environment overrides and validates
// the result. A missing file leaves the defaults in place.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills in values derived from other keys.
func (c *Config) applyDefaults() {
	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(c.DataDir, "backups")
	}
}

// Validate checks every key and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string
	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}
	if c.Database.File == "" {
		errs = append(errs, "database.file is required")
	}
	if !db.Driver(c.Database.Driver).Valid() {
		errs = append(errs, fmt.Sprintf("database.driver %q must be %q or %q",
			c.Database.Driver, db.DriverModernc, db.DriverMattn))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Sprintf("security.bcrypt_cost must be between %d and %d",
			bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Bootstrap.Username == "" || c.Bootstrap.Password == "" {
		errs = append(errs, "bootstrap.username and bootstrap.password are required")
	}
	if c.Backup.Keep < 1 {
		errs = append(errs, "backup.keep must be at least 1")
	}
	if c.Backup.Schedule != "" {
		if _, err := cron.ParseStandard(c.Backup.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("backup.schedule: %v", err))
		}
	}
	if c.Backup.S3.Endpoint != "" && c.Backup.S3.Bucket == "" {
		errs = append(errs, "backup.s3.bucket is required when backup.s3.endpoint is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DatabasePath resolves database.file against data_dir.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Database.File) {
		return c.Database.File
	}
	return filepath.Join(c.DataDir, c.Database.File)
}

// BootstrapAccount converts the bootstrap section for the schema manager.
func (c *Config) BootstrapAccount() db.Bootstrap {
	return db.Bootstrap{
		Username:   c.Bootstrap.Username,
		Email:      c.Bootstrap.Email,
		FullName:   c.Bootstrap.FullName,
		Password:   c.Bootstrap.Password,
		BcryptCost: c.Security.BcryptCost,
	}
}

const masked = "********"

// Redacted returns a copy with secrets replaced.
func (c *Config) Redacted() *Config {
	cp := *c
	for _, s := range []*string{&cp.Bootstrap.Password, &cp.Backup.S3.SecretKey, &cp.Search.Meili.APIKey} {
		if *s != "" {
			*s = masked
		}
	}
	return &cp
}

// YAML renders the config with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return out, nil
}

// WriteDefault writes the default config to path unless a file exists.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return false, fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return false, fmt.Errorf("config: write %s: %w", path, err)
	}
	return true, nil
}
