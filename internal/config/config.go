package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config struct is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Quiz     QuizConfig     `mapstructure:"quiz"`
	Report   ReportConfig   `mapstructure:"report"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	SessionSecret string `mapstructure:"session_secret"`
	SecureCookies bool   `mapstructure:"secure_cookies"`
	Environment   string `mapstructure:"environment"`
	RateLimit     int    `mapstructure:"rate_limit"` // write requests per client per minute
}

// DatabaseConfig holds the local record store settings. Driver is either
// "sqlite" (a file next to the application) or "postgres".
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// QuizConfig controls the questionnaire itself.
type QuizConfig struct {
	CatalogPath        string `mapstructure:"catalog_path"`
	RequirePatientInfo bool   `mapstructure:"require_patient_info"`
}

// ReportConfig controls the exported PDF.
type ReportConfig struct {
	Title      string `mapstructure:"title"`
	FilePrefix string `mapstructure:"file_prefix"`
	// FontPath is a TTF file used instead of the bundled font.
	FontPath string `mapstructure:"font_path"`
	// FontFamily selects a PDF core font (Helvetica, Times, Courier) when
	// set. Core fonts only cover cp1252.
	FontFamily string `mapstructure:"font_family"`
}

var (
	mu   sync.RWMutex
	conf *Config
	v    *viper.Viper
)

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.session_secret", "change-me-in-production")
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.rate_limit", 30)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/haq.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "haq")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "debug")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs

	// Quiz defaults
	v.SetDefault("quiz.catalog_path", "config/questionnaire.yaml")
	v.SetDefault("quiz.require_patient_info", true)

	// Report defaults
	v.SetDefault("report.title", "Health Assessment Questionnaire Report")
	v.SetDefault("report.file_prefix", "HAQ-DI_")
	v.SetDefault("report.font_path", "")
	v.SetDefault("report.font_family", "")
}

// Load reads the configuration with Viper. A missing config file is fine;
// defaults and HAQ_* environment variables are used instead.
func Load(projectRoot string) (*Config, error) {
	nv := viper.New()

	// Set default values
	setDefaults(nv)

	// --- File Configuration ---
	nv.AddConfigPath(filepath.Join(projectRoot, "config"))
	nv.SetConfigName("config")
	nv.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	nv.SetEnvPrefix("HAQ") // e.g., HAQ_SERVER_PORT
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	if err := nv.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var c Config
	if err := nv.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if !filepath.IsAbs(c.Quiz.CatalogPath) {
		c.Quiz.CatalogPath = filepath.Join(projectRoot, c.Quiz.CatalogPath)
	}

	mu.Lock()
	conf, v = &c, nv
	mu.Unlock()
	return &c, nil
}

// Watch reloads the configuration whenever the config file changes. Settings
// read through Get at request time (report options) pick up the new values;
// server, database and logging settings need a restart.
func Watch(log *zap.Logger) {
	mu.RLock()
	nv := v
	mu.RUnlock()
	if nv == nil || nv.ConfigFileUsed() == "" {
		return
	}

	nv.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		var c Config
		if err := nv.Unmarshal(&c); err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
			return
		}
		mu.Lock()
		c.Quiz.CatalogPath = conf.Quiz.CatalogPath
		conf = &c
		mu.Unlock()
	})
	nv.WatchConfig()
}

// Get returns the current configuration. It panics if Load was never called.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if conf == nil {
		panic("config: Load() must be called before Get()")
	}
	return conf
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
