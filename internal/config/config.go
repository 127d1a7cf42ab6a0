package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Plugins PluginsConfig `yaml:"plugins" json:"plugins"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds the HTTP server's listen and timeout settings.
type ServerConfig struct {
	Host           string        `yaml:"host" json:"host" env:"PLUGINHOSTD_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" json:"port" env:"PLUGINHOSTD_PORT" default:"8080"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout" env:"PLUGINHOSTD_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout" env:"PLUGINHOSTD_WRITE_TIMEOUT" default:"30s"`
	EnableCORS     bool          `yaml:"enable_cors" json:"enable_cors" env:"PLUGINHOSTD_ENABLE_CORS" default:"true"`
	TrustedProxies []string      `yaml:"trusted_proxies" json:"trusted_proxies" env:"PLUGINHOSTD_TRUSTED_PROXIES"`
}

// PluginsConfig holds the plugin lifecycle subsystem's directory and timing
// settings.
type PluginsConfig struct {
	Dir              string        `yaml:"dir" json:"dir" env:"PLUGINHOSTD_PLUGIN_DIR" default:"./plugins"`
	LoadTimeout      time.Duration `yaml:"load_timeout" json:"load_timeout" env:"PLUGINHOSTD_LOAD_TIMEOUT" default:"5s"`
	MaxBackups       int           `yaml:"max_backups" json:"max_backups" env:"PLUGINHOSTD_MAX_BACKUPS" default:"2"`
	EnableHotReload  bool          `yaml:"enable_hot_reload" json:"enable_hot_reload" env:"PLUGINHOSTD_HOT_RELOAD" default:"true"`
}

// LoggingConfig holds structured-logging output settings.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level" env:"PLUGINHOSTD_LOG_LEVEL" default:"info"`
	JSON       bool   `yaml:"json" json:"json" env:"PLUGINHOSTD_LOG_JSON" default:"false"`
	EnableTime bool   `yaml:"enable_time" json:"enable_time" env:"PLUGINHOSTD_LOG_TIME" default:"true"`
}

// Manager manages application configuration with hot-reload support: a
// later LoadConfig call replaces the active Config wholesale and notifies
// every registered watcher with the old and new values.
type Manager struct {
	config     *Config
	configPath string
	watchers   []Watcher
	mu         sync.RWMutex
}

// Watcher is called, on its own goroutine, when configuration changes.
type Watcher func(oldConfig, newConfig *Config)

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global configuration manager instance.
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager()
	})
	return globalManager
}

func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			EnableCORS:   true,
		},
		Plugins: PluginsConfig{
			Dir:             "./plugins",
			LoadTimeout:     5 * time.Second,
			MaxBackups:      2,
			EnableHotReload: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			JSON:       false,
			EnableTime: true,
		},
	}
}

// LoadConfig loads configuration from file (if configPath is non-empty and
// exists) and then applies environment variable overrides on top.
func (m *Manager) LoadConfig(configPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldConfig := *m.config
	m.configPath = configPath

	newConfig := DefaultConfig()

	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("load config from file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("load config from environment: %w", err)
	}

	if err := validate(newConfig); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	m.config = newConfig
	for _, w := range m.watchers {
		go w(&oldConfig, newConfig)
	}
	return nil
}

// GetConfig returns a copy of the current configuration.
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// AddWatcher registers a callback fired after every successful LoadConfig.
func (m *Manager) AddWatcher(w Watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, w)
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(n)
		}
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i, p := range parts {
				parts[i] = strings.TrimSpace(p)
			}
			field.Set(reflect.ValueOf(parts))
		}
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}
	return nil
}

func validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Plugins.Dir == "" {
		return fmt.Errorf("plugins.dir must not be empty")
	}
	if config.Plugins.MaxBackups < 1 {
		return fmt.Errorf("invalid max backups: %d", config.Plugins.MaxBackups)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Get returns the current global configuration.
func Get() *Config {
	return GetManager().GetConfig()
}

// Load loads configuration from the specified path into the global manager.
func Load(configPath string) error {
	return GetManager().LoadConfig(configPath)
}

// AddWatcher registers a callback on the global manager.
func AddWatcher(w Watcher) {
	GetManager().AddWatcher(w)
}
