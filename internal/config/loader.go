package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/leadbridge/leadbridge/internal/errors"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "LEADBRIDGE_CONFIG_PATH"

// Loader handles configuration loading and hot-reloading
type Loader struct {
	path     string
	mu       sync.RWMutex
	config   *Config
	lastMod  time.Time
	onChange []func(*Config)
}

// NewLoader creates a new configuration loader
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the configuration from the file
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.ErrConfigNotFound{Path: l.path}
		}
		return nil, err
	}

	content, err := os.ReadFile(l.path)
	if err != nil {
		return nil, &errors.ErrFileRead{Path: l.path, Err: err}
	}

	config, err := Parse(substituteEnvVars(content))
	if err != nil {
		return nil, err
	}

	l.config = config
	l.lastMod = info.ModTime()

	return config, nil
}

// Reload forces a reload of the configuration and notifies subscribers.
func (l *Loader) Reload() (*Config, error) {
	config, err := l.Load()
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	callbacks := append([]func(*Config){}, l.onChange...)
	l.mu.RUnlock()

	for _, fn := range callbacks {
		fn(config)
	}

	return config, nil
}

// Get returns the current configuration
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// SetOnChange registers a callback invoked after every successful reload.
func (l *Loader) SetOnChange(fn func(*Config)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, fn)
	l.mu.Unlock()
}

// Watch reloads the configuration whenever the file changes, until ctx is
// done. The parent directory is watched so that editors replacing the file
// atomically are picked up. onError receives reload failures; the previous
// configuration stays active.
func (l *Loader) Watch(ctx context.Context, onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Clean(l.path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if !l.changedSinceLoad() {
					continue
				}
				if _, err := l.Reload(); err != nil && onError != nil {
					onError(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return nil
}

func (l *Loader) changedSinceLoad() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return !info.ModTime().Equal(l.lastMod)
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return &errors.ErrFileRead{Path: p, Err: err}
		}
	}
	return nil
}

// PathFromEnv returns the config path from the environment, or the default.
func PathFromEnv() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	return "config.yaml"
}

// LoadFromEnv loads configuration using path from environment variable or default
func LoadFromEnv() (*Config, error) {
	return NewLoader(PathFromEnv()).Load()
}

// MustLoad loads configuration or panics on error
func MustLoad(path string) *Config {
	config, err := NewLoader(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return config
}

// Parse parses configuration from byte slice
func Parse(data []byte) (*Config, error) {
	var config Config

	// Apply defaults before parsing
	config.Server.Host = "0.0.0.0"
	config.Server.HTTPPort = 8320
	config.Server.ShutdownTimeout = 30 * time.Second
	config.Server.LogLevel = "info"
	config.Server.LogFormat = "json"
	config.OAuth.EnforceState = true

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, &errors.ErrConfigParse{Err: err}
	}

	if err := config.Validate(); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	return &config, nil
}

func substituteEnvVars(content []byte) []byte {
	return []byte(os.ExpandEnv(string(content)))
}
