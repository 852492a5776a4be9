// Package prefs persists operator preferences in a small config file.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/autopeer-io/groundlink/internal/station/core"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
	"github.com/autopeer-io/groundlink/pkg/log"
)

const (
	keyKeyboard       = "keyboard-enabled"
	keyGamepad        = "gamepad-enabled"
	keyDeadzone       = "deadzone"
	keyInvertPitch    = "invert-pitch"
	keyInvertThrottle = "invert-throttle"
	keyLastVehicle    = "last-vehicle"
	keyParamPoll      = "param-poll-interval"
)

// FileStore keeps preferences in a YAML, JSON or TOML file chosen by the
// file's extension. Every Load and Save reads or writes the whole file.
type FileStore struct {
	path string

	mu      sync.Mutex
	watcher *viper.Viper
}

var _ core.PreferenceStore = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string { return s.path }

// Load reads the file over the defaults. A missing file is not an error.
func (s *FileStore) Load() (model.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.newViper()
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.DefaultPreferences(), nil
		}
		return model.Preferences{}, fmt.Errorf("read preferences %s: %w", s.path, err)
	}

	var p model.Preferences
	if err := v.Unmarshal(&p); err != nil {
		return model.Preferences{}, fmt.Errorf("decode preferences %s: %w", s.path, err)
	}
	return p, nil
}

// Save writes p to the file, creating its directory if needed.
func (s *FileStore) Save(p model.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}

	v := s.newViper()
	v.Set(keyKeyboard, p.KeyboardEnabled)
	v.Set(keyGamepad, p.GamepadEnabled)
	v.Set(keyDeadzone, p.Deadzone)
	v.Set(keyInvertPitch, p.InvertPitch)
	v.Set(keyInvertThrottle, p.InvertThrottle)
	v.Set(keyLastVehicle, p.LastVehicle)
	v.Set(keyParamPoll, p.ParamPollInterval.String())

	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write preferences %s: %w", s.path, err)
	}
	return nil
}

// Watch calls fn with the new preferences whenever the file changes on
// disk, including changes made by Save. fn runs on the watcher goroutine.
// Files that fail to decode are logged and skipped.
func (s *FileStore) Watch(fn func(model.Preferences)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return
	}

	logger := log.WithName("prefs")
	w := viper.New()
	w.SetConfigFile(s.path)
	w.OnConfigChange(func(e fsnotify.Event) {
		p, err := s.Load()
		if err != nil {
			logger.Warn("Ignoring unreadable preferences", "file", e.Name, "error", err)
			return
		}
		logger.Debug("Preferences changed on disk", "file", e.Name, "op", e.Op.String())
		fn(p)
	})
	w.WatchConfig()
	s.watcher = w
}

func (s *FileStore) newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(s.path)

	d := model.DefaultPreferences()
	v.SetDefault(keyKeyboard, d.KeyboardEnabled)
	v.SetDefault(keyGamepad, d.GamepadEnabled)
	v.SetDefault(keyDeadzone, d.Deadzone)
	v.SetDefault(keyInvertPitch, d.InvertPitch)
	v.SetDefault(keyInvertThrottle, d.InvertThrottle)
	v.SetDefault(keyLastVehicle, d.LastVehicle)
	v.SetDefault(keyParamPoll, d.ParamPollInterval)
	return v
}
