package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/zhouzirui/z-tavern/client/internal/logging"
	model "github.com/zhouzirui/z-tavern/client/internal/model/settings"
	"github.com/zhouzirui/z-tavern/client/internal/storage"
)

var log = logging.For("settings")

// View reflects preference changes in the UI.
type View interface {
	SetDarkMode(enabled bool)
	SetSettings(s model.Settings)
}

// Store 用户偏好设置，每项修改立即持久化。
type Store struct {
	mu      sync.RWMutex
	current model.Settings
	kv      storage.Store
	view    View
}

// NewStore creates a store holding the defaults; call Load to read the
// persisted values.
func NewStore(kv storage.Store, view View) *Store {
	return &Store{
		current: model.Defaults(),
		kv:      kv,
		view:    view,
	}
}

// Load reads every preference, falling back to the default for anything
// missing or unreadable, and pushes the result to the view.
func (s *Store) Load() model.Settings {
	defaults := model.Defaults()
	loaded := defaults

	if raw, ok := s.read(storage.KeyAutoPlayAudio); ok {
		loaded.AutoPlayAudio = raw != "false"
	}
	if raw, ok := s.read(storage.KeyDarkMode); ok {
		loaded.DarkMode = raw == "true"
	}
	if raw, ok := s.read(storage.KeyMicSensitivity); ok {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			loaded.MicSensitivity = clampSensitivity(v)
		}
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()

	s.view.SetSettings(loaded)
	s.view.SetDarkMode(loaded.DarkMode)
	return loaded
}

// Current returns a snapshot of the preferences.
func (s *Store) Current() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// AutoPlay reports whether bot audio should start automatically.
func (s *Store) AutoPlay() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AutoPlayAudio
}

// SetAutoPlay persists the auto-play toggle.
func (s *Store) SetAutoPlay(enabled bool) error {
	s.mu.Lock()
	s.current.AutoPlayAudio = enabled
	snapshot := s.current
	s.mu.Unlock()

	s.view.SetSettings(snapshot)
	return s.write(storage.KeyAutoPlayAudio, strconv.FormatBool(enabled))
}

// SetDarkMode persists the dark-mode toggle and flips the display class.
func (s *Store) SetDarkMode(enabled bool) error {
	s.mu.Lock()
	s.current.DarkMode = enabled
	snapshot := s.current
	s.mu.Unlock()

	s.view.SetDarkMode(enabled)
	s.view.SetSettings(snapshot)
	return s.write(storage.KeyDarkMode, strconv.FormatBool(enabled))
}

// ToggleDarkMode flips dark mode and returns the new value.
func (s *Store) ToggleDarkMode() (bool, error) {
	enabled := !s.Current().DarkMode
	return enabled, s.SetDarkMode(enabled)
}

// SetMicSensitivity persists the sensitivity slider (0-100). The value is not
// applied to capture gain.
func (s *Store) SetMicSensitivity(value int) error {
	value = clampSensitivity(value)

	s.mu.Lock()
	s.current.MicSensitivity = value
	snapshot := s.current
	s.mu.Unlock()

	s.view.SetSettings(snapshot)
	return s.write(storage.KeyMicSensitivity, strconv.Itoa(value))
}

// SensitivityLabel formats the sensitivity as a percentage.
func SensitivityLabel(value int) string {
	return fmt.Sprintf("%d%%", value)
}

func (s *Store) read(key string) (string, bool) {
	raw, err := s.kv.Get(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.WithError(err).WithField("key", key).Warn("read setting failed")
		}
		return "", false
	}
	return raw, true
}

func (s *Store) write(key, value string) error {
	if err := s.kv.Set(key, value); err != nil {
		log.WithError(err).WithField("key", key).Error("save setting failed")
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func clampSensitivity(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
