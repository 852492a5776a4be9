// Package core defines the ports the station core depends on. Concrete
// implementations live next to the infrastructure they wrap.
package core

import "github.com/autopeer-io/groundlink/internal/station/core/model"

// PreferenceStore persists the user's preferences across runs.
type PreferenceStore interface {
	Load() (model.Preferences, error)
	Save(p model.Preferences) error
}

// MemoryPreferenceStore keeps preferences in memory only.
type MemoryPreferenceStore struct {
	Prefs *model.Preferences
	Saves int
}

var _ PreferenceStore = (*MemoryPreferenceStore)(nil)

func (m *MemoryPreferenceStore) Load() (model.Preferences, error) {
	if m.Prefs == nil {
		return model.DefaultPreferences(), nil
	}
	return *m.Prefs, nil
}

func (m *MemoryPreferenceStore) Save(p model.Preferences) error {
	m.Prefs = &p
	m.Saves++
	return nil
}
