package assistant

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/errors"
)

// Response modes understood by the backend
const (
	ModeBalanced = "balanced"
	ModeDetailed = "detailed"
	ModeConcise  = "concise"
)

// Preferences tune assistant replies and travel with every chat message
type Preferences = api.ChatPreferences

// DefaultPreferences are used until the user saves their own
func DefaultPreferences() Preferences {
	return Preferences{
		ResponseMode: ModeBalanced,
		ShowSources:  true,
		AutoAnalyze:  true,
	}
}

// ValidatePreferences rejects unknown response modes
func ValidatePreferences(p Preferences) error {
	switch p.ResponseMode {
	case ModeBalanced, ModeDetailed, ModeConcise:
		return nil
	}
	return errors.NewValidation(fmt.Sprintf("unknown response mode %q", p.ResponseMode)).
		WithSuggestion("Use one of: balanced, detailed, concise")
}

// LoadPreferences reads preferences from path. A missing file yields the
// defaults; fields absent from the file keep their default values.
func LoadPreferences(path string) (Preferences, error) {
	prefs := DefaultPreferences()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return prefs, nil
	}
	if err != nil {
		return prefs, errors.Wrap(errors.KindUnknown, errors.ErrCodeFileReadFailed,
			"failed to read assistant preferences", err)
	}
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return DefaultPreferences(), errors.Wrap(errors.KindValidation, errors.ErrCodeFileUnmarshal,
			"failed to parse assistant preferences", err).
			WithSuggestion("Fix or delete " + path)
	}
	if err := ValidatePreferences(prefs); err != nil {
		return DefaultPreferences(), err
	}
	return prefs, nil
}

// SavePreferences writes preferences to path, creating its directory
func SavePreferences(path string, prefs Preferences) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed,
			"failed to create preferences directory", err)
	}
	data, err := yaml.Marshal(prefs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed,
			"failed to write assistant preferences", err)
	}
	return nil
}
