package prefs

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Store owns the settings record and persists every mutation synchronously.
// Consumers receive it by injection and may subscribe to change
// notifications; nothing reads a process-wide singleton.
type Store struct {
	mu      sync.RWMutex
	storage Storage
	logger  *zap.Logger
	current Preferences
	subs    []func(Preferences)
}

// NewStore loads the persisted record (or defaults) and returns the store.
// Corrupt or absent storage degrades to defaults; the only observable side
// effect is a logged warning.
func NewStore(storage Storage, logger *zap.Logger) *Store {
	s := &Store{storage: storage, logger: logger}
	s.current = s.readPersisted()
	return s
}

// readPersisted reads storage and merges whatever parses over defaults.
func (s *Store) readPersisted() Preferences {
	p := Defaults()
	data, err := s.storage.Read()
	if err != nil {
		s.logger.Warn("preferences read failed, using defaults", zap.Error(err))
		return p
	}
	if len(data) == 0 {
		return p
	}
	// Unmarshal over the defaults-initialized record: fields absent from the
	// payload keep their default values.
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn("preferences parse failed, using defaults", zap.Error(err))
		return Defaults()
	}
	return p.normalized()
}

// Load re-reads the persisted record into the store and returns it.
func (s *Store) Load() Preferences {
	p := s.readPersisted()
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
	return p
}

// Current returns a snapshot of the in-memory record.
func (s *Store) Current() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates the key, replaces that field, persists the full record,
// and returns it. Unrecognized keys reject with ErrInvalidPreferenceKey and
// apply no mutation.
func (s *Store) Update(key string, value any) (Preferences, error) {
	s.mu.Lock()
	next := s.current
	if err := applyField(&next, key, value); err != nil {
		s.mu.Unlock()
		return s.current, err
	}
	s.current = next
	s.persistLocked()
	s.mu.Unlock()

	s.notify(next)
	return next, nil
}

// UpdateAll applies a set of field changes as one mutation: every key and
// value is validated against a copy of the record first, and only when all
// of them pass is the record replaced, persisted once, and subscribers
// notified once. Any invalid key or value rejects the whole set with no
// mutation applied.
func (s *Store) UpdateAll(changes map[string]any) (Preferences, error) {
	s.mu.Lock()
	next := s.current
	for key, value := range changes {
		if err := applyField(&next, key, value); err != nil {
			current := s.current
			s.mu.Unlock()
			return current, fmt.Errorf("%s: %w", key, err)
		}
	}
	s.current = next
	s.persistLocked()
	s.mu.Unlock()

	s.notify(next)
	return next, nil
}

// Reset restores and persists the defaults.
func (s *Store) Reset() Preferences {
	d := Defaults()
	s.mu.Lock()
	s.current = d
	s.persistLocked()
	s.mu.Unlock()

	s.notify(d)
	return d
}

// Export returns the canonical JSON serialization of the current record.
func (s *Store) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(s.current, "", "  ")
}

// Import parses the payload, merges it over defaults (filling any missing or
// invalid field), persists, and returns the new record. Malformed input
// returns ErrMalformedPreferences and leaves the existing record untouched.
func (s *Store) Import(data []byte) (Preferences, error) {
	p := Defaults()
	if err := json.Unmarshal(data, &p); err != nil {
		return s.Current(), fmt.Errorf("%w: %v", ErrMalformedPreferences, err)
	}
	p = p.normalized()

	s.mu.Lock()
	s.current = p
	s.persistLocked()
	s.mu.Unlock()

	s.notify(p)
	return p, nil
}

// Subscribe registers fn to run after every successful mutation. Callbacks
// run synchronously with a snapshot, outside the store lock.
func (s *Store) Subscribe(fn func(Preferences)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) persistLocked() {
	data, err := json.Marshal(s.current)
	if err != nil {
		s.logger.Warn("preferences encode failed", zap.Error(err))
		return
	}
	if err := s.storage.Write(data); err != nil {
		s.logger.Warn("preferences write failed", zap.Error(err))
	}
}

func (s *Store) notify(p Preferences) {
	s.mu.RLock()
	subs := make([]func(Preferences), len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(p)
	}
}

// applyField sets one named field, checking the key and the value type.
func applyField(p *Preferences, key string, value any) error {
	switch key {
	case "darkMode":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: darkMode wants bool", ErrInvalidPreferenceValue)
		}
		p.DarkMode = v
	case "notifications":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: notifications wants bool", ErrInvalidPreferenceValue)
		}
		p.Notifications = v
	case "temperatureUnit":
		v, ok := toUnit(value)
		if !ok {
			return fmt.Errorf("%w: temperatureUnit wants celsius or fahrenheit", ErrInvalidPreferenceValue)
		}
		p.TemperatureUnit = v
	case "language":
		v, ok := toLanguage(value)
		if !ok {
			return fmt.Errorf("%w: language wants ar or en", ErrInvalidPreferenceValue)
		}
		p.Language = v
	case "autoRefresh":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: autoRefresh wants bool", ErrInvalidPreferenceValue)
		}
		p.AutoRefresh = v
	case "refreshInterval":
		v, ok := toMinutes(value)
		if !ok {
			return fmt.Errorf("%w: refreshInterval wants a positive integer", ErrInvalidPreferenceValue)
		}
		p.RefreshInterval = v
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPreferenceKey, key)
	}
	return nil
}

func toUnit(value any) (TemperatureUnit, bool) {
	switch v := value.(type) {
	case TemperatureUnit:
		return v, v.valid()
	case string:
		u := TemperatureUnit(v)
		return u, u.valid()
	}
	return "", false
}

func toLanguage(value any) (Language, bool) {
	switch v := value.(type) {
	case Language:
		return v, v.valid()
	case string:
		l := Language(v)
		return l, l.valid()
	}
	return "", false
}

// toMinutes accepts int or JSON-decoded float64.
func toMinutes(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, v > 0
	case float64:
		n := int(v)
		return n, n > 0 && float64(n) == v
	}
	return 0, false
}
