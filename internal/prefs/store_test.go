package prefs

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func newTestStore() *Store {
	return NewStore(NewMemoryStorage(), zap.NewNop())
}

// TestStore_Defaults verifies the first-run record.
func TestStore_Defaults(t *testing.T) {
	s := newTestStore()
	p := s.Current()

	want := Preferences{
		DarkMode:        false,
		Notifications:   true,
		TemperatureUnit: Celsius,
		Language:        Arabic,
		AutoRefresh:     true,
		RefreshInterval: 10,
	}
	if p != want {
		t.Errorf("Current() = %+v, want %+v", p, want)
	}
}

// TestStore_Update_PersistsSingleField verifies that Load immediately after
// Update returns a record with exactly that field changed.
func TestStore_Update_PersistsSingleField(t *testing.T) {
	s := newTestStore()

	before := s.Current()
	got, err := s.Update("darkMode", true)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !got.DarkMode {
		t.Error("Update() did not set darkMode")
	}

	loaded := s.Load()
	if !loaded.DarkMode {
		t.Error("Load() after Update() lost the mutation")
	}
	loaded.DarkMode = before.DarkMode
	if loaded != before {
		t.Errorf("Update() changed more than one field: %+v vs %+v", loaded, before)
	}
}

// TestStore_Update_AllKeys exercises every recognized key.
func TestStore_Update_AllKeys(t *testing.T) {
	tests := []struct {
		key   string
		value any
		check func(Preferences) bool
	}{
		{"darkMode", true, func(p Preferences) bool { return p.DarkMode }},
		{"notifications", false, func(p Preferences) bool { return !p.Notifications }},
		{"temperatureUnit", "fahrenheit", func(p Preferences) bool { return p.TemperatureUnit == Fahrenheit }},
		{"language", "en", func(p Preferences) bool { return p.Language == English }},
		{"autoRefresh", false, func(p Preferences) bool { return !p.AutoRefresh }},
		{"refreshInterval", 30, func(p Preferences) bool { return p.RefreshInterval == 30 }},
		{"refreshInterval", float64(5), func(p Preferences) bool { return p.RefreshInterval == 5 }},
	}
	for _, tt := range tests {
		s := newTestStore()
		got, err := s.Update(tt.key, tt.value)
		if err != nil {
			t.Errorf("Update(%q, %v) error = %v", tt.key, tt.value, err)
			continue
		}
		if !tt.check(got) {
			t.Errorf("Update(%q, %v) = %+v", tt.key, tt.value, got)
		}
	}
}

// TestStore_Update_Rejections verifies unknown keys and bad values are
// rejected with no partial mutation.
func TestStore_Update_Rejections(t *testing.T) {
	tests := []struct {
		key     string
		value   any
		wantErr error
	}{
		{"fontSize", 12, ErrInvalidPreferenceKey},
		{"", true, ErrInvalidPreferenceKey},
		{"darkMode", "yes", ErrInvalidPreferenceValue},
		{"temperatureUnit", "kelvin", ErrInvalidPreferenceValue},
		{"language", "fr", ErrInvalidPreferenceValue},
		{"refreshInterval", 0, ErrInvalidPreferenceValue},
		{"refreshInterval", -5, ErrInvalidPreferenceValue},
		{"refreshInterval", 2.5, ErrInvalidPreferenceValue},
	}
	for _, tt := range tests {
		s := newTestStore()
		before := s.Current()
		_, err := s.Update(tt.key, tt.value)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Update(%q, %v) error = %v, want %v", tt.key, tt.value, err, tt.wantErr)
		}
		if s.Current() != before {
			t.Errorf("Update(%q, %v) mutated the record on rejection", tt.key, tt.value)
		}
	}
}

// TestStore_UpdateAll_AppliesAllFields verifies a multi-key change lands as
// one mutation: all fields applied, persisted, and a single notification.
func TestStore_UpdateAll_AppliesAllFields(t *testing.T) {
	s := newTestStore()
	var notified int
	s.Subscribe(func(Preferences) { notified++ })

	got, err := s.UpdateAll(map[string]any{
		"darkMode":        true,
		"temperatureUnit": "fahrenheit",
		"refreshInterval": float64(15),
	})
	if err != nil {
		t.Fatalf("UpdateAll() error = %v", err)
	}
	if !got.DarkMode || got.TemperatureUnit != Fahrenheit || got.RefreshInterval != 15 {
		t.Errorf("UpdateAll() = %+v", got)
	}
	if s.Load() != got {
		t.Error("UpdateAll() did not persist the record")
	}
	if notified != 1 {
		t.Errorf("subscriber called %d times, want 1", notified)
	}
}

// TestStore_UpdateAll_RejectsAtomically verifies one bad key in a set
// rejects the whole set: nothing is persisted and no subscriber fires, no
// matter where in the map the bad key lands.
func TestStore_UpdateAll_RejectsAtomically(t *testing.T) {
	tests := []struct {
		name    string
		changes map[string]any
		wantErr error
	}{
		{"unknown key", map[string]any{"darkMode": true, "fontSize": 12}, ErrInvalidPreferenceKey},
		{"bad value", map[string]any{"notifications": false, "refreshInterval": -1}, ErrInvalidPreferenceValue},
		{"mixed valid and invalid", map[string]any{"darkMode": true, "language": "en", "temperatureUnit": "kelvin"}, ErrInvalidPreferenceValue},
	}
	for _, tt := range tests {
		s := newTestStore()
		before := s.Current()
		var notified int
		s.Subscribe(func(Preferences) { notified++ })

		_, err := s.UpdateAll(tt.changes)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: UpdateAll() error = %v, want %v", tt.name, err, tt.wantErr)
		}
		if s.Current() != before {
			t.Errorf("%s: UpdateAll() mutated the record on rejection", tt.name)
		}
		if s.Load() != before {
			t.Errorf("%s: UpdateAll() persisted a rejected change", tt.name)
		}
		if notified != 0 {
			t.Errorf("%s: subscriber called %d times on rejection", tt.name, notified)
		}
	}
}

// TestStore_ExportImport_RoundTrip verifies import(export()) is idempotent
// field-for-field.
func TestStore_ExportImport_RoundTrip(t *testing.T) {
	s := newTestStore()
	_, _ = s.Update("darkMode", true)
	_, _ = s.Update("temperatureUnit", "fahrenheit")
	_, _ = s.Update("refreshInterval", 15)
	before := s.Current()

	data, err := s.Export()
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	after, err := s.Import(data)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if after != before {
		t.Errorf("round trip changed record: %+v vs %+v", after, before)
	}
}

// TestStore_Import_Malformed verifies malformed input reports failure and
// leaves the record untouched.
func TestStore_Import_Malformed(t *testing.T) {
	s := newTestStore()
	_, _ = s.Update("darkMode", true)
	before := s.Current()

	_, err := s.Import([]byte(`{"darkMode": tru`))
	if !errors.Is(err, ErrMalformedPreferences) {
		t.Fatalf("Import() error = %v, want ErrMalformedPreferences", err)
	}
	if s.Current() != before {
		t.Error("Import() corrupted the record on failure")
	}
}

// TestStore_Import_MergesOverDefaults verifies partial and invalid imported
// fields fall back to defaults.
func TestStore_Import_MergesOverDefaults(t *testing.T) {
	s := newTestStore()

	got, err := s.Import([]byte(`{"darkMode": true, "temperatureUnit": "kelvin", "refreshInterval": -1}`))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !got.DarkMode {
		t.Error("provided field darkMode not applied")
	}
	if got.TemperatureUnit != Celsius {
		t.Errorf("invalid unit = %q, want default celsius", got.TemperatureUnit)
	}
	if got.RefreshInterval != 10 {
		t.Errorf("invalid interval = %d, want default 10", got.RefreshInterval)
	}
	if got.Language != Arabic || !got.Notifications {
		t.Errorf("missing fields not defaulted: %+v", got)
	}
}

// TestStore_Load_CorruptStorage verifies corrupt persisted bytes degrade to
// defaults without failing the caller.
func TestStore_Load_CorruptStorage(t *testing.T) {
	storage := NewMemoryStorage()
	_ = storage.Write([]byte(`not json at all`))

	s := NewStore(storage, zap.NewNop())
	if s.Current() != Defaults() {
		t.Errorf("corrupt storage did not degrade to defaults: %+v", s.Current())
	}
}

// TestStore_Load_PartialStorage verifies provided fields merge over defaults.
func TestStore_Load_PartialStorage(t *testing.T) {
	storage := NewMemoryStorage()
	_ = storage.Write([]byte(`{"language": "en"}`))

	s := NewStore(storage, zap.NewNop())
	p := s.Current()
	if p.Language != English {
		t.Errorf("Language = %q, want en", p.Language)
	}
	if p.RefreshInterval != 10 || !p.Notifications {
		t.Errorf("missing fields not defaulted: %+v", p)
	}
}

// TestStore_Reset verifies reset restores and persists defaults.
func TestStore_Reset(t *testing.T) {
	storage := NewMemoryStorage()
	s := NewStore(storage, zap.NewNop())
	_, _ = s.Update("darkMode", true)

	if got := s.Reset(); got != Defaults() {
		t.Errorf("Reset() = %+v, want defaults", got)
	}
	if s.Load() != Defaults() {
		t.Error("Reset() did not persist defaults")
	}
}

// TestStore_Subscribe verifies change notifications carry the new snapshot.
func TestStore_Subscribe(t *testing.T) {
	s := newTestStore()
	var seen []Preferences
	s.Subscribe(func(p Preferences) { seen = append(seen, p) })

	_, _ = s.Update("refreshInterval", 5)
	s.Reset()

	if len(seen) != 2 {
		t.Fatalf("subscriber called %d times, want 2", len(seen))
	}
	if seen[0].RefreshInterval != 5 {
		t.Errorf("first notification = %+v", seen[0])
	}
	if seen[1] != Defaults() {
		t.Errorf("second notification = %+v", seen[1])
	}
}

// TestTemperatureUnit_FromCelsius covers the display conversion helper.
func TestTemperatureUnit_FromCelsius(t *testing.T) {
	if got := Celsius.FromCelsius(25); got != 25 {
		t.Errorf("celsius passthrough = %v", got)
	}
	if got := Fahrenheit.FromCelsius(0); got != 32 {
		t.Errorf("0C = %vF, want 32", got)
	}
	if got := Fahrenheit.FromCelsius(100); got != 212 {
		t.Errorf("100C = %vF, want 212", got)
	}
}

// TestLanguage_Direction covers rtl/ltr derivation.
func TestLanguage_Direction(t *testing.T) {
	if Arabic.Direction() != "rtl" {
		t.Error("ar should be rtl")
	}
	if English.Direction() != "ltr" {
		t.Error("en should be ltr")
	}
}
