// Package prefs owns the user-configurable display and behavior settings:
// units, language, theme, notification opt-in, and the auto-refresh cadence.
// A single record exists per installation; every field always has a value.
package prefs

import (
	"errors"
	"time"
)

var (
	// ErrInvalidPreferenceKey is returned by Update for unrecognized keys.
	ErrInvalidPreferenceKey = errors.New("invalid preference key")
	// ErrInvalidPreferenceValue is returned by Update when the value does not
	// fit the key's type or domain.
	ErrInvalidPreferenceValue = errors.New("invalid preference value")
	// ErrMalformedPreferences is returned by Import for unparseable input.
	ErrMalformedPreferences = errors.New("malformed preferences payload")
)

// TemperatureUnit selects the display unit for temperatures.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "celsius"
	Fahrenheit TemperatureUnit = "fahrenheit"
)

// FromCelsius converts a Celsius value into the unit.
func (u TemperatureUnit) FromCelsius(c float64) float64 {
	if u == Fahrenheit {
		return c*9/5 + 32
	}
	return c
}

func (u TemperatureUnit) valid() bool {
	return u == Celsius || u == Fahrenheit
}

// Language selects the display language.
type Language string

const (
	Arabic  Language = "ar"
	English Language = "en"
)

// Direction returns the text direction for the language.
func (l Language) Direction() string {
	if l == Arabic {
		return "rtl"
	}
	return "ltr"
}

func (l Language) valid() bool {
	return l == Arabic || l == English
}

// Preferences is the full settings record. JSON field names match the
// exported settings file format, so an export/import round trip is lossless.
type Preferences struct {
	DarkMode        bool            `json:"darkMode"`
	Notifications   bool            `json:"notifications"`
	TemperatureUnit TemperatureUnit `json:"temperatureUnit"`
	Language        Language        `json:"language"`
	AutoRefresh     bool            `json:"autoRefresh"`
	RefreshInterval int             `json:"refreshInterval"` // minutes
}

// Defaults returns the first-run settings record.
func Defaults() Preferences {
	return Preferences{
		DarkMode:        false,
		Notifications:   true,
		TemperatureUnit: Celsius,
		Language:        Arabic,
		AutoRefresh:     true,
		RefreshInterval: 10,
	}
}

// RefreshPeriod converts the configured interval into a timer period.
func (p Preferences) RefreshPeriod() time.Duration {
	return time.Duration(p.RefreshInterval) * time.Minute
}

// normalized replaces invalid field values with defaults so that loaded or
// imported records never carry an out-of-domain value.
func (p Preferences) normalized() Preferences {
	d := Defaults()
	if !p.TemperatureUnit.valid() {
		p.TemperatureUnit = d.TemperatureUnit
	}
	if !p.Language.valid() {
		p.Language = d.Language
	}
	if p.RefreshInterval <= 0 {
		p.RefreshInterval = d.RefreshInterval
	}
	return p
}
