package models

import "time"

// WeatherData is the single normalized forecast shape served to clients and
// stored in the dynamic cache. Provider schema differences are mapped to this
// shape before the data reaches the cache or HTTP layer.
type WeatherData struct {
	Current   CurrentConditions `json:"current"`
	Daily     []DailyForecast   `json:"daily"`
	FetchedAt time.Time         `json:"fetchedAt"`
	Stale     bool              `json:"stale,omitempty"` // Indicates data served from cache fallback
}

// CurrentConditions holds the present-moment observation for a location.
type CurrentConditions struct {
	Temp        float64 `json:"temp"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Condition   string  `json:"condition"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}

// DailyForecast is one day of the multi-day forecast.
type DailyForecast struct {
	Date        int64   `json:"dt"` // unix seconds, provider convention
	TempMin     float64 `json:"temp_min"`
	TempMax     float64 `json:"temp_max"`
	Condition   string  `json:"condition"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}

// CityResult is a single geocoding search hit.
type CityResult struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// FavoriteCity is a user-saved location. ID is the canonical "{lat}-{lon}"
// coordinate string; uniqueness within a user's list is by coordinate pair.
type FavoriteCity struct {
	ID      string    `json:"id"`
	UserID  string    `json:"userId"`
	Name    string    `json:"cityName"`
	Country string    `json:"country"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	AddedAt time.Time `json:"addedAt"`
}
