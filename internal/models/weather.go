package models

import "time"

// Location identifies where a snapshot was observed.
type Location struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	Country string `json:"country,omitempty"`
}

// DailyForecast is today's outlook returned alongside the current conditions.
type DailyForecast struct {
	MaxTempC      float64 `json:"max_temp_c" validate:"finite"`
	MinTempC      float64 `json:"min_temp_c" validate:"finite"`
	ChanceOfRain  float64 `json:"chance_of_rain" validate:"finite,gte=0,lte=100"`
	TotalPrecipMM float64 `json:"total_precip_mm" validate:"finite,gte=0"`
}

// WeatherSnapshot is a single observation of current conditions. Values are
// metric: °C, km/h, mm. Snapshots are treated as immutable once fetched.
type WeatherSnapshot struct {
	Location   Location       `json:"location"`
	TempC      float64        `json:"temp_c" validate:"finite"`
	FeelsLikeC float64        `json:"feelslike_c" validate:"finite"`
	Humidity   float64        `json:"humidity" validate:"finite,gte=0,lte=100"`
	WindKph    float64        `json:"wind_kph" validate:"finite,gte=0"`
	PrecipMM   float64        `json:"precip_mm" validate:"finite,gte=0"`
	UV         float64        `json:"uv" validate:"finite,gte=0"`
	Condition  string         `json:"condition"`
	Forecast   *DailyForecast `json:"forecast,omitempty" validate:"omitempty"`
	ObservedAt time.Time      `json:"observed_at"`
	Stale      bool           `json:"stale,omitempty"` // Indicates data served from stale cache
}
