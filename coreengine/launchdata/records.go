package launchdata

import (
	"encoding/json"
	"strconv"

	"github.com/tidwall/gjson"
)

// Launch is one launch record from RocketLaunch.Live, kept as raw JSON.
// Only the accessor paths below are relied on.
type Launch struct {
	raw json.RawMessage
}

// NewLaunch wraps a raw launch record.
func NewLaunch(raw json.RawMessage) Launch {
	return Launch{raw: raw}
}

// Raw returns the untouched payload.
func (l Launch) Raw() json.RawMessage { return l.raw }

func (l Launch) get(path string) gjson.Result { return gjson.GetBytes(l.raw, path) }

// Name is the mission name, "N/A" when absent.
func (l Launch) Name() string { return stringOr(l.get("name"), "N/A") }

// ProviderName is the launch provider, empty when absent.
func (l Launch) ProviderName() string { return l.get("provider.name").String() }

// ScheduledTime prefers t0, then win_open, then "N/A".
func (l Launch) ScheduledTime() string {
	if t := l.get("t0").String(); t != "" {
		return t
	}
	return stringOr(l.get("win_open"), "N/A")
}

// SiteName is pad.location.name, "Unknown Site" when absent.
func (l Launch) SiteName() string { return stringOr(l.get("pad.location.name"), "Unknown Site") }

// PadName is pad.name, "Unknown Pad" when absent.
func (l Launch) PadName() string { return stringOr(l.get("pad.name"), "Unknown Pad") }

// LocationID is pad.location.id. Zero and missing ids report false.
func (l Launch) LocationID() (int64, bool) {
	id := l.get("pad.location.id")
	if !id.Exists() || id.Int() == 0 {
		return 0, false
	}
	return id.Int(), true
}

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is one entry of the locations list.
type Location struct {
	raw json.RawMessage
}

// Raw returns the untouched payload.
func (l Location) Raw() json.RawMessage { return l.raw }

// Name is the location name.
func (l Location) Name() string { return gjson.GetBytes(l.raw, "name").String() }

// Coordinates parses latitude and longitude. The API serves them as
// numbers or numeric strings; anything else reports false.
func (l Location) Coordinates() (Coordinates, bool) {
	lat, okLat := number(gjson.GetBytes(l.raw, "latitude"))
	lon, okLon := number(gjson.GetBytes(l.raw, "longitude"))
	if !okLat || !okLon {
		return Coordinates{}, false
	}
	return Coordinates{Lat: lat, Lon: lon}, true
}

// Weather is an OpenWeather current-conditions payload, kept as raw JSON.
type Weather struct {
	raw json.RawMessage
}

// NewWeather wraps a raw weather payload.
func NewWeather(raw json.RawMessage) Weather {
	return Weather{raw: raw}
}

// Raw returns the untouched payload.
func (w Weather) Raw() json.RawMessage { return w.raw }

// Conditions extracts the fields the impact rules read.
func (w Weather) Conditions() WeatherConditions {
	return WeatherConditions{
		Description: stringOr(gjson.GetBytes(w.raw, "weather.0.description"), "N/A"),
		Temperature: optionalNumber(gjson.GetBytes(w.raw, "main.temp")),
		WindSpeed:   optionalNumber(gjson.GetBytes(w.raw, "wind.speed")),
		Clouds:      optionalNumber(gjson.GetBytes(w.raw, "clouds.all")),
	}
}

func stringOr(r gjson.Result, fallback string) string {
	if s := r.String(); r.Exists() && s != "" {
		return s
	}
	return fallback
}

func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(r.Str, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// optionalNumber only accepts JSON numbers; the impact rules skip anything else.
func optionalNumber(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	v := r.Num
	return &v
}
