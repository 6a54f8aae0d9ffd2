package launchdata

import "strings"

// Impact thresholds.
const (
	HighWindSpeed   = 15.0 // m/s
	HeavyCloudCover = 80.0 // percent
)

// Impact messages.
const (
	ImpactHighWinds     = "High winds may exceed launch constraints."
	ImpactHeavyClouds   = "Heavy cloud cover may affect optical tracking."
	ImpactPrecipitation = "Precipitation or storm activity is a significant concern."
	ImpactFavorable     = "Weather conditions appear favorable."
)

var stormWords = []string{"rain", "thunderstorm", "storm", "squalls"}

// WeatherConditions are the weather fields the system depends on.
// Nil numbers mean the provider omitted the value or sent a non-number.
type WeatherConditions struct {
	Description string   `json:"description"`
	Temperature *float64 `json:"temperature"`
	WindSpeed   *float64 `json:"wind_speed"`
	Clouds      *float64 `json:"clouds"`
}

// Clone copies c, including the number pointers.
func (c WeatherConditions) Clone() WeatherConditions {
	out := WeatherConditions{Description: c.Description}
	out.Temperature = copyFloat(c.Temperature)
	out.WindSpeed = copyFloat(c.WindSpeed)
	out.Clouds = copyFloat(c.Clouds)
	return out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// WeatherAnalysis is the rule-based assessment attached to research output.
type WeatherAnalysis struct {
	Conditions       WeatherConditions `json:"conditions"`
	PotentialImpacts []string          `json:"potential_impacts"`
}

// AnalyzeWeatherImpact applies the launch weather rules to w.
// PotentialImpacts is never empty.
func AnalyzeWeatherImpact(w Weather) WeatherAnalysis {
	cond := w.Conditions()

	var impacts []string
	if cond.WindSpeed != nil && *cond.WindSpeed > HighWindSpeed {
		impacts = append(impacts, ImpactHighWinds)
	}
	if cond.Clouds != nil && *cond.Clouds > HeavyCloudCover {
		impacts = append(impacts, ImpactHeavyClouds)
	}
	desc := strings.ToLower(cond.Description)
	for _, word := range stormWords {
		if strings.Contains(desc, word) {
			impacts = append(impacts, ImpactPrecipitation)
			break
		}
	}
	if len(impacts) == 0 {
		impacts = []string{ImpactFavorable}
	}

	return WeatherAnalysis{Conditions: cond, PotentialImpacts: impacts}
}
