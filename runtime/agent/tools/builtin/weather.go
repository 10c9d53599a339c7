package builtin

import (
	"strings"
	"time"

	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

// WeatherToolName is the registered name of the weather tool.
const WeatherToolName tools.Ident = "weather_get"

var weatherSchema = []byte(`{
	"type": "object",
	"properties": {
		"location": {"type": "string", "description": "city name or 'lat,lon'"},
		"date": {"type": "string", "description": "YYYY-MM-DD, defaults to today"}
	},
	"required": ["location"]
}`)

// cityCoords is a small built-in gazetteer covering the cities used in the
// scenario tests; a production deployment would replace this with a real
// geocoding lookup.
var cityCoords = map[string][2]float64{
	"rotterdam": {51.9244, 4.4777},
	"beijing":   {39.9042, 116.4074},
	"new york":  {40.7128, -74.0060},
	"london":    {51.5074, -0.1278},
	"tokyo":     {35.6762, 139.6503},
	"paris":     {48.8566, 2.3522},
}

// NewWeather builds the weather_get tool spec. It synthesizes a
// deterministic forecast from the location's coordinates instead of calling
// a live API, keeping the reference implementation network-free while still
// exercising the full dispatch path (schema validation, parameter
// normalization upstream, ToolResult envelope).
func NewWeather() tools.Spec {
	return tools.Spec{
		Name:        WeatherToolName,
		Description: "Gets the weather forecast for a city or coordinate pair on a given date.",
		Timeout:     15 * time.Second,
		Payload:     tools.TypeSpec{Name: "WeatherArgs", Schema: weatherSchema, Codec: tools.AnyJSONCodec},
		Invoke: func(args map[string]any) tools.Result {
			location, _ := args["location"].(string)
			if strings.TrimSpace(location) == "" {
				return tools.Failed(WeatherToolName, tools.ErrorCodeInvalidInput, "location is required")
			}
			date, _ := args["date"].(string)
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			lat, lon, ok := lookupCoords(location)
			if !ok {
				return tools.Failed(WeatherToolName, tools.ErrorCodeNotFound, "unknown location: "+location)
			}
			temp, precipitation := syntheticForecast(lat, lon, date)
			return tools.Success(WeatherToolName, map[string]any{
				"location":          location,
				"date":              date,
				"temperature":       temp,
				"precipitation_pct": precipitation,
				"summary":           forecastSummary(precipitation),
			})
		},
	}
}

func lookupCoords(location string) (float64, float64, bool) {
	key := strings.ToLower(strings.TrimSpace(location))
	if c, ok := cityCoords[key]; ok {
		return c[0], c[1], true
	}
	return 0, 0, false
}

func syntheticForecast(lat, lon float64, date string) (float64, int) {
	seed := int(lat*1000+lon*1000) + len(date)
	if seed < 0 {
		seed = -seed
	}
	temp := 8.0 + float64(seed%20)
	precipitation := seed % 101
	return temp, precipitation
}

func forecastSummary(precipitation int) string {
	if precipitation >= 50 {
		return "rain likely"
	}
	return "mostly dry"
}
