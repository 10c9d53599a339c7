// Package builtin provides a small set of reference tools that exercise the
// Tool Registry & Dispatcher end to end: a clock, a calculator, a sandboxed
// file writer, and a weather stub. None of these are production
// integrations; they exist to make the orchestrator's test scenarios
// executable without a live network dependency.
package builtin

import (
	"time"

	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

// ClockToolName is the registered name of the time tool.
const ClockToolName tools.Ident = "time_now"

var clockSchema = []byte(`{
	"type": "object",
	"properties": {
		"timezone": {"type": "string", "description": "IANA timezone name, defaults to UTC"}
	},
	"required": []
}`)

// NewClock builds the time_now tool spec. The Planner's prompt discipline
// (§4.3) requires every plan involving relative dates to call this tool
// first, in the configured timezone.
func NewClock(defaultTZ string) tools.Spec {
	return tools.Spec{
		Name:        ClockToolName,
		Description: "Returns the current time, date, and weekday in a given timezone.",
		Timeout:     3 * time.Second,
		Payload:     tools.TypeSpec{Name: "ClockArgs", Schema: clockSchema, Codec: tools.AnyJSONCodec},
		Invoke: func(args map[string]any) tools.Result {
			tz := defaultTZ
			if v, ok := args["timezone"].(string); ok && v != "" {
				tz = v
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				loc = time.UTC
			}
			now := time.Now().In(loc)
			return tools.Success(ClockToolName, map[string]any{
				"iso_time":      now.Format(time.RFC3339),
				"current_time":  now.Format("15:04:05"),
				"date":          now.Format("2006-01-02"),
				"weekday":       now.Weekday().String(),
				"timezone":      tz,
				"time_of_day":   timeOfDay(now.Hour()),
				"unix_timestamp": now.Unix(),
			})
		},
	}
}

func timeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

// NormalizeDate rewrites a relative date token ("today", "tomorrow") into an
// ISO date string relative to now in the given timezone. Unrecognized tokens
// are returned unchanged, letting the caller treat this function as a
// best-effort pass rather than a strict parser.
func NormalizeDate(token, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	switch token {
	case "today", "今天":
		return now.Format("2006-01-02")
	case "tomorrow", "明天":
		return now.AddDate(0, 0, 1).Format("2006-01-02")
	case "yesterday", "昨天":
		return now.AddDate(0, 0, -1).Format("2006-01-02")
	default:
		return token
	}
}
