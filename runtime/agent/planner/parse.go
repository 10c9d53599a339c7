package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Atomheart-Father/agentflow/runtime/agent/plan"
)

// parsePlanResponse decodes a model response into a Plan. It first tries a
// direct unmarshal, then falls back to extracting the first balanced JSON
// object from the response text — providers without a forced-JSON mode
// sometimes wrap the object in commentary or code fences.
func parsePlanResponse(raw string) (plan.Plan, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var p plan.Plan
	if err := json.Unmarshal([]byte(trimmed), &p); err == nil {
		return p, nil
	}

	// Decode the first complete {...} value starting at the first '{' in a
	// response that otherwise wraps its JSON in prose or markdown fences;
	// anything after that value is ignored.
	start := strings.Index(trimmed, "{")
	if start < 0 {
		return plan.Plan{}, fmt.Errorf("planner: response is not JSON: %s", truncate(raw, 200))
	}
	if err := json.NewDecoder(strings.NewReader(trimmed[start:])).Decode(&p); err != nil {
		return plan.Plan{}, fmt.Errorf("planner: extracted JSON block invalid: %w", err)
	}
	return p, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
