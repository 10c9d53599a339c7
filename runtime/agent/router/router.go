// Package router implements the optional pre-router heuristic that
// fast-paths trivial queries around the full Orchestrator, and forces a
// mode when the caller asks for one explicitly via prefix.
package router

import "strings"

// Mode is the routing decision: either a one-shot chat completion or the
// full PLAN->ACT->JUDGE orchestrator.
type Mode string

const (
	// ModeChat routes to a single LLM completion, no plan, no tools.
	ModeChat Mode = "chat"
	// ModeOrchestrate routes to the full Orchestrator.
	ModeOrchestrate Mode = "orchestrate"
)

// Decision is the outcome of Route: which mode to use, why, and the query
// with any force-mode prefix stripped.
type Decision struct {
	Mode   Mode
	Reason string
	Query  string
}

var (
	forceChatPrefixes        = []string{"/chat", "!chat", "chat:"}
	forceOrchestratePrefixes = []string{"/plan", "/orchestrate", "!plan", "!orchestrate", "plan:"}

	orchestrateKeywords = []string{
		"date", "time", "tomorrow", "today", "yesterday", "when",
		"write", "save", "create", "export", "save to",
		"search", "query", "find", "calculate", "weather", "map",
		"document", "knowledge", "file", "note",
		"plan", "schedule", "organize", "arrange",
		"email", "mail", "send", "receive",
		"calendar", "meeting", "reminder",
		"web", "website", "scrape", "crawl",
		"analyze", "statistics", "summary", "report",
		"first", "then", "next", "finally", "step", "after that",
	}

	chatKeywords = []string{
		"hello", "hi", "hey",
		"how", "what", "why",
		"who are you", "your name", "introduce",
		"help", "please", "can you",
		"thank", "thanks", "ok", "good",
	}
)

const (
	longQueryThreshold  = 50
	shortQueryThreshold = 20
)

// Route classifies a user query into a Mode. An empty or whitespace-only
// query always routes to chat.
func Route(query string) Decision {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Decision{Mode: ModeChat, Reason: "empty query defaults to chat", Query: trimmed}
	}

	if mode, clean, prefix, ok := checkForceMode(trimmed); ok {
		return Decision{Mode: mode, Reason: "forced by prefix " + prefix, Query: clean}
	}

	return heuristicRoute(trimmed)
}

func checkForceMode(query string) (mode Mode, clean string, prefix string, ok bool) {
	lower := strings.ToLower(query)
	for _, p := range forceChatPrefixes {
		if strings.HasPrefix(lower, p) {
			return ModeChat, strings.TrimSpace(query[len(p):]), p, true
		}
	}
	for _, p := range forceOrchestratePrefixes {
		if strings.HasPrefix(lower, p) {
			return ModeOrchestrate, strings.TrimSpace(query[len(p):]), p, true
		}
	}
	return "", query, "", false
}

func heuristicRoute(query string) Decision {
	lower := strings.ToLower(query)

	orchestrateScore := countMatches(lower, orchestrateKeywords)
	chatScore := countMatches(lower, chatKeywords)
	length := len([]rune(query))

	switch {
	case orchestrateScore > chatScore:
		return Decision{Mode: ModeOrchestrate, Reason: "orchestration keywords outweigh chit-chat keywords", Query: query}
	case orchestrateScore == 0 && chatScore > 0:
		return Decision{Mode: ModeChat, Reason: "chit-chat keywords matched, no orchestration keywords", Query: query}
	case length > longQueryThreshold:
		return Decision{Mode: ModeOrchestrate, Reason: "long query leans toward orchestration", Query: query}
	case length < shortQueryThreshold:
		return Decision{Mode: ModeChat, Reason: "short query leans toward chat", Query: query}
	default:
		// Grey zone and ties both default to the safer, more capable path.
		return Decision{Mode: ModeOrchestrate, Reason: "grey-zone query, defaulting to orchestrate", Query: query}
	}
}

func countMatches(lower string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			n++
		}
	}
	return n
}
