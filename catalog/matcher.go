package catalog

import "strings"

// Match checks if an event type name matches an allow-list entry.
// Names are split into segments on "_".
//
// Supported patterns:
//
//	"smi_click"  → exact match
//	"spawn_*"    → matches spawn_credits, spawn_domain, etc. (single segment wildcard)
//	"*"          → matches everything
func Match(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}

	if pattern == eventType {
		return true
	}

	patternParts := strings.Split(pattern, "_")
	eventParts := strings.Split(eventType, "_")

	if len(patternParts) != len(eventParts) {
		return false
	}

	for i, pp := range patternParts {
		if pp == "*" {
			continue
		}
		if pp != eventParts[i] {
			return false
		}
	}

	return true
}

func isPattern(name string) bool {
	return strings.Contains(name, "*")
}
