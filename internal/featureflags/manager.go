// Package featureflags evaluates runtime switches configured through FEATURE_FLAGS.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// Flags read by the service.
const (
	// ReadOnView marks a conversation read when a participant opens the request.
	ReadOnView = "read_on_view"
	// ExpirySweep runs the background sweeper for overdue pending requests.
	ExpirySweep = "expiry_sweep"
)

type rule struct {
	on      bool
	percent int // 0 unless the flag is a user rollout
}

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "read_on_view=on,expiry_sweep=off,new_listing_form=25%"
type Manager struct {
	rules map[string]rule
}

// NewManager creates a feature-flag manager from a comma-separated config
// string. Malformed entries are ignored.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" {
			continue
		}
		if r, ok := parseRule(value); ok {
			rules[key] = r
		}
	}

	return &Manager{rules: rules}
}

func parseRule(value string) (rule, bool) {
	switch value {
	case "on", "true", "1":
		return rule{on: true}, true
	case "off", "false", "0":
		return rule{}, true
	}
	pct, found := strings.CutSuffix(value, "%")
	if !found {
		return rule{}, false
	}
	n, err := strconv.Atoi(pct)
	if err != nil {
		return rule{}, false
	}
	switch {
	case n <= 0:
		return rule{}, true
	case n >= 100:
		return rule{on: true}, true
	default:
		return rule{percent: n}, true
	}
}

// Enabled returns whether a flag is enabled for a given user. Percentage
// rollouts bucket users deterministically and are off for userID 0.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	if !ok {
		return false
	}
	if r.on {
		return true
	}
	if r.percent == 0 || userID == 0 {
		return false
	}
	return rolloutBucket(name, userID) < r.percent
}

// EnabledGlobally reports whether a flag is fully on, for switches that do
// not depend on a user.
func (m *Manager) EnabledGlobally(name string) bool {
	return m.Enabled(name, 0)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%d", normalize(name), userID)))
	return int(h.Sum32() % 100)
}
