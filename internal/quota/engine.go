package quota

import (
	"fmt"
	"sort"
	"time"

	"billflow/internal/common"
)

// Warning thresholds are percentages of a resource limit. They are fixed:
// dashboards and alerting depend on the 70/90 split.
const (
	WarningThreshold  = 70.0
	CriticalThreshold = 90.0
)

// Severity grades a quota warning.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ResourceUsage is the computed quota position for one resource.
type ResourceUsage struct {
	Limit          int64     `json:"limit"`
	Used           int64     `json:"used"`
	Remaining      int64     `json:"remaining"`
	PercentageUsed float64   `json:"percentage_used"`
	Unlimited      bool      `json:"unlimited"`
	ResetAt        time.Time `json:"reset_at"`
}

// Warning is emitted when a resource crosses a usage threshold.
type Warning struct {
	Resource       string   `json:"resource"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	PercentageUsed float64  `json:"percentage_used"`
}

// Info is a point-in-time quota snapshot. It is recomputed on demand from
// usage aggregates and plan limits, never persisted as an entity.
type Info struct {
	Resources          map[string]ResourceUsage `json:"resources"`
	RateLimitPerMinute int                      `json:"rate_limit_per_minute"`
	Features           []string                 `json:"features"`
	Warnings           []Warning                `json:"warnings"`
	GeneratedAt        time.Time                `json:"generated_at"`
	Sequence           int64                    `json:"sequence"`
}

// Compute derives a quota snapshot from plan limits and usage counters.
// A zero limit marks the resource unlimited; its percentage is reported as 0.
// Pure computation, no side effects.
func Compute(limits map[string]int64, used map[string]int64, resets map[string]time.Time, now time.Time) (*Info, error) {
	info := &Info{
		Resources:   make(map[string]ResourceUsage, len(limits)),
		GeneratedAt: now.UTC(),
	}

	for resource, limit := range limits {
		u := used[resource]
		if limit < 0 || u < 0 {
			return nil, fmt.Errorf("resource %s (limit=%d, used=%d): %w", resource, limit, u, common.ErrInvalidQuotaInput)
		}

		ru := ResourceUsage{
			Limit:   limit,
			Used:    u,
			ResetAt: resets[resource],
		}
		if limit == 0 {
			ru.Unlimited = true
			ru.Remaining = 0
			ru.PercentageUsed = 0
		} else {
			ru.Remaining = limit - u
			if ru.Remaining < 0 {
				ru.Remaining = 0
			}
			ru.PercentageUsed = float64(u) / float64(limit) * 100
		}
		info.Resources[resource] = ru

		if w, ok := warningFor(resource, ru); ok {
			info.Warnings = append(info.Warnings, w)
		}
	}

	// Deterministic warning order for stable responses.
	sort.Slice(info.Warnings, func(i, j int) bool {
		return info.Warnings[i].Resource < info.Warnings[j].Resource
	})

	return info, nil
}

func warningFor(resource string, ru ResourceUsage) (Warning, bool) {
	if ru.Unlimited {
		return Warning{}, false
	}
	switch {
	case ru.PercentageUsed >= CriticalThreshold:
		return Warning{
			Resource:       resource,
			Severity:       SeverityError,
			Message:        fmt.Sprintf("Critical: %s usage at %.1f%% of limit", resource, ru.PercentageUsed),
			PercentageUsed: ru.PercentageUsed,
		}, true
	case ru.PercentageUsed >= WarningThreshold:
		return Warning{
			Resource:       resource,
			Severity:       SeverityWarning,
			Message:        fmt.Sprintf("%s usage at %.1f%% of limit", resource, ru.PercentageUsed),
			PercentageUsed: ru.PercentageUsed,
		}, true
	}
	return Warning{}, false
}
