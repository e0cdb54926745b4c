// Package plans is the static registry of subscription tiers and their
// quota limits.
package plans

import (
	"sort"
	"strings"
	"time"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree     Tier = "free"
	TierPro      Tier = "pro"
	TierUltimate Tier = "ultimate"
)

// Limits is the quota attached to a tier. A nil AllowedJobTypes means every
// job type is allowed.
type Limits struct {
	Tier               Tier
	MaxConcurrent      int
	MaxDurationSeconds int
	AllowedJobTypes    map[string]struct{}
}

// AllowsAllJobTypes reports whether the tier has no job-type restriction.
func (l Limits) AllowsAllJobTypes() bool { return l.AllowedJobTypes == nil }

// Allows reports whether jobType (case-insensitive) is permitted.
func (l Limits) Allows(jobType string) bool {
	if l.AllowsAllJobTypes() {
		return true
	}
	_, ok := l.AllowedJobTypes[strings.ToLower(strings.TrimSpace(jobType))]
	return ok
}

// JobTypes lists the allowed job types in sorted order, or nil for "all".
func (l Limits) JobTypes() []string {
	if l.AllowsAllJobTypes() {
		return nil
	}
	out := make([]string, 0, len(l.AllowedJobTypes))
	for t := range l.AllowedJobTypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func set(types ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(types))
	for _, t := range types {
		m[t] = struct{}{}
	}
	return m
}

var registry = map[Tier]Limits{
	TierFree: {
		Tier:               TierFree,
		MaxConcurrent:      1,
		MaxDurationSeconds: 60,
		AllowedJobTypes:    set("dns", "http", "tcp"),
	},
	TierPro: {
		Tier:               TierPro,
		MaxConcurrent:      3,
		MaxDurationSeconds: 300,
		AllowedJobTypes:    set("dns", "http", "https", "tcp", "grpc", "websocket"),
	},
	TierUltimate: {
		Tier:               TierUltimate,
		MaxConcurrent:      10,
		MaxDurationSeconds: 1800,
	},
}

// Valid reports whether t names a known tier.
func (t Tier) Valid() bool {
	_, ok := registry[t]
	return ok
}

// LimitsFor returns the limits of tier. Unknown tiers get the free limits.
func LimitsFor(tier Tier) Limits {
	if l, ok := registry[tier]; ok {
		return l
	}
	return registry[TierFree]
}

// EffectiveTier returns the tier a user is entitled to at now: free when
// nothing is stored, when free is stored, or when the paid tier expired.
// It never has side effects; lapse is recomputed on every call.
func EffectiveTier(stored string, expiresAt *time.Time, now time.Time) Tier {
	if stored == "" || Tier(stored) == TierFree {
		return TierFree
	}
	if expiresAt != nil && expiresAt.Before(now) {
		return TierFree
	}
	return Tier(stored)
}

// Tiers returns every tier's limits, cheapest first.
func Tiers() []Limits {
	return []Limits{registry[TierFree], registry[TierPro], registry[TierUltimate]}
}
