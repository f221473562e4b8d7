// Package bucket implements deterministic variation assignment and the
// pre-assignment eligibility gate. Bucketing is a pure function of
// (userID, experimentID, trafficSplit): the same user lands in the same
// variation across calls, restarts and hosts without any shared state,
// which is why a seed-free non-cryptographic hash is required here.
package bucket

import (
	"github.com/crescendo-labs/crescendo/internal/experiment"
)

// Hash computes a 32-bit signed polynomial rolling hash of
// userID + "_" + experimentID. Each step multiplies the accumulator by
// 31 and adds the character code, truncating to 32 bits.
func Hash(userID, experimentID string) int32 {
	var h int32
	for _, r := range userID + "_" + experimentID {
		h = (h << 5) - h + int32(r)
	}
	return h
}

// Percent maps the hash onto [0, 100) with 0.01 granularity.
func Percent(userID, experimentID string) float64 {
	h := int64(Hash(userID, experimentID))
	if h < 0 {
		h = -h
	}
	return float64(h%10000) / 100
}

// Assign picks a variation for the user by walking the traffic split in
// variation declaration order and selecting the first entry whose
// cumulative percentage reaches the hashed value. If rounding leaves
// the value uncovered, the control variation (or the first declared
// one) catches it.
func Assign(userID string, exp *experiment.Experiment) experiment.Variation {
	pct := Percent(userID, exp.ID)

	var cumulative float64
	for _, v := range exp.Variations {
		cumulative += exp.TrafficSplit[v.ID]
		if pct <= cumulative {
			return v
		}
	}

	return exp.Baseline()
}

// Eligible evaluates the targeting gate for a user. draw is a uniform
// sample from [0, 1) used for the traffic-allocation lottery; it is
// intentionally random and independent of the bucketing hash, since it
// controls what fraction of traffic enters the experiment at all, not
// which variation an entered user gets.
func Eligible(exp *experiment.Experiment, attrs experiment.UserAttributes, draw float64) bool {
	if draw*100 >= exp.Targeting.TrafficAllocation {
		return false
	}

	if exp.Targeting.NewUsersOnly && attrs.IsReturning {
		return false
	}

	if !matchesSet(exp.Targeting.Devices, attrs.Device, "all") {
		return false
	}

	if !matchesSet(exp.Targeting.Countries, attrs.Country, "all") {
		return false
	}

	if !matchesSegments(exp.Targeting.Segments, attrs.Segments) {
		return false
	}

	return true
}

// matchesSet checks membership in a targeting list. An empty list or
// one containing the wildcard imposes no restriction.
func matchesSet(allowed []string, value, wildcard string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == wildcard {
			return true
		}
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// matchesSegments requires at least one of the user's segments to be
// targeted. An empty list or the all_users segment admits everyone.
func matchesSegments(targeted, userSegments []string) bool {
	if len(targeted) == 0 {
		return true
	}
	for _, s := range targeted {
		if s == "all_users" {
			return true
		}
	}
	for _, s := range targeted {
		for _, u := range userSegments {
			if s == u {
				return true
			}
		}
	}
	return false
}
