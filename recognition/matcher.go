package recognition

import (
	"fmt"
	"math"
	"strings"
)

// UnknownLabel is the annotation for a face that matched no identity.
const UnknownLabel = "Unknown"

// MatchPolicy selects among several qualifying candidates.
type MatchPolicy string

const (
	// MatchClosest picks the candidate with the smallest distance.
	MatchClosest MatchPolicy = "closest"
	// MatchFirst picks the first qualifying candidate in gallery order.
	MatchFirst MatchPolicy = "first"
)

// ParseMatchPolicy accepts "closest" or "first"; empty means closest.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch MatchPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchClosest:
		return MatchClosest, nil
	case MatchFirst:
		return MatchFirst, nil
	}
	return "", fmt.Errorf("unknown match policy %q (want closest or first)", s)
}

// Result is the outcome of matching one query signature.
type Result struct {
	Identity
	Distance float64
	Known    bool
}

// Label returns the display name for the result.
func (r Result) Label() string {
	if !r.Known {
		return UnknownLabel
	}
	return r.Name
}

// Matcher carries the matching parameters used by the pipeline.
type Matcher struct {
	Tolerance float64
	Policy    MatchPolicy
}

// Match resolves query against gallery with the closest-match policy.
func Match(query Signature, gallery *Gallery, tolerance float64) Result {
	return Matcher{Tolerance: tolerance, Policy: MatchClosest}.Match(query, gallery)
}

func (m Matcher) Match(query Signature, gallery *Gallery) Result {
	var res Result
	gallery.view(func(entries []Entry) {
		res = m.MatchEntries(query, entries)
	})
	return res
}

// MatchEntries matches against an explicit slice, in the order given.
// A candidate qualifies when its distance is at most the tolerance.
// Ties on distance resolve to the earlier entry.
func (m Matcher) MatchEntries(query Signature, entries []Entry) Result {
	best := Result{Distance: math.Inf(1)}
	for _, e := range entries {
		d := Distance(query, e.Signature)
		if !qualifies(d, m.Tolerance) {
			continue
		}
		if m.Policy == MatchFirst {
			return Result{Identity: e.Identity, Distance: d, Known: true}
		}
		if !best.Known || d < best.Distance {
			best = Result{Identity: e.Identity, Distance: d, Known: true}
		}
	}
	return best
}

func qualifies(distance, tolerance float64) bool {
	if math.IsNaN(distance) || math.IsInf(distance, 1) {
		return false
	}
	if distance == 0 {
		return tolerance >= 0
	}
	return distance <= tolerance
}
