// Package venuematch resolves free-text venue names, as they appear in
// itineraries and quotes, to known venue records.
package venuematch

import (
	"regexp"
	"strings"

	"github.com/vinetrail/vinetrail-backend/types"
)

// DefaultThreshold is the minimum fuzzy score accepted as a match.
const DefaultThreshold = 0.6

const (
	exactConfidence     = 1.0
	substringConfidence = 0.9
	minSubstringLength  = 4
)

type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchSubstring MatchType = "substring"
	MatchFuzzy     MatchType = "fuzzy"
)

// Result is a resolved venue.
type Result struct {
	Venue      types.Venue `json:"venue"`
	Confidence float64     `json:"confidence"`
	Type       MatchType   `json:"match_type"`
}

type options struct {
	threshold float64
}

// Option configures Match.
type Option func(*options)

// WithThreshold overrides the fuzzy acceptance threshold. Values outside (0, 1] are ignored.
func WithThreshold(t float64) Option {
	return func(o *options) {
		if t > 0 && t <= 1 {
			o.threshold = t
		}
	}
}

// Generic words that say what kind of place something is rather than which
// place. "cellar" stays: in this region it is part of the proper name
// ("Leonetti Cellar", "Woodward Canyon Cellar"). TestMatch_Substring relies on
// "Leonetti" matching "Leonetti Cellar" by substring, not exactly.
var genericWords = regexp.MustCompile(`\b(?:winery|wineries|vineyard|vineyards|estate|estates|wines|wine|restaurant|hotel|inn|the|and|co|company)\b`)

var (
	apostrophes  = strings.NewReplacer("'", "", "’", "", "`", "")
	nonAlnum     = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRunsExp = regexp.MustCompile(`\s+`)
)

// Normalize lowercases s, drops apostrophes, turns punctuation into spaces,
// removes generic venue words and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = apostrophes.Replace(s)
	s = nonAlnum.ReplaceAllString(s, " ")
	s = genericWords.ReplaceAllString(s, " ")
	s = spaceRunsExp.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Match returns the best venue for name. The boolean is false when nothing
// reaches the threshold. Inputs are not modified.
func Match(name string, venues []types.Venue, opts ...Option) (Result, bool) {
	o := options{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(name) == "" || len(venues) == 0 {
		return Result{}, false
	}
	query := Normalize(name)
	if query == "" {
		return Result{}, false
	}

	var best Result
	found := false
	for _, v := range venues {
		candidate := Normalize(v.Name)
		if candidate == "" {
			continue
		}

		if candidate == query {
			return Result{Venue: v, Confidence: exactConfidence, Type: MatchExact}, true
		}

		var score float64
		var kind MatchType
		if len(query) >= minSubstringLength && len(candidate) >= minSubstringLength &&
			(strings.Contains(candidate, query) || strings.Contains(query, candidate)) {
			score, kind = substringConfidence, MatchSubstring
		} else if d := DiceCoefficient(query, candidate); d >= o.threshold {
			score, kind = d, MatchFuzzy
		} else {
			continue
		}

		if !found || score > best.Confidence {
			best = Result{Venue: v, Confidence: score, Type: kind}
			found = true
		}
	}
	return best, found
}

// DiceCoefficient is 2|A∩B| / (|A|+|B|) over the character bigram multisets
// of a and b, ignoring spaces.
func DiceCoefficient(a, b string) float64 {
	a = strings.ReplaceAll(a, " ", "")
	b = strings.ReplaceAll(b, " ", "")
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if len(a) < 2 || len(b) < 2 {
		return 0
	}

	counts := make(map[string]int, len(a)-1)
	for i := 0; i < len(a)-1; i++ {
		counts[a[i:i+2]]++
	}

	shared := 0
	for i := 0; i < len(b)-1; i++ {
		bg := b[i : i+2]
		if counts[bg] > 0 {
			counts[bg]--
			shared++
		}
	}

	return 2 * float64(shared) / float64((len(a)-1)+(len(b)-1))
}

// MatchAll resolves every stop of an import result in place and returns how
// many stops were matched.
func MatchAll(result *types.SmartImportResult, venues []types.Venue, opts ...Option) int {
	if result == nil {
		return 0
	}
	matched := 0
	for d := range result.Days {
		stops := result.Days[d].Stops
		for s := range stops {
			m, ok := Match(stops[s].VenueName, venues, opts...)
			if !ok {
				continue
			}
			id, name, conf, kind := m.Venue.ID, m.Venue.Name, m.Confidence, string(m.Type)
			stops[s].MatchedVenueID = &id
			stops[s].MatchedVenueName = &name
			stops[s].MatchConfidence = &conf
			stops[s].MatchType = &kind
			matched++
		}
	}
	return matched
}
