// Package crops holds the static per-crop constants used by the rule engine:
// optimal temperature range, baseline daily water need, and pest lists.
//
// Lookups never fail. A key with no profile resolves to the rice profile, and
// a profile without its own pest lists borrows rice's. Both fallbacks are
// reported to the caller so they can be logged or surfaced.
package crops

import "strings"

// DefaultKey is the profile used for any crop the registry does not know.
const DefaultKey = "rice"

// PestCondition names the weather condition a pest list applies to.
type PestCondition string

const (
	HighHumidity PestCondition = "high_humidity"
	HighTemp     PestCondition = "high_temp"
	Rainy        PestCondition = "rainy"
)

// Range is an inclusive optimal temperature band in °C.
type Range struct {
	Min float64
	Max float64
}

// Profile carries the domain constants for one crop.
type Profile struct {
	Key              string
	TempRange        *Range // nil: no crop temperature rules
	DailyNeedMM      float64
	CriticalStage    string
	IrrigationMethod string
	Pests            map[PestCondition][]string // nil: use the default crop's lists
}

// DisplayName returns the key with its first letter upper-cased ("rice" -> "Rice").
func (p Profile) DisplayName() string {
	return Title(p.Key)
}

// Registry is an immutable crop-key -> Profile mapping with a documented
// fallback entry.
type Registry struct {
	profiles map[string]Profile
	fallback Profile
}

// NewRegistry builds a registry from profiles. fallbackKey must be present.
func NewRegistry(fallbackKey string, profiles ...Profile) *Registry {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		r.profiles[NormalizeKey(p.Key)] = p
	}
	fb, ok := r.profiles[NormalizeKey(fallbackKey)]
	if !ok {
		panic("crops: fallback profile " + fallbackKey + " not registered")
	}
	r.fallback = fb
	return r
}

// Lookup returns the profile for key. For an unknown key it returns the
// fallback profile and found=false.
func (r *Registry) Lookup(key string) (Profile, bool) {
	if p, ok := r.profiles[NormalizeKey(key)]; ok {
		return p, true
	}
	return r.fallback, false
}

// TempRange returns the optimal range for exactly key. Unknown crops and
// crops without a range report false; the fallback is not consulted.
func (r *Registry) TempRange(key string) (Range, bool) {
	p, ok := r.profiles[NormalizeKey(key)]
	if !ok || p.TempRange == nil {
		return Range{}, false
	}
	return *p.TempRange, true
}

// PestLists returns the pest lists for key, falling back to the default
// crop's lists when key is unknown or has none of its own.
func (r *Registry) PestLists(key string) map[PestCondition][]string {
	if p, ok := r.profiles[NormalizeKey(key)]; ok && p.Pests != nil {
		return p.Pests
	}
	return r.fallback.Pests
}

// Keys returns the registered crop keys in no particular order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.profiles))
	for k := range r.profiles {
		keys = append(keys, k)
	}
	return keys
}

// NormalizeKey trims and lower-cases a crop key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Title upper-cases the first letter of s.
func Title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
