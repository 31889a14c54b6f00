// Package geocode resolves free-text village names to coordinates and
// administrative labels. This file implements the Validator: query-template
// fallback, weighted relevance scoring, boundary enforcement, and the 24h
// success cache.
package geocode

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gramsetu/citizen-assist-backend/internal/config"
	"github.com/gramsetu/citizen-assist-backend/internal/localize"
)

// Failure reason codes.
const (
	ReasonNotFound      = "not_found"
	ReasonOutOfBoundary = "out_of_boundary"
	ReasonServiceError  = "service_error"
)

// Outcome is the result of resolving a village name.
//
// On success, the coordinates, canonical labels, and a 0-100 confidence are
// populated; on failure, Reason carries a machine code and Message a
// localized user-facing explanation.
type Outcome struct {
	Success bool `json:"success"`

	Village    string  `json:"village,omitempty"`
	Taluka     string  `json:"taluka,omitempty"`
	District   string  `json:"district,omitempty"`
	Region     string  `json:"region,omitempty"`
	Country    string  `json:"country,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	Lat        float64 `json:"lat,omitempty"`
	Lng        float64 `json:"lng,omitempty"`
	// Confidence is the relevance-derived score on a 0-100 scale.
	Confidence int       `json:"confidence,omitempty"`
	CachedAt   time.Time `json:"cached_at,omitempty"`

	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Precision-tier bonuses, least to most precise.
var precisionBonus = map[string]int{
	"APPROXIMATE":        5,
	"RANGE_INTERPOLATED": 10,
	"GEOMETRIC_CENTER":   15,
	"ROOFTOP":            20,
}

// exactMatchScore is the score a candidate earns when an address component
// equals the queried name; once a candidate reaches it, later query templates
// cannot produce a meaningfully better match, so template fallback stops.
const exactMatchScore = 100

type cacheEntry struct {
	outcome  Outcome
	storedAt time.Time
}

// Validator resolves place names through a Provider and validates the best
// candidate against the configured service boundary. Successful outcomes are
// cached by normalized name for the configured TTL; failures are never
// cached. Safe for concurrent use.
type Validator struct {
	provider Provider
	boundary config.BoundaryConfig
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry

	now func() time.Time // test seam
}

// NewValidator constructs a Validator over the given provider and boundary.
func NewValidator(p Provider, boundary config.BoundaryConfig, cacheTTL time.Duration) *Validator {
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Validator{
		provider: p,
		boundary: boundary,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cacheEntry),
		now:      time.Now,
	}
}

// Resolve geocodes placeName and checks it against the service boundary.
//
// Lookup order: cache first (entries older than the TTL are evicted on
// read), then the ordered query templates from most to least specific
// regional context. Provider errors on one template are swallowed and the
// next template tried; only after all templates fail with errors does the
// outcome degrade to service_error. lang selects the language of the
// user-facing failure message.
func (v *Validator) Resolve(ctx context.Context, placeName, lang string) Outcome {
	tr := otel.Tracer("geocode/Validator")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("place", placeName)),
	)
	defer span.End()

	key := normalizeName(placeName)
	if key == "" {
		return Outcome{
			Success: false,
			Reason:  ReasonNotFound,
			Message: localize.Tf(lang, localize.MsgVillageNotFound, placeName),
		}
	}

	if out, ok := v.cached(key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return out
	}

	best, sawProviderError, exhausted := v.bestCandidate(ctx, placeName)

	if best == nil {
		if sawProviderError && exhausted {
			return Outcome{
				Success: false,
				Reason:  ReasonServiceError,
				Message: localize.T(lang, localize.MsgGeocodeError),
			}
		}
		return Outcome{
			Success: false,
			Reason:  ReasonNotFound,
			Message: localize.Tf(lang, localize.MsgVillageNotFound, placeName),
		}
	}

	if !v.boundary.Contains(best.cand.Lat, best.cand.Lng) {
		// Boundary failures must never be cached as successes.
		return Outcome{
			Success: false,
			Reason:  ReasonOutOfBoundary,
			Message: localize.Tf(lang, localize.MsgOutOfBoundary, placeName, v.boundary.District),
		}
	}

	out := v.successOutcome(placeName, best)
	v.store(key, out)
	return out
}

// scored pairs a candidate with its relevance score.
type scored struct {
	cand  Candidate
	score int
}

// queryTemplates returns the ordered lookup queries, most specific regional
// context first. Bare village names are too ambiguous for the provider, so
// district/region context is appended and progressively relaxed.
func (v *Validator) queryTemplates(place string) []string {
	b := v.boundary
	return []string{
		place + ", " + b.District + ", " + b.Region + ", " + b.Country,
		place + ", " + b.Region + ", " + b.Country,
		place + ", " + b.Country,
	}
}

// bestCandidate runs the template fallback and keeps the highest-scoring
// candidate seen. It reports whether any template failed with a provider
// error and whether every template was attempted without a viable result.
func (v *Validator) bestCandidate(ctx context.Context, place string) (best *scored, sawErr, exhausted bool) {
	templates := v.queryTemplates(place)
	errCount := 0

	hint := regionHint(v.boundary.Country)
	for _, q := range templates {
		cands, err := v.provider.Lookup(ctx, q, hint)
		if err != nil {
			errCount++
			continue
		}
		for _, c := range cands {
			s := v.scoreCandidate(c, place)
			if best == nil || s > best.score {
				best = &scored{cand: c, score: s}
			}
		}
		// An exact component match will not be beaten by a looser template.
		if best != nil && best.score >= exactMatchScore {
			break
		}
	}
	return best, errCount > 0, errCount == len(templates)
}

// scoreCandidate computes the weighted relevance of a candidate for the
// queried place name:
//
//	+100 address component equals the name (case-insensitive)
//	 +50 address component contains the name
//	 +30 admin-level-2 component matches the target district
//	 +20 admin-level-1 component matches the target region
//	 +25 formatted address contains the query string
//	+5..20 provider precision-tier bonus
func (v *Validator) scoreCandidate(c Candidate, place string) int {
	name := strings.ToLower(strings.TrimSpace(place))
	score := 0

	nameScore := 0
	for _, comp := range c.Components {
		long := strings.ToLower(comp.LongName)
		switch {
		case long == name:
			nameScore = exactMatchScore
		case strings.Contains(long, name) && nameScore < 50:
			nameScore = 50
		}
	}
	score += nameScore

	if comp := firstComponent(c.Components, "administrative_area_level_2"); comp != "" &&
		strings.EqualFold(comp, v.boundary.District) {
		score += 30
	}
	if comp := firstComponent(c.Components, "administrative_area_level_1"); comp != "" &&
		strings.EqualFold(comp, v.boundary.Region) {
		score += 20
	}
	if strings.Contains(strings.ToLower(c.FormattedAddress), name) {
		score += 25
	}
	score += precisionBonus[c.PrecisionTier]

	return score
}

// successOutcome extracts canonical labels from the best candidate. The first
// matching component per administrative level wins.
func (v *Validator) successOutcome(place string, best *scored) Outcome {
	c := best.cand

	village := firstComponent(c.Components, "locality")
	if village == "" {
		village = firstComponent(c.Components, "sublocality")
	}
	if village == "" {
		village = strings.TrimSpace(place)
	}

	conf := best.score
	if conf > 100 {
		conf = 100
	}

	return Outcome{
		Success:    true,
		Village:    village,
		Taluka:     firstComponent(c.Components, "administrative_area_level_3"),
		District:   firstComponent(c.Components, "administrative_area_level_2"),
		Region:     firstComponent(c.Components, "administrative_area_level_1"),
		Country:    firstComponent(c.Components, "country"),
		PostalCode: firstComponent(c.Components, "postal_code"),
		Lat:        c.Lat,
		Lng:        c.Lng,
		Confidence: conf,
		CachedAt:   v.now().UTC(),
	}
}

// firstComponent returns the long name of the first component carrying typ.
func firstComponent(comps []AddressComponent, typ string) string {
	for _, c := range comps {
		for _, t := range c.Types {
			if t == typ {
				return c.LongName
			}
		}
	}
	return ""
}

// cached returns a fresh cache entry for key, lazily evicting expired ones.
func (v *Validator) cached(key string) (Outcome, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.cache[key]
	if !ok {
		return Outcome{}, false
	}
	if v.now().Sub(e.storedAt) >= v.cacheTTL {
		delete(v.cache, key)
		return Outcome{}, false
	}
	return e.outcome, true
}

func (v *Validator) store(key string, out Outcome) {
	v.mu.Lock()
	v.cache[key] = cacheEntry{outcome: out, storedAt: v.now()}
	v.mu.Unlock()
}

// normalizeName lower-cases and trims a place name for use as a cache key.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// regionHint derives a ccTLD-style bias code from the country name.
func regionHint(country string) string {
	c := strings.ToLower(strings.TrimSpace(country))
	if len(c) < 2 {
		return ""
	}
	return c[:2]
}
