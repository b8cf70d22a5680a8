package matcher

import (
	"sort"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/software/dispatch/presence"
)

// Source lists online drivers; *presence.Directory implements it.
type Source interface {
	OnlineDriversByVehicleType(vehicleTypeID string) []presence.Record
}

// Candidate is an online driver with its distance to the pickup, when known.
type Candidate struct {
	presence.Record
	DistanceKM *float64
}

type options struct {
	allowUnknown bool
	limit        int
}

type Option func(*options)

// AllowUnknownLocation keeps drivers that have not reported a coordinate yet.
func AllowUnknownLocation() Option {
	return func(o *options) { o.allowUnknown = true }
}

// WithLimit caps the number of candidates, closest first.
func WithLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

type Matcher struct {
	src Source
}

func New(src Source) *Matcher {
	return &Matcher{src: src}
}

// SelectCandidates returns online drivers of vehicleTypeID within radiusKM of pickup.
// Drivers with an unknown location are left out unless AllowUnknownLocation is given.
func (m *Matcher) SelectCandidates(pickup geo.Point, vehicleTypeID string, radiusKM float64, opts ...Option) []Candidate {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var out []Candidate
	for _, rec := range m.src.OnlineDriversByVehicleType(vehicleTypeID) {
		if rec.Location == nil {
			if o.allowUnknown {
				out = append(out, Candidate{Record: rec})
			}
			continue
		}
		d := geo.DistanceKM(pickup, *rec.Location)
		if d <= radiusKM {
			out = append(out, Candidate{Record: rec, DistanceKM: &d})
		}
	}

	sortByDistance(out)
	if o.limit > 0 && len(out) > o.limit {
		out = out[:o.limit]
	}
	return out
}

// SelectAll returns every online driver of the type, with no distance filter.
func (m *Matcher) SelectAll(vehicleTypeID string) []Candidate {
	recs := m.src.OnlineDriversByVehicleType(vehicleTypeID)
	out := make([]Candidate, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Candidate{Record: rec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Identities extracts the candidate ids.
func Identities(cands []Candidate) []string {
	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.Identity)
	}
	return ids
}

// closest first; unknown locations last, by id
func sortByDistance(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].DistanceKM, cands[j].DistanceKM
		switch {
		case a != nil && b != nil:
			return *a < *b
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return cands[i].Identity < cands[j].Identity
		}
	})
}
