package domain

// DiscoveryState distinguishes the three outcomes of deriving a single common
// value over a collection of enrollments.
type DiscoveryState int

const (
	// DiscoveryNone means no enrollments carried a value at all.
	DiscoveryNone DiscoveryState = iota
	// DiscoveryUnanimous means exactly one distinct non-null value was found.
	DiscoveryUnanimous
	// DiscoveryConflict means two or more distinct non-null values were found.
	DiscoveryConflict
)

// DiscoveryResult is the tri-state outcome of value discovery. A null value on
// an individual enrollment never conflicts on its own; it only loses to a
// concrete value found elsewhere.
type DiscoveryResult[T comparable] struct {
	state DiscoveryState
	value T
}

// Unanimous builds a result carrying the single agreed value.
func Unanimous[T comparable](value T) DiscoveryResult[T] {
	return DiscoveryResult[T]{state: DiscoveryUnanimous, value: value}
}

// NoDiscovery builds an empty result.
func NoDiscovery[T comparable]() DiscoveryResult[T] {
	return DiscoveryResult[T]{state: DiscoveryNone}
}

// Conflict builds a result recording ambiguous values.
func Conflict[T comparable]() DiscoveryResult[T] {
	return DiscoveryResult[T]{state: DiscoveryConflict}
}

// State returns the discovery outcome.
func (r DiscoveryResult[T]) State() DiscoveryState { return r.state }

// Value returns the unanimous value and whether one exists.
func (r DiscoveryResult[T]) Value() (T, bool) {
	if r.state != DiscoveryUnanimous {
		var zero T
		return zero, false
	}
	return r.value, true
}

// IsConflict reports whether discovery found ambiguous values.
func (r DiscoveryResult[T]) IsConflict() bool { return r.state == DiscoveryConflict }

// IsNone reports whether discovery found no values at all.
func (r DiscoveryResult[T]) IsNone() bool { return r.state == DiscoveryNone }

func discoverField(enrollments []EnrollmentSummary, field func(EnrollmentSummary) *string) DiscoveryResult[string] {
	seen := make(map[string]struct{})
	var value string
	for _, e := range enrollments {
		v := field(e)
		if v == nil || *v == "" {
			continue
		}
		if _, ok := seen[*v]; !ok {
			seen[*v] = struct{}{}
			value = *v
		}
	}
	switch len(seen) {
	case 0:
		return NoDiscovery[string]()
	case 1:
		return Unanimous(value)
	default:
		return Conflict[string]()
	}
}

// DiscoverBuilder derives the single builder shared by the enrollments.
func DiscoverBuilder(enrollments []EnrollmentSummary) DiscoveryResult[string] {
	return discoverField(enrollments, func(e EnrollmentSummary) *string { return e.BuilderID })
}

// DiscoverProgram derives the single program shared by the enrollments.
func DiscoverProgram(enrollments []EnrollmentSummary) DiscoveryResult[string] {
	return discoverField(enrollments, func(e EnrollmentSummary) *string { return e.ProgramID })
}

// DiscoverMetro derives the single metro region shared by the enrollments.
func DiscoverMetro(enrollments []EnrollmentSummary) DiscoveryResult[string] {
	return discoverField(enrollments, func(e EnrollmentSummary) *string { return e.MetroID })
}

// DiscoverIsMetroSampled reports whether more than one subdivision is in use
// among the enrollments' homes. A group spanning subdivisions is by definition
// metro sampling and requires program support.
func DiscoverIsMetroSampled(enrollments []EnrollmentSummary) bool {
	seen := make(map[string]struct{})
	for _, e := range enrollments {
		if e.SubdivisionID == nil || *e.SubdivisionID == "" {
			continue
		}
		seen[*e.SubdivisionID] = struct{}{}
	}
	return len(seen) > 1
}

// UsedMetros returns the distinct metro ids referenced by the enrollments.
func UsedMetros(enrollments []EnrollmentSummary) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range enrollments {
		if e.MetroID == nil || *e.MetroID == "" {
			continue
		}
		if _, ok := seen[*e.MetroID]; ok {
			continue
		}
		seen[*e.MetroID] = struct{}{}
		out = append(out, *e.MetroID)
	}
	return out
}
