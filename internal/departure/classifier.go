package departure

import (
	"strings"

	"github.com/yegors/depwatch/internal/adsb"
)

// Verdict is the outcome of classifying one state vector. Every value other
// than VerdictTakeoff is a normal filter outcome, not an error.
type Verdict string

const (
	VerdictTakeoff      Verdict = "takeoff"
	SkipBlankCallsign   Verdict = "blank_callsign"
	SkipExcludedCarrier Verdict = "excluded_carrier"
	SkipNoAltitude      Verdict = "no_altitude"
	SkipOutsideBands    Verdict = "outside_bands"
)

// Band is one altitude/vertical-rate/speed window approximating "recently
// airborne". Altitude and speed bounds are strict. The rate bound is strict
// unless RateInclusive is set.
type Band struct {
	MinAltitudeFt   float64
	MaxAltitudeFt   float64
	MinRateFPM      float64
	RateInclusive   bool
	MinGroundSpeedK float64
}

// Match reports whether a reading falls inside the band.
func (b Band) Match(altFt, rateFPM, gsKts float64) bool {
	if !(altFt > b.MinAltitudeFt && altFt < b.MaxAltitudeFt) {
		return false
	}
	if b.RateInclusive {
		if !(rateFPM >= b.MinRateFPM) {
			return false
		}
	} else if !(rateFPM > b.MinRateFPM) {
		return false
	}
	return gsKts > b.MinGroundSpeedK
}

// DefaultBands are the empirically tuned takeoff bands: a climbing band and a
// low level-acceleration band.
func DefaultBands() []Band {
	return []Band{
		{MinAltitudeFt: 500, MaxAltitudeFt: 6000, MinRateFPM: 50, MinGroundSpeedK: 100},
		{MinAltitudeFt: 500, MaxAltitudeFt: 2500, MinRateFPM: 0, RateInclusive: true, MinGroundSpeedK: 130},
	}
}

// DefaultExcludedPrefixes are callsign prefixes of operators that are not
// tracked.
func DefaultExcludedPrefixes() []string {
	return []string{"QG", "CTV"}
}

// Classifier decides whether a single snapshot reading is a takeoff in
// progress. It holds no state between calls.
type Classifier struct {
	excluded []string
	bands    []Band
}

// NewClassifier copies the prefix set and bands. Nil bands select the
// defaults; blank prefixes are ignored.
func NewClassifier(excludedPrefixes []string, bands []Band) *Classifier {
	c := &Classifier{}
	for _, p := range excludedPrefixes {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			c.excluded = append(c.excluded, p)
		}
	}
	if len(bands) == 0 {
		bands = DefaultBands()
	}
	c.bands = append([]Band(nil), bands...)
	return c
}

// Classify returns the verdict for one state vector.
func (c *Classifier) Classify(v adsb.StateVector) Verdict {
	callsign := NormalizeCallsign(v.Callsign)
	if callsign == "" {
		return SkipBlankCallsign
	}
	for _, p := range c.excluded {
		if strings.HasPrefix(callsign, p) {
			return SkipExcludedCarrier
		}
	}
	if v.AltitudeFeet == nil {
		return SkipNoAltitude
	}

	alt := *v.AltitudeFeet
	for _, b := range c.bands {
		if b.Match(alt, v.VerticalRateFPM, v.GroundSpeedKnots) {
			return VerdictTakeoff
		}
	}
	return SkipOutsideBands
}

// IsTakeoff is Classify reduced to a boolean.
func (c *Classifier) IsTakeoff(v adsb.StateVector) bool {
	return c.Classify(v) == VerdictTakeoff
}

// NormalizeCallsign trims padding from a broadcast callsign. ADS-B pads the
// eight-character field with spaces.
func NormalizeCallsign(s string) string {
	return strings.TrimSpace(s)
}
