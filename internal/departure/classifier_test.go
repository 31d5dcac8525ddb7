package departure

import (
	"testing"

	"github.com/yegors/depwatch/internal/adsb"
)

func alt(v float64) *float64 { return &v }

func vec(callsign string, altitude *float64, rate, gs float64) adsb.StateVector {
	return adsb.StateVector{Callsign: callsign, AltitudeFeet: altitude, VerticalRateFPM: rate, GroundSpeedKnots: gs}
}

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultExcludedPrefixes(), nil)

	tests := []struct {
		name string
		v    adsb.StateVector
		want Verdict
	}{
		{"climbing band", vec("GIA404", alt(3000), 100, 150), VerdictTakeoff},
		{"level acceleration band", vec("GIA404", alt(1000), 0, 140), VerdictTakeoff},
		{"negative rate", vec("GIA404", alt(1000), -10, 140), SkipOutsideBands},
		{"altitude exactly 500", vec("GIA404", alt(500), 2000, 200), SkipOutsideBands},
		{"altitude exactly 6000", vec("GIA404", alt(6000), 2000, 200), SkipOutsideBands},
		{"altitude exactly 2500 level", vec("GIA404", alt(2500), 0, 200), SkipOutsideBands},
		{"rate exactly 50 slow", vec("GIA404", alt(3000), 50, 120), SkipOutsideBands},
		{"speed exactly 100", vec("GIA404", alt(3000), 500, 100), SkipOutsideBands},
		{"speed exactly 130 level", vec("GIA404", alt(1000), 0, 130), SkipOutsideBands},
		{"cruise", vec("GIA404", alt(35000), 0, 450), SkipOutsideBands},
		{"descent", vec("GIA404", alt(3000), -800, 180), SkipOutsideBands},
		{"missing altitude", vec("GIA404", nil, 1000, 150), SkipNoAltitude},
		{"blank callsign", vec("   ", alt(3000), 100, 150), SkipBlankCallsign},
		{"empty callsign", vec("", alt(3000), 100, 150), SkipBlankCallsign},
		{"excluded QG", vec("QG712", alt(3000), 100, 150), SkipExcludedCarrier},
		{"excluded CTV with padding", vec(" CTV9  ", alt(3000), 100, 150), SkipExcludedCarrier},
		{"padded callsign accepted", vec("LNI12   ", alt(3000), 100, 150), VerdictTakeoff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.v); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
			if got := c.IsTakeoff(tt.v); got != (tt.want == VerdictTakeoff) {
				t.Errorf("IsTakeoff() = %v", got)
			}
		})
	}
}

func TestClassifyRejectsFilteredCallsignsEverywhere(t *testing.T) {
	c := NewClassifier([]string{"qg", "CTV", " "}, nil)
	callsigns := []string{"", "  ", "QG1", "CTV42", " QG88 "}

	for _, cs := range callsigns {
		for _, a := range []float64{-100, 0, 501, 1000, 2499, 3000, 5999, 10000} {
			for _, rate := range []float64{-1000, 0, 51, 3000} {
				for _, gs := range []float64{0, 101, 131, 300} {
					v := vec(cs, alt(a), rate, gs)
					if c.IsTakeoff(v) {
						t.Fatalf("accepted %+v with callsign %q", v, cs)
					}
				}
			}
		}
	}
}

func TestClassifyCustomBands(t *testing.T) {
	c := NewClassifier(nil, []Band{{MinAltitudeFt: 100, MaxAltitudeFt: 1000, MinRateFPM: 0, RateInclusive: true, MinGroundSpeedK: 60}})

	if !c.IsTakeoff(vec("N123", alt(400), 0, 70)) {
		t.Error("custom band should accept light aircraft climb-out")
	}
	if c.IsTakeoff(vec("N123", alt(3000), 100, 150)) {
		t.Error("default bands should not apply when custom bands are given")
	}
}
