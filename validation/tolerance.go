package validation

import (
	"math"

	"github.com/ska-telescope/ska-pss-protest/fil"
)

// fwhmFactor converts a Gaussian FWHM to its standard deviation.
var fwhmFactor = 2.0 * math.Sqrt(2.0*math.Log(2.0))

// widthStepTol holds the per-pulse tolerances of the width-step
// ruleset. Widths are in microseconds, the timestamp tolerance in days.
type widthStepTol struct {
	dmTol        float64
	timestampTol float64
	widthLow     float64
	widthHigh    float64
	snTol        float64
}

// newWidthStepTol derives tolerances for one expected pulse. The width
// range spans the boxcar widths either side of the one nearest the
// intrinsic width; the DM tolerance allows the pulse to broaden by up
// to twice its intrinsic width through incorrect dedispersion.
func newWidthStepTol(exp Candidate, h *fil.Header, sig fil.Signal, widths []int) widthStepTol {
	period := 1.0 / sig.Freq * 1e6 // us
	wint := exp.WidthMs * 1000     // us

	var tol widthStepTol

	scaler := 2.0
	fchLow := h.Fch1() + float64(h.NChans())*h.FOff()
	sqdiff := math.Pow(1/fchLow, 2) - math.Pow(1/h.Fch1(), 2)
	tol.dmTol = scaler * wint / (4.15e9 * sqdiff)

	tol.timestampTol = wint / 1e6 / fwhmFactor / 86400

	trialWidths := make([]float64, len(widths))
	for i, bins := range widths {
		trialWidths[i] = float64(bins) * h.TSamp() * 1e6
	}
	nearest := 0
	for i, w := range trialWidths {
		if math.Abs(w-wint) < math.Abs(trialWidths[nearest]-wint) {
			nearest = i
		}
	}
	switch {
	case nearest == 0:
		if wint < trialWidths[0] {
			tol.widthLow, tol.widthHigh = wint, trialWidths[nearest+1]
		} else {
			tol.widthLow, tol.widthHigh = trialWidths[nearest], trialWidths[nearest+1]
		}
	case nearest == len(trialWidths)-1:
		if wint > trialWidths[nearest] {
			tol.widthLow, tol.widthHigh = trialWidths[nearest-1], wint
		} else {
			tol.widthLow, tol.widthHigh = trialWidths[nearest-1], trialWidths[nearest]
		}
	default:
		tol.widthLow, tol.widthHigh = trialWidths[nearest-1], trialWidths[nearest+1]
	}

	// Radiometer-equation S/N scaling between the intrinsic width and
	// the nearest boxcar width.
	weffbox := trialWidths[nearest]
	tol.snTol = exp.SN * math.Sqrt(wint*(period-weffbox)/(weffbox*(period-wint)))

	return tol
}

// dmTol holds the per-pulse tolerances of the DM ruleset: the offsets
// in arrival time, width and DM a candidate may show if the pipeline
// dedispersed it at a slightly wrong DM while retaining at least the
// threshold fraction of its S/N.
type dmTol struct {
	minSN        float64
	widthTol     float64 // us
	dmTol        float64
	timestampTol float64 // days
	weff         float64 // us
}

func newDMTol(exp Candidate, h *fil.Header, sig fil.Signal, snThresh float64) dmTol {
	period := 1.0 / sig.Freq * 1e6 // us
	wint := exp.WidthMs * 1000     // us

	var tol dmTol
	tol.minSN = exp.SN * snThresh

	tol.weff = wint * period / (snThresh*snThresh*(period-wint) + wint)
	tol.widthTol = math.Abs(tol.weff - wint)

	fchLow := h.Fch1() + float64(h.NChans())*h.FOff()
	bandwidth := h.Fch1() - fchLow
	fCent := (fchLow + bandwidth/2.0) / 1000 // GHz
	tsamp := h.TSamp() / 1e-6                // us

	term1 := 4 * math.Pow(fCent, 3) / (8.3 * bandwidth)
	term2 := 8.3 * bandwidth * exp.DM / (float64(h.NChans()) * math.Pow(fCent, 3))
	tol.dmTol = term1 * math.Sqrt(tol.weff*tol.weff-tsamp*tsamp-wint*wint-term2*term2)

	tol.timestampTol = tol.weff / fwhmFactor * 1e-6 / 86400

	return tol
}
