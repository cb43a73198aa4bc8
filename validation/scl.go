package validation

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ska-telescope/ska-pss-protest/fil"
)

// speedOfLight in m/s, used to convert between acceleration and period
// derivative.
const speedOfLight = 3e8

// FdasCandidate is one row of a sifted candidate list (.scl) produced
// by the frequency-domain acceleration search: period and its
// derivative, dispersion measure, harmonic, width and S/N.
type FdasCandidate struct {
	PeriodMs float64
	Pdot     float64
	DM       float64
	Harmonic float64
	Width    float64
	SN       float64
}

// LoadScl locates the single .scl file in dir and parses its
// tab-separated rows, skipping the column-label row. Candidates are
// returned sorted by S/N, strongest first.
func LoadScl(dir, ext string) ([]FdasCandidate, error) {
	if ext == "" {
		ext = ".scl"
	}
	path, err := singleFile(dir, ext)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cands []FdasCandidate
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 6 {
			return nil, fmt.Errorf("row %q has %d columns, want 6", line, len(fields))
		}
		var vals [6]float64
		for i := 0; i < 6; i++ {
			vals[i], err = strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("row %q: %w", line, err)
			}
		}
		cands = append(cands, FdasCandidate{
			PeriodMs: vals[0],
			Pdot:     vals[1],
			DM:       vals[2],
			Harmonic: vals[3],
			Width:    vals[4],
			SN:       vals[5],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("candidate list %s empty", path)
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].SN > cands[j].SN })
	return cands, nil
}

// FdasExpected holds the pulsar parameters an acceleration search is
// expected to recover, derived from the test vector name.
type FdasExpected struct {
	PeriodMs float64
	Pdot     float64
	DM       float64
	WidthMs  float64
	SN       float64
}

// FdasExpectedFromVector derives the expected pulsar parameters from
// the injected signal.
func FdasExpectedFromVector(sig fil.Signal) FdasExpected {
	periodMs := 1.0 / sig.Freq * 1000
	return FdasExpected{
		PeriodMs: periodMs,
		Pdot:     -sig.Accel / (periodMs * speedOfLight),
		DM:       sig.DM,
		WidthMs:  sig.Duty * periodMs,
		SN:       sig.SN,
	}
}

// fdasTol is a tolerance window on each candidate parameter. Ranges are
// [low, high]; snTol is a minimum. The width tolerance is computed but
// not applied: widths from Fourier-domain searches are too coarse to
// test on.
type fdasTol struct {
	periodTol [2]float64
	pdotTol   [2]float64
	dmTol     [2]float64
	widthTol  [2]float64
	snTol     float64
}

// FDAS rulesets.
const (
	FdasRulesetDummy = "dummy"
	FdasRulesetBasic = "basic"
)

// newFdasDummyTol sets placeholder 10% windows on every parameter.
func newFdasDummyTol(exp FdasExpected) fdasTol {
	return fdasTol{
		periodTol: [2]float64{exp.PeriodMs - 0.1*exp.PeriodMs, exp.PeriodMs + 0.1*exp.PeriodMs},
		pdotTol:   [2]float64{0.1 * exp.Pdot, 10 * exp.Pdot},
		dmTol:     [2]float64{exp.DM - 0.1*exp.DM, exp.DM + 0.1*exp.DM},
		widthTol:  [2]float64{exp.WidthMs - 0.1*exp.WidthMs, exp.WidthMs + 0.1*exp.WidthMs},
		snTol:     0.85 * exp.SN,
	}
}

// psbcTime returns the dump time of the power spectrum buffer: the
// largest power-of-two number of samples fitting the observation.
func psbcTime(tobs, tsamp float64) float64 {
	exponent := math.Floor(math.Round(math.Log2(tobs / tsamp)))
	return math.Pow(2, exponent) * tsamp
}

// zLevels returns the multiples of base either side of the template
// filter number nearest z.
func zLevels(z float64, base int) (lower, nearest, upper float64) {
	nearest = math.Round(z/float64(base)) * float64(base)
	return nearest - float64(base), nearest, nearest + float64(base)
}

func accelFromFilter(z, freq, tPsbc float64) float64 {
	return z * speedOfLight / (freq * tPsbc * tPsbc)
}

func accelToPdot(accel, period float64) float64 {
	return -accel / (period * speedOfLight)
}

func pdotToAccel(pdot, period float64) float64 {
	return -pdot * period * speedOfLight
}

// newFdasBasicTol derives tolerance windows from the search resolution:
// one Fourier frequency bin on the period, five acceleration template
// filters on pdot, and the S/N-degradation window on DM.
func newFdasBasicTol(exp FdasExpected, h *fil.Header) fdasTol {
	var tol fdasTol

	tPsbc := psbcTime(h.Duration(), h.TSamp())

	// Period window: one frequency bin either side post FFT.
	deltaFreq := 1 / tPsbc
	fmin := 1/exp.PeriodMs - deltaFreq
	fmax := 1/exp.PeriodMs + deltaFreq
	tol.periodTol = [2]float64{1 / fmax, 1 / fmin}

	// Pdot window: five template filters either side of the nearest.
	const deltaZ = 5
	freq := 1 / (exp.PeriodMs * 1e-3)
	accel := pdotToAccel(exp.Pdot, exp.PeriodMs*1e-3)
	z := accel * freq * tPsbc * tPsbc / speedOfLight
	zLow, _, zHigh := zLevels(z, deltaZ)
	tol.pdotTol = [2]float64{
		accelToPdot(accelFromFilter(zHigh, freq, tPsbc), 1/freq),
		accelToPdot(accelFromFilter(zLow, freq, tPsbc), 1/freq),
	}

	// DM window: smearing that degrades S/N to no less than 85%.
	scaler := 2.0
	fchLow := h.Fch1() + float64(h.NChans())*h.FOff()
	sqdiff := math.Pow(1/fchLow, 2) - math.Pow(1/h.Fch1(), 2)
	dmtol := scaler * exp.WidthMs / (4.15e9 * sqdiff)
	tol.dmTol = [2]float64{exp.DM - dmtol*1e3, exp.DM + dmtol*1e3}

	tol.widthTol = [2]float64{exp.WidthMs - 0.1*exp.WidthMs, exp.WidthMs + 0.1*exp.WidthMs}
	tol.snTol = 0.85 * exp.SN

	return tol
}

// FdasResult is the outcome of sifting the candidate list for the
// expected pulsar.
type FdasResult struct {
	Detected  bool
	Best      FdasCandidate
	Survivors []FdasCandidate
}

// CompareFdas sifts the candidate list for candidates consistent with
// the expected pulsar under the named ruleset and returns the surviving
// candidates with the strongest as the detection.
func CompareFdas(exp FdasExpected, cands []FdasCandidate, ruleset string, h *fil.Header) (FdasResult, error) {
	var tol fdasTol
	switch ruleset {
	case FdasRulesetDummy:
		tol = newFdasDummyTol(exp)
	case FdasRulesetBasic:
		tol = newFdasBasicTol(exp, h)
	default:
		return FdasResult{}, fmt.Errorf("invalid tolerance set specified: %s", ruleset)
	}

	var res FdasResult
	for _, cand := range cands {
		if tol.periodTol[0] <= cand.PeriodMs && cand.PeriodMs <= tol.periodTol[1] &&
			tol.pdotTol[0] <= cand.Pdot && cand.Pdot <= tol.pdotTol[1] &&
			tol.dmTol[0] <= cand.DM && cand.DM <= tol.dmTol[1] &&
			cand.SN >= tol.snTol {
			res.Survivors = append(res.Survivors, cand)
		}
	}
	if len(res.Survivors) == 0 {
		return res, nil
	}

	res.Detected = true
	res.Best = res.Survivors[0]
	for _, cand := range res.Survivors[1:] {
		if cand.SN > res.Best.SN {
			res.Best = cand
		}
	}
	return res, nil
}
