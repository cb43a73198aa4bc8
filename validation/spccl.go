// Package validation judges cheetah data products against the ground
// truth encoded in a test vector: single-pulse candidate lists,
// acceleration-search candidate lists, exported candidate filterbanks
// and folded candidate (OCLD) files.
package validation

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ska-telescope/ska-pss-protest/fil"
)

// Candidate is one row of a single-pulse candidate list: the candidate
// arrival time, dispersion measure, width and signal-to-noise ratio.
type Candidate struct {
	MJD     float64
	DM      float64
	WidthMs float64
	SN      float64
}

// LoadSpccl locates the single candidate metadata file in dir (exactly
// one file with the given extension must exist) and parses its rows.
// Candidates are returned sorted by S/N, strongest first.
func LoadSpccl(dir, ext string) ([]Candidate, error) {
	if ext == "" {
		ext = ".spccl"
	}
	path, err := singleFile(dir, ext)
	if err != nil {
		return nil, err
	}

	cands, err := readCandidateRows(path, true)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("candidate list %s empty", path)
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].SN > cands[j].SN })
	return cands, nil
}

// LoadSpcclFile parses a candidate metadata file directly, tolerating
// an optional column-label row at the top.
func LoadSpcclFile(path string) ([]Candidate, error) {
	cands, err := readCandidateRows(path, false)
	if err != nil {
		// Retry assuming the first row holds column labels.
		cands, err = readCandidateRows(path, true)
		if err != nil {
			return nil, fmt.Errorf("file %s contains invalid types: %w", path, err)
		}
	}
	return cands, nil
}

// singleFile returns the only file in dir with the given extension.
func singleFile(dir, ext string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("no candidate directory specified")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("no such directory: %s", dir)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) != 1 {
		return "", fmt.Errorf("expected 1 file in %s with extension %s, found %d", dir, ext, len(files))
	}
	return files[0], nil
}

func readCandidateRows(path string, skipHeader bool) ([]Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cands []Candidate
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first && skipHeader {
			first = false
			continue
		}
		first = false

		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("row %q has %d columns, want 4", line, len(fields))
		}
		var vals [4]float64
		for i := 0; i < 4; i++ {
			vals[i], err = strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("row %q: %w", line, err)
			}
		}
		cands = append(cands, Candidate{MJD: vals[0], DM: vals[1], WidthMs: vals[2], SN: vals[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cands, nil
}

// ExpectedPulses derives the single pulses a search should recover from
// a test vector. The vector contains a periodic signal, so each rotation
// is one expected single pulse. Per-pulse S/N scales the folded S/N down
// by sqrt(P/T).
//
// rejectLast, when non-zero, is the dedispersion buffer length in
// samples: cheetah discards candidates in the final buffer, so pulses
// falling there are not expected.
func ExpectedPulses(h *fil.Header, sig fil.Signal, rejectLast int) []Candidate {
	period := sig.Period()
	snPerPulse := sig.SN * math.Sqrt(period/h.Duration())

	timestamps := pulseTimestamps(h, sig.Freq, sig.DM)

	if rejectLast > 0 {
		rejectWindow := float64(rejectLast) * h.TSamp() / 86400
		scanEnd := h.TStart() + h.Duration()/86400
		rejectAfter := scanEnd - rejectWindow

		var kept []float64
		for _, ts := range timestamps {
			if ts <= rejectAfter {
				kept = append(kept, ts)
			}
		}
		timestamps = kept
	}

	expected := make([]Candidate, 0, len(timestamps))
	for _, ts := range timestamps {
		expected = append(expected, Candidate{
			MJD:     ts,
			DM:      sig.DM,
			WidthMs: sig.WidthMs(),
			SN:      snPerPulse,
		})
	}

	sort.Slice(expected, func(i, j int) bool { return expected[i].SN > expected[j].SN })
	return expected
}

// pulseTimestamps lists the MJDs of the pulses in a vector. The vector
// generator places a fiducial pulse peak half a period after PEPOCH
// (the start of the observation), delayed by the dispersion sweep to
// the top of the band.
func pulseTimestamps(h *fil.Header, freq, dm float64) []float64 {
	startTime := h.TStart()
	endTime := startTime + h.Duration()/86400

	samplesPerPeriod := 1 / (freq * h.TSamp())
	fiducialSample := math.Trunc(samplesPerPeriod / 2)
	fiducialTime := fiducialSample*h.TSamp()/86400 + startTime

	dmOffset := 4.15e6 * math.Pow(h.Fch1(), -2) * dm / 1000 / 86400
	fiducialTime += dmOffset

	period := 1 / freq

	var timestamps []float64
	for n := 0; ; n++ {
		pulseTime := fiducialTime + float64(n)*period/86400
		if pulseTime > endTime {
			break
		}
		timestamps = append(timestamps, pulseTime)
	}
	for n := 1; ; n++ {
		pulseTime := fiducialTime - float64(n)*period/86400
		if pulseTime < startTime {
			break
		}
		timestamps = append(timestamps, pulseTime)
	}

	sort.Float64s(timestamps)
	return timestamps
}

// SpsResult splits the expected pulses into those matched by a
// candidate and those missed. For detections the matched candidate's
// parameters are recorded; for non-detections the expected pulse's.
type SpsResult struct {
	Detections    []Candidate
	NonDetections []Candidate
}

// AllDetected reports whether every expected pulse was recovered.
func (r SpsResult) AllDetected() bool { return len(r.NonDetections) == 0 }

// CompareWidthStep matches each expected pulse against the candidate
// list using the width-step ruleset: the allowed width range is set by
// the boxcar widths either side of the one nearest the intrinsic width.
// widths lists the boxcar matched-filter widths in bins.
func CompareWidthStep(expected, cands []Candidate, h *fil.Header, sig fil.Signal, widths []int) SpsResult {
	var res SpsResult
	for _, exp := range expected {
		tol := newWidthStepTol(exp, h, sig, widths)
		if cand, ok := matchWidthStep(exp, cands, tol); ok {
			res.Detections = append(res.Detections, cand)
		} else {
			res.NonDetections = append(res.NonDetections, exp)
		}
	}
	return res
}

func matchWidthStep(exp Candidate, cands []Candidate, tol widthStepTol) (Candidate, bool) {
	for _, cand := range cands {
		tsOK := exp.MJD-tol.timestampTol <= cand.MJD && cand.MJD <= exp.MJD+tol.timestampTol
		dmOK := exp.DM-tol.dmTol <= cand.DM && cand.DM <= exp.DM+tol.dmTol
		widthOK := tol.widthLow/1000 <= cand.WidthMs && cand.WidthMs <= tol.widthHigh/1000
		if tsOK && dmOK && widthOK {
			return cand, true
		}
	}
	return Candidate{}, false
}

// CompareDM matches each expected pulse against the candidate list
// using the DM ruleset: tolerances assume the only source of error is
// the signal being dedispersed at a slightly wrong DM. snThresh is the
// fraction of the injected S/N a detection must retain.
func CompareDM(expected, cands []Candidate, h *fil.Header, sig fil.Signal, snThresh float64) SpsResult {
	var res SpsResult
	for _, exp := range expected {
		tol := newDMTol(exp, h, sig, snThresh)
		if matchDM(exp, cands, tol) {
			res.Detections = append(res.Detections, exp)
		} else {
			res.NonDetections = append(res.NonDetections, exp)
		}
	}
	return res
}

func matchDM(exp Candidate, cands []Candidate, tol dmTol) bool {
	for _, cand := range cands {
		if cand.SN >= tol.minSN &&
			math.Abs(exp.DM-cand.DM) <= tol.dmTol &&
			math.Abs(exp.WidthMs-cand.WidthMs) <= tol.widthTol/1000 &&
			math.Abs(exp.MJD-cand.MJD) <= tol.timestampTol {
			return true
		}
	}
	return false
}
