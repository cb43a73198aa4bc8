package validation

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ska-telescope/ska-pss-protest/fil"
)

// CandidateFiles lists the files in dir with the given extension,
// failing when none are found.
func CandidateFiles(dir, ext string) ([]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("no candidate directory specified")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("no such directory: %s", dir)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no candidates found in %s", dir)
	}
	return files, nil
}

// CheckHeaders verifies that an exported candidate filterbank carries
// the same observation parameters as the vector it was cut from.
func CheckHeaders(cand, truth *fil.Header) error {
	checks := []struct {
		name      string
		got, want float64
	}{
		{"fch1", cand.Fch1(), truth.Fch1()},
		{"foff", cand.FOff(), truth.FOff()},
		{"nchans", float64(cand.NChans()), float64(truth.NChans())},
		{"nbits", float64(cand.NBits()), float64(truth.NBits())},
		{"tsamp", cand.TSamp(), truth.TSamp()},
		{"tstart", cand.TStart(), truth.TStart()},
		{"nspectra", float64(cand.NSpectra()), float64(truth.NSpectra())},
		{"duration", cand.Duration(), truth.Duration()},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("candidate %s %s=%v differs from vector %s=%v",
				cand.Path, c.name, c.got, c.name, c.want)
		}
	}
	return nil
}

// CheckCandidateHeaders verifies that a candidate filterbank cut from
// the vector is consistent with it: equal observation parameters, with
// the cutout bounded by the vector in time.
func CheckCandidateHeaders(cand, truth *fil.Header) error {
	checks := []struct {
		name      string
		got, want float64
	}{
		{"fch1", cand.Fch1(), truth.Fch1()},
		{"foff", cand.FOff(), truth.FOff()},
		{"nchans", float64(cand.NChans()), float64(truth.NChans())},
		{"nbits", float64(cand.NBits()), float64(truth.NBits())},
		{"tsamp", cand.TSamp(), truth.TSamp()},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("candidate %s %s=%v differs from vector %s=%v",
				cand.Path, c.name, c.got, c.name, c.want)
		}
	}
	if cand.NSpectra() > truth.NSpectra() {
		return fmt.Errorf("candidate %s has more spectra (%d) than the vector (%d)",
			cand.Path, cand.NSpectra(), truth.NSpectra())
	}
	if cand.TStart() < truth.TStart() {
		return fmt.Errorf("candidate %s starts (%v) before the vector (%v)",
			cand.Path, cand.TStart(), truth.TStart())
	}
	if cand.Duration() > truth.Duration() {
		return fmt.Errorf("candidate %s is longer (%vs) than the vector (%vs)",
			cand.Path, cand.Duration(), truth.Duration())
	}
	return nil
}

// CompareData compares the data components of a candidate filterbank
// and the truth vector chunk by chunk. chunkSamples is the number of
// spectra read per chunk.
func CompareData(candPath, truthPath string, chunkSamples int) (bool, error) {
	if chunkSamples < 1 {
		return false, fmt.Errorf("chunk size less than minimum value (1)")
	}

	candHeader, err := fil.ReadHeader(candPath)
	if err != nil {
		return false, err
	}
	truthHeader, err := fil.ReadHeader(truthPath)
	if err != nil {
		return false, err
	}
	if candHeader.NChans() != truthHeader.NChans() {
		return false, fmt.Errorf("filterbanks have different numbers of channels: %d vs %d",
			candHeader.NChans(), truthHeader.NChans())
	}

	cand, err := os.Open(candPath)
	if err != nil {
		return false, err
	}
	defer cand.Close()
	truth, err := os.Open(truthPath)
	if err != nil {
		return false, err
	}
	defer truth.Close()

	if _, err := cand.Seek(candHeader.HeaderSize, io.SeekStart); err != nil {
		return false, err
	}
	if _, err := truth.Seek(truthHeader.HeaderSize, io.SeekStart); err != nil {
		return false, err
	}

	nbytes := chunkSamples * candHeader.NChans()
	candBuf := make([]byte, nbytes)
	truthBuf := make([]byte, nbytes)

	for {
		nc, errC := io.ReadFull(cand, candBuf)
		nt, errT := io.ReadFull(truth, truthBuf)

		if nc != nt {
			return false, nil
		}
		if !bytes.Equal(candBuf[:nc], truthBuf[:nt]) {
			return false, nil
		}
		if errT == io.EOF || errT == io.ErrUnexpectedEOF {
			return errC == errT, nil
		}
		if errC != nil {
			return false, errC
		}
		if errT != nil {
			return false, errT
		}
	}
}

// ReduceToHeader truncates a filterbank to its header, discarding the
// data component. Used to keep candidate files as artefacts without
// their bulk.
func ReduceToHeader(path string) error {
	h, err := fil.ReadHeader(path)
	if err != nil {
		return err
	}
	return os.Truncate(path, h.HeaderSize)
}
