package validation

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ocldHeaderSize is the fixed size of each OCLD header block.
const ocldHeaderSize = 512

// Ocld holds the metadata of an optimised candidate list data (OCLD)
// file: folded candidate cubes written by the FLDO module. The file is
// a sequence of candidates, each a 512-byte header of comma-separated
// KEY:VALUE pairs followed by an nsubint x nsubband x nphase float32
// cube.
type Ocld struct {
	NSubints  int
	NSubbands int
	NPhase    int

	// Candidates holds the per-candidate header fields with the cube
	// geometry keys stripped.
	Candidates []map[string]string
}

// CubeBytes returns the size of one candidate's data cube.
func (o *Ocld) CubeBytes() int {
	return o.NSubints * o.NSubbands * o.NPhase * 4
}

// ReadOcld parses the candidate headers of an OCLD file.
func ReadOcld(path string) (*Ocld, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	first := make([]byte, ocldHeaderSize)
	if _, err := io.ReadFull(f, first); err != nil {
		return nil, fmt.Errorf("reading OCLD header: %w", err)
	}

	fields, err := parseOcldHeader(first)
	if err != nil {
		return nil, err
	}

	o := &Ocld{}
	count, err := ocldIntField(fields, "COUNT")
	if err != nil {
		return nil, err
	}
	if o.NSubints, err = ocldIntField(fields, "NSUBINT"); err != nil {
		return nil, err
	}
	if o.NSubbands, err = ocldIntField(fields, "NSUBBAND"); err != nil {
		return nil, err
	}
	if o.NPhase, err = ocldIntField(fields, "NPHASE"); err != nil {
		return nil, err
	}

	block := make([]byte, ocldHeaderSize)
	for cand := 0; cand < count; cand++ {
		offset := int64((o.CubeBytes() + ocldHeaderSize) * cand)
		if _, err := f.Seek(offset, 0); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(f, block); err != nil {
			return nil, fmt.Errorf("reading header of candidate %d: %w", cand, err)
		}

		meta, err := parseOcldHeader(block)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", cand, err)
		}
		delete(meta, "COUNT")
		delete(meta, "NSUBINT")
		delete(meta, "NSUBBAND")
		delete(meta, "NPHASE")
		o.Candidates = append(o.Candidates, meta)
	}

	return o, nil
}

// parseOcldHeader splits a zero-padded header block of comma-separated
// KEY:VALUE pairs into a map.
func parseOcldHeader(block []byte) (map[string]string, error) {
	block = bytes.ReplaceAll(block, []byte{0}, nil)
	fields := make(map[string]string)
	for _, pair := range bytes.Split(block, []byte{','}) {
		kv := bytes.SplitN(pair, []byte{':'}, 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed OCLD header field %q", pair)
		}
		fields[string(kv[0])] = string(kv[1])
	}
	return fields, nil
}

func ocldIntField(fields map[string]string, key string) (int, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("OCLD header missing %s", key)
	}
	// Values are written as floats.
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("OCLD header %s=%q: %w", key, v, err)
	}
	return int(parsed), nil
}
