// Package fil reads SIGPROC filterbank headers. PSS test vectors are
// filterbank files whose names encode the parameters of the injected
// signal; this package parses both the binary header and the filename
// convention.
package fil

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SIGPROC keyword types. Keys not listed here abort the parse, as a
// truncated or corrupt header would otherwise be read as data.
var (
	intKeys = map[string]bool{
		"machine_id": true, "telescope_id": true, "data_type": true,
		"nchans": true, "nbits": true, "nifs": true, "scan_number": true,
		"barycentric": true, "pulsarcentric": true, "nbeams": true, "ibeam": true,
	}
	stringKeys = map[string]bool{"source_name": true, "rawdatafile": true}
	doubleKeys = map[string]bool{
		"tstart": true, "tsamp": true, "fch1": true, "foff": true, "refdm": true,
		"az_start": true, "za_start": true, "src_raj": true, "src_dej": true,
	}
	charKeys = map[string]bool{"signed": true}
)

// Header holds the parsed header of a filterbank file together with the
// on-disk geometry needed to derive the observation length.
type Header struct {
	Path string

	Ints    map[string]int32
	Doubles map[string]float64
	Strings map[string]string
	Chars   map[string]byte

	HeaderSize int64 // bytes consumed by the header
	FileSize   int64 // total size on disk
}

// ReadHeader parses the header of the filterbank file at path.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	h := &Header{
		Path:     path,
		Ints:     make(map[string]int32),
		Doubles:  make(map[string]float64),
		Strings:  make(map[string]string),
		Chars:    make(map[string]byte),
		FileSize: st.Size(),
	}

	key, err := readString(f)
	if err != nil {
		return nil, fmt.Errorf("reading filterbank header: %w", err)
	}
	if key != "HEADER_START" {
		return nil, fmt.Errorf("file %s is not a filterbank: first keyword %q", path, key)
	}

	for {
		key, err = readString(f)
		if err != nil {
			return nil, fmt.Errorf("reading filterbank header: %w", err)
		}
		if key == "HEADER_END" {
			break
		}
		switch {
		case stringKeys[key]:
			v, err := readString(f)
			if err != nil {
				return nil, fmt.Errorf("reading value for %q: %w", key, err)
			}
			h.Strings[key] = v
		case intKeys[key]:
			var v int32
			if err := binary.Read(f, binary.LittleEndian, &v); err != nil {
				return nil, fmt.Errorf("reading value for %q: %w", key, err)
			}
			h.Ints[key] = v
		case doubleKeys[key]:
			var v float64
			if err := binary.Read(f, binary.LittleEndian, &v); err != nil {
				return nil, fmt.Errorf("reading value for %q: %w", key, err)
			}
			h.Doubles[key] = v
		case charKeys[key]:
			var v [1]byte
			if _, err := io.ReadFull(f, v[:]); err != nil {
				return nil, fmt.Errorf("reading value for %q: %w", key, err)
			}
			h.Chars[key] = v[0]
		default:
			return nil, fmt.Errorf("cannot parse filterbank header, key %q not understood", key)
		}
	}

	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	h.HeaderSize = pos
	return h, nil
}

// readString reads a length-prefixed SIGPROC string.
func readString(r io.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n < 1 || n > 80 {
		return "", fmt.Errorf("nchar was %d when reading string", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// MachineID returns the identifier of the data taking system.
func (h *Header) MachineID() int32 { return h.Ints["machine_id"] }

// TelescopeID returns the code of the telescope that recorded the data.
func (h *Header) TelescopeID() int32 { return h.Ints["telescope_id"] }

// Fch1 returns the frequency of the first channel in MHz.
func (h *Header) Fch1() float64 { return h.Doubles["fch1"] }

// FOff returns the channel bandwidth in MHz (negative for descending bands).
func (h *Header) FOff() float64 { return h.Doubles["foff"] }

// NChans returns the number of frequency channels.
func (h *Header) NChans() int { return int(h.Ints["nchans"]) }

// NBits returns the number of bits per sample.
func (h *Header) NBits() int { return int(h.Ints["nbits"]) }

// SourceName returns the name of the source being observed.
func (h *Header) SourceName() string { return h.Strings["source_name"] }

// RAJ returns the source right ascension.
func (h *Header) RAJ() float64 { return h.Doubles["src_raj"] }

// DecJ returns the source declination.
func (h *Header) DecJ() float64 { return h.Doubles["src_dej"] }

// TStart returns the MJD of the first sample.
func (h *Header) TStart() float64 { return h.Doubles["tstart"] }

// TSamp returns the sample interval in seconds.
func (h *Header) TSamp() float64 { return h.Doubles["tsamp"] }

// DataSize returns the size in bytes of the data component.
func (h *Header) DataSize() int64 { return h.FileSize - h.HeaderSize }

// NSpectra returns the number of time samples per channel.
func (h *Header) NSpectra() int64 {
	if h.NChans() == 0 {
		return 0
	}
	return h.DataSize() / int64(h.NChans())
}

// Duration returns the length of the observation in seconds.
func (h *Header) Duration() float64 {
	if h.NChans() == 0 {
		return 0
	}
	return float64(h.DataSize()) / float64(h.NChans()) * h.TSamp()
}

// Signal holds the ground-truth parameters of the signal injected into a
// test vector, as encoded in its filename.
type Signal struct {
	Freq  float64 // spin frequency in Hz
	Duty  float64 // duty cycle (width as a fraction of the period)
	DM    float64 // dispersion measure in pc/cc
	Accel float64 // acceleration in m/s/s
	SN    float64 // folded signal-to-noise ratio
}

// Period returns the pulse period in seconds.
func (s Signal) Period() float64 { return 1.0 / s.Freq }

// WidthMs returns the intrinsic pulse width in milliseconds.
func (s Signal) WidthMs() float64 { return s.Duty * s.Period() * 1000 }

// ParseVectorName extracts the injected-signal parameters from a test
// vector filename. The convention is
//
//	TYPE_version_freq_duty_dm_accel_shape_sn_rfi_seed.fil
//
// Non-standard names return ok=false rather than an error: candidate
// filterbanks exported by cheetah reuse the header machinery but carry no
// ground truth in their names.
func ParseVectorName(path string) (Signal, bool) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	fields := strings.Split(base, "_")
	if len(fields) < 8 {
		return Signal{}, false
	}

	var (
		sig Signal
		err error
	)
	if sig.Freq, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return Signal{}, false
	}
	if sig.Duty, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return Signal{}, false
	}
	if sig.DM, err = strconv.ParseFloat(fields[4], 64); err != nil {
		return Signal{}, false
	}
	if sig.Accel, err = strconv.ParseFloat(fields[5], 64); err != nil {
		return Signal{}, false
	}
	if sig.SN, err = strconv.ParseFloat(fields[7], 64); err != nil {
		return Signal{}, false
	}
	return sig, true
}

// VectorType returns the leading type field of a test vector filename,
// e.g. "SPS-MID". It is used to build the remote URL of a vector.
func VectorType(name string) string {
	fields := strings.Split(filepath.Base(name), "_")
	return fields[0]
}
