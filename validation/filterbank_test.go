package validation

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ska-telescope/ska-pss-protest/fil"
)

// writeFil builds a small 8-bit filterbank file with the given data
// payload.
func writeFil(t *testing.T, dir, name string, nchans int32, tsamp float64, data []byte) string {
	t.Helper()

	var buf bytes.Buffer
	put := func(s string) {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(len(s))))
		buf.WriteString(s)
	}
	putInt := func(key string, v int32) {
		put(key)
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	putDouble := func(key string, v float64) {
		put(key)
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}

	put("HEADER_START")
	putInt("telescope_id", 10)
	putDouble("fch1", 1670.0)
	putDouble("foff", -0.078125)
	putInt("nchans", nchans)
	putInt("nbits", 8)
	putDouble("tstart", 60000.0)
	putDouble("tsamp", tsamp)
	put("HEADER_END")
	buf.Write(data)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func filData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestCandidateFiles(t *testing.T) {
	dir := t.TempDir()
	writeFil(t, dir, "cand1.fil", 16, 64e-6, filData(16*4))
	writeFil(t, dir, "cand2.fil", 16, 64e-6, filData(16*4))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	files, err := CandidateFiles(dir, ".fil")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = CandidateFiles(t.TempDir(), ".fil")
	require.ErrorContains(t, err, "no candidates found")
}

func TestCheckHeaders(t *testing.T) {
	dir := t.TempDir()
	data := filData(16 * 100)
	truthPath := writeFil(t, dir, "truth.fil", 16, 64e-6, data)
	candPath := writeFil(t, dir, "cand.fil", 16, 64e-6, data)
	differentPath := writeFil(t, dir, "other.fil", 32, 64e-6, filData(32*100))

	truth, err := fil.ReadHeader(truthPath)
	require.NoError(t, err)
	cand, err := fil.ReadHeader(candPath)
	require.NoError(t, err)
	different, err := fil.ReadHeader(differentPath)
	require.NoError(t, err)

	assert.NoError(t, CheckHeaders(cand, truth))

	err = CheckHeaders(different, truth)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nchans")
}

func TestCheckCandidateHeaders(t *testing.T) {
	dir := t.TempDir()
	truthPath := writeFil(t, dir, "truth.fil", 16, 64e-6, filData(16*100))
	cutoutPath := writeFil(t, dir, "cutout.fil", 16, 64e-6, filData(16*40))
	longerPath := writeFil(t, dir, "longer.fil", 16, 64e-6, filData(16*150))
	otherBandPath := writeFil(t, dir, "other.fil", 32, 64e-6, filData(32*40))

	truth, err := fil.ReadHeader(truthPath)
	require.NoError(t, err)
	cutout, err := fil.ReadHeader(cutoutPath)
	require.NoError(t, err)
	longer, err := fil.ReadHeader(longerPath)
	require.NoError(t, err)
	otherBand, err := fil.ReadHeader(otherBandPath)
	require.NoError(t, err)

	// A shorter cutout of the same observation is consistent.
	assert.NoError(t, CheckCandidateHeaders(cutout, truth))

	err = CheckCandidateHeaders(longer, truth)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more spectra")

	err = CheckCandidateHeaders(otherBand, truth)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nchans")
}

func TestCompareDataIdentical(t *testing.T) {
	dir := t.TempDir()
	data := filData(16 * 1000)
	truth := writeFil(t, dir, "truth.fil", 16, 64e-6, data)
	cand := writeFil(t, dir, "cand.fil", 16, 64e-6, data)

	same, err := CompareData(cand, truth, 64)
	require.NoError(t, err)
	assert.True(t, same)
}

func TestCompareDataDiffers(t *testing.T) {
	dir := t.TempDir()
	data := filData(16 * 1000)
	truth := writeFil(t, dir, "truth.fil", 16, 64e-6, data)

	corrupted := make([]byte, len(data))
	copy(corrupted, data)
	corrupted[len(corrupted)/2] ^= 0xff
	cand := writeFil(t, dir, "cand.fil", 16, 64e-6, corrupted)

	same, err := CompareData(cand, truth, 64)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestCompareDataDifferentLengths(t *testing.T) {
	dir := t.TempDir()
	data := filData(16 * 1000)
	truth := writeFil(t, dir, "truth.fil", 16, 64e-6, data)
	cand := writeFil(t, dir, "cand.fil", 16, 64e-6, data[:16*900])

	same, err := CompareData(cand, truth, 64)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestCompareDataChannelMismatch(t *testing.T) {
	dir := t.TempDir()
	truth := writeFil(t, dir, "truth.fil", 16, 64e-6, filData(16*10))
	cand := writeFil(t, dir, "cand.fil", 32, 64e-6, filData(32*10))

	_, err := CompareData(cand, truth, 64)
	require.ErrorContains(t, err, "different numbers of channels")

	_, err = CompareData(cand, truth, 0)
	require.ErrorContains(t, err, "chunk size")
}

func TestReduceToHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeFil(t, dir, "cand.fil", 16, 64e-6, filData(16*1000))

	require.NoError(t, ReduceToHeader(path))

	h, err := fil.ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.DataSize())
	assert.Equal(t, 16, h.NChans())
}
