package validation

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeOcld builds an OCLD file with the given candidate headers. Each
// header block is 512 bytes of comma-separated KEY:VALUE pairs padded
// with NUL, followed by the float32 data cube.
func writeOcld(t *testing.T, headers []string, cubeBytes int) string {
	t.Helper()

	var buf bytes.Buffer
	for _, h := range headers {
		block := make([]byte, ocldHeaderSize)
		copy(block, h)
		buf.Write(block)
		buf.Write(make([]byte, cubeBytes))
	}

	path := filepath.Join(t.TempDir(), "candidates.ocld")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestReadOcld(t *testing.T) {
	geometry := "COUNT:2.0,NSUBINT:4.0,NSUBBAND:8.0,NPHASE:16.0"
	cubeBytes := 4 * 8 * 16 * 4

	path := writeOcld(t, []string{
		geometry + ",PERIOD:0.0105,DM:370.0,SN:55.5",
		geometry + ",PERIOD:0.0210,DM:12.0,SN:9.1",
	}, cubeBytes)

	o, err := ReadOcld(path)
	require.NoError(t, err)

	assert.Equal(t, 4, o.NSubints)
	assert.Equal(t, 8, o.NSubbands)
	assert.Equal(t, 16, o.NPhase)
	assert.Equal(t, cubeBytes, o.CubeBytes())

	require.Len(t, o.Candidates, 2)
	assert.Equal(t, "0.0105", o.Candidates[0]["PERIOD"])
	assert.Equal(t, "370.0", o.Candidates[0]["DM"])
	assert.Equal(t, "9.1", o.Candidates[1]["SN"])

	// Geometry keys are stripped from per-candidate metadata.
	assert.NotContains(t, o.Candidates[0], "COUNT")
	assert.NotContains(t, o.Candidates[0], "NSUBINT")
}

func TestReadOcldMissingGeometry(t *testing.T) {
	path := writeOcld(t, []string{"COUNT:1.0,NSUBINT:4.0,PERIOD:0.01"}, 64)

	_, err := ReadOcld(path)
	require.ErrorContains(t, err, "NSUBBAND")
}

func TestReadOcldMissingFile(t *testing.T) {
	_, err := ReadOcld("/does/not/exist.ocld")
	require.Error(t, err)
}

func TestReadOcldTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.ocld")
	require.NoError(t, os.WriteFile(path, []byte("COUNT:1.0"), 0o644))

	_, err := ReadOcld(path)
	require.Error(t, err)
}
