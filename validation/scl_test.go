package validation

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ska-telescope/ska-pss-protest/fil"
)

func writeScl(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "candidates.scl"), []byte(content), 0o644))
}

const sclContent = "period\tpdot\tdm\tharmonic\twidth\tsn\n" +
	"10.001\t0.0\t370.2\t1\t0.5\t90.0\n" +
	"10.000\t0.0\t370.0\t1\t0.5\t180.0\n" +
	"33.000\t0.0\t12.0\t2\t0.1\t8.0\n"

func TestLoadScl(t *testing.T) {
	dir := t.TempDir()
	writeScl(t, dir, sclContent)

	cands, err := LoadScl(dir, "")
	require.NoError(t, err)
	require.Len(t, cands, 3)

	assert.Equal(t, 180.0, cands[0].SN)
	assert.Equal(t, 10.0, cands[0].PeriodMs)
	assert.Equal(t, 8.0, cands[2].SN)
}

func TestLoadSclErrors(t *testing.T) {
	_, err := LoadScl(t.TempDir(), "")
	require.ErrorContains(t, err, "expected 1 file")

	dir := t.TempDir()
	writeScl(t, dir, "period\tpdot\tdm\tharmonic\twidth\tsn\n")
	_, err = LoadScl(dir, "")
	require.ErrorContains(t, err, "empty")
}

func TestFdasExpectedFromVector(t *testing.T) {
	sig := fil.Signal{Freq: 100.0, Duty: 0.05, DM: 100.0, Accel: 50.0, SN: 200.0}
	exp := FdasExpectedFromVector(sig)

	assert.InDelta(t, 10.0, exp.PeriodMs, 1e-9)
	assert.InDelta(t, 0.5, exp.WidthMs, 1e-9)
	assert.Equal(t, 100.0, exp.DM)
	assert.InDelta(t, -50.0/(10.0*3e8), exp.Pdot, 1e-18)
	assert.Equal(t, 200.0, exp.SN)
}

func TestPsbcTime(t *testing.T) {
	// 600s at 64us sampling: the largest power-of-two buffer is 2^23
	// samples.
	got := psbcTime(600.0, 64e-6)
	assert.InDelta(t, math.Pow(2, 23)*64e-6, got, 1e-9)
}

func TestZLevels(t *testing.T) {
	lower, nearest, upper := zLevels(12.0, 5)
	assert.Equal(t, 10.0, nearest)
	assert.Equal(t, 5.0, lower)
	assert.Equal(t, 15.0, upper)
}

func fdasHeader() *fil.Header {
	nchans := int64(64)
	nspectra := int64(9375000) // 600s at 64us
	return &fil.Header{
		Ints: map[string]int32{"nchans": int32(nchans), "nbits": 8},
		Doubles: map[string]float64{
			"tstart": 60000.0,
			"tsamp":  64e-6,
			"fch1":   1670.0,
			"foff":   -0.078125,
		},
		FileSize: nchans * nspectra,
	}
}

func TestCompareFdasDummy(t *testing.T) {
	exp := FdasExpectedFromVector(fil.Signal{Freq: 100.0, Duty: 0.05, DM: 370.0, Accel: 0.0, SN: 180.0})
	cands := []FdasCandidate{
		{PeriodMs: 10.0, Pdot: 0.0, DM: 370.0, Harmonic: 1, Width: 0.5, SN: 180.0},
		{PeriodMs: 10.05, Pdot: 0.0, DM: 371.0, Harmonic: 1, Width: 0.5, SN: 160.0},
		{PeriodMs: 33.0, Pdot: 0.0, DM: 12.0, Harmonic: 2, Width: 0.1, SN: 8.0},
	}

	res, err := CompareFdas(exp, cands, FdasRulesetDummy, nil)
	require.NoError(t, err)

	assert.True(t, res.Detected)
	assert.Len(t, res.Survivors, 2)
	assert.Equal(t, 180.0, res.Best.SN)
}

func TestCompareFdasDummyNoDetection(t *testing.T) {
	exp := FdasExpectedFromVector(fil.Signal{Freq: 100.0, Duty: 0.05, DM: 370.0, SN: 180.0})
	cands := []FdasCandidate{
		{PeriodMs: 10.0, DM: 370.0, SN: 20.0}, // far below 85% of injected S/N
	}

	res, err := CompareFdas(exp, cands, FdasRulesetDummy, nil)
	require.NoError(t, err)
	assert.False(t, res.Detected)
	assert.Empty(t, res.Survivors)
}

func TestCompareFdasBasic(t *testing.T) {
	h := fdasHeader()
	exp := FdasExpectedFromVector(fil.Signal{Freq: 100.0, Duty: 0.05, DM: 370.0, Accel: 0.0, SN: 180.0})
	cands := []FdasCandidate{
		{PeriodMs: 10.0, Pdot: 0.0, DM: 370.0, Harmonic: 1, Width: 0.5, SN: 178.0},
	}

	res, err := CompareFdas(exp, cands, FdasRulesetBasic, h)
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, 178.0, res.Best.SN)
}

func TestCompareFdasBasicRejectsWrongDM(t *testing.T) {
	h := fdasHeader()
	exp := FdasExpectedFromVector(fil.Signal{Freq: 100.0, Duty: 0.05, DM: 370.0, SN: 180.0})
	cands := []FdasCandidate{
		{PeriodMs: 10.0, DM: 3700.0, SN: 180.0},
	}

	res, err := CompareFdas(exp, cands, FdasRulesetBasic, h)
	require.NoError(t, err)
	assert.False(t, res.Detected)
}

func TestCompareFdasInvalidRuleset(t *testing.T) {
	_, err := CompareFdas(FdasExpected{}, nil, "strict", nil)
	require.ErrorContains(t, err, "invalid tolerance set")
}
