package cheetah

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStdout = `[log][tid=140163381618496][spccl_sigproc_test.cpp:58][1664447398] Launching pipeline
noise from some other layer
[warn][tid=140163381618496][rfim.cpp:12][1664447399] RFI fraction high
[error][tid=140163381618497][ddtr.cpp:99][1664447400] buffer overrun
`

func TestParseLogs(t *testing.T) {
	records := ParseLogs(sampleStdout)
	require.Len(t, records, 3)

	assert.Equal(t, "log", records[0].Type)
	assert.Equal(t, "140163381618496", records[0].TID)
	assert.Equal(t, "spccl_sigproc_test.cpp:58", records[0].Src)
	assert.Equal(t, "1664447398", records[0].Time)
	assert.Equal(t, " Launching pipeline", records[0].Msg)

	assert.Equal(t, "error", records[2].Type)
}

func TestParseLogsStripsANSI(t *testing.T) {
	records := ParseLogs("\x1b[31m[error][tid=1][x.cpp:1][1] red alert\x1b[0m\n")
	require.Len(t, records, 1)
	assert.Equal(t, "error", records[0].Type)
}

func TestParseLogsEmpty(t *testing.T) {
	assert.Empty(t, ParseLogs(""))
	assert.Empty(t, ParseLogs("no structured lines here\n"))
}

func TestSearchLogs(t *testing.T) {
	records := ParseLogs(sampleStdout)
	assert.True(t, SearchLogs(records, "RFI fraction"))
	assert.False(t, SearchLogs(records, "not present"))
}

func TestLogErrors(t *testing.T) {
	records := ParseLogs(sampleStdout)
	errs := LogErrors(records)
	require.Len(t, errs, 1)
	assert.Equal(t, " buffer overrun", errs[0].Msg)

	assert.Empty(t, LogErrors(records[:2]))
}

func TestExportLogs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ExportLogs(dir, ParseLogs(sampleStdout)))

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)

	var records []LogRecord
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Len(t, records, 3)
}
