package cheetah

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/acarl005/stripansi"
)

// LogFileName is the name of the log export written into a scenario's
// output directory.
const LogFileName = "cheetah_logs.json"

// LogRecord is one parsed line of cheetah stdout. Cheetah writes lines
// of the form
//
//	[level][tid=N][source.cpp:42][1700000000] message
type LogRecord struct {
	Type string `json:"type"`
	TID  string `json:"tid"`
	Src  string `json:"src"`
	Time string `json:"time"`
	Msg  string `json:"msg"`
}

var logMeta = regexp.MustCompile(`\[(.+?)\]`)

// ParseLogs converts raw cheetah stdout into log records. Lines that do
// not carry the bracketed metadata prefix are dropped.
func ParseLogs(stdout string) []LogRecord {
	var records []LogRecord
	for _, line := range strings.Split(stdout, "\n") {
		line = stripansi.Strip(line)
		if !strings.HasPrefix(line, "[") {
			continue
		}
		meta := logMeta.FindAllStringSubmatch(line, 4)
		if len(meta) < 4 {
			continue
		}
		records = append(records, LogRecord{
			Type: meta[0][1],
			TID:  strings.TrimPrefix(meta[1][1], "tid="),
			Src:  meta[2][1],
			Time: meta[3][1],
			Msg:  line[strings.LastIndex(line, "]")+1:],
		})
	}
	return records
}

// SearchLogs reports whether any log message contains the given string.
func SearchLogs(records []LogRecord, item string) bool {
	for _, r := range records {
		if strings.Contains(r.Msg, item) {
			return true
		}
	}
	return false
}

// LogErrors returns the records of type "error".
func LogErrors(records []LogRecord) []LogRecord {
	var errs []LogRecord
	for _, r := range records {
		if r.Type == "error" {
			errs = append(errs, r)
		}
	}
	return errs
}

// ExportLogs writes the records as JSON into dir under LogFileName.
func ExportLogs(dir string, records []LogRecord) error {
	if records == nil {
		records = []LogRecord{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, LogFileName), data, 0o644)
}
