package store

import (
	"path/filepath"
	"strings"
	"time"
)

// ExportName is the attachment name of a table exported at t.
func ExportName(table string, t time.Time) string {
	return table + "_" + t.Format("20060102_150405") + ".json"
}

// InferTable guesses the table an uploaded file belongs to from its name.
// Longer table names are tried first.
func InferTable(fileName string) (string, bool) {
	base := strings.ToLower(filepath.Base(fileName))
	best := ""
	for _, t := range Tables {
		if strings.Contains(base, t) && len(t) > len(best) {
			best = t
		}
	}
	return best, best != ""
}

// Dump returns the raw bytes of every table in export order.
func Dump(s *Store) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Tables))
	for _, t := range Tables {
		b, err := s.Raw(t)
		if err != nil {
			return nil, err
		}
		out[t] = b
	}
	return out, nil
}
