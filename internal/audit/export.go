package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

var csvHeader = []string{"timestamp", "user_id", "role", "operation", "resource", "method", "url", "ip", "status", "user_agent"}

// WriteCSV renders records as CSV with a header row.
func WriteCSV(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{
			r.At.UTC().Format(time.RFC3339),
			r.UserID,
			r.Role,
			r.Operation,
			r.Resource,
			r.Method,
			r.URL,
			r.IP,
			strconv.Itoa(r.Status),
			r.UserAgent,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
