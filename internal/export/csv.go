// Package export assembles guest data into the CSV download format.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"guestbookdash/internal/domain"
)

// Filename returns the download name for an event's guest export.
func Filename(eventID string) string {
	return fmt.Sprintf("guestbook-%s.csv", eventID)
}

// BuildCSV renders guests in insertion order as CSV with a header row.
// Used when assembling an export locally from cached guests; the
// backend's own export endpoint produces the same shape.
func BuildCSV(guests []domain.Guest) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"name", "gender", "registered_at"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, g := range guests {
		record := []string{g.Name, string(g.Gender), g.CreatedAt.UTC().Format(time.RFC3339)}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
