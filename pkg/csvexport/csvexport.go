// Package csvexport writes ledger and lot rows as RFC 4180 CSV.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Write writes header followed by rows. Fields containing commas,
// quotes or line breaks are quoted; CRLF line endings are used.
func Write(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, row := range rows {
		if len(row) != len(header) {
			return fmt.Errorf("csv row %d has %d fields, want %d", i, len(row), len(header))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
