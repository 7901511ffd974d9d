package alumnicsv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/cuongbtq/alumni-core/internal/profile"
)

// ErrNoRows is returned when there are no profiles to export
var ErrNoRows = errors.New("no alumni data found")

// ContentType is the export's HTTP content type.
const ContentType = "text/csv; charset=utf-8"

// FileName is the export's download name for the given day.
func FileName(now time.Time) string {
	return "alumni-export-" + now.UTC().Format(time.DateOnly) + ".csv"
}

// Export writes every profile as CSV, ordered by registration id, and
// returns the number of rows written.
func Export(ctx context.Context, repo profile.Repository, w io.Writer) (int, error) {
	profiles, err := profile.ListAll(ctx, repo)
	if err != nil {
		return 0, fmt.Errorf("failed to load profiles: %w", err)
	}
	if len(profiles) == 0 {
		return 0, ErrNoRows
	}

	records := make([]Record, 0, len(profiles))
	for i := range profiles {
		records = append(records, FromProfile(&profiles[i]))
	}

	if err := gocsv.Marshal(records, w); err != nil {
		return 0, fmt.Errorf("failed to write csv: %w", err)
	}
	return len(records), nil
}
