package alumnicsv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gocarina/gocsv"

	"github.com/cuongbtq/alumni-core/internal/profile"
	"github.com/cuongbtq/alumni-core/internal/validation"
)

// ErrEmptyFile is returned for uploads without a header row
var ErrEmptyFile = errors.New("csv file is empty")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RowError reports why one data row was skipped. Row counts from 2, the
// first line after the header.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult summarises an import run.
type ImportResult struct {
	Total   int        `json:"total"`
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Errors  []RowError `json:"errors"`
}

// Importer validates CSV rows and upserts them as profiles.
type Importer struct {
	repo     profile.Repository
	validate *validator.Validate
	logger   *slog.Logger
}

// NewImporter creates a new Importer instance. The validator must have the
// tags from the validation package registered.
func NewImporter(repo profile.Repository, validate *validator.Validate, logger *slog.Logger) *Importer {
	return &Importer{repo: repo, validate: validate, logger: logger}
}

// Import reads the whole file. Bad rows are reported and skipped. Storage
// failures abort the run.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	parseErrs := map[int]string{}
	var records []Record
	err = gocsv.UnmarshalWithErrorHandler(bytes.NewReader(data), func(pe *csv.ParseError) bool {
		if _, seen := parseErrs[pe.Line]; !seen {
			parseErrs[pe.Line] = fmt.Sprintf("column %d: %v", pe.Column, pe.Err)
		}
		return true
	}, &records)
	if err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("invalid csv: %w", err)
	}

	res := &ImportResult{Total: len(records), Errors: []RowError{}}
	for idx := range records {
		row := idx + 2
		if msg, bad := parseErrs[row]; bad {
			res.Errors = append(res.Errors, RowError{Row: row, Message: msg})
			continue
		}

		rec := records[idx]
		rec.normalize()
		if err := i.validate.Struct(rec); err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Message: validation.Message(err)})
			continue
		}

		created, err := i.repo.UpsertImported(ctx, rec.ToProfile())
		if err != nil {
			i.logger.ErrorContext(ctx, "Failed to import alumni row",
				slog.Int("row", row),
				slog.String("registration_id", rec.RegistrationNumber),
				slog.String("error", err.Error()),
			)
			return res, fmt.Errorf("failed to import row %d: %w", row, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	i.logger.InfoContext(ctx, "Alumni CSV imported",
		slog.Int("total", res.Total),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("rejected", len(res.Errors)),
	)
	return res, nil
}
