// Package ingest defines the contract for receipt sources and the CSV
// plumbing they share.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dvloznov/ynab-itemized/internal/domain"
)

// DefaultSupportedDateRangeDays is how far back a source is assumed to
// reach when it does not say otherwise.
const DefaultSupportedDateRangeDays = 90

// Integration types.
const (
	TypeAPI       = "api"
	TypeCSV       = "csv"
	TypeOCR       = "ocr"
	TypeScraper   = "scraper"
	TypeExtension = "extension"
)

// Integration turns a store's raw export into itemized transactions.
type Integration interface {
	StoreName() string
	IntegrationType() string
	SupportedDateRangeDays() int
	Parse(ctx context.Context, r io.Reader) ([]*domain.ItemizedTransaction, error)
}

// FormatError reports malformed source data. OrderID, Field and Value
// identify the offending record when known.
type FormatError struct {
	OrderID string
	Title   string
	Field   string
	Value   string
	Msg     string
	Err     error // underlying cause, if any
}

func (e *FormatError) Error() string {
	return e.Msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Row is one CSV record keyed by header name.
type Row map[string]string

// Get returns the trimmed value of column, "" when absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// ReadRows reads a headed CSV document. An empty document yields a nil
// header and no rows.
func ReadRows(r io.Reader) ([]string, []Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, &FormatError{Msg: fmt.Sprintf("Invalid CSV header: %v", err)}
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = h
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &FormatError{Msg: fmt.Sprintf("Invalid CSV row: %v", err)}
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// RequireColumns returns a FormatError naming every required column that is
// missing from header.
func RequireColumns(header, required []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &FormatError{
		Field: strings.Join(missing, ", "),
		Msg:   "Missing required columns: " + strings.Join(missing, ", "),
	}
}

// Group is a run of rows sharing the same key.
type Group struct {
	Key  string
	Rows []Row
}

// GroupRows partitions rows by the trimmed value of column, keeping groups
// in first-seen order and rows in input order. Rows with an empty key are
// dropped.
func GroupRows(rows []Row, column string) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, row := range rows {
		key := row.Get(column)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Rows = append(groups[i].Rows, row)
	}
	return groups
}
