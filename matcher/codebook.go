package matcher

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// ReferenceTable maps each item to its candidate records. Items keep the order of
// their first appearance and candidates keep input order within their item.
type ReferenceTable struct {
	order  []string
	groups map[string][]CandidateRecord
}

// NewReferenceTable groups the given records by item.
func NewReferenceTable(records []CandidateRecord) *ReferenceTable {
	t := newReferenceTable()
	for _, rec := range records {
		t.add(rec)
	}
	return t
}

func newReferenceTable() *ReferenceTable {
	return &ReferenceTable{groups: make(map[string][]CandidateRecord)}
}

func (t *ReferenceTable) add(rec CandidateRecord) {
	if _, ok := t.groups[rec.Item]; !ok {
		t.order = append(t.order, rec.Item)
	}
	t.groups[rec.Item] = append(t.groups[rec.Item], rec)
}

// Items returns the item identifiers in first-occurrence order.
func (t *ReferenceTable) Items() []string {
	return cloneStrings(t.order)
}

// Len returns the number of distinct items.
func (t *ReferenceTable) Len() int {
	return len(t.order)
}

// Rows returns the total number of candidate records.
func (t *ReferenceTable) Rows() int {
	n := 0
	for _, recs := range t.groups {
		n += len(recs)
	}
	return n
}

// Candidates returns a copy of the records for item.
func (t *ReferenceTable) Candidates(item string) []CandidateRecord {
	recs := t.groups[item]
	out := make([]CandidateRecord, len(recs))
	copy(out, recs)
	return out
}

// Statements returns the candidate statements for item in input order.
func (t *ReferenceTable) Statements(item string) []string {
	recs := t.groups[item]
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = rec.Statement
	}
	return out
}

// LoadOptions controls how the reference file is read.
type LoadOptions struct {
	Columns ColumnNames
	// SkipMalformed logs and drops malformed rows instead of failing the load.
	SkipMalformed bool
	Logger        *slog.Logger
}

var recordValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadReferenceTable reads the reference CSV at path.
func LoadReferenceTable(path string, opts LoadOptions) (*ReferenceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound("reference", path, err)
		}
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	table, err := ReadReferenceTable(f, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return table, nil
}

// ReadReferenceTable parses reference rows from r. The first record must be the header.
func ReadReferenceTable(r io.Reader, opts LoadOptions) (*ReferenceTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	// Statements often quote words inline (I "strongly" agree); keep those quotes as text.
	reader.LazyQuotes = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &FormatError{Err: errors.New("missing header row")}
		}
		return nil, &FormatError{Line: 1, Err: err}
	}
	for i, cell := range header {
		header[i] = cleanCell(cell)
	}
	cols, err := resolveColumns(header, opts.Columns)
	if err != nil {
		return nil, err
	}
	need := cols.maxIndex() + 1

	table := newReferenceTable()
	for rowNum := 1; ; rowNum++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, fmt.Errorf("read row %d: %w", rowNum, err)
			}
			ferr := &FormatError{Row: rowNum, Line: parseErr.StartLine, Err: parseErr.Err}
			if opts.SkipMalformed {
				skipRow(opts.Logger, ferr)
				continue
			}
			return nil, ferr
		}
		line, _ := reader.FieldPos(0)
		if len(row) < need {
			ferr := &FormatError{
				Row:  rowNum,
				Line: line,
				Err:  fmt.Errorf("expected at least %d fields, got %d", need, len(row)),
			}
			if opts.SkipMalformed {
				skipRow(opts.Logger, ferr)
				continue
			}
			return nil, ferr
		}
		rec := CandidateRecord{
			Item:      cleanCell(row[cols.Item]),
			Code:      cleanCell(row[cols.Code]),
			Statement: cleanCell(row[cols.Statement]),
			Value:     cleanCell(row[cols.Value]),
		}
		if ferr := validateRecord(rec, opts.Columns.withDefaults()); ferr != nil {
			ferr.Row, ferr.Line = rowNum, line
			if opts.SkipMalformed {
				skipRow(opts.Logger, ferr)
				continue
			}
			return nil, ferr
		}
		table.add(rec)
	}
	return table, nil
}

// validateRecord checks required fields and reports the first missing one by header name.
func validateRecord(rec CandidateRecord, names ColumnNames) *FormatError {
	err := recordValidator.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &FormatError{Err: err}
	}
	column := verrs[0].Field()
	switch column {
	case "Item":
		column = names.Item
	case "Statement":
		column = names.Statement
	}
	return &FormatError{Column: column, Err: errors.New("empty value")}
}

func skipRow(logger *slog.Logger, err *FormatError) {
	if logger == nil {
		return
	}
	logger.Warn("skipping malformed reference row", "row", err.Row, "line", err.Line, "error", err.Error())
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
