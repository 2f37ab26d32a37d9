package matcher

import "strings"

// Canonical header names of the reference file.
const (
	ColumnItem      = "ITEM"
	ColumnCode      = "CODE"
	ColumnStatement = "STATEMENT"
	ColumnValue     = "VALUE"
)

// DefaultColumnNames returns the built-in header names.
func DefaultColumnNames() ColumnNames {
	return ColumnNames{
		Item:      ColumnItem,
		Code:      ColumnCode,
		Statement: ColumnStatement,
		Value:     ColumnValue,
	}
}

// withDefaults fills empty names with the canonical header, letting callers
// override only the columns they need.
func (c ColumnNames) withDefaults() ColumnNames {
	defaults := DefaultColumnNames()
	return ColumnNames{
		Item:      pickName(c.Item, defaults.Item),
		Code:      pickName(c.Code, defaults.Code),
		Statement: pickName(c.Statement, defaults.Statement),
		Value:     pickName(c.Value, defaults.Value),
	}
}

func pickName(custom, fallback string) string {
	if strings.TrimSpace(custom) == "" {
		return fallback
	}
	return strings.TrimSpace(custom)
}

type resolvedColumns struct {
	Item      int
	Code      int
	Statement int
	Value     int
}

// maxIndex returns the highest column position a row must reach.
func (r resolvedColumns) maxIndex() int {
	m := r.Item
	for _, idx := range []int{r.Code, r.Statement, r.Value} {
		if idx > m {
			m = idx
		}
	}
	return m
}

func resolveColumns(header []string, names ColumnNames) (resolvedColumns, error) {
	names = names.withDefaults()
	res := resolvedColumns{}
	for _, col := range []struct {
		name string
		dst  *int
	}{
		{names.Item, &res.Item},
		{names.Code, &res.Code},
		{names.Statement, &res.Statement},
		{names.Value, &res.Value},
	} {
		idx := findColumn(header, col.name)
		if idx < 0 {
			return res, &FormatError{Column: col.name}
		}
		*col.dst = idx
	}
	return res, nil
}

func findColumn(header []string, name string) int {
	for i, col := range header {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}

func cleanCell(v string) string {
	v = strings.TrimPrefix(v, "\ufeff")
	v = strings.TrimSpace(v)
	return v
}
