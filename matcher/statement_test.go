package matcher

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStatement(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  TargetStatement
	}{
		{"blank lines interspersed", "Hello world.\n\n  \nIt is sunny today.", "Hello world. It is sunny today."},
		{"crlf and indentation", "  First line \r\n\tSecond line\r\n", "First line Second line"},
		{"carriage returns only", "Hello world.\r\r  \rIt is sunny today.\r", "Hello world. It is sunny today."},
		{"mixed line endings", "one\rtwo\r\nthree\nfour", "one two three four"},
		{"keeps casing and inner spacing", "MiXeD  case  words", "MiXeD  case  words"},
		{"empty", "", ""},
		{"only whitespace", "\n \n\t\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadStatement(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadStatementLongLine(t *testing.T) {
	long := strings.Repeat("word ", 40000)
	got, err := ReadStatement(strings.NewReader(long + "\nend"))
	require.NoError(t, err)
	assert.Equal(t, TargetStatement(strings.TrimSpace(long)+" end"), got)
}

func TestAssembleStatement(t *testing.T) {
	path := writeFile(t, "statement.txt", "Dogs are known\nfor their loyalty.\n")
	got, err := AssembleStatement(path)
	require.NoError(t, err)
	assert.Equal(t, TargetStatement("Dogs are known for their loyalty."), got)

	_, err = AssembleStatement(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
