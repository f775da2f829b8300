package ftp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line string
		want *Entry
	}{
		{"FILE\t42\ta.txt\r\n", &Entry{Name: "a.txt", Type: EntryTypeFile, Size: 42}},
		{"DIR\t4096\tb", &Entry{Name: "b", Type: EntryTypeDir, Size: 4096}},
		{"FILE\t0\tempty", &Entry{Name: "empty", Type: EntryTypeFile, Size: 0}},
		{"FILE\t7\tname with spaces.txt", &Entry{Name: "name with spaces.txt", Type: EntryTypeFile, Size: 7}},
		{"FILE\t7\ttab\tinside", &Entry{Name: "tab\tinside", Type: EntryTypeFile, Size: 7}},
	}

	for _, tt := range tests {
		got, err := ParseListLine(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseListLine_Invalid(t *testing.T) {
	t.Parallel()
	for _, line := range []string{
		"",
		"FILE",
		"FILE\t42",
		"FILE\t42\t",
		"FILE\tbig\ta.txt",
		"FILE\t-1\ta.txt",
		"LINK\t1\ta",
		"-rw-r--r-- 1 owner group 42 Jan 01 00:00 a.txt",
	} {
		_, err := ParseListLine(line)
		assert.ErrorIs(t, err, ErrInvalidListLine, "%q", line)
	}
}

func TestEntry_IsDir(t *testing.T) {
	t.Parallel()
	assert.True(t, (&Entry{Type: EntryTypeDir}).IsDir())
	assert.False(t, (&Entry{Type: EntryTypeFile}).IsDir())
}

func TestParseQuotedPath(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		`"/" is the current directory.`:     "/",
		`"/a/b" created.`:                   "/a/b",
		`"/x\"y" is the current directory.`: `/x"y`,
	}
	for msg, want := range tests {
		got, err := parseQuotedPath(msg)
		require.NoError(t, err, msg)
		assert.Equal(t, want, got)
	}

	_, err := parseQuotedPath("no quotes")
	assert.Error(t, err)
	_, err = parseQuotedPath(`"unterminated`)
	assert.Error(t, err)
}
