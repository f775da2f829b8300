package server

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRLFReader(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":                  "",
		"plain":             "plain",
		"a\nb\n":            "a\r\nb\r\n",
		"already\r\nok\r\n": "already\r\nok\r\n",
		"\n\n":              "\r\n\r\n",
		"lone\rcr":          "lone\rcr",
	}
	for in, want := range tests {
		got, err := io.ReadAll(newCRLFReader(strings.NewReader(in)))
		require.NoError(t, err)
		assert.Equal(t, want, string(got), "%q", in)

		// One byte at a time exercises the pending LF path.
		got, err = io.ReadAll(iotest.OneByteReader(newCRLFReader(strings.NewReader(in))))
		require.NoError(t, err)
		assert.Equal(t, want, string(got), "%q one byte", in)
	}
}

func TestLFReader(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":              "",
		"plain":         "plain",
		"a\r\nb\r\n":    "a\nb\n",
		"unix\nstays\n": "unix\nstays\n",
		"lone\rcr":      "lone\rcr",
		"trailing\r":    "trailing\r",
		"\r\r\n":        "\r\n",
	}
	for in, want := range tests {
		got, err := io.ReadAll(newLFReader(strings.NewReader(in)))
		require.NoError(t, err)
		assert.Equal(t, want, string(got), "%q", in)

		got, err = io.ReadAll(iotest.OneByteReader(newLFReader(strings.NewReader(in))))
		require.NoError(t, err)
		assert.Equal(t, want, string(got), "%q one byte", in)
	}
}
