package ftp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePASV(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{"standard", "Entering Passive Mode (192,168,1,1,195,149).", "192.168.1.1:50069", false},
		{"no text", "(127,0,0,1,4,1)", "127.0.0.1:1025", false},
		{"unspecified host", "Entering Passive Mode (0,0,0,0,200,10).", "0.0.0.0:51210", false},
		{"octet out of range", "Entering Passive Mode (256,0,0,1,4,1).", "", true},
		{"port part out of range", "Entering Passive Mode (127,0,0,1,300,1).", "", true},
		{"missing parens", "Entering Passive Mode 127,0,0,1,4,1", "", true},
		{"too few fields", "Entering Passive Mode (127,0,0,1,4).", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parsePASV(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatPORT(t *testing.T) {
	t.Parallel()
	got, err := formatPORT("192.168.1.100:50000")
	require.NoError(t, err)
	assert.Equal(t, "192,168,1,100,195,80", got)

	_, err = formatPORT("[::1]:50000")
	assert.Error(t, err, "PORT cannot carry IPv6")

	_, err = formatPORT("not-an-ip:21")
	assert.Error(t, err)
}

func TestResolveDataAddr(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "10.0.0.5:2000", resolveDataAddr("0.0.0.0:2000", "10.0.0.5"))
	assert.Equal(t, "192.168.1.1:2000", resolveDataAddr("192.168.1.1:2000", "10.0.0.5"))
	assert.Equal(t, "garbage", resolveDataAddr("garbage", "10.0.0.5"))
}
