package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ByteSize
		wantErr  bool
	}{
		{"bytes", "1400", 1400, false},
		{"kilobytes", "16KB", 16 * 1024, false},
		{"megabytes", "10MB", 10 * 1024 * 1024, false},
		{"with space", "16 KB", 16 * 1024, false},
		{"lowercase", "16kb", 16 * 1024, false},
		{"float", "1.5MB", ByteSize(1.5 * 1024 * 1024), false},
		{"zero", "0", 0, false},
		{"invalid", "invalid", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := ParseByteSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, size)
		})
	}
}

func TestByteSize_TextRoundTrip(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("16KB")))
	assert.Equal(t, ByteSize(16*1024), b)

	text, err := b.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "16KB", string(text))
}

func TestByteSize_Accessors(t *testing.T) {
	b := ByteSize(16 * 1024)
	assert.Equal(t, int64(16384), b.Bytes())
	assert.Equal(t, 16384, b.Int())
	assert.Equal(t, "16KB", b.String())
}
