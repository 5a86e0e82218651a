package config

import "github.com/jmylchreest/vodarr/pkg/bytesize"

// ByteSize is a size value that supports human-readable parsing, used for
// stream buffer and chunk sizes. Raw byte counts and values like "16KB" or
// "1.5MB" both work.
//
// It implements encoding.TextUnmarshaler for Viper/YAML support.
type ByteSize int64

// ParseByteSize parses a human-readable byte size string.
func ParseByteSize(s string) (ByteSize, error) {
	size, err := bytesize.Parse(s)
	if err != nil {
		return 0, err
	}
	return ByteSize(size), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Bytes returns the size in bytes as int64.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// Int returns the size as int, for APIs that take buffer lengths.
func (b ByteSize) Int() int {
	return int(b)
}

// String returns a human-readable representation.
func (b ByteSize) String() string {
	return bytesize.Format(bytesize.Size(b))
}
