package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStorageGB(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "megabytes", input: "512 MB", want: 0.5},
		{name: "gigabytes", input: "10 GB", want: 10},
		{name: "terabytes", input: "2 TB", want: 2048},
		{name: "kilobytes", input: "1048576 KB", want: 1},
		{name: "lowercase unit", input: "10 gb", want: 10},
		{name: "no separating whitespace", input: "512MB", want: 0.5},
		{name: "compact terabytes", input: "2TB", want: 2048},
		{name: "space separated digit groups", input: "1 024 GB", want: 1024},
		{name: "fractional value", input: "1.5 TB", want: 1536},
		{name: "surrounding whitespace", input: "  10 GB  ", want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStorageGB(tt.input)

			require.NotNil(t, got)
			assert.InDelta(t, tt.want, *got, 1e-9)
		})
	}
}

func TestParseStorageGB_Unparseable(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not applicable", input: "N/A"},
		{name: "empty", input: ""},
		{name: "garbage", input: "banana"},
		{name: "bare number", input: "512"},
		{name: "unknown unit", input: "512 XB"},
		{name: "non numeric value", input: "lots GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ParseStorageGB(tt.input))
		})
	}
}
