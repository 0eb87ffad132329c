package devices

import (
	"strconv"
	"strings"
)

// unitMultiplier maps a trailing unit token to its gigabyte multiplier,
// using binary multiples of 1024.
var unitMultiplier = map[string]float64{
	"KB": 1.0 / (1024 * 1024),
	"MB": 1.0 / 1024,
	"GB": 1,
	"TB": 1024,
}

// ParseStorageGB normalizes a human-readable storage size ("512 MB",
// "2 TB", "512MB") to gigabytes. The trailing unit token is matched
// case-insensitively, with or without separating whitespace. Unparseable
// input ("N/A", garbage, bare numbers with unknown units) yields nil,
// never zero.
func ParseStorageGB(s string) *float64 {
	s = strings.TrimSpace(s)
	if len(s) < 3 {
		return nil
	}

	mult, ok := unitMultiplier[strings.ToUpper(s[len(s)-2:])]
	if !ok {
		return nil
	}

	// Digit groups may be space-separated ("1 024 GB").
	number := strings.Join(strings.Fields(s[:len(s)-2]), "")
	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return nil
	}

	gb := value * mult
	return &gb
}
