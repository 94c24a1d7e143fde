package resources

import (
	"fmt"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
)

// totalMemory reports the machine's physical memory in bytes. Overridden
// in tests; the real lookup lives in the platform files.
var totalMemory = detectTotalMemory

// ParseSize converts a textual memory quantity into bytes. Supported
// formats are plain byte counts, human sizes with binary multiples
// (e.g. "512M", "1Gi", "256MiB") and percentages of physical memory
// (e.g. "80%").
func ParseSize(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	if strings.HasSuffix(trimmed, "%") {
		return parsePercent(value, strings.TrimSuffix(trimmed, "%"))
	}
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasSuffix(lower, "kib"), strings.HasSuffix(lower, "mib"), strings.HasSuffix(lower, "gib"), strings.HasSuffix(lower, "tib"), strings.HasSuffix(lower, "pib"), strings.HasSuffix(lower, "eib"):
		// already in binary units understood by go-units
	case strings.HasSuffix(lower, "ki"), strings.HasSuffix(lower, "mi"), strings.HasSuffix(lower, "gi"), strings.HasSuffix(lower, "ti"), strings.HasSuffix(lower, "pi"), strings.HasSuffix(lower, "ei"):
		trimmed += "B"
	}
	bytes, err := units.RAMInBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	if bytes <= 0 {
		return 0, fmt.Errorf("invalid size %q: must be positive", value)
	}
	return bytes, nil
}

func parsePercent(original, number string) (int64, error) {
	pct, err := strconv.ParseFloat(strings.TrimSpace(number), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", original, err)
	}
	if pct <= 0 || pct > 100 {
		return 0, fmt.Errorf("invalid size %q: percentage must be in (0, 100]", original)
	}
	total, err := totalMemory()
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: cannot determine physical memory: %w", original, err)
	}
	return int64(float64(total) * pct / 100.0), nil
}
