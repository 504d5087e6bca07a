package internal

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseByteSize parses human-readable sizes such as "25M", "512KB" or "1048576"
func ParseByteSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, nil
	}

	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		if val < 0 {
			return 0, fmt.Errorf("size cannot be negative: %d", val)
		}
		return val, nil
	}

	if len(sizeStr) < 2 {
		return 0, fmt.Errorf("invalid size format: %s", sizeStr)
	}

	// Two-character suffixes (KB, MB, GB) take precedence over single ones
	var numStr, suffix string
	upper := strings.ToUpper(sizeStr)
	if len(upper) >= 3 && (strings.HasSuffix(upper, "KB") ||
		strings.HasSuffix(upper, "MB") ||
		strings.HasSuffix(upper, "GB")) {
		numStr = sizeStr[:len(sizeStr)-2]
		suffix = upper[len(upper)-2:]
	} else {
		numStr = sizeStr[:len(sizeStr)-1]
		suffix = upper[len(upper)-1:]
	}

	baseValue, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value in size: %s", numStr)
	}
	if baseValue < 0 {
		return 0, fmt.Errorf("size cannot be negative: %f", baseValue)
	}

	var multiplier int64
	switch suffix {
	case "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	case "G", "GB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unsupported size suffix: %s (supported: B, K/KB, M/MB, G/GB)", suffix)
	}

	result := int64(baseValue * float64(multiplier))
	if result < 0 {
		return 0, fmt.Errorf("size value overflow")
	}
	return result, nil
}

// FormatBytes formats byte count as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
