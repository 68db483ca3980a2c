package utils

import (
	"strconv"
	"strings"
)

var sizeUnits = [...]string{"B", "kB", "MB", "GB"}

// FormatSize renders a byte count using 1024-based units, capping at GB no
// matter how large the value gets. At most two decimal places are kept and
// trailing zeros are trimmed, so 1536 formats as "1.5 kB" and 1024 as "1 kB".
func FormatSize(bytes int64) string {
	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}

	s := strconv.FormatFloat(value, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s + " " + sizeUnits[unit]
}
