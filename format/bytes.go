package format

import (
	"fmt"
	"strconv"
)

const (
	Byte = 1

	KibiByte = Byte * 1024
	MebiByte = KibiByte * 1024
	GibiByte = MebiByte * 1024
)

// HumanBytes renders a size in binary units. Whole values drop the
// fraction: 10 MiB, 1.5 KiB, 512 B.
func HumanBytes(b int64) string {
	var value float64
	var unit string

	switch {
	case b >= GibiByte:
		value, unit = float64(b)/GibiByte, "GiB"
	case b >= MebiByte:
		value, unit = float64(b)/MebiByte, "MiB"
	case b >= KibiByte:
		value, unit = float64(b)/KibiByte, "KiB"
	default:
		return strconv.FormatInt(b, 10) + " B"
	}

	if value == float64(int64(value)) {
		return fmt.Sprintf("%d %s", int64(value), unit)
	}
	return fmt.Sprintf("%.1f %s", value, unit)
}
