package ui

import "strings"

// Eight block characters, lowest to highest.
const sparkBlocks = "▁▂▃▄▅▆▇█"

var sparkRunes = []rune(sparkBlocks)

// Sparkline renders values as a run of block characters, one per value,
// keeping only the most recent width values. The range is normalized per
// call, so the tallest block marks the window maximum. A flat series
// renders at the middle level.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	var sb strings.Builder
	sb.Grow(len(values) * 3)
	span := hi - lo
	for _, v := range values {
		level := len(sparkRunes) / 2
		if span != 0 {
			level = int((v - lo) / span * float64(len(sparkRunes)-1))
			if level < 0 {
				level = 0
			} else if level >= len(sparkRunes) {
				level = len(sparkRunes) - 1
			}
		}
		sb.WriteRune(sparkRunes[level])
	}
	return sb.String()
}
