package analytics

import "strings"

// Label formats a canonical bucket key for display: days as "DD.MM.", weeks as
// "Wnn", months as "MM.YYYY.". Unparseable keys are returned unchanged.
func Label(mode Mode, key string) string {
	switch mode {
	case ModeDay:
		parts := strings.Split(key, "-")
		if len(parts) != 3 {
			return key
		}
		return parts[2] + "." + parts[1] + "."
	case ModeWeek:
		if idx := strings.Index(key, "-W"); idx >= 0 {
			return key[idx+1:]
		}
		return key
	case ModeMonth:
		return key + "."
	default:
		return key
	}
}
