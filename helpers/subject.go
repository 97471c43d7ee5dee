package helpers

import "strings"

// EnsureReplyPrefix prepends "Re: " to a subject unless it already carries a
// reply prefix (case-insensitive).
func EnsureReplyPrefix(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToUpper(trimmed), "RE:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// ParseClockTime parses an "HH:MM" wall-clock string into minutes since
// midnight. Returns ok=false for anything malformed.
func ParseClockTime(s string) (minutes int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, m := atoi2(parts[0]), atoi2(parts[1])
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func atoi2(s string) int {
	n := 0
	if s == "" || len(s) > 2 {
		return -1
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}
