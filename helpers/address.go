package helpers

import "strings"

// SplitEmailAddress splits a lowercased address into local part and domain.
// The domain is empty if the address has no "@".
func SplitEmailAddress(email string) (string, string) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email, ""
	}
	return email[:at], email[at+1:]
}

// ExtractAddress pulls the bare address out of a "Name <addr@host>" header
// value. Plain addresses are returned trimmed.
func ExtractAddress(sender string) string {
	sender = strings.TrimSpace(sender)
	if open := strings.LastIndex(sender, "<"); open >= 0 {
		if close := strings.Index(sender[open:], ">"); close > 0 {
			return strings.TrimSpace(sender[open+1 : open+close])
		}
	}
	return sender
}

// SenderName derives a display name from a sender header value: the quoted
// name when present, otherwise the local part of the address.
func SenderName(sender string) string {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return ""
	}
	if open := strings.Index(sender, "<"); open > 0 {
		name := strings.TrimSpace(sender[:open])
		name = strings.Trim(name, `"'`)
		if name != "" {
			return name
		}
	}
	local, _ := SplitEmailAddress(ExtractAddress(sender))
	return local
}
