package patentsearch

import "strings"

// NormalizeID reduces "patent/US1234A1/en" style identifiers to "US1234A1".
// Anything without the "patent/" prefix is returned trimmed but otherwise
// untouched, so NormalizeID(NormalizeID(x)) == NormalizeID(x).
func NormalizeID(raw string) string {
	id := strings.TrimSpace(raw)
	if !strings.HasPrefix(id, "patent/") {
		return id
	}
	rest := strings.TrimPrefix(id, "patent/")
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

func PatentURL(normalizedID string) string {
	return GooglePatentsBaseURL + strings.TrimSpace(normalizedID)
}
