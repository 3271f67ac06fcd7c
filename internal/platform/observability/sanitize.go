package observability

import "unicode"

const defaultStringLimit = 256

// sanitizeString trims unwanted characters and limits string length to avoid log injection.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}

	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		cleaned = append(cleaned, r)
	}
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return string(cleaned)
}

// SanitizeDisplayValue cleans product, plan, and directory display strings
// before they reach a terminal or log line. Catalog rows and Graph objects are
// external input and may carry control characters.
func SanitizeDisplayValue(value string) string {
	return sanitizeString(value, 160)
}

// SanitizePrincipal limits user principal names to reduce PII spill in logs.
func SanitizePrincipal(upn string) string {
	return sanitizeString(upn, 64)
}
