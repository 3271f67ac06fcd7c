package textutil

import (
	"regexp"
	"strings"
)

// CompileWildcard converts a shell style pattern, where * matches any run of
// characters and ? matches a single character, into an anchored
// case-insensitive regular expression.
func CompileWildcard(pattern string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, `.*`)
	quoted = strings.ReplaceAll(quoted, `\?`, `.`)
	return regexp.Compile(`(?i)^` + quoted + `$`)
}

// CompileCaseInsensitive compiles pattern as a case-insensitive regular
// expression without anchoring it.
func CompileCaseInsensitive(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)` + pattern)
}
