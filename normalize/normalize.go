// Package normalize implements the deterministic whitespace
// canonicalization applied to extracted text before hashing, so that
// markup churn which does not alter wording never registers as a
// policy change.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

// Text canonicalizes raw extracted text. The transformation is
// idempotent: Text(Text(s)) == Text(s).
//
// Steps, in order: CRLF/CR to LF, strip trailing whitespace per line,
// collapse runs of spaces and tabs to a single space, collapse runs of
// three or more newlines to exactly two, trim the whole string.
func Text(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, " \t")
		lines[i] = spaceRunRe.ReplaceAllString(line, " ")
	}
	s = strings.Join(lines, "\n")

	s = newlineRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Hash returns the lowercase hex SHA-256 of the UTF-8 bytes of s. The
// result is always 64 characters.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
