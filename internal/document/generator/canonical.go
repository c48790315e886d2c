package generator

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Canonicalize normalizes document text before hashing:
//
//  1. CRLF and lone CR become LF.
//  2. Non-printable characters other than LF are removed.
//  3. Trailing whitespace is trimmed from every line.
//  4. Runs of three or more blank lines collapse to a single blank line.
//
// Step 2 runs before 3 and 4 so a line holding only control characters counts
// as blank on the first pass; the function is idempotent.
func Canonicalize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = strings.Map(func(r rune) rune {
		if r == '\n' || unicode.IsGraphic(r) {
			return r
		}
		return -1
	}, text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	flush := func() {
		switch {
		case blanks >= 3:
			out = append(out, "")
		default:
			for range blanks {
				out = append(out, "")
			}
		}
		blanks = 0
	}
	for _, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			blanks++
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()
	return strings.Join(out, "\n")
}

// Hash returns the lowercase hex SHA-256 of text's UTF-8 bytes.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
