// Package sanitize cleans free text that reaches MCP clients: node names
// typed by users and record names read from dataset files. It strips control
// characters, markdown hierarchy markers, XML/HTML tags and code fences so
// stored text cannot pose as instructions once it lands in a model's context.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nvandessel/protomech/internal/constants"
)

// MaxTextLength is the maximum allowed length for record text.
const MaxTextLength = 500

// MaxNameLength is the maximum allowed length for node names, in runes.
const MaxNameLength = constants.MaxNameLen

// Pre-compiled regular expressions for performance.
var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reMarkdownHeading matches markdown headings at the start of a line (# , ## , etc.).
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)

	// reHorizontalRule matches markdown horizontal rules (---, ***, ___) at the start of a line.
	reHorizontalRule = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)

	// reTripleBacktick matches triple (or more) backtick sequences used in code fences.
	reTripleBacktick = regexp.MustCompile("```+")

	reWhitespace = regexp.MustCompile(`\s+`)
)

// Text sanitizes a line of record text such as a protein or entry name.
//
// The pipeline runs in this order:
//  1. Drop markdown heading markers and horizontal rules
//  2. Strip null bytes and ASCII control characters
//  3. Strip XML/HTML tags
//  4. Collapse triple backticks to a single backtick
//  5. Collapse whitespace runs to one space
//  6. Truncate to MaxTextLength
func Text(input string) string {
	if input == "" {
		return ""
	}

	s := strings.ReplaceAll(input, "\r", "\n")
	s = reMarkdownHeading.ReplaceAllString(s, "")
	s = reHorizontalRule.ReplaceAllString(s, "")
	s = stripControlChars(s, true)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))

	return truncate(s, MaxTextLength, "...")
}

// NodeName sanitizes a display name for a circuit node. It is Text limited
// to a single line of MaxNameLength runes with no leading '#'.
func NodeName(input string) string {
	s := Text(input)
	s = strings.TrimLeftFunc(s, func(r rune) bool { return r == '#' || unicode.IsSpace(r) })
	return truncate(s, MaxNameLength, "")
}

// stripControlChars removes ASCII control characters (0x00-0x1F, 0x7F).
// With keepBreaks set, newlines and tabs become spaces instead.
func stripControlChars(s string, keepBreaks bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			if keepBreaks && (r == '\n' || r == '\t') {
				b.WriteByte(' ')
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truncate cuts s to n runes and appends suffix when it did.
func truncate(s string, n int, suffix string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + suffix
}
