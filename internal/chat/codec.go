package chat

import "strings"

// Every protocol message occupies exactly one line on the wire, so newlines
// inside a message body are backslash-escaped before transmission and decoded
// on receipt. The backslash itself must be escaped too or decoding is
// ambiguous.

// Escape encodes embedded newlines and backslashes in s for single-line
// transmission.
func Escape(s string) string {
	if !strings.ContainsAny(s, "\\\n\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Unescape decodes a body escaped by Escape. Unrecognized escapes are kept
// as-is rather than rejected; a trailing lone backslash is preserved.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escape := false
	for _, r := range s {
		if !escape {
			if r == '\\' {
				escape = true
				continue
			}
			b.WriteRune(r)
			continue
		}
		switch r {
		case '\\':
			b.WriteRune('\\')
		case 'n':
			b.WriteRune('\n')
		case 'r':
			b.WriteRune('\r')
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
		escape = false
	}
	if escape {
		b.WriteRune('\\')
	}
	return b.String()
}
