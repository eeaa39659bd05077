package payload

import "strings"

// RenderPlain flattens markdown-ish task description text (bold, italic,
// inline links) into plain text. Implemented as a scanner rather than
// regex substitution so unbalanced and nested markers degrade cleanly:
// a marker with no closing partner is emitted literally.
func RenderPlain(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], "**"):
			if end := findCloser(s, i+2, "**"); end >= 0 {
				b.WriteString(RenderPlain(s[i+2 : end]))
				i = end + 2
			} else {
				b.WriteString("**")
				i += 2
			}
		case s[i] == '*' || s[i] == '_':
			marker := string(s[i])
			if end := findCloser(s, i+1, marker); end >= 0 {
				b.WriteString(RenderPlain(s[i+1 : end]))
				i = end + 1
			} else {
				b.WriteByte(s[i])
				i++
			}
		case s[i] == '[':
			text, url, next, ok := scanLink(s, i)
			if ok {
				b.WriteString(RenderPlain(text))
				if url != "" {
					b.WriteString(" (")
					b.WriteString(url)
					b.WriteByte(')')
				}
				i = next
			} else {
				b.WriteByte('[')
				i++
			}
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// findCloser locates the next occurrence of marker at or after start
// that closes a span. An empty span ("****") does not count.
func findCloser(s string, start int, marker string) int {
	idx := strings.Index(s[start:], marker)
	if idx <= 0 {
		if idx == 0 {
			return -1
		}
		return -1
	}
	return start + idx
}

// scanLink parses "[text](url)" starting at the '[' position. Returns
// ok=false when the syntax is incomplete.
func scanLink(s string, start int) (text, url string, next int, ok bool) {
	closeBracket := -1
	depth := 0
	for j := start + 1; j < len(s); j++ {
		switch s[j] {
		case '[':
			depth++
		case ']':
			if depth == 0 {
				closeBracket = j
			} else {
				depth--
			}
		}
		if closeBracket >= 0 {
			break
		}
	}
	if closeBracket < 0 || closeBracket+1 >= len(s) || s[closeBracket+1] != '(' {
		return "", "", 0, false
	}
	closeParen := strings.IndexByte(s[closeBracket+2:], ')')
	if closeParen < 0 {
		return "", "", 0, false
	}
	closeParen += closeBracket + 2
	return s[start+1 : closeBracket], s[closeBracket+2 : closeParen], closeParen + 1, true
}
