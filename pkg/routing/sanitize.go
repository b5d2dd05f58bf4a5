package routing

import "strings"

// sanitize HTML-escapes in and converts '\n' into "<br>" for at most
// maxNewlines consecutive newlines (further ones in the same run are
// dropped; the count resets on any byte other than '\n' or '\r'),
// dropping everything else that isn't printable ASCII or a
// high-bit (UTF-8 continuation) byte — the same transform the reference
// implementation's sanitize() applies to every user-supplied form field
// before it's stored or rendered.
func sanitize(in string, maxNewlines int) string {
	var out strings.Builder
	out.Grow(len(in))

	prevNewlines := 0
	for i := 0; i < len(in); i++ {
		c := in[i]

		switch c {
		case '<':
			out.WriteString("&lt;")
		case '>':
			out.WriteString("&gt;")
		case '&':
			out.WriteString("&amp;")
		case '"':
			out.WriteString("&quot;")
		case '\'':
			out.WriteString("&apos;")
		case '\n':
			if prevNewlines < maxNewlines {
				prevNewlines++
				out.WriteString("<br>")
			}
		default:
			if (c >= 32 && c <= 126) || c&(1<<7) != 0 {
				out.WriteByte(c)
			}
		}

		if c != '\n' && c != '\r' {
			prevNewlines = 0
		}
	}

	return out.String()
}
