// Package fix applies narrow mechanical corrections to story documents:
// typographic punctuation in text nodes, canonical metadata labels, the
// closing rule before the body end, and keeping title in sync with the
// heading. It deliberately never touches markup attributes or prose.
package fix

import (
	"regexp"
	"strings"
	"unicode"
)

// QuoteState tracks open/close pairing of straight quotes across the text
// nodes of one file. State deliberately spans node boundaries: a quotation
// opened in one paragraph may close in the next.
type QuoteState struct {
	doubleOpenNext bool
	singleOpenNext bool
}

func NewQuoteState() *QuoteState {
	return &QuoteState{doubleOpenNext: true, singleOpenNext: true}
}

var (
	multiHyphenRe = regexp.MustCompile(`-{2,}`)
	// common elisions keep an apostrophe, not an opening quote
	elisionRe     = regexp.MustCompile(`(?i)(^|[\s(\[{<])'(tis|twas|cause|em|til|n)\b`)
	yearElisionRe = regexp.MustCompile(`(^|\s)'(\d\d)\b`)
)

// Convert rewrites ASCII punctuation in one text segment to the typographic
// forms the style guide asks for: ellipses, em dashes, apostrophes and
// paired curly quotes.
func (st *QuoteState) Convert(text string) string {
	if text == "" {
		return text
	}

	text = strings.ReplaceAll(text, "...", "…")
	text = multiHyphenRe.ReplaceAllString(text, "—")
	text = elisionRe.ReplaceAllString(text, "${1}’${2}")
	text = yearElisionRe.ReplaceAllString(text, "${1}’${2}")

	runes := []rune(text)
	var out strings.Builder
	out.Grow(len(text))
	for i, ch := range runes {
		switch ch {
		case '"':
			if st.doubleOpenNext {
				out.WriteRune('“')
			} else {
				out.WriteRune('”')
			}
			st.doubleOpenNext = !st.doubleOpenNext
		case '\'':
			// adjacent to word characters means contraction or possessive
			if (i > 0 && isWordRune(runes[i-1])) || (i+1 < len(runes) && isWordRune(runes[i+1])) {
				out.WriteRune('’')
				continue
			}
			if st.singleOpenNext {
				out.WriteRune('‘')
			} else {
				out.WriteRune('’')
			}
			st.singleOpenNext = !st.singleOpenNext
		default:
			out.WriteRune(ch)
		}
	}
	return out.String()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
