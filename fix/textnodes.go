package fix

import (
	"bytes"
	"io"

	"golang.org/x/net/html"
)

// text inside these stays exactly as written
var skipTags = map[string]bool{
	"script": true,
	"style":  true,
	"pre":    true,
	"code":   true,
}

// transformTextNodes runs transform over the text nodes of a document while
// copying every tag, comment and processing instruction through verbatim.
// Only the raw bytes of text segments ever change, so the markup survives
// byte for byte. A tokenizer failure returns the input untouched.
func transformTextNodes(data []byte, transform func(string) string) []byte {
	z := html.NewTokenizer(bytes.NewReader(data))

	var out bytes.Buffer
	out.Grow(len(data))
	skipDepth := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				return out.Bytes()
			}
			return data
		}

		raw := z.Raw()
		switch tt {
		case html.TextToken:
			if skipDepth > 0 {
				out.Write(raw)
			} else {
				out.WriteString(transform(string(raw)))
			}
		case html.StartTagToken:
			if name, _ := z.TagName(); skipTags[string(name)] {
				skipDepth++
			}
			out.Write(raw)
		case html.EndTagToken:
			if name, _ := z.TagName(); skipTags[string(name)] && skipDepth > 0 {
				skipDepth--
			}
			out.Write(raw)
		default:
			out.Write(raw)
		}
	}
}
