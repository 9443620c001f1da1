// Package lint holds the read-only checks: structural scanning of story
// documents and local proofreading heuristics. Nothing here writes a file.
package lint

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/text/language"
)

// FileReport is the scan outcome for one story document.
type FileReport struct {
	Name            string
	ParseError      string
	StructureIssues []string
	PunctCounts     map[string]int
}

func (r *FileReport) issue(name string) {
	r.StructureIssues = append(r.StructureIssues, name)
}

// punctuation the style guide wants replaced with typographic forms
var punctPatterns = map[string]*regexp.Regexp{
	"straight_double": regexp.MustCompile(`"`),
	"straight_single": regexp.MustCompile(`'`),
	"three_dots":      regexp.MustCompile(`\.\.\.`),
	"double_hyphen":   regexp.MustCompile(`--`),
}

// entity forms are only visible in the raw bytes, the parser resolves them
var entityPatterns = map[string]*regexp.Regexp{
	"quot_entity": regexp.MustCompile(`&quot;`),
	"apos_entity": regexp.MustCompile(`&apos;`),
}

const canonicalProlog = "<?xml version='1.0' encoding='utf-8'?>"

// Scanner runs the structure and punctuation checks over one track
// directory. Lang is the expected document language, normally taken from
// the package document.
type Scanner struct {
	Dir     string
	Lang    string
	Exclude func(name string) bool
}

// ScanAll checks every story document and returns per-file reports in file
// name order.
func (s *Scanner) ScanAll() ([]FileReport, error) {
	des, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("unable to read track directory %s: %w", s.Dir, err)
	}

	var reports []FileReport
	for _, de := range des {
		name := de.Name()
		if !de.Type().IsRegular() || !strings.HasSuffix(name, ".xhtml") {
			continue
		}
		if s.Exclude != nil && s.Exclude(name) {
			continue
		}
		reports = append(reports, s.scanFile(name))
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })
	return reports, nil
}

func (s *Scanner) scanFile(name string) FileReport {
	r := FileReport{Name: name, PunctCounts: make(map[string]int)}
	path := filepath.Join(s.Dir, name)

	raw, err := os.ReadFile(path)
	if err != nil {
		r.ParseError = err.Error()
		r.issue("unreadable")
		return r
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		r.ParseError = err.Error()
		r.issue("xml-parse-error")
		return r
	}

	s.checkStructure(&r, raw, doc)
	countPunct(&r, raw, doc)
	return r
}

func (s *Scanner) lang() string {
	if s.Lang != "" {
		return s.Lang
	}
	return "en"
}

func (s *Scanner) checkStructure(r *FileReport, raw []byte, doc *etree.Document) {
	if firstLine(raw) != canonicalProlog {
		r.issue("xml-prolog")
	}

	root := doc.Root()
	if root == nil || root.Tag != "html" {
		r.issue("root-not-xhtml-html")
		return
	}

	if root.SelectAttrValue("lang", "") != s.lang() || root.SelectAttrValue("xml:lang", "") != s.lang() {
		r.issue("lang-attrs")
	}
	if root.SelectAttrValue("epub:prefix", "") == "" {
		r.issue("missing-epub-prefix")
	}

	head := root.SelectElement("head")
	body := root.SelectElement("body")

	if head == nil {
		r.issue("missing-head")
	} else if n := len(head.SelectElements("title")); n != 1 {
		r.issue(fmt.Sprintf("title-count-%d", n))
	}

	if body == nil {
		r.issue("missing-body")
		return
	}

	h1s := body.SelectElements("h1")
	if len(h1s) != 1 {
		r.issue(fmt.Sprintf("h1-count-%d", len(h1s)))
	}

	s.checkMetadataBlock(r, body)

	hrs := body.FindElements(".//hr")
	if len(hrs) < 2 {
		r.issue(fmt.Sprintf("hr-count-%d", len(hrs)))
	} else if children := body.ChildElements(); len(children) > 0 && children[len(children)-1].Tag != "hr" {
		r.issue("missing-final-hr")
	}

	if head != nil && len(h1s) > 0 {
		if titleEl := head.SelectElement("title"); titleEl != nil {
			title := collapseWS(titleEl.Text())
			h1 := collapseWS(textContent(h1s[0]))
			if title != "" && h1 != "" && title != h1 {
				r.issue("title-h1-mismatch")
			}
		}
	}
}

// checkMetadataBlock validates the canonical skeleton: p lines right after
// the h1, closed by an hr, with at least a Translator: credit.
func (s *Scanner) checkMetadataBlock(r *FileReport, body *etree.Element) {
	children := body.ChildElements()
	h1 := -1
	for i, c := range children {
		if c.Tag == "h1" {
			h1 = i
			break
		}
	}
	if h1 < 0 {
		return
	}

	var metaTexts []string
	foundHr := false
	for _, c := range children[h1+1:] {
		if c.Tag == "hr" {
			foundHr = true
			break
		}
		if c.Tag == "p" {
			metaTexts = append(metaTexts, strings.TrimSpace(textContent(c)))
			continue
		}
		if strings.TrimSpace(textContent(c)) != "" {
			r.issue("non-p-in-metadata-block")
		}
		break
	}

	if len(metaTexts) == 0 {
		r.issue("missing-metadata-block")
	} else {
		hasTranslator := false
		for _, t := range metaTexts {
			if strings.HasPrefix(t, "Translator:") {
				hasTranslator = true
				break
			}
		}
		if !hasTranslator {
			r.issue("missing-translator")
		}
	}
	if !foundHr {
		r.issue("missing-hr-after-metadata")
	}
}

func countPunct(r *FileReport, raw []byte, doc *etree.Document) {
	var text string
	if root := doc.Root(); root != nil {
		text = textContent(root)
	}
	for k, p := range punctPatterns {
		r.PunctCounts[k] = len(p.FindAllStringIndex(text, -1))
	}
	for k, p := range entityPatterns {
		r.PunctCounts[k] = len(p.FindAllIndex(raw, -1))
	}
}

func firstLine(raw []byte) string {
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	return string(bytes.TrimRight(raw, "\r"))
}

// CheckLanguage validates a dc:language value as a well-formed BCP 47 tag.
func CheckLanguage(lang string) error {
	_, err := language.Parse(lang)
	return err
}

// CheckStylesheet tokenizes a CSS file and returns one message per lexing
// error, with byte offsets.
func CheckStylesheet(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var issues []string
	l := css.NewLexer(parse.NewInput(f))
	for {
		tt, _ := l.Next()
		if tt != css.ErrorToken {
			continue
		}
		if err := l.Err(); err == io.EOF {
			break
		} else if err != nil {
			issues = append(issues, err.Error())
			break
		}
	}
	return issues, nil
}

func collapseWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// textContent concatenates all character data below el, in document order.
func textContent(el *etree.Element) string {
	var sb strings.Builder
	for _, child := range el.Child {
		switch t := child.(type) {
		case *etree.CharData:
			sb.WriteString(t.Data)
		case *etree.Element:
			sb.WriteString(textContent(t))
		}
	}
	return sb.String()
}
