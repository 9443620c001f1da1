package lint

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/beevik/etree"
	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// Issue is one proofreading finding. Everything here needs a human eye, the
// tool never rewrites prose.
type Issue struct {
	File    string
	Kind    string
	Message string
	Snippet string
}

// paragraph-like elements whose text is worth proofreading
var paragraphTags = map[string]bool{
	"p":          true,
	"li":         true,
	"blockquote": true,
	"h1":         true,
	"h2":         true,
	"h3":         true,
}

var (
	spaceBeforePunctRe = regexp.MustCompile(`\s+[,;:!?]`)
	// a space before a single dot, ellipses are a deliberate style
	spaceBeforeDotRe       = regexp.MustCompile(`\s+\.($|[^.])`)
	multiSpaceRe           = regexp.MustCompile(`  +`)
	missingSpaceAfterPunct = regexp.MustCompile(`[,;:!?][A-Za-z]`)
)

// Proofer runs local heuristics over the story documents of one track.
type Proofer struct {
	Dir     string
	Exclude func(name string) bool

	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewProofer builds a Proofer with the english sentence model loaded.
func NewProofer(dir string, exclude func(name string) bool) (*Proofer, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("unable to load sentence tokenizer: %w", err)
	}
	return &Proofer{Dir: dir, Exclude: exclude, tokenizer: tokenizer}, nil
}

// ProofAll checks every story document and returns findings in file order.
func (p *Proofer) ProofAll() ([]Issue, error) {
	des, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("unable to read track directory %s: %w", p.Dir, err)
	}

	var names []string
	for _, de := range des {
		name := de.Name()
		if de.Type().IsRegular() && strings.HasSuffix(name, ".xhtml") && (p.Exclude == nil || !p.Exclude(name)) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var issues []Issue
	for _, name := range names {
		fi, err := p.proofFile(name)
		if err != nil {
			return nil, err
		}
		issues = append(issues, fi...)
	}
	return issues, nil
}

func (p *Proofer) proofFile(name string) ([]Issue, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(filepath.Join(p.Dir, name)); err != nil {
		return []Issue{{File: name, Kind: "parse-error", Message: err.Error()}}, nil
	}

	var issues []Issue
	add := func(kind, message, text string) {
		issues = append(issues, Issue{File: name, Kind: kind, Message: message, Snippet: snippet(text)})
	}

	root := doc.Root()
	if root == nil {
		return issues, nil
	}
	walkParagraphs(root, func(el *etree.Element) {
		text := collapseWS(textContent(el))
		if text == "" {
			return
		}
		if loc := spaceBeforePunctRe.FindString(text); loc != "" {
			add("space-before-punct", fmt.Sprintf("space before %q", strings.TrimSpace(loc)), text)
		} else if spaceBeforeDotRe.MatchString(text) {
			add("space-before-punct", "space before period", text)
		}
		if multiSpaceRe.MatchString(textContent(el)) {
			add("multi-space", "multiple consecutive spaces", text)
		}
		if loc := missingSpaceAfterPunct.FindString(text); loc != "" {
			add("missing-space-after-punct", fmt.Sprintf("no space after %q", loc[:1]), text)
		}
		if w := firstDuplicatedWord(text); w != "" {
			add("duplicate-word", fmt.Sprintf("%q repeated", w), text)
		}
		for _, s := range p.tokenizer.Tokenize(text) {
			st := strings.TrimSpace(s.Text)
			if st == "" {
				continue
			}
			if r := firstLetter(st); r != 0 && unicode.IsLower(r) {
				add("lowercase-sentence-start", "sentence starts with a lowercase letter", st)
				break
			}
		}
	})
	return issues, nil
}

// walkParagraphs visits paragraph-like elements depth first, without
// descending into them again (a li inside a blockquote is reported once).
func walkParagraphs(el *etree.Element, fn func(*etree.Element)) {
	for _, c := range el.ChildElements() {
		if paragraphTags[c.Tag] {
			fn(c)
			continue
		}
		walkParagraphs(c, fn)
	}
}

// firstDuplicatedWord finds an immediate case-insensitive word repetition
// like "the the". Single letters are skipped, "had had" style doubles are
// rare enough to flag anyway.
func firstDuplicatedWord(text string) string {
	words := strings.Fields(text)
	for i := 1; i < len(words); i++ {
		a := strings.Trim(words[i-1], `.,;:!?"'“”‘’()`)
		b := strings.Trim(words[i], `.,;:!?"'“”‘’()`)
		if len(a) < 2 || !isWord(a) {
			continue
		}
		if strings.EqualFold(a, b) {
			return a
		}
	}
	return ""
}

func isWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func firstLetter(s string) rune {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return r
		}
		// leading quotes and dashes do not decide the case
		if !unicode.IsPunct(r) && !unicode.IsSpace(r) && !unicode.IsSymbol(r) {
			return 0
		}
	}
	return 0
}

func snippet(text string) string {
	const limit = 80
	cleaned := collapseWS(text)
	if len(cleaned) <= limit {
		return cleaned
	}
	return strings.TrimSpace(cleaned[:limit-1]) + "..."
}
