package epub

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"anth/state"
)

// Stories carry a timeline hint as a canonical metadata line:
//
//	<p>Occurrence: Around Volume 4</p>
//
// Some files only have the hint buried in a bracketed note. The occurrence
// command adds the canonical line where it is missing, inferring the value
// from the rest of the metadata block.
const occurrencePrefix = "Occurrence:"

var (
	volRangeRe  = regexp.MustCompile(`(?i)\bvol(?:ume)?s?\s*(\d+)\s*(?:[-–—]|to|through)\s*(\d+)\b`)
	volSingleRe = regexp.MustCompile(`(?i)\bvol(?:ume)?\s*(\d+)\b`)
)

// Occurrence returns the canonical occurrence value of a story, or "" when
// the metadata block has no such line.
func Occurrence(doc *etree.Document) (string, error) {
	b, err := findMetadataBlock(doc)
	if err != nil {
		return "", err
	}
	for _, t := range b.texts() {
		if strings.HasPrefix(strings.ToLower(t), strings.ToLower(occurrencePrefix)) {
			return collapseWS(t[len(occurrencePrefix):]), nil
		}
	}
	return "", nil
}

// InferOccurrence derives a canonical occurrence value from metadata
// paragraph texts. Conservative on purpose: explicit category flags first,
// then volume hints, then the unspecified fallback.
func InferOccurrence(metaTexts []string) string {
	all := strings.ToLower(strings.Join(metaTexts, "\n"))

	for _, t := range metaTexts {
		if strings.EqualFold(strings.TrimSpace(t), "fanfic") {
			return "Fanfic (non-canon)"
		}
	}
	if strings.Contains(all, "web novel") && strings.Contains(all, "after its conclusion") {
		return "Web Novel (post-ending)"
	}

	for _, t := range metaTexts {
		if m := volRangeRe.FindStringSubmatch(t); m != nil {
			lo, _ := strconv.Atoi(m[1])
			hi, _ := strconv.Atoi(m[2])
			if lo > hi {
				lo, hi = hi, lo
			}
			return fmt.Sprintf("Around Volumes %d–%d", lo, hi)
		}
	}
	for _, t := range metaTexts {
		if m := volSingleRe.FindStringSubmatch(t); m != nil {
			n, _ := strconv.Atoi(m[1])
			return fmt.Sprintf("Around Volume %d", n)
		}
	}
	return "Timeline unspecified"
}

// InsertOccurrence adds the canonical line to the metadata block: after the
// last Editors: paragraph when present, else after Translator:, else right
// before the closing hr. Returns false when the line is already there.
func InsertOccurrence(doc *etree.Document, value string) (bool, error) {
	b, err := findMetadataBlock(doc)
	if err != nil {
		return false, err
	}

	var insertAfter *etree.Element
	for _, p := range b.paragraphs() {
		t := collapseWS(textContent(p))
		if strings.HasPrefix(strings.ToLower(t), strings.ToLower(occurrencePrefix)) {
			return false, nil
		}
		if strings.HasPrefix(t, "Editors:") {
			insertAfter = p
		}
	}
	if insertAfter == nil {
		for _, p := range b.paragraphs() {
			if strings.HasPrefix(collapseWS(textContent(p)), "Translator:") {
				insertAfter = p
				break
			}
		}
	}

	newP := etree.NewElement("p")
	newP.SetText(occurrencePrefix + " " + value)

	at := -1
	if insertAfter != nil {
		at = tokenIndex(b.body, insertAfter) + 1
	} else {
		at = tokenIndex(b.body, b.children[b.hr])
	}
	b.body.InsertChildAt(at, etree.NewText("\n    "))
	b.body.InsertChildAt(at+1, newP)
	return true, nil
}

// RunOccurrence implements the "occurrence" command.
func RunOccurrence(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("occurrence")

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		return errors.New("no track directory has been specified")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	files, err := listFiles(dir)
	if err != nil {
		return err
	}
	sort.Strings(files)

	updated := 0
	for _, name := range files {
		if !strings.HasSuffix(name, ".xhtml") || env.Cfg.Book.Layout.IsExcluded(name) {
			continue
		}
		path := filepath.Join(dir, name)
		doc, err := ParseDocument(path)
		if err != nil {
			return err
		}
		b, err := findMetadataBlock(doc)
		if err != nil {
			log.Warn("Story without a metadata block", zap.String("file", name), zap.Error(err))
			continue
		}
		value := InferOccurrence(b.texts())
		inserted, err := InsertOccurrence(doc, value)
		if err != nil || !inserted {
			continue
		}
		data, err := doc.WriteToBytes()
		if err != nil {
			return err
		}
		if env.DryRun {
			log.Info("Would add occurrence", zap.String("file", name), zap.String("value", value))
			continue
		}
		if err := WriteFileAtomic(path, data); err != nil {
			return err
		}
		log.Info("Added occurrence", zap.String("file", name), zap.String("value", value))
		updated++
	}

	log.Info("Occurrence fill completed", zap.String("dir", dir), zap.Int("updated", updated))
	return nil
}
