package epub

import (
	"context"
	"errors"
	"math"
	"os"
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

// The grouped navigation keeps the EPUB 3 TOC valid by nesting one ol per
// occurrence group under the flat list. Spine order in content.opf is not
// touched, only nav.xhtml changes.

const missingOccurrence = "(Missing Occurrence)"

// tocItem is one link of the flat navigation, with the occurrence value the
// grouping is keyed on. Pinned non-story entries carry no occurrence.
type tocItem struct {
	Href       string
	Label      string
	Occurrence string
	Pinned     bool
}

// GroupNav rebuilds the top-level list of nav.xhtml grouped by occurrence.
type GroupNav struct {
	Dir string

	// Exclude marks spine entries left out of the grouping entirely.
	Exclude func(name string) bool
	// Pinned marks non-story entries kept at the top, before any group.
	Pinned func(name string) bool

	Log *zap.Logger
}

// Compute collects the grouped items in spine order. The second result lists
// stories without an occurrence line, they end up in a catch-all group.
func (g *GroupNav) Compute() ([]tocItem, []string, error) {
	prior, err := LoadPackage(filepath.Join(g.Dir, PackageFile))
	if err != nil {
		return nil, nil, err
	}
	navDoc, err := ParseDocument(filepath.Join(g.Dir, NavFile))
	if err != nil {
		return nil, nil, err
	}
	labels := navLabels(navDoc)

	var items []tocItem
	var missing []string
	for _, idref := range prior.Spine {
		href := prior.Manifest[idref]
		if href == "" || !strings.HasSuffix(href, ".xhtml") {
			continue
		}
		if g.Exclude != nil && g.Exclude(href) {
			continue
		}

		label := labels[href]
		if label == "" {
			label = href
		}

		it := tocItem{Href: href, Label: label, Pinned: g.Pinned != nil && g.Pinned(href)}
		if !it.Pinned {
			doc, err := ParseDocument(filepath.Join(g.Dir, href))
			if err != nil {
				return nil, nil, err
			}
			if occ, err := Occurrence(doc); err == nil && occ != "" {
				it.Occurrence = occ
			} else {
				missing = append(missing, href)
			}
		}
		items = append(items, it)
	}
	return items, missing, nil
}

// Rebuild replaces the top-level ol of nav.xhtml with pinned entries
// followed by occurrence groups, each a span heading over a nested ol.
func (g *GroupNav) Rebuild(items []tocItem) error {
	navPath := filepath.Join(g.Dir, NavFile)
	doc, err := ParseDocument(navPath)
	if err != nil {
		return err
	}

	nav := doc.FindElement("//nav[@epub:type='toc']")
	if nav == nil {
		nav = doc.FindElement("//nav")
	}
	if nav == nil {
		return &StructuralError{Path: navPath, Err: errors.New("missing nav element")}
	}
	ol := nav.FindElement(".//ol")
	if ol == nil {
		return &StructuralError{Path: navPath, Err: errors.New("missing ol element")}
	}

	for _, t := range append([]etree.Token(nil), ol.Child...) {
		ol.RemoveChild(t)
	}

	addLink := func(parent *etree.Element, it tocItem) {
		li := parent.CreateElement("li")
		a := li.CreateElement("a")
		a.CreateAttr("href", it.Href)
		a.SetText(it.Label)
	}

	// pinned entries first, in their original spine order
	for _, it := range items {
		if it.Pinned {
			addLink(ol, it)
		}
	}

	var order []string
	groups := make(map[string][]tocItem)
	for _, it := range items {
		if it.Pinned {
			continue
		}
		name := it.Occurrence
		if name == "" {
			name = missingOccurrence
		}
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], it)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return groupSortKey(order[i]).less(groupSortKey(order[j]))
	})

	for _, name := range order {
		li := ol.CreateElement("li")
		span := li.CreateElement("span")
		span.SetText(name)
		sub := li.CreateElement("ol")
		for _, it := range groups[name] {
			addLink(sub, it)
		}
	}

	doc.Indent(2)
	data, err := doc.WriteToBytes()
	if err != nil {
		return err
	}
	return WriteFileAtomic(navPath, data)
}

// navLabels maps href to link text of the existing toc nav.
func navLabels(doc *etree.Document) map[string]string {
	nav := doc.FindElement("//nav[@epub:type='toc']")
	if nav == nil {
		nav = doc.FindElement("//nav")
	}
	if nav == nil {
		return nil
	}
	labels := make(map[string]string)
	for _, a := range nav.FindElements(".//a") {
		if href := a.SelectAttrValue("href", ""); href != "" {
			labels[href] = collapseWS(textContent(a))
		}
	}
	return labels
}

var volNumRe = regexp.MustCompile(`(?i)\bvol(?:ume)?\.?\s*(\d+)\b`)

// groupKey orders occurrence groups into a stable, reader-friendly
// sequence: volume groups first, then post-ending material, then
// unspecified, then non-canon. Groups sharing a textual prefix sort
// numerically by volume.
type groupKey struct {
	bucket int
	prefix string
	vol    int
	lower  string
}

func groupSortKey(label string) groupKey {
	k := groupKey{lower: strings.ToLower(label), vol: math.MaxInt}

	switch label {
	case "Web Novel (post-ending)":
		k.bucket = 2
	case "Timeline unspecified", missingOccurrence:
		k.bucket = 3
	case "Fanfic (non-canon)":
		k.bucket = 4
	default:
		k.bucket = 1
		if m := volNumRe.FindStringSubmatch(label); m != nil {
			k.vol, _ = strconv.Atoi(m[1])
		}
	}

	if loc := volNumRe.FindStringIndex(label); loc != nil {
		k.prefix = strings.ToLower(collapseWS(label[:loc[0]]))
	} else {
		k.prefix = k.lower
	}
	return k
}

func (a groupKey) less(b groupKey) bool {
	if a.bucket != b.bucket {
		return a.bucket < b.bucket
	}
	if a.prefix != b.prefix {
		return a.prefix < b.prefix
	}
	if a.vol != b.vol {
		return a.vol < b.vol
	}
	return a.lower < b.lower
}

// RunGroupNav implements the "groupnav" command.
func RunGroupNav(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("groupnav")

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		return errors.New("no track directory has been specified")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	g := &GroupNav{
		Dir:     dir,
		Exclude: env.Cfg.Book.Layout.IsTocExcluded,
		Pinned:  env.Cfg.Book.Layout.IsPinned,
		Log:     log,
	}

	items, missing, err := g.Compute()
	if err != nil {
		return err
	}
	for _, href := range missing {
		log.Warn("Story without occurrence line", zap.String("file", href))
	}

	if data, err := os.ReadFile(filepath.Join(dir, NavFile)); err == nil {
		env.Rpt.StoreData("before/"+NavFile, data)
	}

	if env.DryRun {
		log.Info("Dry run, leaving navigation document alone")
		return nil
	}
	if err := g.Rebuild(items); err != nil {
		return err
	}
	log.Info("Grouped navigation written", zap.String("dir", dir), zap.Int("entries", len(items)))
	return nil
}
