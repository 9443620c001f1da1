package epub

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"
	"go.uber.org/zap"
)

// Regenerator rebuilds the three index artifacts of one track directory from
// the files on disk, keeping the existing reading order and descriptive
// metadata. Compute derives the new content without touching the disk,
// Apply replaces the artifacts atomically.
type Regenerator struct {
	Dir string

	// Exclude marks xhtml files that are part of the book but are not
	// stories: they are never appended to the spine.
	Exclude func(name string) bool

	// TOCExclude marks files kept out of the navigation document and NCX
	// even though they sit in the spine. Defaults to the navigation
	// document itself and the cover page.
	TOCExclude func(name string) bool

	// Now is the clock for dcterms:modified, defaults to time.Now.
	Now func() time.Time

	Log *zap.Logger
}

// Result carries computed artifact content plus the change summary.
type Result struct {
	OPF []byte
	Nav []byte
	NCX []byte

	Documents int
	Added     []string
	Removed   []string
	Warnings  []ConsistencyWarning
}

func (res *Result) warn(path, reason string) {
	res.Warnings = append(res.Warnings, ConsistencyWarning{Path: path, Reason: reason})
}

func (r *Regenerator) excluded(name string) bool {
	return r.Exclude != nil && r.Exclude(name)
}

func (r *Regenerator) tocExcluded(name string) bool {
	if r.TOCExclude != nil {
		return r.TOCExclude(name)
	}
	return name == NavFile || name == "cover.xhtml"
}

func (r *Regenerator) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Regenerator) log() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop()
}

// Compute derives new content for the package document, the navigation
// document and the NCX. It is a pure function of the directory contents and
// the prior package document: nothing is written yet. Any unparsable
// document aborts the computation, so spine integrity is never guessed at.
func (r *Regenerator) Compute() (*Result, error) {
	prior, err := LoadPackage(filepath.Join(r.Dir, PackageFile))
	if err != nil {
		return nil, err
	}

	files, err := listFiles(r.Dir)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	// Parse every xhtml up front. The navigation document is skipped, it is
	// about to be rebuilt from scratch anyway.
	titles := make(map[string]string, len(files))
	for _, name := range files {
		if !strings.HasSuffix(name, ".xhtml") || name == NavFile {
			continue
		}
		doc, err := ParseDocument(filepath.Join(r.Dir, name))
		if err != nil {
			return nil, err
		}
		title, source := ExtractTitle(doc, name)
		if source == TitleFromFilename {
			res.warn(name, "no heading or title element, label derived from file name")
		}
		titles[name] = title
		if !r.excluded(name) {
			res.Documents++
		}
	}

	// Manifest reflects what is actually on disk.
	var items []ManifestItem
	idToName := make(map[string]string, len(files))
	nameToID := make(map[string]string, len(files))
	for _, name := range files {
		if name == PackageFile || name == MimetypeFile {
			continue
		}
		mt := MediaTypeFor(filepath.Join(r.Dir, name))
		if mt == "" {
			r.log().Debug("Skipping file with unknown media type", zap.String("file", name))
			continue
		}
		id := ManifestIDFor(name)
		if prev, dup := idToName[id]; dup {
			res.warn(name, fmt.Sprintf("manifest id %q already taken by %s", id, prev))
			id = disambiguateID(id, idToName)
		}
		idToName[id] = name
		nameToID[name] = id
		items = append(items, ManifestItem{ID: id, Href: name, MediaType: mt, Properties: propertiesFor(name)})
	}

	// Spine: prior order first, minus entries whose file is gone.
	var spine []string
	inSpine := make(map[string]bool, len(prior.Spine))
	for _, idref := range prior.Spine {
		if _, ok := idToName[idref]; !ok {
			href := prior.Manifest[idref]
			if href == "" {
				href = idref
			}
			res.Removed = append(res.Removed, href)
			continue
		}
		if inSpine[idref] {
			res.warn(idToName[idref], "duplicate spine entry dropped")
			continue
		}
		spine = append(spine, idref)
		inSpine[idref] = true
	}

	// Newly discovered stories go to the end, natural file name order keeps
	// numbered files sensible (story-2 before story-10).
	var fresh []string
	for _, it := range items {
		if !strings.HasSuffix(it.Href, ".xhtml") || inSpine[it.ID] || r.excluded(it.Href) {
			continue
		}
		fresh = append(fresh, it.Href)
	}
	sort.Sort(natural.StringSlice(fresh))
	for _, name := range fresh {
		spine = append(spine, nameToID[name])
		res.Added = append(res.Added, name)
	}

	// Navigation rows follow the final spine order.
	var entries []Entry
	for _, idref := range spine {
		name := idToName[idref]
		if r.tocExcluded(name) || !strings.HasSuffix(name, ".xhtml") {
			continue
		}
		entries = append(entries, Entry{ID: idref, Href: name, Title: titles[name]})
	}

	uid, generated := prior.UID()
	if generated {
		res.warn(PackageFile, "no dc:identifier, generated "+uid)
	}

	now := r.now()
	bookTitle := prior.Title()

	if res.OPF, err = BuildPackage(prior, items, spine, now).WriteToBytes(); err != nil {
		return nil, err
	}
	if res.Nav, err = BuildNav(bookTitle, prior.Language(), entries).WriteToBytes(); err != nil {
		return nil, err
	}
	if res.NCX, err = BuildNCX(uid, bookTitle, entries).WriteToBytes(); err != nil {
		return nil, err
	}
	return res, nil
}

// Apply atomically replaces the three index artifacts with computed content.
// Story documents are never touched.
func (r *Regenerator) Apply(res *Result) error {
	for _, a := range []struct {
		name string
		data []byte
	}{
		{PackageFile, res.OPF},
		{NavFile, res.Nav},
		{NCXFile, res.NCX},
	} {
		if err := WriteFileAtomic(filepath.Join(r.Dir, a.name), a.data); err != nil {
			return err
		}
	}
	return nil
}

// listFiles returns the names of regular files directly in dir, sorted.
func listFiles(dir string) ([]string, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to read track directory %s: %w", dir, err)
	}
	var names []string
	for _, de := range des {
		if de.Type().IsRegular() {
			names = append(names, de.Name())
		}
	}
	if len(names) == 0 {
		return nil, errors.New("track directory " + dir + " has no files")
	}
	return names, nil
}

func disambiguateID(id string, taken map[string]string) string {
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", id, i)
		if _, exists := taken[candidate]; !exists {
			return candidate
		}
	}
}
