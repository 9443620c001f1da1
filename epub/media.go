package epub

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
	"github.com/h2non/filetype"
)

var mediaTypes = map[string]string{
	".xhtml": "application/xhtml+xml",
	".html":  "application/xhtml+xml",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".ncx":   "application/x-dtbncx+xml",
	".css":   "text/css",
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".svg":  true,
}

// MediaTypeFor maps a file to its manifest media type: extension first, then
// a content sniff for extensions the table does not know. Empty result means
// the file does not belong in the manifest.
func MediaTypeFor(path string) string {
	if mt, ok := mediaTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return sniffMediaType(path)
}

func sniffMediaType(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if n == 0 && err != nil {
		return ""
	}
	t, err := filetype.Match(head[:n])
	if err != nil || t == filetype.Unknown {
		return ""
	}
	return t.MIME.Value
}

var plainID = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9._-]*$`)

// ManifestIDFor derives a stable manifest identifier from a file name,
// keeping the naming conventions the books already use.
func ManifestIDFor(name string) string {
	switch name {
	case NavFile:
		return "nav"
	case NCXFile:
		return "ncx"
	case "cover.xhtml":
		return "cover"
	case "copyright.xhtml":
		return "copyright"
	case "translators.xhtml":
		return "translators"
	case "cover.jpeg", "cover.jpg":
		return "cover-img"
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if !plainID.MatchString(stem) {
		// story files are expected to carry plain ascii names already,
		// anything else gets slugified so the id stays a valid name
		stem = slug.Make(stem)
	}
	if imageExts[strings.ToLower(filepath.Ext(name))] {
		return stem + "-img"
	}
	return stem
}

// propertiesFor returns the manifest properties attribute value for a file.
func propertiesFor(name string) string {
	switch name {
	case NavFile:
		return "nav"
	case "cover.jpeg", "cover.jpg":
		return "cover-image"
	}
	return ""
}
