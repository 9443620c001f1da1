// Package archive inspects finished EPUB containers.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	// MimetypeContent is the exact body of the mimetype entry the OCF
	// specification requires.
	MimetypeContent = "application/epub+zip"

	containerEntry = "META-INF/container.xml"
	packageEntry   = "content.opf"
)

// WalkFunc is called for each matching entry of the container. The container
// argument is the path passed to Walk, f describes the entry. Returning an
// error stops the walk.
type WalkFunc func(container string, f *zip.File) error

// Walk visits every file entry of the container whose name starts with
// prefix, in archive order. Entries with absolute or traversing names abort
// the walk, a container carrying them is not trusted at all.
func Walk(container, prefix string, walkFn WalkFunc) error {
	r, err := zip.OpenReader(container)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name := f.FileHeader.Name
		if !isSafePath(name) {
			return fmt.Errorf("container entry %q: unsafe path", name)
		}
		if f.FileInfo().IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := walkFn(container, f); err != nil {
			return err
		}
	}
	return nil
}

// VerifyContainer checks the structural requirements a reading system relies
// on: the mimetype entry comes first, is stored uncompressed with the exact
// OCF body, and both the OCF container descriptor and the package document
// are present.
func VerifyContainer(container string) error {
	r, err := zip.OpenReader(container)
	if err != nil {
		return err
	}
	defer r.Close()

	if len(r.File) == 0 {
		return errors.New("container is empty")
	}

	first := r.File[0]
	if first.Name != "mimetype" {
		return fmt.Errorf("first entry is %q, not mimetype", first.Name)
	}
	if first.Method != zip.Store {
		return errors.New("mimetype entry is compressed")
	}
	body, err := readEntry(first)
	if err != nil {
		return fmt.Errorf("unable to read mimetype entry: %w", err)
	}
	if string(body) != MimetypeContent {
		return fmt.Errorf("mimetype entry holds %q", body)
	}

	seen := make(map[string]bool, len(r.File))
	for _, f := range r.File {
		if !isSafePath(f.Name) {
			return fmt.Errorf("container entry %q: unsafe path", f.Name)
		}
		seen[f.Name] = true
	}
	if !seen[containerEntry] {
		return fmt.Errorf("missing %s", containerEntry)
	}
	if !seen[packageEntry] {
		return fmt.Errorf("missing %s", packageEntry)
	}
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
