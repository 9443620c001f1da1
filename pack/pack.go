// Package pack turns a track directory into a finished EPUB container.
package pack

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/beevik/etree"
	fixzip "github.com/hidez8891/zip"
	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"anth/archive"
	"anth/config"
	"anth/epub"
	"anth/state"
)

const containerFile = "META-INF/container.xml"

// Packager zips one track directory into an EPUB container.
type Packager struct {
	Dir    string
	Output string

	// FixZip rewrites the finished container without data descriptors,
	// some reading systems reject entries carrying them.
	FixZip bool

	Log *zap.Logger
}

// Package builds the container: the mimetype entry comes first and stored,
// everything else follows in natural name order, deflated. The result is
// verified before it replaces anything at the output path.
func (p *Packager) Package() error {
	data, err := os.ReadFile(filepath.Join(p.Dir, epub.MimetypeFile))
	if err != nil {
		return fmt.Errorf("unable to read mimetype file: %w", err)
	}
	if string(data) != archive.MimetypeContent {
		return fmt.Errorf("mimetype file holds %q, want %q", data, archive.MimetypeContent)
	}
	if _, err := os.Stat(filepath.Join(p.Dir, epub.PackageFile)); err != nil {
		return fmt.Errorf("track directory has no package document: %w", err)
	}

	names, err := p.collect()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p.Output), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.Output), "."+filepath.Base(p.Output)+".*")
	if err != nil {
		return fmt.Errorf("unable to create temporary file for %s: %w", p.Output, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := p.write(tmp, names); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to finalize output file: %w", err)
	}

	if p.FixZip {
		if err := copyZipWithoutDataDescriptors(tmpName, p.Output); err != nil {
			return err
		}
	} else if err := os.Rename(tmpName, p.Output); err != nil {
		return fmt.Errorf("unable to replace %s: %w", p.Output, err)
	}
	return archive.VerifyContainer(p.Output)
}

// collect lists container entry names relative to the track directory, in
// natural order, without the mimetype entry which is always written first.
func (p *Packager) collect() ([]string, error) {
	var names []string
	err := filepath.WalkDir(p.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.Dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == epub.MimetypeFile || filepath.Base(rel) == ".DS_Store" {
			return nil
		}
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Sort(natural.StringSlice(names))
	return names, nil
}

func (p *Packager) write(f *os.File, names []string) error {
	zw := zip.NewWriter(f)

	if err := writeMimetype(zw); err != nil {
		return fmt.Errorf("unable to write mimetype: %w", err)
	}

	haveContainer := false
	for _, name := range names {
		if name == containerFile {
			haveContainer = true
		}
		if err := writeEntry(zw, p.Dir, name); err != nil {
			return fmt.Errorf("unable to write entry %s: %w", name, err)
		}
	}
	if !haveContainer {
		if err := writeContainerDescriptor(zw); err != nil {
			return fmt.Errorf("unable to write container descriptor: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("unable to close output archive: %w", err)
	}
	return nil
}

func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   epub.MimetypeFile,
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, archive.MimetypeContent)
	return err
}

func writeEntry(zw *zip.Writer, dir, name string) error {
	in, err := os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// writeContainerDescriptor generates the OCF descriptor for track
// directories that keep the package document at the root and do not carry
// their own META-INF.
func writeContainerDescriptor(zw *zip.Writer) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	container := doc.CreateElement("container")
	container.CreateAttr("version", "1.0")
	container.CreateAttr("xmlns", "urn:oasis:names:tc:opendocument:xmlns:container")

	rootfile := container.CreateElement("rootfiles").CreateElement("rootfile")
	rootfile.CreateAttr("full-path", epub.PackageFile)
	rootfile.CreateAttr("media-type", "application/oebps-package+xml")

	doc.Indent(2)
	data, err := doc.WriteToBytes()
	if err != nil {
		return err
	}
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     containerFile,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func copyZipWithoutDataDescriptors(from, to string) error {
	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("unable to create target file (%s): %w", to, err)
	}
	defer out.Close()

	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	defer w.Close()

	for _, file := range r.File {
		// unset data descriptor flag.
		file.Flags &= ^fixzip.FlagDataDescriptor

		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("unable to write target file (%s): %w", to, err)
		}
	}
	return nil
}

// Run implements the "package" command.
func Run(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("package")

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		return errors.New("no track directory has been specified")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	output := cmd.Args().Get(1)
	if output == "" {
		prior, err := epub.LoadPackage(filepath.Join(dir, epub.PackageFile))
		if err != nil {
			return err
		}
		name, err := expandOutputName(env.Cfg.Book.Package.OutputNameTemplate, &nameValues{
			Context:   string(config.OutputNameTemplateFieldName),
			Track:     filepath.Base(dir),
			Title:     prior.Title(),
			Language:  prior.Language(),
			Date:      time.Now().Format("2006-01-02"),
			Documents: len(prior.Spine),
		})
		if err != nil {
			return err
		}
		output = filepath.Join(filepath.Dir(dir), name)
	}
	output, err = filepath.Abs(output)
	if err != nil {
		return err
	}

	p := &Packager{
		Dir:    dir,
		Output: output,
		FixZip: env.Cfg.Book.Package.FixZip,
		Log:    log,
	}

	if env.DryRun {
		log.Info("Dry run, not producing container", zap.String("output", output))
		return nil
	}
	if err := p.Package(); err != nil {
		return err
	}
	log.Info("Container produced", zap.String("dir", dir), zap.String("output", output))
	return nil
}
