package fix

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"anth/epub"
	"anth/state"
)

// FixContent applies every mechanical correction to one document and reports
// whether anything changed. Line oriented fixes run before the punctuation
// pass so the latter sees the canonical metadata block.
func FixContent(data []byte, credit string) ([]byte, bool) {
	content, changed := syncTitleToHeading(string(data))

	lines := strings.Split(content, "\n")
	if fixMetadataLabels(lines) {
		changed = true
	}
	if credit != "" {
		var ins bool
		lines, ins = insertLocalizationCredit(lines, credit)
		changed = changed || ins
	}
	lines, ins := ensureFinalHr(lines)
	changed = changed || ins

	fixed := transformTextNodes([]byte(strings.Join(lines, "\n")), NewQuoteState().Convert)
	if !changed && string(fixed) != string(data) {
		changed = true
	}
	return fixed, changed
}

// Fixer walks a track directory and fixes every story document in place.
type Fixer struct {
	Dir     string
	Exclude func(name string) bool

	// Credit, when set, is the localization paragraph added to metadata
	// blocks missing it.
	Credit string

	// Check reports files needing fixes without writing anything.
	Check bool

	Log *zap.Logger
}

// FixAll returns the names of the files that changed (or would change).
func (f *Fixer) FixAll() ([]string, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".xhtml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var changed []string
	for _, name := range names {
		if f.Exclude != nil && f.Exclude(name) {
			continue
		}
		path := filepath.Join(f.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		fixed, dirty := FixContent(data, f.Credit)
		if !dirty {
			continue
		}
		changed = append(changed, name)
		if f.Check {
			continue
		}
		if err := epub.WriteFileAtomic(path, fixed); err != nil {
			return nil, err
		}
	}
	return changed, nil
}

// Run implements the "fix" command.
func Run(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("fix")

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		return errors.New("no track directory has been specified")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	f := &Fixer{
		Dir:     dir,
		Exclude: env.Cfg.Book.Layout.IsExcluded,
		Check:   cmd.Bool("check") || env.DryRun,
		Log:     log,
	}
	if cmd.Bool("add-localization-credit") {
		f.Credit = env.Cfg.Book.Fix.LocalizationCredit
		if f.Credit == "" {
			return errors.New("no localization credit line has been configured")
		}
	}

	changed, err := f.FixAll()
	if err != nil {
		return err
	}
	for _, name := range changed {
		if f.Check {
			log.Info("Would fix", zap.String("file", name))
		} else {
			log.Info("Fixed", zap.String("file", name))
		}
	}
	log.Info("Fix completed", zap.String("dir", dir), zap.Int("changed", len(changed)))
	return nil
}
