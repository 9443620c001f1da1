package epub

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"anth/state"
)

// Run implements the "regen" command: rebuild content.opf, nav.xhtml and
// toc.ncx of the track directory given on the command line.
func Run(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("regen")

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		return errors.New("no track directory has been specified")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many arguments", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	r := &Regenerator{
		Dir:        dir,
		Exclude:    env.Cfg.Book.Layout.IsExcluded,
		TOCExclude: env.Cfg.Book.Layout.IsTocExcluded,
		Log:        log,
	}

	res, err := r.Compute()
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		log.Warn("Inconsistent document", zap.String("file", w.Path), zap.String("reason", w.Reason))
	}

	// keep pre-run artifacts around when debug report was requested
	for _, name := range []string{PackageFile, NavFile, NCXFile} {
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			env.Rpt.StoreData("before/"+name, data)
		}
	}

	if env.DryRun {
		log.Info("Dry run, leaving index artifacts alone")
	} else if err := r.Apply(res); err != nil {
		return err
	}

	log.Info("Regeneration completed",
		zap.String("dir", dir),
		zap.Int("documents", res.Documents),
		zap.Strings("added", res.Added),
		zap.Strings("removed", res.Removed))
	return nil
}
