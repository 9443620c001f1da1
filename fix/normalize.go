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

// NormalizeContent expands self-closed paragraphs and splits runs of
// paragraphs sharing a line, so every story uses the same blank-line
// separated layout.
func NormalizeContent(data []byte) []byte {
	s := string(data)
	s = strings.ReplaceAll(s, "<p />", "<p></p>")
	s = strings.ReplaceAll(s, "<p/>", "<p></p>")
	s = strings.ReplaceAll(s, "</p><p", "</p>\n\n  <p")
	return []byte(s)
}

// RunNormalize implements the "normalize" command.
func RunNormalize(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("normalize")

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		return errors.New("no track directory has been specified")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	check := cmd.Bool("check") || env.DryRun

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".xhtml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	changed := 0
	for _, name := range names {
		if env.Cfg.Book.Layout.IsExcluded(name) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		normalized := NormalizeContent(data)
		if string(normalized) == string(data) {
			continue
		}
		changed++
		if check {
			log.Info("Would normalize", zap.String("file", name))
			continue
		}
		if err := epub.WriteFileAtomic(path, normalized); err != nil {
			return err
		}
		log.Info("Normalized", zap.String("file", name))
	}

	log.Info("Normalization completed", zap.String("dir", dir), zap.Int("changed", changed))
	return nil
}
