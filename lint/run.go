package lint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"anth/epub"
	"anth/state"
)

// RunScan implements the "scan" command: a read-only structure and
// punctuation report over one track directory.
func RunScan(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("scan")

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		return errors.New("no track directory has been specified")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	lang := ""
	if pkg, err := epub.LoadPackage(filepath.Join(dir, epub.PackageFile)); err == nil {
		lang = pkg.Language()
		if err := CheckLanguage(lang); err != nil {
			log.Warn("Package language is not a well-formed tag", zap.String("lang", lang), zap.Error(err))
		}
	} else {
		log.Warn("Unable to read package document, assuming english", zap.Error(err))
	}

	s := &Scanner{Dir: dir, Lang: lang, Exclude: env.Cfg.Book.Layout.IsExcluded}
	reports, err := s.ScanAll()
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return errors.New("no story documents found in " + dir)
	}

	if css := filepath.Join(dir, "stylesheet.css"); fileExists(css) {
		issues, err := CheckStylesheet(css)
		if err != nil {
			return err
		}
		for _, msg := range issues {
			log.Warn("Stylesheet problem", zap.String("file", "stylesheet.css"), zap.String("problem", msg))
		}
	}

	printScanSummary(os.Stdout, reports)
	return nil
}

func printScanSummary(w *os.File, reports []FileReport) {
	parseErrors, structBad, punctBad := 0, 0, 0
	totals := make(map[string]int)
	for _, r := range reports {
		if r.ParseError != "" {
			parseErrors++
		}
		if len(r.StructureIssues) > 0 {
			structBad++
		}
		bad := false
		for k, v := range r.PunctCounts {
			totals[k] += v
			if v > 0 {
				bad = true
			}
		}
		if bad {
			punctBad++
		}
	}

	fmt.Fprintln(w, "SUMMARY")
	fmt.Fprintln(w, "files", len(reports))
	fmt.Fprintln(w, "parse_errors", parseErrors)
	fmt.Fprintln(w, "structure_issue_files", structBad)
	fmt.Fprintln(w, "punct_issue_files", punctBad)

	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintln(w, k, totals[k])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "STRUCTURE_ISSUES")
	for _, r := range reports {
		if len(r.StructureIssues) > 0 {
			fmt.Fprintln(w, r.Name, r.StructureIssues)
		}
	}
}

// RunProof implements the "proof" command: local proofreading heuristics
// with a human-readable report on stdout.
func RunProof(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("proof")

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		return errors.New("no track directory has been specified")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	p, err := NewProofer(dir, env.Cfg.Book.Layout.IsExcluded)
	if err != nil {
		return err
	}
	issues, err := p.ProofAll()
	if err != nil {
		return err
	}

	byKind := make(map[string]int)
	for _, is := range issues {
		byKind[is.Kind]++
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s\n", is.File, is.Kind, is.Message, is.Snippet)
	}
	log.Info("Proofreading pass completed", zap.Int("findings", len(issues)), zap.Any("by_kind", byKind))
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
