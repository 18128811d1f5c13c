package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/render"
)

// CheckResult is the outcome of checking one document.
type CheckResult struct {
	File        string              `json:"file"`
	Valid       bool                `json:"valid"`
	Slots       int                 `json:"slots"`
	Diagnostics []markup.Diagnostic `json:"diagnostics"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <document>...",
		Short: "Parse and validate documents",
		Long: `Parse each document, check its structure and compile its runtime
slots against the asset banks next to it.

Exit codes:
  0 - All documents valid
  1 - One or more documents have fail-level diagnostics
  2 - Command error (unreadable file, etc.)

Examples:
  livedoc check talk.ld
  livedoc check docs/*.ld --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	results := make([]CheckResult, 0, len(paths))
	failed := 0
	for _, path := range paths {
		res, err := checkDocument(path)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", path), err)
		}
		out.VerboseLog("checked %s: %d diagnostics, %d slots", path, len(res.Diagnostics), res.Slots)
		if !res.Valid {
			failed++
		}
		results = append(results, res)
	}

	if opts.Format == "json" {
		if err := out.Success(results); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, res := range results {
			writeCheckText(w, res)
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d documents invalid", failed, len(paths)))
	}
	return nil
}

// checkDocument parses, checks and compiles the document at path.
func checkDocument(path string) (CheckResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CheckResult{}, err
	}
	res := CheckResult{File: path}
	doc, diags := markup.ParseAndCheck(path, string(data))
	res.Diagnostics = append([]markup.Diagnostic{}, diags...)
	if doc != nil && !markup.HasErrors(diags) {
		banks, err := render.ResolveBanks(os.DirFS(filepath.Dir(path)), doc)
		if err == nil {
			var prog *render.Program
			prog, err = render.Compile(doc, banks)
			if err == nil {
				res.Slots = len(prog.Slots)
			}
		}
		if err != nil {
			res.Diagnostics = append(res.Diagnostics,
				markup.NewDiagnostic(path, "", markup.Span{}, markup.LevelFail, "runtime-compile", err.Error()))
		}
	}
	res.Valid = !markup.HasErrors(res.Diagnostics)
	return res, nil
}

func writeCheckText(w io.Writer, res CheckResult) {
	if res.Valid {
		fmt.Fprintf(w, "✓ %s (%d slots)\n", res.File, res.Slots)
	} else {
		fmt.Fprintf(w, "✗ %s\n", res.File)
	}
	for _, d := range res.Diagnostics {
		loc := res.File
		if d.Location != "" {
			loc = d.Location
		}
		fmt.Fprintf(w, "  %s: %s", loc, d.Level)
		if d.Code != "" {
			fmt.Fprintf(w, " [%s]", d.Code)
		}
		fmt.Fprintf(w, " %s\n", d.Message)
		if d.Excerpt != nil {
			fmt.Fprintf(w, "    %s\n    %s\n", d.Excerpt.Text, d.Excerpt.Caret)
		}
		if d.Suggestion != "" {
			fmt.Fprintf(w, "    hint: %s\n", d.Suggestion)
		}
	}
}
