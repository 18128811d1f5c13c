package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/printer"
	"github.com/roach88/livedoc/internal/scan"
)

// FmtOptions holds flags for the fmt command.
type FmtOptions struct {
	*RootOptions
	Write bool // rewrite files in place
	Check bool // only report files that would change
	Force bool // format even if comments would be lost
}

// FmtResult reports one formatted file.
type FmtResult struct {
	File    string `json:"file"`
	Changed bool   `json:"changed"`
	Written bool   `json:"written,omitempty"`
}

// NewFmtCommand creates the fmt command.
func NewFmtCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FmtOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fmt <document>...",
		Short: "Print documents in canonical form",
		Long: `Reprint documents with canonical indentation, property order and
quoting. The formatted text goes to stdout unless --write is given.

Comments are not part of the document tree, so documents containing them
are refused unless --force is given.

Examples:
  livedoc fmt talk.ld
  livedoc fmt --write docs/*.ld
  livedoc fmt --check talk.ld`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFmt(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Write, "write", "w", false, "write result to the source file")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "exit 1 if any file is not formatted")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "format documents that contain comments")

	return cmd
}

func runFmt(opts *FmtOptions, paths []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	results := make([]FmtResult, 0, len(paths))
	unformatted := 0

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", path), err)
		}
		src := string(data)
		doc, diags := markup.ParseAndCheck(path, src)
		if doc == nil || markup.HasErrors(diags) {
			_ = out.Error(CodeInvalidDocument, fmt.Sprintf("%s is not a valid document", path), diags)
			return NewExitError(ExitFailure, fmt.Sprintf("cannot format invalid document %s", path))
		}
		if hasComments(src) && !opts.Force {
			return NewExitError(ExitFailure, fmt.Sprintf("%s contains comments that formatting would drop (use --force)", path))
		}

		formatted := printer.Document(doc)
		res := FmtResult{File: path, Changed: formatted != src}
		if res.Changed {
			unformatted++
		}
		switch {
		case opts.Check:
			if res.Changed && opts.Format != "json" {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
		case opts.Write:
			if res.Changed {
				if err := os.WriteFile(path, []byte(formatted), 0o644); err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("failed to write %s", path), err)
				}
				res.Written = true
				out.VerboseLog("formatted %s", path)
			}
		default:
			if opts.Format != "json" {
				fmt.Fprint(cmd.OutOrStdout(), formatted)
			}
		}
		results = append(results, res)
	}

	if opts.Format == "json" {
		if err := out.Success(results); err != nil {
			return err
		}
	}
	if opts.Check && unformatted > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d files not formatted", unformatted))
	}
	return nil
}

// hasComments reports whether src contains a line or block comment.
func hasComments(src string) bool {
	s := scan.New(src, 0)
	for {
		_, _, st, ok := s.Next()
		if !ok {
			return false
		}
		if st == scan.LineComment || st == scan.BlockComment {
			return true
		}
	}
}
