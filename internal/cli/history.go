package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal  string
	Limit    int
	Session  string
	Revision int64
}

// HistoryEntry is one journaled commit in command output.
type HistoryEntry struct {
	Session    string    `json:"session"`
	Revision   int64     `json:"revision"`
	Op         string    `json:"op"`
	WriteID    string    `json:"write_id,omitempty"`
	BeforeHash string    `json:"before_hash,omitempty"`
	AfterHash  string    `json:"after_hash"`
	External   bool      `json:"external,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <document>",
		Short: "Show the commit journal of a document",
		Long: `List the commits journaled for a document across all sessions, oldest
first. With --session and --revision, print the source committed at that
revision instead.

Examples:
  livedoc history talk.ld --journal talk.db
  livedoc history talk.ld --journal talk.db --limit 10 --format json
  livedoc history talk.ld --journal talk.db --session <id> --revision 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite commit journal (default from config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the most recent N commits")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id for --revision")
	cmd.Flags().Int64Var(&opts.Revision, "revision", 0, "print the source committed at this revision")

	return cmd
}

func runHistory(opts *HistoryOptions, docPath string, cmd *cobra.Command) error {
	journal := opts.Journal
	if journal == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		journal = cfg.Journal
	}
	if journal == "" {
		return NewExitError(ExitCommandError, "no journal configured (use --journal)")
	}
	if opts.Revision > 0 && opts.Session == "" {
		return NewExitError(ExitCommandError, "--revision requires --session")
	}

	st, err := store.Open(journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	if opts.Revision > 0 {
		src, err := st.LoadSource(ctx, opts.Session, opts.Revision)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to load revision", err)
		}
		if opts.Format == "json" {
			return out.Success(map[string]any{"session": opts.Session, "revision": opts.Revision, "source": src})
		}
		fmt.Fprint(cmd.OutOrStdout(), src)
		return nil
	}

	abs, err := filepath.Abs(docPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve document path", err)
	}
	commits, err := st.History(ctx, abs, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read history", err)
	}
	out.VerboseLog("read %d commits for %s from %s", len(commits), abs, journal)

	entries := make([]HistoryEntry, len(commits))
	for i, c := range commits {
		entries[i] = HistoryEntry{
			Session:    c.SessionID,
			Revision:   c.Revision,
			Op:         c.Op,
			WriteID:    c.WriteID,
			BeforeHash: c.BeforeHash,
			AfterHash:  c.AfterHash,
			External:   c.External,
			CreatedAt:  c.CreatedAt,
		}
	}
	if opts.Format == "json" {
		return out.Success(entries)
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No commits journaled.")
		return nil
	}
	for _, e := range entries {
		marker := ""
		if e.External {
			marker = " (external)"
		}
		fmt.Fprintf(w, "%s  %-8s r%-4d %-20s %s%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339), shortID(e.Session), e.Revision, e.Op, shortHash(e.AfterHash), marker)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
