package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/client"
	"github.com/roach88/livedoc/internal/transform"
	"github.com/roach88/livedoc/internal/wire"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Server string
	Args   string
	File   string

	// IDs allows overriding the write id generator (for testing).
	IDs client.IDGenerator
}

// ApplyResult is the success payload of the apply command.
type ApplyResult struct {
	Op       string `json:"op"`
	Changed  bool   `json:"changed"`
	Revision int64  `json:"revision"`
	Selected string `json:"selected,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <op>",
		Short: "Send one edit to a running server",
		Long: `Send a transform to a running livedoc server through the edit protocol
client. Args are the operation's JSON arguments.

Operations: ` + strings.Join(transform.Operations(), ", ") + `

Examples:
  livedoc apply setTextNodeContent --args '{"id":"p1","text":"Hello"}'
  livedoc apply removeNode --args '{"id":"fig2"}' --server http://127.0.0.1:8080
  livedoc apply addFigure --args '{"bankName":"media","tags":["hero"]}' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "", "server URL (default http://<addr> from config)")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "operation arguments as JSON")
	cmd.Flags().StringVar(&opts.File, "file", "", "document path the edit targets (default: the server's document)")

	return cmd
}

func runApply(opts *ApplyOptions, opName string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	out := opts.formatter(cmd)

	file := opts.File
	if file != "" {
		if file, err = filepath.Abs(file); err != nil {
			return WrapExitError(ExitCommandError, "failed to resolve document path", err)
		}
	}
	op, err := transform.Decode(file, opName, json.RawMessage(opts.Args))
	if err != nil {
		var details any
		var te *transform.Error
		if errors.As(err, &te) {
			details = te.Diagnostics
		}
		_ = out.Error(CodeEditRejected, err.Error(), details)
		return WrapExitError(ExitCommandError, "invalid operation", err)
	}

	server := opts.Server
	if server == "" {
		server = "http://" + cfg.Addr
	}
	tr, err := client.NewHTTPTransport(server,
		client.WithTimeout(cfg.ClientTimeout()),
		client.WithTransportLogger(slog.Default()),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid server URL", err)
	}

	copts := []client.Option{client.WithFile(file), client.WithNotifier(quietNotifier{})}
	if opts.IDs != nil {
		copts = append(copts, client.WithIDs(opts.IDs))
	}
	c := client.New(tr, copts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.Resync(ctx); err != nil {
		_ = out.Error(CodeUnreachable, err.Error(), nil)
		return WrapExitError(ExitCommandError, "server unreachable", err)
	}
	out.VerboseLog("synced with %s at revision %d", server, c.State().DocRev)

	res, err := c.Apply(ctx, editFor(op))
	writeID := c.State().LastWriteID
	switch {
	case client.IsRejected(err):
		_ = out.Error(CodeEditRejected, err.Error(), res.Diagnostics)
		return WrapExitError(ExitFailure, "edit rejected", err)
	case err != nil:
		_ = out.Error(CodeUnreachable, err.Error(), map[string]any{"retry": client.IsTransportFailure(err)})
		return WrapExitError(ExitCommandError, "edit not delivered", err)
	}

	result := ApplyResult{Op: op.Name(), Changed: res.Changed, Revision: c.State().DocRev, Selected: res.SelectedID}
	if opts.Format == "json" {
		return out.SuccessWithWriteID(result, writeID)
	}
	return out.Success(describeApply(result, res))
}

// editFor wraps a decoded operation as an editor intent. Text edits get
// the whole-node fallback.
func editFor(op transform.Operation) client.EditorTransform {
	switch o := op.(type) {
	case transform.SetTextNodeContent:
		return client.EditText{ID: o.ID, Text: o.Text}
	case transform.SetSource:
		return client.ReplaceSource{Source: o.Source}
	case transform.SetNodeProps:
		return client.EditProps{ID: o.ID, Props: o.Props, Remove: o.Remove}
	}
	return client.Structural{Op: op}
}

func describeApply(r ApplyResult, res wire.TransformResult) string {
	if !r.Changed {
		return fmt.Sprintf("%s: no change (revision %d)", r.Op, r.Revision)
	}
	s := fmt.Sprintf("%s: committed revision %d", r.Op, r.Revision)
	if r.Selected != "" {
		s += ", selected " + r.Selected
	}
	if len(res.Diagnostics) > 0 {
		s += fmt.Sprintf(" (%d diagnostics)", len(res.Diagnostics))
	}
	return s
}

// quietNotifier drops client notices; apply reports outcomes itself.
type quietNotifier struct{}

func (quietNotifier) Notify(client.Notice) {}
