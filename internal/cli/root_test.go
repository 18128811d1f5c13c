package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/config"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeDoc(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "livedoc", cmd.Use)
	assert.Contains(t, cmd.Short, "livedoc")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "check", "fmt", "history", "apply", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
			assert.True(t, sub.SilenceUsage)
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   map[string]string // name -> default
	}{
		{"serve", map[string]string{"addr": "", "journal": "", "docstep-ms": "0", "seed": "0", "paused": "false", "no-watch": "false"}},
		{"fmt", map[string]string{"write": "false", "check": "false", "force": "false"}},
		{"history", map[string]string{"journal": "", "limit": "0", "session": "", "revision": "0"}},
		{"apply", map[string]string{"server": "", "args": "{}", "file": ""}},
		{"test", map[string]string{"update": "false", "filter": "", "golden-dir": ""}},
	}
	root := NewRootCommand()
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := root.Find([]string{tt.command})
			require.NoError(t, err)
			for name, def := range tt.flags {
				f := sub.Flags().Lookup(name)
				require.NotNil(t, f, "flag --%s", name)
				assert.Equal(t, def, f.DefValue, "flag --%s", name)
			}
		})
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, "--format", "invalid", "check", "doc.ld")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	path := writeDoc(t, "livedoc.yaml", "addr: 127.0.0.1:9999\ndocstep_ms: 250\n")
	opts := &RootOptions{Format: "text", Config: path}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Addr)
	assert.Equal(t, int64(250), cfg.DocstepMs)

	bad := writeDoc(t, "livedoc.yaml", "addr: 127.0.0.1:9999\nbogus: 1\n")
	opts.Config = bad
	_, err = opts.loadConfig()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServeOptions_FlagsOverrideConfig(t *testing.T) {
	root := NewRootCommand()
	sub, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, sub.ParseFlags([]string{"--addr", ":9000", "--no-advance-time", "--seed", "7"}))

	opts := &ServeOptions{RootOptions: &RootOptions{}, Addr: ":9000", NoAdvance: true, Seed: 7}
	file := config.Default()
	file.Journal = "from-file.db"
	file.DocstepMs = 500

	cfg := opts.resolve(sub, file)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.False(t, cfg.AdvanceTime)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "from-file.db", cfg.Journal, "unset flags keep file values")
	assert.Equal(t, int64(500), cfg.DocstepMs)
}
