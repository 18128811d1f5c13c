// Package config loads livedoc settings from an optional YAML file.
//
// The file is checked against an embedded CUE schema before it is decoded,
// so a typo in a key or a negative interval is reported with its position
// instead of being silently ignored. Command-line flags are applied on top
// by the CLI.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// DefaultFile is looked up next to the document when no --config is given.
const DefaultFile = "livedoc.yaml"

// Config holds server and client settings.
type Config struct {
	Addr            string `yaml:"addr" json:"addr"`
	DocstepMs       int64  `yaml:"docstep_ms" json:"docstep_ms"`
	AdvanceTime     bool   `yaml:"advance_time" json:"advance_time"`
	Seed            int64  `yaml:"seed" json:"seed"`
	HeartbeatMs     int64  `yaml:"heartbeat_ms" json:"heartbeat_ms"`
	Journal         string `yaml:"journal" json:"journal"`
	Paused          bool   `yaml:"paused" json:"paused"`
	ClientTimeoutMs int64  `yaml:"client_timeout_ms" json:"client_timeout_ms"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:            "127.0.0.1:7878",
		DocstepMs:       1000,
		AdvanceTime:     true,
		HeartbeatMs:     15000,
		ClientTimeoutMs: 9000,
	}
}

// DocstepInterval is DocstepMs as a duration.
func (c Config) DocstepInterval() time.Duration {
	return time.Duration(c.DocstepMs) * time.Millisecond
}

// Heartbeat is HeartbeatMs as a duration.
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatMs) * time.Millisecond
}

// ClientTimeout is ClientTimeoutMs as a duration.
func (c Config) ClientTimeout() time.Duration {
	return time.Duration(c.ClientTimeoutMs) * time.Millisecond
}

// Error codes.
const (
	CodeRead   = "config-read"
	CodeSyntax = "config-syntax"
	CodeSchema = "config-schema"
)

// Error is a configuration problem, with the position in the file when
// one is known.
type Error struct {
	Code    string
	File    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() && e.Pos.Line() > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.File, e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
}

// IsConfigError reports whether err is a configuration problem.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Load reads path over the defaults. A missing file is an error; use
// LoadOptional when the file may be absent.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Code: CodeRead, File: path, Message: err.Error()}
	}
	return Parse(path, data)
}

// LoadOptional is Load, returning the defaults when path does not exist.
func LoadOptional(path string) (Config, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	cfg, err := Load(path)
	return cfg, err == nil, err
}

// Parse validates and decodes YAML data. file names the source in errors.
func Parse(file string, data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, &Error{Code: CodeSyntax, File: file, Message: err.Error()}
	}
	if raw == nil {
		return Default(), nil
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, schemaError(file, err)
	}

	cfg := Default()
	if err := v.Decode(&cfg); err != nil {
		return Config{}, schemaError(file, err)
	}
	return cfg, nil
}

func schemaError(file string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: CodeSchema, File: file, Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	msg := fmt.Sprintf(format, args...)
	if p := first.Path(); len(p) > 0 {
		msg = fmt.Sprintf("%s: %s", p[len(p)-1], msg)
	}
	return &Error{Code: CodeSchema, File: file, Message: msg, Pos: first.Position()}
}
