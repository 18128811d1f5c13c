package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/livedoc/internal/transform"
)

// Scenario is one transform conformance test.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Document is the starting source. DocumentFile loads it from disk
	// instead.
	Document     string `yaml:"document,omitempty"`
	DocumentFile string `yaml:"document_file,omitempty"`

	// Assets lists files that asset banks can match.
	Assets []string `yaml:"assets,omitempty"`

	// Setup steps must all succeed; they are not traced.
	Setup []Step `yaml:"setup,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one transform request.
type Step struct {
	Op      string         `yaml:"op"`
	Args    map[string]any `yaml:"args"`
	WriteID string         `yaml:"write_id,omitempty"`
	Expect  *ExpectClause  `yaml:"expect,omitempty"`
}

// ExpectClause checks a step's result. Unset fields are not checked.
type ExpectClause struct {
	OK       *bool  `yaml:"ok,omitempty"`
	Changed  *bool  `yaml:"changed,omitempty"`
	Code     string `yaml:"code,omitempty"`
	Selected string `yaml:"selected,omitempty"`
}

// Assertion checks the state after the flow.
type Assertion struct {
	Type     string `yaml:"type"`
	Text     string `yaml:"text,omitempty"`
	ID       string `yaml:"id,omitempty"`
	Kind     string `yaml:"kind,omitempty"`
	Parent   string `yaml:"parent,omitempty"`
	Ancestor string `yaml:"ancestor,omitempty"`
	Code     string `yaml:"code,omitempty"`
	Count    *int   `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertSourceContains = "source_contains"
	AssertSourceExcludes = "source_excludes"
	AssertNodeExists     = "node_exists"
	AssertNodeAbsent     = "node_absent"
	AssertChildCount     = "child_count"
	AssertRevision       = "revision"
	AssertHistoryCount   = "history_count"
	AssertDiagnostic     = "diagnostic"
)

// LoadScenario reads a scenario file. Unknown fields are rejected so a
// misspelt key fails loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if s.DocumentFile != "" {
		if s.Document != "" {
			return nil, fmt.Errorf("invalid scenario: document and document_file are mutually exclusive")
		}
		docPath := s.DocumentFile
		if !filepath.IsAbs(docPath) {
			docPath = filepath.Join(filepath.Dir(path), docPath)
		}
		src, err := os.ReadFile(docPath)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: document_file: %w", err)
		}
		s.Document = string(src)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Document == "" {
		return fmt.Errorf("document or document_file is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	known := map[string]bool{}
	for _, op := range transform.Operations() {
		known[op] = true
	}
	for i, step := range s.Setup {
		if err := validateStep(known, step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(known, step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(known map[string]bool, step Step) error {
	if step.Op == "" {
		return fmt.Errorf("op is required")
	}
	if !known[step.Op] {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Args == nil {
		return fmt.Errorf("args is required (use {} if there are none)")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertSourceContains, AssertSourceExcludes:
		if a.Text == "" {
			return fmt.Errorf("text is required for %s", a.Type)
		}
	case AssertNodeExists, AssertNodeAbsent:
		if a.ID == "" {
			return fmt.Errorf("id is required for %s", a.Type)
		}
	case AssertChildCount:
		if a.ID == "" || a.Count == nil {
			return fmt.Errorf("id and count are required for child_count")
		}
	case AssertRevision, AssertHistoryCount:
		if a.Count == nil {
			return fmt.Errorf("count is required for %s", a.Type)
		}
	case AssertDiagnostic:
		if a.Code == "" {
			return fmt.Errorf("code is required for diagnostic")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Count != nil && *a.Count < 0 {
		return fmt.Errorf("count must be non-negative")
	}
	return nil
}
