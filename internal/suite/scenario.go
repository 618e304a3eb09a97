package suite

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Scenario describes a page, a timeline of changes to it, and the snippets
// run against it in order.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description" json:"description"`

	// Page is the inline HTML the scenario starts from.
	Page string `yaml:"page,omitempty" json:"page,omitempty"`

	// PageFile is an HTML file, relative to the scenario file. Exclusive
	// with Page.
	PageFile string `yaml:"page_file,omitempty" json:"page_file,omitempty"`

	// TimeoutMS overrides the default polling budget of every primitive.
	TimeoutMS int `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`

	// PollMS overrides the delay between polls.
	PollMS int `yaml:"poll_ms,omitempty" json:"poll_ms,omitempty"`

	// Mutations change the page while steps run.
	Mutations []Mutation `yaml:"mutations,omitempty" json:"mutations,omitempty"`

	// Steps are evaluated sequentially against the same page.
	Steps []Step `yaml:"steps" json:"steps"`
}

// Mutation is one scheduled change to the page.
type Mutation struct {
	// AfterMS is the delay from the start of the run.
	AfterMS int `yaml:"after_ms" json:"after_ms"`

	// Op is one of the Op* constants.
	Op string `yaml:"op" json:"op"`

	Selector string `yaml:"selector,omitempty" json:"selector,omitempty"`
	HTML     string `yaml:"html,omitempty" json:"html,omitempty"`
	Attr     string `yaml:"attr,omitempty" json:"attr,omitempty"`
	Value    string `yaml:"value,omitempty" json:"value,omitempty"`
	Text     string `yaml:"text,omitempty" json:"text,omitempty"`
}

// Mutation operations.
const (
	OpAppend  = "append"
	OpSetHTML = "set_html"
	OpRemove  = "remove"
	OpSetAttr = "set_attr"
	OpSetText = "set_text"
	OpReplace = "replace"
)

// Step is a snippet plus what its result should look like.
type Step struct {
	// Name labels the step in reports. Defaults to its index.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Script is the body of the inner async function.
	Script string `yaml:"script" json:"script"`

	// Expect is checked against the result. If nil, any result passes.
	Expect *Expect `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// Expect lists the checks applied to a step result. Every set field is
// checked; all mismatches are reported.
type Expect struct {
	// Pass requires the result to have no humane errors (true) or at least
	// one (false).
	Pass *bool `yaml:"pass,omitempty" json:"pass,omitempty"`

	// Errors must equal the humane errors exactly, in order.
	Errors []string `yaml:"errors,omitempty" json:"errors,omitempty"`

	// ErrorsContain must each be a substring of some humane error.
	ErrorsContain []string `yaml:"errors_contain,omitempty" json:"errors_contain,omitempty"`

	// Response is compared with the inner response as JSON.
	Response any `yaml:"response,omitempty" json:"response,omitempty"`

	// LogsContain must each be a substring of the captured logs.
	LogsContain []string `yaml:"logs_contain,omitempty" json:"logs_contain,omitempty"`
}

// LoadError is a scenario file that could not be read or decoded.
type LoadError struct {
	Path    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// IsScenarioFile reports whether path has a scenario extension.
func IsScenarioFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".cue":
		return true
	}
	return false
}

// LoadScenario reads a scenario file. YAML files are decoded strictly, so
// unknown fields (typos) are rejected; .cue files are evaluated with CUE and
// must not define unknown top-level fields either. A page_file is resolved
// relative to the scenario and inlined into Page.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario *Scenario
	if filepath.Ext(path) == ".cue" {
		scenario, err = decodeCUE(path, data)
	} else {
		scenario, err = decodeYAML(path, data)
	}
	if err != nil {
		return nil, err
	}

	if scenario.PageFile != "" && scenario.Page == "" {
		pagePath := scenario.PageFile
		if !filepath.IsAbs(pagePath) {
			pagePath = filepath.Join(filepath.Dir(path), pagePath)
		}
		page, err := os.ReadFile(pagePath)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: page file: %w", err)
		}
		scenario.Page = string(page)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

func decodeYAML(path string, data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("failed to parse YAML: %v", err)}
	}
	return &scenario, nil
}

// scenarioFields are the top-level fields a CUE scenario may define.
var scenarioFields = map[string]bool{
	"name": true, "description": true, "page": true, "page_file": true,
	"timeout_ms": true, "poll_ms": true, "mutations": true, "steps": true,
}

func decodeCUE(path string, data []byte) (*Scenario, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, cueLoadError(path, err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(path, err)
	}

	iter, err := value.Fields()
	if err != nil {
		return nil, cueLoadError(path, err)
	}
	var unknown []string
	for iter.Next() {
		if !scenarioFields[iter.Selector().String()] {
			unknown = append(unknown, iter.Selector().String())
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("unknown fields %v", unknown)}
	}

	var scenario Scenario
	if err := value.Decode(&scenario); err != nil {
		return nil, cueLoadError(path, err)
	}
	return &scenario, nil
}

// cueLoadError keeps the position of the first CUE error.
func cueLoadError(path string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Path: path, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Path: path, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Page == "" {
		return fmt.Errorf("page or page_file is required")
	}
	if s.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms must be non-negative")
	}
	if s.PollMS < 0 {
		return fmt.Errorf("poll_ms must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, m := range s.Mutations {
		if err := validateMutation(i, &m); err != nil {
			return err
		}
	}
	for i, step := range s.Steps {
		if step.Script == "" {
			return fmt.Errorf("steps[%d]: script is required", i)
		}
	}
	return nil
}

// validateMutation validates a single mutation based on its op.
func validateMutation(index int, m *Mutation) error {
	if m.AfterMS < 0 {
		return fmt.Errorf("mutations[%d]: after_ms must be non-negative", index)
	}

	switch m.Op {
	case OpAppend, OpSetHTML, OpRemove, OpSetText:
		if m.Selector == "" {
			return fmt.Errorf("mutations[%d]: selector is required for %s", index, m.Op)
		}
	case OpSetAttr:
		if m.Selector == "" || m.Attr == "" {
			return fmt.Errorf("mutations[%d]: selector and attr are required for set_attr", index)
		}
	case OpReplace:
		if m.HTML == "" {
			return fmt.Errorf("mutations[%d]: html is required for replace", index)
		}
	case "":
		return fmt.Errorf("mutations[%d]: op is required", index)
	default:
		return fmt.Errorf("mutations[%d]: unknown op %q", index, m.Op)
	}
	return nil
}
