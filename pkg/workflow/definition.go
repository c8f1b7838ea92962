package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/pilot/pkg/locator"
)

// Definition is the on-disk document holding locators, the action catalog and the
// workflows composed from it.
type Definition struct {
	Locators  map[string]LocatorDef  `yaml:"locators,omitempty" validate:"dive"`
	Actions   map[string]ActionDef   `yaml:"actions" validate:"required,dive"`
	Workflows map[string]WorkflowDef `yaml:"workflows" validate:"required,dive"`
}

// LocatorDef defines one locator.
type LocatorDef struct {
	RequiresScroll bool          `yaml:"requires_scroll,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	Strategies     []StrategyDef `yaml:"strategies" validate:"required,min=1,dive"`
}

// StrategyDef defines one strategy of a locator.
type StrategyDef struct {
	Type     string `yaml:"type" validate:"required,oneof=css xpath id name data-testid aria-label text text-nearby role"`
	Value    string `yaml:"value" validate:"required"`
	Priority int    `yaml:"priority,omitempty" validate:"gte=0"`
}

// ActionDef is an action catalog entry.
type ActionDef struct {
	Action          string         `yaml:"action" validate:"required,oneof=click fill select check hover scroll wait wait-time press-key screenshot assert-text assert-visible"`
	Locator         string         `yaml:"locator,omitempty"`
	Value           string         `yaml:"value,omitempty"`
	Field           string         `yaml:"field,omitempty" validate:"excluded_with=Value"`
	Delay           time.Duration  `yaml:"delay,omitempty"`
	Sleep           time.Duration  `yaml:"sleep,omitempty"`
	Timeout         time.Duration  `yaml:"timeout,omitempty"`
	MaxRetries      int            `yaml:"max_retries,omitempty" validate:"gte=0,lte=50"`
	Clear           bool           `yaml:"clear,omitempty"`
	Keys            string         `yaml:"keys,omitempty"`
	Precheck        string         `yaml:"precheck,omitempty"`
	SaveAs          string         `yaml:"save_as,omitempty"`
	ContinueOnError bool           `yaml:"continue_on_error,omitempty"`
	OnError         string         `yaml:"on_error,omitempty"`
	Allocate        *AllocationDef `yaml:"allocate,omitempty"`
}

// AllocationDef configures identifier allocation for a fill action.
type AllocationDef struct {
	Category       string `yaml:"category" validate:"required"`
	Prefix         string `yaml:"prefix,omitempty"`
	Width          int    `yaml:"width,omitempty" validate:"gte=0,lte=20"`
	Start          int64  `yaml:"start,omitempty" validate:"gte=0"`
	MaxAttempts    int    `yaml:"max_attempts,omitempty" validate:"gte=0"`
	BannerLocator  string `yaml:"banner_locator,omitempty" validate:"required_without=BannerText"`
	BannerText     string `yaml:"banner_text,omitempty"`
	DismissLocator string `yaml:"dismiss_locator,omitempty"`
}

// WorkflowDef is an ordered list of step references.
type WorkflowDef struct {
	ConditionField string    `yaml:"condition_field,omitempty"`
	KeyField       string    `yaml:"key_field,omitempty"`
	StrictBranches bool      `yaml:"strict_branches,omitempty"`
	Steps          []StepRef `yaml:"steps" validate:"required,min=1"`
}

// StepRef is either an action key or a conditional mapping from category code to
// action key, with an optional "default" entry.
type StepRef struct {
	Action      string
	Conditional map[string]string
}

func (r *StepRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		r.Action = node.Value
		return nil
	case yaml.MappingNode:
		var wrapper struct {
			Conditional map[string]string `yaml:"conditional"`
		}
		if err := node.Decode(&wrapper); err != nil {
			return err
		}
		if len(wrapper.Conditional) == 0 {
			return fmt.Errorf("line %d: step mapping needs a non-empty conditional", node.Line)
		}
		r.Conditional = wrapper.Conditional
		return nil
	}
	return fmt.Errorf("line %d: step must be an action key or a conditional mapping", node.Line)
}

func (r StepRef) MarshalYAML() (interface{}, error) {
	if r.Conditional != nil {
		return map[string]map[string]string{"conditional": r.Conditional}, nil
	}
	return r.Action, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates a definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes and validates a definition document. Unknown keys are rejected.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: invalid definition: %v", ErrConfiguration, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks field constraints, that every action key referenced by a workflow
// or error handler exists, and that only fill actions allocate identifiers.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			msgs := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	for key, action := range d.Actions {
		if action.Allocate != nil && Action(action.Action) != ActionFill {
			return fmt.Errorf("%w: action %q: allocate is only valid on fill actions", ErrConfiguration, key)
		}
		if action.OnError != "" {
			if _, ok := d.Actions[action.OnError]; !ok {
				return fmt.Errorf("%w: action %q: unknown on_error action %q", ErrConfiguration, key, action.OnError)
			}
		}
	}
	for name, wf := range d.Workflows {
		for i, ref := range wf.Steps {
			for _, key := range ref.keys() {
				if _, ok := d.Actions[key]; !ok {
					return fmt.Errorf("%w: workflow %q step %d: unknown action %q", ErrConfiguration, name, i+1, key)
				}
			}
		}
	}
	return nil
}

func (r StepRef) keys() []string {
	if r.Conditional == nil {
		return []string{r.Action}
	}
	codes := make([]string, 0, len(r.Conditional))
	for code := range r.Conditional {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		keys = append(keys, r.Conditional[code])
	}
	return keys
}

// Problems lists references that load fine but fail at run time: locators named by
// actions that the definition does not define.
func (d *Definition) Problems() []string {
	var problems []string
	keys := make([]string, 0, len(d.Actions))
	for key := range d.Actions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		action := d.Actions[key]
		refs := []string{action.Locator, action.Precheck}
		if action.Allocate != nil {
			refs = append(refs, action.Allocate.BannerLocator, action.Allocate.DismissLocator)
		}
		for _, ref := range refs {
			if ref == "" {
				continue
			}
			if _, ok := d.Locators[ref]; !ok {
				problems = append(problems, fmt.Sprintf("action %q references unknown locator %q", key, ref))
			}
		}
		if action.Locator == "" && Action(action.Action).NeedsElement() {
			problems = append(problems, fmt.Sprintf("action %q (%s) has no locator", key, action.Action))
		}
	}
	return problems
}

// LocatorSet compiles the locator definitions.
func (d *Definition) LocatorSet() locator.Set {
	set := make(locator.Set, len(d.Locators))
	for name, def := range d.Locators {
		loc := &locator.Locator{
			Name:           name,
			RequiresScroll: def.RequiresScroll,
			Timeout:        def.Timeout,
		}
		for _, s := range def.Strategies {
			loc.Strategies = append(loc.Strategies, locator.Strategy{
				Kind:     locator.Kind(s.Type),
				Value:    s.Value,
				Priority: s.Priority,
			})
		}
		set[name] = loc
	}
	return set
}

// WorkflowNames returns the defined workflow names in sorted order.
func (d *Definition) WorkflowNames() []string {
	names := make([]string, 0, len(d.Workflows))
	for name := range d.Workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Workflow compiles the named workflow. Step orders follow the position in the steps
// list starting at 1; conditional entries share their position's order.
func (d *Definition) Workflow(name string) (*Workflow, error) {
	def, ok := d.Workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown workflow %q", ErrConfiguration, name)
	}

	wf := &Workflow{
		Name:           name,
		ConditionField: def.ConditionField,
		KeyField:       def.KeyField,
		StrictBranches: def.StrictBranches,
	}
	for i, ref := range def.Steps {
		order := i + 1
		if ref.Conditional == nil {
			step, err := d.step(ref.Action, order, true)
			if err != nil {
				return nil, err
			}
			wf.Steps = append(wf.Steps, step)
			continue
		}

		codes := make([]string, 0, len(ref.Conditional))
		for code := range ref.Conditional {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			step, err := d.step(ref.Conditional[code], order, true)
			if err != nil {
				return nil, err
			}
			if strings.EqualFold(code, DefaultBranch) {
				step.Condition = DefaultBranch
			} else {
				step.Condition = NormalizeCondition(code)
			}
			wf.Steps = append(wf.Steps, step)
		}
	}
	return wf, nil
}

// step builds a fresh Step from an action entry. Error handlers are built without their
// own handler so a failing handler never recurses.
func (d *Definition) step(key string, order int, withHandler bool) (*Step, error) {
	def, ok := d.Actions[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrConfiguration, key)
	}

	step := &Step{
		ID:              key,
		Order:           order,
		Action:          Action(def.Action),
		Locator:         def.Locator,
		Delay:           def.Delay,
		WaitAfter:       def.Sleep,
		MaxRetries:      def.MaxRetries,
		Timeout:         def.Timeout,
		ClearBeforeFill: def.Clear,
		ContinueOnError: def.ContinueOnError,
		SaveAs:          def.SaveAs,
		PressKey:        def.Keys,
		Precheck:        def.Precheck,
	}
	if step.MaxRetries == 0 {
		step.MaxRetries = DefaultMaxRetries
	}

	switch {
	case def.Field != "":
		step.Value = Field(def.Field)
	case strings.Contains(def.Value, "{{"):
		step.Value = Template(def.Value)
	default:
		step.Value = Static(def.Value)
	}

	if a := def.Allocate; a != nil {
		step.Allocate = &Allocation{
			Category:       a.Category,
			Prefix:         a.Prefix,
			Width:          a.Width,
			Start:          a.Start,
			MaxAttempts:    a.MaxAttempts,
			BannerLocator:  a.BannerLocator,
			BannerText:     a.BannerText,
			DismissLocator: a.DismissLocator,
		}
	}

	if withHandler && def.OnError != "" {
		handler, err := d.step(def.OnError, order, false)
		if err != nil {
			return nil, err
		}
		step.OnError = handler
	}
	return step, nil
}

// NewDefinition builds a definition document holding one workflow and its locators,
// the inverse of Workflow. Action keys are the step IDs.
func NewDefinition(wf *Workflow, locators locator.Set) *Definition {
	def := &Definition{
		Locators:  make(map[string]LocatorDef, len(locators)),
		Actions:   make(map[string]ActionDef),
		Workflows: make(map[string]WorkflowDef, 1),
	}

	for name, loc := range locators {
		ld := LocatorDef{RequiresScroll: loc.RequiresScroll, Timeout: loc.Timeout}
		for _, s := range loc.Strategies {
			ld.Strategies = append(ld.Strategies, StrategyDef{Type: string(s.Kind), Value: s.Value, Priority: s.Priority})
		}
		def.Locators[name] = ld
	}

	wd := WorkflowDef{
		ConditionField: wf.ConditionField,
		KeyField:       wf.KeyField,
		StrictBranches: wf.StrictBranches,
	}
	var pending *StepRef
	pendingOrder := 0
	flush := func() {
		if pending != nil {
			wd.Steps = append(wd.Steps, *pending)
			pending = nil
		}
	}
	for _, step := range wf.Sorted() {
		def.Actions[step.ID] = actionDef(step)
		if step.OnError != nil {
			def.Actions[step.OnError.ID] = actionDef(step.OnError)
		}

		if step.Condition == "" {
			flush()
			wd.Steps = append(wd.Steps, StepRef{Action: step.ID})
			continue
		}
		if pending == nil || pendingOrder != step.Order {
			flush()
			pending = &StepRef{Conditional: make(map[string]string)}
			pendingOrder = step.Order
		}
		code := step.Condition
		if code == DefaultBranch {
			code = "default"
		}
		pending.Conditional[code] = step.ID
	}
	flush()

	def.Workflows[wf.Name] = wd
	return def
}

func actionDef(step *Step) ActionDef {
	ad := ActionDef{
		Action:          string(step.Action),
		Locator:         step.Locator,
		Delay:           step.Delay,
		Sleep:           step.WaitAfter,
		Timeout:         step.Timeout,
		MaxRetries:      step.MaxRetries,
		Clear:           step.ClearBeforeFill,
		Keys:            step.PressKey,
		Precheck:        step.Precheck,
		SaveAs:          step.SaveAs,
		ContinueOnError: step.ContinueOnError,
	}
	if step.Value.Kind == ValueField {
		ad.Field = step.Value.Text
	} else {
		ad.Value = step.Value.Text
	}
	if step.OnError != nil {
		ad.OnError = step.OnError.ID
	}
	if a := step.Allocate; a != nil {
		ad.Allocate = &AllocationDef{
			Category:       a.Category,
			Prefix:         a.Prefix,
			Width:          a.Width,
			Start:          a.Start,
			MaxAttempts:    a.MaxAttempts,
			BannerLocator:  a.BannerLocator,
			BannerText:     a.BannerText,
			DismissLocator: a.DismissLocator,
		}
	}
	return ad
}

// Marshal encodes the definition as YAML.
func (d *Definition) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode definition: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode definition: %w", err)
	}
	return buf.Bytes(), nil
}
