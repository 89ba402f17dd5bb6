package payload

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/orb-community/orb-acceptance/pkg/errors"
)

const (
	BackendPktvisor = "pktvisor"
	BackendOtel     = "otel"

	MatchAny = "any"
	MatchAll = "all"
)

// PolicyRequest is the body of POST /api/v1/policies/agent.
type PolicyRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Backend     string            `json:"backend"`
	Tags        map[string]string `json:"tags,omitempty"`
	Format      string            `json:"format,omitempty"`
	PolicyData  string            `json:"policy_data,omitempty"`
	Policy      *PolicyBody       `json:"policy,omitempty"`
}

type PolicyBody struct {
	Kind     string         `json:"kind"`
	Input    Input          `json:"input"`
	Handlers Handlers       `json:"handlers"`
	Config   map[string]any `json:"config,omitempty"`
}

type Input struct {
	Tap         string                         `json:"tap,omitempty"`
	TapSelector map[string][]map[string]string `json:"tap_selector,omitempty"`
	InputType   string                         `json:"input_type"`
	Config      map[string]any                 `json:"config,omitempty"`
	Filter      map[string]any                 `json:"filter,omitempty"`
}

type Handlers struct {
	Config  map[string]any     `json:"config,omitempty"`
	Modules map[string]*Module `json:"modules"`
}

type Module struct {
	Type           string         `json:"type"`
	RequireVersion string         `json:"require_version,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
	Filter         map[string]any `json:"filter,omitempty"`
	MetricGroups   *MetricGroups  `json:"metric_groups,omitempty"`
}

type MetricGroups struct {
	Enable  []string `json:"enable,omitempty"`
	Disable []string `json:"disable,omitempty"`
}

// PolicyBuilder assembles a pktvisor policy. Setters never fail: the first
// invalid option is kept and returned by Build.
type PolicyBuilder struct {
	req PolicyRequest
	err error
}

func NewPolicy(name, backend string) *PolicyBuilder {
	return &PolicyBuilder{
		req: PolicyRequest{
			Name:    name,
			Backend: backend,
			Policy: &PolicyBody{
				Kind:     "collection",
				Handlers: Handlers{Modules: map[string]*Module{}},
			},
		},
	}
}

func (b *PolicyBuilder) fail(payload, option, reason string) *PolicyBuilder {
	if b.err == nil {
		b.err = errors.NewInvalidOptionError(payload, option, reason)
	}
	return b
}

func (b *PolicyBuilder) Description(d string) *PolicyBuilder {
	b.req.Description = d
	return b
}

func (b *PolicyBuilder) Tags(tags map[string]string) *PolicyBuilder {
	b.req.Tags = tags
	return b
}

// Tap binds the policy input to a named tap.
func (b *PolicyBuilder) Tap(name, inputType string) *PolicyBuilder {
	in := &b.req.Policy.Input
	if _, ok := inputConfigOptions[inputType]; !ok {
		return b.fail("policy input", "input_type", fmt.Sprintf("unknown input type %q", inputType))
	}
	if in.TapSelector != nil {
		return b.fail("policy input", "tap", "tap_selector is already defined")
	}
	in.Tap = name
	in.InputType = inputType
	return b
}

// TapSelector binds the policy input to every tap whose tags match any or all of tags.
// Successive calls with the same match accumulate selectors.
func (b *PolicyBuilder) TapSelector(match, inputType string, tags map[string]string) *PolicyBuilder {
	in := &b.req.Policy.Input
	if _, ok := inputConfigOptions[inputType]; !ok {
		return b.fail("policy input", "input_type", fmt.Sprintf("unknown input type %q", inputType))
	}
	if in.Tap != "" {
		return b.fail("policy input", "tap_selector", "tap is already defined")
	}
	if err := validate.Var(match, "oneof=any all"); err != nil {
		return b.fail("policy input", "tap_selector", fmt.Sprintf("invalid input match %q", match))
	}
	if len(tags) == 0 {
		return b.fail("policy input", "tap_selector", "tags are required")
	}

	selectors := in.TapSelector[match]
	for k, v := range tags {
		selectors = append(selectors, map[string]string{k: v})
	}
	in.TapSelector = map[string][]map[string]string{match: selectors}
	in.InputType = inputType
	return b
}

func (b *PolicyBuilder) InputConfig(key string, value any) *PolicyBuilder {
	in := &b.req.Policy.Input
	if in.InputType == "" {
		return b.fail("policy input config", key, "input is not defined, set a tap first")
	}
	v, reason := inputConfigOptions[in.InputType].check(key, value)
	if reason != "" {
		return b.fail(in.InputType+" input config", key, reason)
	}
	if in.Config == nil {
		in.Config = map[string]any{}
	}
	in.Config[key] = v
	return b
}

func (b *PolicyBuilder) InputFilter(key string, value any) *PolicyBuilder {
	in := &b.req.Policy.Input
	if in.InputType == "" {
		return b.fail("policy input filter", key, "input is not defined, set a tap first")
	}
	v, reason := inputFilterOptions[in.InputType].check(key, value)
	if reason != "" {
		return b.fail(in.InputType+" input filter", key, reason)
	}
	if in.Filter == nil {
		in.Filter = map[string]any{}
	}
	in.Filter[key] = v
	return b
}

// Module adds a handler module under label.
func (b *PolicyBuilder) Module(label, handler string) *PolicyBuilder {
	if _, ok := moduleConfigOptions[handler]; !ok {
		return b.fail("policy handlers", label, fmt.Sprintf("unknown handler %q", handler))
	}
	if _, ok := b.req.Policy.Handlers.Modules[label]; ok {
		return b.fail("policy handlers", label, "module already defined")
	}
	b.req.Policy.Handlers.Modules[label] = &Module{Type: handler}
	return b
}

func (b *PolicyBuilder) RequireVersion(label, version string) *PolicyBuilder {
	m, ok := b.module(label)
	if !ok {
		return b
	}
	m.RequireVersion = version
	return b
}

func (b *PolicyBuilder) ModuleConfig(label, key string, value any) *PolicyBuilder {
	m, ok := b.module(label)
	if !ok {
		return b
	}
	v, reason := moduleConfigOptions[m.Type].check(key, value)
	if reason != "" {
		return b.fail(m.Type+" module config", key, reason)
	}
	if m.Config == nil {
		m.Config = map[string]any{}
	}
	m.Config[key] = v
	return b
}

func (b *PolicyBuilder) ModuleFilter(label, key string, value any) *PolicyBuilder {
	m, ok := b.module(label)
	if !ok {
		return b
	}
	v, reason := moduleFilterOptions[m.Type].check(key, value)
	if reason != "" {
		return b.fail(m.Type+" module filter", key, reason)
	}
	if m.Filter == nil {
		m.Filter = map[string]any{}
	}
	m.Filter[key] = v
	return b
}

// EnableMetricGroups enables groups on a module, removing them from the disabled list.
func (b *PolicyBuilder) EnableMetricGroups(label string, groups ...string) *PolicyBuilder {
	m, ok := b.module(label)
	if !ok {
		return b
	}
	if m.MetricGroups == nil {
		m.MetricGroups = &MetricGroups{}
	}
	m.MetricGroups.Enable = appendUnique(m.MetricGroups.Enable, groups...)
	m.MetricGroups.Disable = without(m.MetricGroups.Disable, groups...)
	return b
}

// DisableMetricGroups disables groups on a module, removing them from the enabled list.
func (b *PolicyBuilder) DisableMetricGroups(label string, groups ...string) *PolicyBuilder {
	m, ok := b.module(label)
	if !ok {
		return b
	}
	if m.MetricGroups == nil {
		m.MetricGroups = &MetricGroups{}
	}
	m.MetricGroups.Disable = appendUnique(m.MetricGroups.Disable, groups...)
	m.MetricGroups.Enable = without(m.MetricGroups.Enable, groups...)
	return b
}

func (b *PolicyBuilder) PcapSource(source string) *PolicyBuilder {
	return b.InputConfig("pcap_source", source)
}

func (b *PolicyBuilder) HostSpec(cidrs string) *PolicyBuilder {
	return b.InputConfig("host_spec", cidrs)
}

func (b *PolicyBuilder) BPF(expr string) *PolicyBuilder {
	return b.InputFilter("bpf", expr)
}

func (b *PolicyBuilder) OnlyRcode(label string, rcode int) *PolicyBuilder {
	return b.ModuleFilter(label, "only_rcode", rcode)
}

func (b *PolicyBuilder) OnlyQnameSuffix(label string, suffixes ...string) *PolicyBuilder {
	return b.ModuleFilter(label, "only_qname_suffix", suffixes)
}

func (b *PolicyBuilder) ExcludeNoError(label string, exclude bool) *PolicyBuilder {
	return b.ModuleFilter(label, "exclude_noerror", exclude)
}

// Build returns the request or the first invalid option.
func (b *PolicyBuilder) Build() (PolicyRequest, error) {
	if b.err != nil {
		return PolicyRequest{}, b.err
	}
	if b.req.Name == "" {
		return PolicyRequest{}, errors.NewInvalidOptionError("policy", "name", "name is required")
	}
	if b.req.Policy.Input.InputType == "" {
		return PolicyRequest{}, errors.NewInvalidOptionError("policy", "input", "tap or tap_selector is required")
	}
	if len(b.req.Policy.Handlers.Modules) == 0 {
		return PolicyRequest{}, errors.NewInvalidOptionError("policy", "handlers", "at least one module is required")
	}
	return b.req, nil
}

// OtelPolicy builds a policy for the otel backend from a collector YAML document.
func OtelPolicy(name, description, policyYAML string) (PolicyRequest, error) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(policyYAML), &doc); err != nil {
		return PolicyRequest{}, errors.NewInvalidOptionError("otel policy", "policy_data", err.Error())
	}
	if len(doc) == 0 {
		return PolicyRequest{}, errors.NewInvalidOptionError("otel policy", "policy_data", "document is empty")
	}
	return PolicyRequest{
		Name:        name,
		Description: description,
		Backend:     BackendOtel,
		Format:      "yaml",
		PolicyData:  policyYAML,
	}, nil
}

func (b *PolicyBuilder) module(label string) (*Module, bool) {
	m, ok := b.req.Policy.Handlers.Modules[label]
	if !ok {
		b.fail("policy handlers", label, "module is not defined")
	}
	return m, ok
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		if !slices.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}

func without(list []string, items ...string) []string {
	return slices.DeleteFunc(list, func(s string) bool {
		return slices.Contains(items, s)
	})
}
