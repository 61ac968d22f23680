package dist

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/phon/vm"
)

// Policy decides which capabilities a chunk may use. Capabilities are
// always derived from the bytecode; the list recorded in a chunk is only
// accepted when it matches.
type Policy struct {
	allow map[string]bool // nil: everything not denied
	deny  map[string]bool
}

// NewPermissivePolicy returns a policy that allows every capability.
func NewPermissivePolicy() *Policy {
	return &Policy{}
}

// NewRestrictedPolicy returns a policy that allows only the given
// capabilities.
func NewRestrictedPolicy(allowed []string) *Policy {
	p := &Policy{allow: make(map[string]bool, len(allowed))}
	for _, c := range allowed {
		p.allow[c] = true
	}
	return p
}

// Deny forbids capabilities even if they are allowed.
func (p *Policy) Deny(caps ...string) {
	if p.deny == nil {
		p.deny = make(map[string]bool)
	}
	for _, c := range caps {
		p.deny[c] = true
	}
}

// CapabilityError reports a capability refused by a Policy.
type CapabilityError struct {
	Chunk      string
	Capability string
	Denied     bool // explicitly denied rather than missing from the allow list
	Builtins   []string
}

func (e *CapabilityError) Error() string {
	reason := "is not allowed"
	if e.Denied {
		reason = "is explicitly denied"
	}
	msg := fmt.Sprintf("dist: %s: capability %q %s", e.Chunk, e.Capability, reason)
	if len(e.Builtins) > 0 {
		msg += " (used by " + strings.Join(e.Builtins, ", ") + ")"
	}
	return msg
}

// MismatchError reports a chunk whose recorded capabilities differ from
// the ones its code needs.
type MismatchError struct {
	Chunk    string
	Recorded []string
	Required []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("dist: chunk %q records capabilities [%s] but its code requires [%s]",
		e.Chunk, strings.Join(e.Recorded, ", "), strings.Join(e.Required, ", "))
}

// CheckRoutine verifies that the capabilities r needs are permitted.
func (p *Policy) CheckRoutine(name string, r *vm.Routine) error {
	globals := Globals(r)
	for _, c := range requiredBy(globals) {
		if err := p.permit(name, c); err != nil {
			err.Builtins = usersOf(c, globals)
			return err
		}
	}
	return nil
}

// CheckChunk verifies a loaded chunk: its recorded capabilities must match
// its code, and the policy must permit them.
func (p *Policy) CheckChunk(c *Chunk) error {
	if c.Routine == nil {
		return fmt.Errorf("dist: chunk %q has no routine", c.Name)
	}
	required := RequiredCapabilities(c.Routine)
	recorded := slices.Clone(c.Capabilities)
	slices.Sort(recorded)
	if !slices.Equal(recorded, required) {
		return &MismatchError{Chunk: c.Name, Recorded: recorded, Required: required}
	}
	return p.CheckRoutine(c.Name, c.Routine)
}

// CheckManifest verifies every capability listed in m.
func (p *Policy) CheckManifest(m *Manifest) error {
	if m == nil {
		return nil
	}
	for _, c := range m.Required {
		if err := p.permit("manifest", c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Policy) permit(name, capability string) *CapabilityError {
	if p.deny[capability] {
		return &CapabilityError{Chunk: name, Capability: capability, Denied: true}
	}
	if p.allow != nil && !p.allow[capability] {
		return &CapabilityError{Chunk: name, Capability: capability}
	}
	return nil
}

// usersOf lists the builtins in globals that need capability.
func usersOf(capability string, globals []string) []string {
	var names []string
	for _, g := range globals {
		if capabilities[g] == capability {
			names = append(names, g)
		}
	}
	return names
}
