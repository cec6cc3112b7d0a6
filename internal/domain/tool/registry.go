package tool

import (
	"fmt"
	"sort"
)

// Registry resolves (domain, tool) pairs to their specs. It is populated at
// process start and immutable afterwards; lookups are lock-free.
type Registry struct {
	specs map[string]map[string]Spec // domain -> tool -> spec
}

// NewRegistry builds a registry from the given specs.
// Registration fails on duplicate (domain, tool) pairs, invalid classes, and
// approval-class tools without approver roles.
func NewRegistry(specs []Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]map[string]Spec)}
	for _, s := range specs {
		if s.Domain == "" || s.Name == "" {
			return nil, fmt.Errorf("tool spec missing domain or name: %+v", s)
		}
		if !s.Class.IsValid() {
			return nil, fmt.Errorf("tool %s/%s: invalid class %q", s.Domain, s.Name, s.Class)
		}
		if s.ApprovalClass && s.Class != ClassWrite {
			return nil, fmt.Errorf("tool %s/%s: approval class requires WRITE", s.Domain, s.Name)
		}
		if s.ApprovalClass && len(s.ApproverRoles) == 0 {
			return nil, fmt.Errorf("tool %s/%s: approval class requires approver roles", s.Domain, s.Name)
		}
		if s.Class == ClassRead && LooksLikeWrite(s.Name) {
			return nil, fmt.Errorf("tool %s/%s: name indicates a write but class is READ", s.Domain, s.Name)
		}
		domain, ok := r.specs[s.Domain]
		if !ok {
			domain = make(map[string]Spec)
			r.specs[s.Domain] = domain
		}
		if _, dup := domain[s.Name]; dup {
			return nil, fmt.Errorf("duplicate tool registration: %s/%s", s.Domain, s.Name)
		}
		domain[s.Name] = s
	}
	return r, nil
}

// Resolve returns the spec for a (domain, tool) pair.
func (r *Registry) Resolve(domain, name string) (Spec, bool) {
	tools, ok := r.specs[domain]
	if !ok {
		return Spec{}, false
	}
	s, ok := tools[name]
	return s, ok
}

// HasDomain returns true if any tool is registered under the domain.
func (r *Registry) HasDomain(domain string) bool {
	_, ok := r.specs[domain]
	return ok
}

// Domains returns the registered domain names in sorted order.
func (r *Registry) Domains() []string {
	domains := make([]string, 0, len(r.specs))
	for d := range r.specs {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}
