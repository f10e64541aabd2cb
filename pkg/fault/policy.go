/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: policy.go
Description: Per-campaign fault policy. Decides which classified faults count as crashes
worth persisting as solutions and whether execution timeouts are reportable.
*/

package fault

import (
	"sort"
	"strings"
)

// Policy is the set of fault categories a campaign treats as crashes
type Policy struct {
	faults         map[Fault]struct{}
	TimeoutIsCrash bool
}

// NewPolicy creates a policy reporting exactly the given faults
func NewPolicy(faults ...Fault) *Policy {
	p := &Policy{faults: make(map[Fault]struct{}, len(faults))}
	for _, f := range faults {
		p.faults[f] = struct{}{}
	}
	return p
}

// DefaultPolicy reports the x86-64 faults that almost always indicate a target bug
func DefaultPolicy() *Policy {
	return NewPolicy(
		FromX86_64(Triple),
		FromX86_64(Double),
		FromX86_64(GeneralProtection),
		FromX86_64(Page),
		FromX86_64(InvalidOpcode),
		FromX86_64(Division),
	)
}

// ParsePolicy builds a policy from category names. An empty list yields the default policy.
func ParsePolicy(arch Architecture, names []string) (*Policy, error) {
	if len(names) == 0 {
		return DefaultPolicy(), nil
	}
	p := NewPolicy()
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		f, err := ParseFault(arch, name)
		if err != nil {
			return nil, err
		}
		p.faults[f] = struct{}{}
	}
	return p, nil
}

// Add marks another fault as reportable
func (p *Policy) Add(f Fault) {
	if p.faults == nil {
		p.faults = make(map[Fault]struct{})
	}
	p.faults[f] = struct{}{}
}

// Contains reports whether f is in the policy set
func (p *Policy) Contains(f Fault) bool {
	if p == nil {
		return false
	}
	_, ok := p.faults[f]
	return ok
}

// Faults returns the policy set sorted by architecture and code
func (p *Policy) Faults() []Fault {
	out := make([]Fault, 0, len(p.faults))
	for f := range p.faults {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].arch != out[j].arch {
			return out[i].arch < out[j].arch
		}
		return out[i].code < out[j].code
	})
	return out
}

// IsReportable reports whether an observed fault should be persisted as a solution
func IsReportable(f Fault, policy *Policy) bool {
	return policy.Contains(f)
}
