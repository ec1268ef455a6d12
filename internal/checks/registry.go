package checks

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownCheck = errors.New("unknown check")

// Registry is an ordered, immutable set of checks. Checks always run in
// registration order.
type Registry struct {
	checks []Check
	byID   map[string]Check
}

func NewRegistry(checks ...Check) *Registry {
	r := &Registry{byID: make(map[string]Check, len(checks))}
	for _, c := range checks {
		if _, dup := r.byID[c.ID()]; dup {
			panic(fmt.Sprintf("checks: duplicate check id %q", c.ID()))
		}
		r.checks = append(r.checks, c)
		r.byID[c.ID()] = c
	}
	return r
}

// Default returns the full battery of checks.
func Default(deps Deps) *Registry {
	return NewRegistry(
		NewZeroImpressions(deps),
		NewBudgetDepletion(deps),
		NewSpendWithoutValue(deps),
		NewPerformanceDrop(deps),
		NewCPCSpike(deps),
		NewQualityScore(deps),
		NewAdStrength(deps),
		NewWastedSpend(deps),
		NewDuplicateKeywords(deps),
		NewAdGroupsWithoutAds(deps),
		NewDisapprovedAds(deps),
		NewBudgetLostImpressionShare(deps),
		NewConversionTracking(deps),
		NewLandingPages(deps),
	)
}

func (r *Registry) All() []Check {
	out := make([]Check, len(r.checks))
	copy(out, r.checks)
	return out
}

func (r *Registry) Get(id string) (Check, bool) {
	c, ok := r.byID[id]
	return c, ok
}

func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.checks))
	for _, c := range r.checks {
		ids = append(ids, c.ID())
	}
	return ids
}

// Filter returns the checks named in ids, in registration order. An empty
// ids selects every check.
func (r *Registry) Filter(ids []string) ([]Check, error) {
	if len(ids) == 0 {
		return r.All(), nil
	}

	wanted := make(map[string]bool, len(ids))
	var unknown []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := r.byID[id]; !ok {
			unknown = append(unknown, id)
			continue
		}
		wanted[id] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCheck, strings.Join(unknown, ", "))
	}

	out := make([]Check, 0, len(wanted))
	for _, c := range r.checks {
		if wanted[c.ID()] {
			out = append(out, c)
		}
	}
	return out, nil
}
