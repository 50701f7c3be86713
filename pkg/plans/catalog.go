package plans

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// FreePlanID is the plan every account starts on and falls back to.
const FreePlanID = "free"

// Catalog is an immutable, tier-ordered set of plans.
type Catalog struct {
	plans []Plan
	byID  map[string]Plan
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultPlans()...)
	if err != nil {
		panic(err)
	}
	return c
}

func defaultPlans() []Plan {
	return []Plan{
		{
			ID: "free", Name: "Free", Tier: 0, Currency: "usd",
			Limits: Limits{Emails: 100, Senders: 1, Templates: 3},
		},
		{
			ID: "starter", Name: "Starter", Tier: 1, Currency: "usd",
			PriceMonthly: 1900, PriceYearly: 19000,
			Limits: Limits{Emails: 1000, Senders: 3, Templates: 10},
		},
		{
			ID: "professional", Name: "Professional", Tier: 2, Currency: "usd",
			PriceMonthly: 4900, PriceYearly: 49000,
			Limits:   Limits{Emails: 10000, Senders: 10, Templates: 50},
			Features: []Feature{FeatureAPIAccess, FeaturePrioritySupport},
		},
		{
			ID: "enterprise", Name: "Enterprise", Tier: 3, Currency: "usd",
			PriceMonthly: 19900, PriceYearly: 199000,
			Limits: Limits{Emails: Unlimited, Senders: Unlimited, Templates: Unlimited},
			Features: []Feature{
				FeatureAPIAccess, FeaturePrioritySupport,
				FeatureWhiteLabel, FeatureCustomIntegrations,
			},
		},
	}
}

// New validates plans and builds a catalog from them.
func New(plans ...Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, ErrEmptyCatalog
	}
	sorted := slices.Clone(plans)
	slices.SortFunc(sorted, func(a, b Plan) int { return cmp.Compare(a.Tier, b.Tier) })

	byID := make(map[string]Plan, len(sorted))
	for i, p := range sorted {
		if p.ID == "" {
			return nil, errors.Join(ErrInvalidPlan, fmt.Errorf("plan at tier %d has no id", p.Tier))
		}
		if _, dup := byID[p.ID]; dup {
			return nil, errors.Join(ErrInvalidPlan, fmt.Errorf("duplicate plan id %q", p.ID))
		}
		if i > 0 && sorted[i-1].Tier == p.Tier {
			return nil, errors.Join(ErrInvalidPlan, fmt.Errorf("plans %q and %q share tier %d", sorted[i-1].ID, p.ID, p.Tier))
		}
		byID[p.ID] = p
	}
	if _, ok := byID[FreePlanID]; !ok {
		return nil, errors.Join(ErrInvalidPlan, fmt.Errorf("catalog has no %q plan", FreePlanID))
	}
	if err := ValidateMonotonic(sorted); err != nil {
		return nil, err
	}
	return &Catalog{plans: sorted, byID: byID}, nil
}

// ValidateMonotonic checks that each tier's limits and features are a superset
// of the tier below it. plans must be sorted by tier.
func ValidateMonotonic(plans []Plan) error {
	for i := 1; i < len(plans); i++ {
		lower, higher := plans[i-1], plans[i]
		for _, r := range Resources {
			if !AtLeast(higher.Limit(r), lower.Limit(r)) {
				return errors.Join(ErrNotMonotonic, fmt.Errorf("%s %s limit %d is below %s limit %d",
					higher.ID, r, higher.Limit(r), lower.ID, lower.Limit(r)))
			}
		}
		for _, f := range lower.Features {
			if !higher.Has(f) {
				return errors.Join(ErrNotMonotonic, fmt.Errorf("%s lacks feature %s offered by %s", higher.ID, f, lower.ID))
			}
		}
	}
	return nil
}

// Get returns the plan with the given id.
func (c *Catalog) Get(id string) (Plan, error) {
	p, ok := c.byID[id]
	if !ok {
		return Plan{}, errors.Join(ErrUnknownPlan, fmt.Errorf("plan %q", id))
	}
	return p, nil
}

// Resolve returns the plan for id, or the free plan when id is empty or unknown.
func (c *Catalog) Resolve(id string) Plan {
	if p, ok := c.byID[id]; ok {
		return p
	}
	return c.byID[FreePlanID]
}

func (c *Catalog) Free() Plan {
	return c.byID[FreePlanID]
}

// UpgradeFor returns the cheapest higher-tier plan that raises the limit on r.
func (c *Catalog) UpgradeFor(current Plan, r Resource) (Plan, bool) {
	for _, p := range c.plans {
		if p.Tier <= current.Tier {
			continue
		}
		if l := p.Limit(r); l == Unlimited || l > current.Limit(r) {
			return p, true
		}
	}
	return Plan{}, false
}

// Plans returns the plans in tier order.
func (c *Catalog) Plans() []Plan {
	return slices.Clone(c.plans)
}

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadYAML reads a catalog from a YAML document of the form `plans: [...]`.
func LoadYAML(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Join(ErrInvalidCatalogFile, err)
	}
	return New(f.Plans...)
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidCatalogFile, err)
	}
	defer fh.Close()
	return LoadYAML(fh)
}
