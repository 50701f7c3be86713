package plans

import (
	"slices"
	"time"
)

// Resource is a quota-limited thing a user consumes.
type Resource string

const (
	ResourceEmails    Resource = "emails"
	ResourceSenders   Resource = "senders"
	ResourceTemplates Resource = "templates"
)

// Resources lists every limited resource in reporting order.
var Resources = []Resource{ResourceEmails, ResourceSenders, ResourceTemplates}

// Unlimited disables the limit for a resource.
const Unlimited int64 = -1

// Feature is a capability flag carried by a plan.
type Feature string

const (
	FeatureAPIAccess          Feature = "api_access"
	FeaturePrioritySupport    Feature = "priority_support"
	FeatureWhiteLabel         Feature = "white_label"
	FeatureCustomIntegrations Feature = "custom_integrations"
)

// Cycle is the billing cadence chosen when a plan is applied.
type Cycle string

const (
	Monthly Cycle = "monthly"
	Yearly  Cycle = "yearly"
)

// Duration is the length of one billing period for the cycle.
func (c Cycle) Duration() time.Duration {
	if c == Yearly {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

func (c Cycle) Valid() bool {
	return c == Monthly || c == Yearly
}

// Limits holds per-period email volume and concurrent resource caps.
// Unlimited (-1) disables a cap.
type Limits struct {
	Emails    int64 `yaml:"emails" json:"email_limit"`
	Senders   int64 `yaml:"senders" json:"sender_limit"`
	Templates int64 `yaml:"templates" json:"template_limit"`
}

// Of returns the cap for r. Unknown resources are reported as unlimited.
func (l Limits) Of(r Resource) int64 {
	switch r {
	case ResourceEmails:
		return l.Emails
	case ResourceSenders:
		return l.Senders
	case ResourceTemplates:
		return l.Templates
	}
	return Unlimited
}

// Plan is one entry of the catalog. Prices are in cents.
type Plan struct {
	ID           string    `yaml:"id" json:"id"`
	Name         string    `yaml:"name" json:"name"`
	Tier         int       `yaml:"tier" json:"tier"`
	PriceMonthly int64     `yaml:"price_monthly" json:"price_monthly"`
	PriceYearly  int64     `yaml:"price_yearly" json:"price_yearly"`
	Currency     string    `yaml:"currency" json:"currency"`
	Limits       Limits    `yaml:"limits" json:"limits"`
	Features     []Feature `yaml:"features" json:"features"`
}

func (p Plan) Limit(r Resource) int64 {
	return p.Limits.Of(r)
}

func (p Plan) Has(f Feature) bool {
	return slices.Contains(p.Features, f)
}

// Price returns the price for the given cycle.
func (p Plan) Price(c Cycle) int64 {
	if c == Yearly {
		return p.PriceYearly
	}
	return p.PriceMonthly
}

// IsFree reports whether the plan costs nothing in either cycle.
func (p Plan) IsFree() bool {
	return p.PriceMonthly == 0 && p.PriceYearly == 0
}

// Change classifies a move between two plans.
type Change string

const (
	ChangeUpgrade   Change = "upgrade"
	ChangeDowngrade Change = "downgrade"
	ChangeNone      Change = "none"
)

// Classify compares tiers. Equal tiers (including the same plan) are ChangeNone.
func Classify(from, to Plan) Change {
	switch {
	case to.Tier > from.Tier:
		return ChangeUpgrade
	case to.Tier < from.Tier:
		return ChangeDowngrade
	}
	return ChangeNone
}

// LimitChange is a single limit that differs between two plans.
type LimitChange struct {
	From int64
	To   int64
}

// Comparison lists what a user gains and loses when moving between plans.
type Comparison struct {
	NewFeatures  []Feature
	LostFeatures []Feature
	Increased    map[Resource]LimitChange
	Decreased    map[Resource]LimitChange
}

// Compare reports the differences between current and target.
// Moving from unlimited to any finite cap counts as a decrease.
func Compare(current, target Plan) Comparison {
	cmp := Comparison{
		Increased: make(map[Resource]LimitChange),
		Decreased: make(map[Resource]LimitChange),
	}
	for _, f := range target.Features {
		if !current.Has(f) {
			cmp.NewFeatures = append(cmp.NewFeatures, f)
		}
	}
	for _, f := range current.Features {
		if !target.Has(f) {
			cmp.LostFeatures = append(cmp.LostFeatures, f)
		}
	}
	for _, r := range Resources {
		from, to := current.Limit(r), target.Limit(r)
		if from == to {
			continue
		}
		ch := LimitChange{From: from, To: to}
		if AtLeast(to, from) {
			cmp.Increased[r] = ch
		} else {
			cmp.Decreased[r] = ch
		}
	}
	return cmp
}

// AtLeast reports whether limit a allows at least as much as limit b.
func AtLeast(a, b int64) bool {
	if a == Unlimited {
		return true
	}
	if b == Unlimited {
		return false
	}
	return a >= b
}

// Exceeds reports whether used is over limit. Unlimited is never exceeded.
func Exceeds(used, limit int64) bool {
	return limit != Unlimited && used > limit
}

// Remaining is max(0, limit-used), or Unlimited when the cap is disabled.
func Remaining(used, limit int64) int64 {
	if limit == Unlimited {
		return Unlimited
	}
	return max(0, limit-used)
}
