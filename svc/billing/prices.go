package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kathanp/emailbot/pkg/plans"
)

// Config holds Stripe credentials and the plan to price mapping. STRIPE_PRICES
// looks like "starter_monthly:price_123,starter_yearly:price_456".
type Config struct {
	SecretKey     string            `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string            `env:"STRIPE_WEBHOOK_SECRET"`
	Prices        map[string]string `env:"STRIPE_PRICES" envSeparator:"," envKeyValSeparator:":"`
}

func (c Config) Enabled() bool { return c.SecretKey != "" }

type planCycle struct {
	plan  string
	cycle plans.Cycle
}

// Prices maps paid plans and cycles to Stripe price ids in both directions.
type Prices struct {
	byPlan  map[planCycle]string
	byPrice map[string]planCycle
}

// NewPrices validates every "<plan>_<cycle>" key against the catalog.
func NewPrices(m map[string]string, catalog *plans.Catalog) (*Prices, error) {
	p := &Prices{byPlan: map[planCycle]string{}, byPrice: map[string]planCycle{}}
	for key, price := range m {
		i := strings.LastIndex(key, "_")
		if i <= 0 || price == "" {
			return nil, errors.Join(ErrInvalidPrices, fmt.Errorf("entry %q", key))
		}
		pc := planCycle{plan: key[:i], cycle: plans.Cycle(key[i+1:])}
		if !pc.cycle.Valid() {
			return nil, errors.Join(ErrInvalidPrices, fmt.Errorf("entry %q: unknown cycle %q", key, pc.cycle))
		}
		if _, err := catalog.Get(pc.plan); err != nil {
			return nil, errors.Join(ErrInvalidPrices, err)
		}
		if _, dup := p.byPrice[price]; dup {
			return nil, errors.Join(ErrInvalidPrices, fmt.Errorf("price %q mapped twice", price))
		}
		p.byPlan[pc] = price
		p.byPrice[price] = pc
	}
	return p, nil
}

// For returns the price id for a plan and cycle.
func (p *Prices) For(planID string, cycle plans.Cycle) (string, bool) {
	if p == nil {
		return "", false
	}
	id, ok := p.byPlan[planCycle{plan: planID, cycle: cycle}]
	return id, ok
}

// Plan resolves a price id back to its plan and cycle.
func (p *Prices) Plan(priceID string) (string, plans.Cycle, bool) {
	if p == nil {
		return "", "", false
	}
	pc, ok := p.byPrice[priceID]
	return pc.plan, pc.cycle, ok
}
