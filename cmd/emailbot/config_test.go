package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kathanp/emailbot/pkg/delivery"
	"github.com/kathanp/emailbot/pkg/plans"
)

func TestEnabledKinds(t *testing.T) {
	t.Parallel()

	t.Run("parses names in any case", func(t *testing.T) {
		t.Parallel()
		kinds, err := enabledKinds([]string{"SES", " gmail ", "", "dev"})
		require.NoError(t, err)
		assert.Equal(t, map[delivery.Kind]bool{
			delivery.KindSES:   true,
			delivery.KindGmail: true,
			delivery.KindDev:   true,
		}, kinds)
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		t.Parallel()
		_, err := enabledKinds([]string{"sendgrid"})
		require.Error(t, err)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		t.Parallel()
		_, err := enabledKinds([]string{"smtp", "SMTP"})
		require.ErrorContains(t, err, "listed twice")
	})
}

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	t.Run("default without file", func(t *testing.T) {
		t.Parallel()
		c, err := loadCatalog(appConfig{})
		require.NoError(t, err)
		assert.Equal(t, plans.Default().Plans(), c.Plans())
	})

	t.Run("yaml override", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "plans.yaml")
		doc := "plans:\n" +
			"  - id: free\n    name: Free\n    tier: 0\n    limits: {emails: 5, senders: 1, templates: 1}\n" +
			"  - id: team\n    name: Team\n    tier: 1\n    price_monthly: 900\n    currency: usd\n    limits: {emails: -1, senders: 2, templates: 4}\n"
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

		c, err := loadCatalog(appConfig{PlansFile: path})
		require.NoError(t, err)
		got := c.Plans()
		require.Len(t, got, 2)
		assert.Equal(t, "team", got[1].ID)
		assert.Equal(t, plans.Unlimited, got[1].Limits.Emails)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := loadCatalog(appConfig{PlansFile: filepath.Join(t.TempDir(), "nope.yaml")})
		require.Error(t, err)
	})
}

func TestPrintCatalog(t *testing.T) {
	t.Parallel()

	var table bytes.Buffer
	require.NoError(t, printCatalog(&table, plans.Default(), "table"))
	assert.Contains(t, table.String(), "enterprise")
	assert.Contains(t, table.String(), "unlimited")
	assert.Contains(t, table.String(), "19.00 USD")

	var doc bytes.Buffer
	require.NoError(t, printCatalog(&doc, plans.Default(), "yaml"))
	c, err := plans.LoadYAML(&doc)
	require.NoError(t, err)
	want := plans.Default().Plans()
	got := c.Plans()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Limits, got[i].Limits)
		assert.ElementsMatch(t, want[i].Features, got[i].Features)
	}

	require.Error(t, printCatalog(&bytes.Buffer{}, plans.Default(), "xml"))
}
