package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kathanp/emailbot/pkg/config"
	"github.com/kathanp/emailbot/pkg/plans"
)

var plansFormat string

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Print the effective plan catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var app appConfig
		if err := config.Load(&app); err != nil {
			return err
		}
		catalog, err := loadCatalog(app)
		if err != nil {
			return err
		}
		return printCatalog(cmd.OutOrStdout(), catalog, plansFormat)
	},
}

func init() {
	plansCmd.Flags().StringVarP(&plansFormat, "output", "o", "table", "output format: table or yaml")
}

func printCatalog(w io.Writer, c *plans.Catalog, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string][]plans.Plan{"plans": c.Plans()}); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTIER\tMONTHLY\tEMAILS\tSENDERS\tTEMPLATES\tFEATURES")
		for _, p := range c.Plans() {
			features := make([]string, len(p.Features))
			for i, f := range p.Features {
				features[i] = string(f)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
				p.ID, p.Tier, price(p.PriceMonthly, p.Currency),
				limit(p.Limits.Emails), limit(p.Limits.Senders), limit(p.Limits.Templates),
				strings.Join(features, ","))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func limit(n int64) string {
	if n == plans.Unlimited {
		return "unlimited"
	}
	return strconv.FormatInt(n, 10)
}

func price(cents int64, currency string) string {
	if cents == 0 {
		return "free"
	}
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}
