package main

import (
	"context"
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/plates-cli/internal/config"
	"github.com/sells-group/plates-cli/internal/model"
	"github.com/sells-group/plates-cli/internal/rarity"
)

var checkOutput string

var checkCmd = &cobra.Command{
	Use:   "check <number>",
	Short: "Report how rare a number is across all plates",
	Long: `Looks up a number between 0 and 999 in every plate segment and reports how many
plates carry it, the "1 in N" odds of finding it, the newest production year of a
car bearing it and its rarity percentile (1 = most common).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Errorf("check: %q is not a number", args[0])
		}
		return runCheck(cmd.Context(), cmd.OutOrStdout(), cfg, v, checkOutput)
	},
}

func init() {
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(checkCmd)
}

// checkReport is the serialized form of a check result.
type checkReport struct {
	model.SegmentStatistic `yaml:",inline"`
	OneIn                  *float64 `json:"one_in,omitempty" yaml:"one_in,omitempty"`
}

func runCheck(ctx context.Context, out io.Writer, c *config.Config, v int, format string) error {
	if err := validateOutput(format); err != nil {
		return err
	}
	if err := rarity.CheckSegment(v); err != nil {
		return err
	}
	if err := c.Validate("query"); err != nil {
		return err
	}

	st, err := openQueryStore(ctx, c)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	stat, err := rarity.NewEstimator(st).Check(ctx, v)
	if err != nil {
		return err
	}
	return writeCheck(out, stat, format)
}

func validateOutput(format string) error {
	switch format {
	case "table", "json", "yaml":
		return nil
	default:
		return eris.Errorf("unsupported output format %q (want table, json or yaml)", format)
	}
}

func writeCheck(out io.Writer, stat model.SegmentStatistic, format string) error {
	report := checkReport{SegmentStatistic: stat}
	if n, ok := stat.OneIn(); ok {
		report.OneIn = &n
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(report), "check: encode json")
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "check: encode yaml")
		}
		return eris.Wrap(enc.Close(), "check: encode yaml")
	default:
		formatCheck(out, report)
		return nil
	}
}

func formatCheck(out io.Writer, r checkReport) {
	p := message.NewPrinter(language.English)

	if r.OneIn == nil {
		_, _ = p.Fprintf(out, "The number %d does not appear on any of the %d plates.\n", r.Value, r.TotalRecords)
	} else {
		_, _ = p.Fprintf(out, "The number %d appears on %d plates out of a total of %d.\n",
			r.Value, r.AppearanceCount, r.TotalRecords)
		_, _ = p.Fprintf(out, "The chance to find it is 1 in %.2f.\n", *r.OneIn)
	}
	if r.LatestProductionYear != nil {
		_, _ = p.Fprintf(out, "The latest production year of a car with that number is %s.\n", strconv.Itoa(*r.LatestProductionYear))
	}
	_, _ = p.Fprintf(out, "Rarity rank %d of %d (percentile %d).\n", r.Rank, rarity.SegmentSpace, r.RarityPercentile)
}
