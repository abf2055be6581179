package commands

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/near"
)

func parseVector(s string) ([]float32, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty vector")
	}
	v := make([]float32, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i, err)
		}
		v[i] = float32(x)
	}
	return v, nil
}

func newQueryCmd(g *globalFlags) *cobra.Command {
	var (
		vector   string
		k        int
		asJSON   bool
		withMeta bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Search the configured index",
		Example: `  near query --vector 0.1,0.2,0.3 -k 5
  near -c near.yaml query --vector "1 0 0" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseVector(vector)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			results, err := e.index.Search(ctx, q, k)
			if err != nil {
				return err
			}

			hits := make([]hit, len(results))
			for i, r := range results {
				hits[i] = hit{ID: r.ID, Distance: r.Distance}
				if !withMeta {
					continue
				}
				rec, ok, err := e.backend.Get(ctx, r.ID)
				if err != nil {
					return err
				}
				if ok && rec.Metadata != nil {
					hits[i].Metadata = string(rec.Metadata)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(hits)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tID\tDISTANCE\tMETADATA")
			for i, h := range hits {
				fmt.Fprintf(tw, "%d\t%d\t%.6g\t%s\n", i+1, h.ID, h.Distance, h.Metadata)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&vector, "vector", "", "query vector, comma or space separated (required)")
	cmd.Flags().IntVarP(&k, "k", "k", 10, "number of neighbors")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&withMeta, "metadata", false, "fetch record metadata from storage")
	_ = cmd.MarkFlagRequired("vector")
	return cmd
}

type hit struct {
	ID       near.ID `json:"id"`
	Distance float64 `json:"distance"`
	Metadata string  `json:"metadata,omitempty"`
}
