package commands

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/index/flat"
	"github.com/hupe1980/near/internal/config"
	"github.com/hupe1980/near/neartest"
	"github.com/hupe1980/near/storage/memory"
)

type benchOptions struct {
	index     string
	size      int
	queries   int
	k         int
	seed      int64
	clusters  int
	parallel  int
	dimension int
}

func newBenchCmd(g *globalFlags) *cobra.Command {
	o := benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure latency and recall on seeded random vectors",
		Long: `Insert seeded random vectors into the configured index and storage, run
queries and report latency and recall@k against an exact in-memory flat index.

The configured storage must be empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if o.index != "" {
				cfg.Index = o.index
			}
			if o.dimension > 0 {
				cfg.Dimension = o.dimension
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBench(cmd.Context(), cmd.OutOrStdout(), cfg, logger, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.index, "index", "", "index to benchmark (default from config)")
	f.IntVarP(&o.size, "num", "n", 10000, "number of vectors to insert")
	f.IntVarP(&o.queries, "queries", "q", 100, "number of queries")
	f.IntVarP(&o.k, "k", "k", 10, "neighbors per query")
	f.Int64Var(&o.seed, "seed", 4711, "random seed")
	f.IntVar(&o.clusters, "clusters", 0, "draw clustered vectors around this many centers (0 for uniform)")
	f.IntVar(&o.parallel, "parallel", 4, "concurrent queries in the batch phase")
	f.IntVar(&o.dimension, "dim", 0, "vector dimension (default from config)")
	return cmd
}

func runBench(ctx context.Context, out io.Writer, cfg config.Config, logger *near.Logger, o benchOptions) error {
	if o.size < 1 || o.queries < 1 {
		return fmt.Errorf("bench: --num and --queries must be positive")
	}
	if err := near.ValidateK(o.k); err != nil {
		return err
	}

	b, err := config.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	metrics := &near.BasicMetricsCollector{}
	idx, err := cfg.OpenIndex(ctx, b, logger, metrics)
	if err != nil {
		return err
	}
	defer idx.Close()
	if idx.Len() > 0 {
		return fmt.Errorf("bench: storage %s already holds %d records", cfg.Storage.Kind, idx.Len())
	}

	oracle, err := flat.New(ctx, idx.Space(), memory.New())
	if err != nil {
		return err
	}
	defer oracle.Close()

	rng := neartest.NewRNG(o.seed)
	gen := func(n int) [][]float32 {
		if o.clusters > 0 {
			return rng.ClusteredVectors(n, cfg.Dimension, o.clusters, 0.2)
		}
		return rng.UniformVectors(n, cfg.Dimension)
	}
	vectors := gen(o.size)
	queries := gen(o.queries)

	inserts := make([]time.Duration, len(vectors))
	start := time.Now()
	for i, v := range vectors {
		t := time.Now()
		if err := idx.Insert(ctx, near.ID(i), v, nil); err != nil {
			return err
		}
		inserts[i] = time.Since(t)
		if err := oracle.Insert(ctx, near.ID(i), v, nil); err != nil {
			return err
		}
	}
	insertWall := time.Since(start)

	searches := make([]time.Duration, len(queries))
	var recall float64
	for i, q := range queries {
		t := time.Now()
		got, err := idx.Search(ctx, q, o.k)
		if err != nil {
			return err
		}
		searches[i] = time.Since(t)

		want, err := oracle.Search(ctx, q, o.k)
		if err != nil {
			return err
		}
		recall += neartest.Recall(want, got)
	}
	recall /= float64(len(queries))

	start = time.Now()
	_, err = near.SearchBatch(ctx, idx, queries, o.k, o.parallel)
	logger.LogBatchSearch(ctx, len(queries), o.k, err)
	if err != nil {
		return err
	}
	batchWall := time.Since(start)

	stats := metrics.GetStats()
	fmt.Fprintf(out, "index      %s over %s (%s)\n", idx.Name(), cfg.Storage.Kind, idx.Space())
	fmt.Fprintf(out, "insert     n=%d total=%s %s\n", len(vectors), insertWall.Round(time.Millisecond), latencies(inserts))
	fmt.Fprintf(out, "search     n=%d k=%d %s\n", len(queries), o.k, latencies(searches))
	fmt.Fprintf(out, "batch      parallel=%d total=%s qps=%.0f\n", o.parallel, batchWall.Round(time.Microsecond),
		float64(len(queries))/batchWall.Seconds())
	fmt.Fprintf(out, "recall@%-3d %.4f", o.k, recall)
	if a, ok := idx.(near.Approximate); ok {
		fmt.Fprintf(out, " (target %.2f)", a.RecallTarget())
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "errors     insert=%d search=%d\n", stats.InsertErrors, stats.SearchErrors)
	return nil
}

func latencies(d []time.Duration) string {
	s := slices.Clone(d)
	slices.Sort(s)
	p := func(q float64) time.Duration { return s[min(len(s)-1, int(q*float64(len(s))))] }
	return fmt.Sprintf("p50=%s p95=%s p99=%s max=%s", p(0.50), p(0.95), p(0.99), s[len(s)-1])
}
