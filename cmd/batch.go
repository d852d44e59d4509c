package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/session"
)

var (
	batchBanks       []string
	batchURLs        []string
	batchConcurrency int
	batchStopOnError bool
	batchDepth       int
	batchFollow      bool
	batchPipelines   []string
)

// batchItem is one seed's outcome in a batch run.
type batchItem struct {
	Seed     string `json:"seed"`
	RecordID string `json:"record_id,omitempty"`
	Benefits int    `json:"benefits,omitempty"`
	Error    string `json:"error,omitempty"`
}

type batchReport struct {
	Items     []batchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run extraction sessions for many seeds unattended",
	Long:  "Runs one full extraction session per seed with bounded concurrency and reports per-seed outcomes. A failed seed never blocks its siblings unless --stop-on-error is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		seeds, err := batchSeeds(batchBanks, batchURLs)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		report := runBatch(ctx, e.Manager, seeds, model.SessionConfig{
			MaxDepth:    batchDepth,
			FollowLinks: batchFollow,
		}, batchConcurrency, batchStopOnError)

		zap.L().Info("batch complete",
			zap.Int("seeds", len(report.Items)),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if report.Succeeded == 0 {
			return eris.New("batch: every seed failed")
		}
		return nil
	},
}

// batchSeeds expands the bank and url flags into session seeds.
func batchSeeds(banks, urls []string) ([]model.Seed, error) {
	if len(banks)+len(urls) == 0 {
		return nil, eris.New("at least one of --banks or --urls is required")
	}
	seeds := make([]model.Seed, 0, len(banks)+len(urls))
	for _, key := range banks {
		seeds = append(seeds, model.Seed{Kind: model.SeedBank, BankKey: key})
	}
	for _, u := range urls {
		seeds = append(seeds, model.Seed{Kind: model.SeedURL, URL: u})
	}
	return seeds, nil
}

// runBatch drives one session per seed, at most concurrency at a time. With
// stopOnError a failed seed cancels the seeds still pending; otherwise every
// seed runs and failures are reported per item.
func runBatch(ctx context.Context, m *session.Manager, seeds []model.Seed, cfg model.SessionConfig, concurrency int, stopOnError bool) *batchReport {
	if concurrency <= 0 {
		concurrency = 2
	}

	items := make([]batchItem, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, seed := range seeds {
		items[i].Seed = seedLabel(seed)
		g.Go(func() error {
			out, err := runSession(gctx, m, seed, cfg, batchPipelines, false)
			if err != nil {
				items[i].Error = err.Error()
				zap.L().Warn("batch seed failed",
					zap.String("seed", items[i].Seed),
					zap.Error(err),
				)
				if stopOnError {
					return err
				}
				return nil
			}
			items[i].RecordID = out.RecordID
			items[i].Benefits = len(out.Benefits)
			return nil
		})
	}
	_ = g.Wait()

	report := &batchReport{Items: items}
	report.Succeeded, report.Failed = tallyBatch(items)
	return report
}

// tallyBatch counts outcomes. An item with neither a record nor an error was
// cancelled before finishing and counts as failed.
func tallyBatch(items []batchItem) (succeeded, failed int) {
	for _, it := range items {
		if it.Error == "" && it.RecordID != "" {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

func seedLabel(seed model.Seed) string {
	if seed.Kind == model.SeedBank {
		return seed.BankKey
	}
	return seed.URL
}

func init() {
	batchCmd.Flags().StringSliceVar(&batchBanks, "banks", nil, "bank keys to run, one session each")
	batchCmd.Flags().StringSliceVar(&batchURLs, "urls", nil, "product page URLs to run, one session each")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 2, "seeds processed at a time")
	batchCmd.Flags().BoolVar(&batchStopOnError, "stop-on-error", false, "cancel pending seeds after the first failure")
	batchCmd.Flags().IntVar(&batchDepth, "depth", 1, "crawl depth from each seed (0-3)")
	batchCmd.Flags().BoolVar(&batchFollow, "follow-links", true, "follow links past the seed pages")
	batchCmd.Flags().StringSliceVar(&batchPipelines, "pipelines", nil, "pipelines to run (default dispatched from content)")
	rootCmd.AddCommand(batchCmd)
}
