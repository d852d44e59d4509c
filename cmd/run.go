package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/session"
)

var (
	runBank      string
	runURL       string
	runTextFile  string
	runDocFile   string
	runDepth     int
	runFollow    bool
	runBypass    bool
	runProcess   bool
	runPipelines []string
	runParallel  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full extraction session for one seed",
	Long:  "Creates a session, discovers and auto-selects sources, fetches and reviews content, persists the raw record, indexes it, and runs the extraction pipelines.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		seed, err := buildSeed()
		if err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		out, err := runSession(ctx, e.Manager, seed, model.SessionConfig{
			MaxDepth:         runDepth,
			FollowLinks:      runFollow,
			BypassCache:      runBypass,
			ProcessDocuments: runProcess,
		}, runPipelines, runParallel)
		if err != nil {
			return err
		}

		zap.L().Info("extraction complete",
			zap.String("record_id", out.RecordID),
			zap.Int("benefits", len(out.Benefits)),
			zap.Int("high_confidence", out.Stats.HighConfidence),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// buildSeed maps the mutually exclusive seed flags onto a Seed.
func buildSeed() (model.Seed, error) {
	set := 0
	for _, s := range []string{runBank, runURL, runTextFile, runDocFile} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return model.Seed{}, eris.New("exactly one of --bank, --url, --text-file, --document is required")
	}

	switch {
	case runBank != "":
		return model.Seed{Kind: model.SeedBank, BankKey: runBank}, nil
	case runURL != "":
		return model.Seed{Kind: model.SeedURL, URL: runURL}, nil
	case runTextFile != "":
		text, err := os.ReadFile(runTextFile)
		if err != nil {
			return model.Seed{}, eris.Wrapf(err, "read %s", runTextFile)
		}
		return model.Seed{Kind: model.SeedText, Text: string(text)}, nil
	default:
		doc, err := os.ReadFile(runDocFile)
		if err != nil {
			return model.Seed{}, eris.Wrapf(err, "read %s", runDocFile)
		}
		return model.Seed{
			Kind:         model.SeedDocument,
			DocumentName: filepath.Base(runDocFile),
			Document:     doc,
		}, nil
	}
}

// runSession walks one session through every stage with default selections:
// all discovered cards, all candidate URLs, and the auto-approval review.
func runSession(ctx context.Context, m *session.Manager, seed model.Seed, cfg model.SessionConfig, pipelines []string, parallel bool) (*session.RunOutput, error) {
	sess, err := m.CreateSession(ctx, seed, cfg)
	if err != nil {
		return nil, err
	}
	zap.L().Info("session created", zap.String("session_id", sess.ID), zap.String("seed", string(seed.Kind)))

	if seed.Kind == model.SeedBank {
		cards, err := m.DiscoverCards(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(cards))
		for i, c := range cards {
			ids[i] = c.ID
		}
		if err := m.SelectCards(ctx, sess.ID, ids); err != nil {
			return nil, err
		}
		zap.L().Info("cards selected", zap.Int("count", len(ids)))
	}

	cands, err := m.DiscoverURLs(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(cands))
	for i, c := range cands {
		urls[i] = c.URL
	}
	if err := m.SelectURLs(ctx, sess.ID, urls); err != nil {
		return nil, err
	}

	sources, err := m.FetchContent(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	review, err := m.ApproveAll(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	zap.L().Info("sources reviewed",
		zap.Int("fetched", len(sources)),
		zap.Int("approved", review.Approved),
		zap.Int("total_chars", review.TotalChars),
	)

	recordID, err := m.SaveApprovedRaw(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if _, err := m.IndexVectors(ctx, recordID); err != nil {
		return nil, err
	}

	return m.RunPipelines(ctx, recordID, pipelines, parallel)
}

func init() {
	runCmd.Flags().StringVar(&runBank, "bank", "", "bank key from the registry")
	runCmd.Flags().StringVar(&runURL, "url", "", "single product page URL")
	runCmd.Flags().StringVar(&runTextFile, "text-file", "", "path to a raw text seed")
	runCmd.Flags().StringVar(&runDocFile, "document", "", "path to a PDF seed")
	runCmd.Flags().IntVar(&runDepth, "depth", 1, "crawl depth from each seed (0-3)")
	runCmd.Flags().BoolVar(&runFollow, "follow-links", true, "follow links past the seed pages")
	runCmd.Flags().BoolVar(&runBypass, "bypass-cache", false, "skip the page cache")
	runCmd.Flags().BoolVar(&runProcess, "process-documents", false, "extract text from binary documents")
	runCmd.Flags().StringSliceVar(&runPipelines, "pipelines", nil, "pipelines to run (default all)")
	runCmd.Flags().BoolVar(&runParallel, "parallel", true, "run pipelines concurrently")
	rootCmd.AddCommand(runCmd)
}
