package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/logging"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/search"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-segment stored threads and rebuild the Meilisearch mirror",
	Long: `reindex recomputes the token columns of every thread with the configured
segmenter. When MEILI_URL is set it then pushes every thread to Meilisearch.`,
	RunE: runReindex,
}

func runReindex(cmd *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync()
	log := logging.WithName("reindex")

	ctx := cmd.Context()
	db, st, _, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := st.RetokenizeAll(ctx)
	if err != nil {
		return err
	}
	log.Info("threads re-segmented", "threads", n, "segmenter", cfg.Segmenter)

	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return nil
	}
	mirror := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, st, logging.WithName("meilisearch"))
	defer mirror.Close()
	if !mirror.Healthy() {
		return fmt.Errorf("meilisearch at %s is unavailable", cfg.MeiliURL)
	}
	threads, err := st.ListThreads(ctx)
	if err != nil {
		return err
	}
	if err := mirror.IndexThreads(ctx, threads); err != nil {
		return err
	}
	log.Info("meilisearch mirror rebuilt", "threads", len(threads))
	return nil
}
