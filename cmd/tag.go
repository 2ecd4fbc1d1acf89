package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mediacat/internal/classify"
	"mediacat/internal/models"
	"mediacat/internal/storage"
)

var (
	tagIDs []int64
	tagAll bool
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Label catalog records with a local vision model",
	Long: `Send record thumbnails to the classifier service configured in the
settings (an Ollama endpoint by default) and store the labels it returns.
Labels below classifier.min_confidence are dropped. Tagging a record
replaces its previous tags.

Without --ids only records that have no tags yet are processed.

Example:
  mediacat tag                 # Tag everything not tagged yet
  mediacat tag --ids 12,14     # Re-tag two records
  mediacat tag --all           # Re-tag the whole catalog`,
	Args: cobra.NoArgs,
	RunE: runTag,
}

func init() {
	tagCmd.Flags().Int64SliceVar(&tagIDs, "ids", nil, "Record ids to tag")
	tagCmd.Flags().BoolVar(&tagAll, "all", false, "Re-tag every record")
	tagCmd.MarkFlagsMutuallyExclusive("ids", "all")
	rootCmd.AddCommand(tagCmd)
}

func runTag(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := tagTargets(ctx, store)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("Nothing to tag.")
		return nil
	}

	cc := cfg.Classifier
	ollama := classify.NewOllamaClassifier(cc.Endpoint, cc.Model)
	if !ollama.Available(ctx) {
		return usagef("classifier service at %s is not available; start it or change classifier.endpoint in %s",
			cc.Endpoint, settingsStore.Path())
	}

	fmt.Printf("Tagging %d records with %s (concurrency %d)\n", len(recs), cc.Model, cc.Concurrency)

	queue := classify.NewQueue(ollama, cc.Concurrency, logger)
	tagger := classify.NewTagger(queue, store, cc.MinConfidence, logger)
	res, err := tagger.Tag(ctx, recs)

	fmt.Println()
	fmt.Printf("Tagged:  %d\n", res.Tagged)
	fmt.Printf("Skipped: %d\n", res.Skipped)
	fmt.Printf("Failed:  %d\n", res.Failed)
	return err
}

func tagTargets(ctx context.Context, store *storage.Storage) ([]*models.ImageRecord, error) {
	switch {
	case tagAll:
		return store.All(ctx)
	case len(tagIDs) > 0:
		var recs []*models.ImageRecord
		for _, id := range tagIDs {
			rec, err := store.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				return nil, usagef("no record with id %d", id)
			}
			recs = append(recs, rec)
		}
		return recs, nil
	}
	return store.Untagged(ctx)
}
