package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Generate hint and solution reviews",
}

var reviewGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate pending reviews for questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, _ := cmd.Flags().GetStringSlice("question")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		if len(ids) == 0 {
			return errors.New("at least one --question is required")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		logger := newLogger()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		gen := reviewGenerator(ctx, cfg, st, logger)
		if gen == nil {
			return review.ErrNoGenerator
		}
		wf := review.NewWorkflow(st, gen, audit.NewRecorder(st, logger), logger, cfg.ReviewBatchSize)
		res := wf.GenerateBatch(ctx, ids, batchSize, "")

		for _, r := range res.Reviews {
			fmt.Printf("%-36s  %-36s  %s\n", r.QuestionID, r.ID, r.Status)
		}
		for _, f := range res.Failed {
			fmt.Printf("%-36s  %-36s  %s\n", f.QuestionID, "-", f.Error)
		}
		fmt.Println(strings.Repeat("─", 80))
		fmt.Printf("%d requested, %d generated, %d failed\n", res.Requested, res.Succeeded, len(res.Failed))
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d reviews failed", len(res.Failed))
		}
		return nil
	},
}

func init() {
	reviewGenerateCmd.Flags().StringSliceP("question", "q", nil, "Question id (repeatable or comma separated)")
	reviewGenerateCmd.Flags().Int("batch-size", 0, "Concurrent generations (default SABIPREP_REVIEW_BATCH_SIZE)")

	reviewCmd.AddCommand(reviewGenerateCmd)
}
