package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/skein/internal/config"
	"github.com/jordanhubbard/skein/pkg/models"
)

func newInsightsCommand() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "List learned insights",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runInsights(cfg, status, limit)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by lifecycle status (new, validated, action_suggested, applied, rejected, stale)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum insights to list")

	cmd.AddCommand(newInsightStatusCommand())
	cmd.AddCommand(newInsightUsageCommand())
	return cmd
}

func runInsights(cfg *config.Config, status string, limit int) error {
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	insights, err := st.insights.ListInsights(context.Background(), models.InsightStatus(status), limit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(insights)
}

func newInsightStatusCommand() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "set-status <insight-id> <status>",
		Short: "Transition an insight's lifecycle status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			st, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer st.close()

			id, to := args[0], models.InsightStatus(args[1])
			if err := st.insights.UpdateInsightStatus(cmd.Context(), id, to, note); err != nil {
				return fmt.Errorf("failed to update %s: %w", id, err)
			}
			fmt.Printf("insight %s is now %s\n", id, to)
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "manual transition", "Validation note to record with the transition")
	return cmd
}

func newInsightUsageCommand() *cobra.Command {
	var failed bool

	cmd := &cobra.Command{
		Use:   "record-usage <insight-id>",
		Short: "Record one application of an insight's recommendation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			st, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer st.close()

			id := args[0]
			if err := st.insights.IncrementInsightUsage(cmd.Context(), id, !failed); err != nil {
				return fmt.Errorf("failed to record usage of %s: %w", id, err)
			}

			insight, err := st.insights.GetInsightByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("insight %s applied %d times, effectiveness %.2f\n",
				id, insight.Evaluation.TimesApplied, insight.Evaluation.EffectivenessScore)
			return nil
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "Record the application as unsuccessful")
	return cmd
}
