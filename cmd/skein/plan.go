package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/skein/internal/analyzer"
	"github.com/jordanhubbard/skein/internal/config"
	"github.com/jordanhubbard/skein/internal/gitops"
	"github.com/jordanhubbard/skein/internal/orchestrator"
	"github.com/jordanhubbard/skein/internal/provider"
	"github.com/jordanhubbard/skein/internal/queue"
)

func newPlanCommand() *cobra.Command {
	var projectID, repoURL string

	cmd := &cobra.Command{
		Use:   "plan <request>",
		Short: "Run one request through the planning pipeline and print the sub-tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runPlan(cmd.Context(), cfg, args[0], projectID, repoURL)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id for the planning context")
	cmd.Flags().StringVar(&repoURL, "repo", "", "Repository URL to analyze before planning")
	return cmd
}

func runPlan(ctx context.Context, cfg *config.Config, input, projectID, repoURL string) error {
	llm := provider.NewOpenAIProvider(cfg.Provider.Endpoint, cfg.Provider.APIKey, cfg.Provider.Model)

	var repos orchestrator.RepoAnalyzer
	if repoURL != "" {
		mgr, err := gitops.NewManager(cfg.Analyzer.WorkDir)
		if err != nil {
			return err
		}
		repos = analyzer.New(mgr, llm, provider.GenerateOptions{
			Temperature:     cfg.Provider.Temperature,
			MaxOutputTokens: cfg.Provider.MaxOutputTokens,
		}, analyzer.Config{
			Concurrency:  cfg.Analyzer.Concurrency,
			MaxFileBytes: cfg.Analyzer.MaxFileBytes,
			MaxMainFiles: cfg.Analyzer.MaxMainFiles,
		})
	}

	// One-shot planning keeps the queue local; the output is the plan
	// itself, not queued work.
	orch := orchestrator.New(llm, queue.NewMemoryTaskQueue(), repos, nil, orchestrator.Config{
		StageTimeout:         cfg.Orchestrator.StageTimeout,
		Temperature:          cfg.Provider.Temperature,
		MaxOutputTokens:      cfg.Provider.MaxOutputTokens,
		MinInsightConfidence: cfg.Orchestrator.MinInsightConfidence,
	})

	subtasks, err := orch.ProcessUserRequestToTasks(ctx, input, orchestrator.ProjectContext{
		ProjectID: projectID,
		RepoURL:   repoURL,
	})
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(subtasks)
}
