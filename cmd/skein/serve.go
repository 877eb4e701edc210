package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jordanhubbard/skein/internal/analyzer"
	"github.com/jordanhubbard/skein/internal/config"
	"github.com/jordanhubbard/skein/internal/experience"
	"github.com/jordanhubbard/skein/internal/gitops"
	"github.com/jordanhubbard/skein/internal/insight"
	"github.com/jordanhubbard/skein/internal/metrics"
	"github.com/jordanhubbard/skein/internal/orchestrator"
	"github.com/jordanhubbard/skein/internal/provider"
	"github.com/jordanhubbard/skein/internal/queue"
	"github.com/jordanhubbard/skein/pkg/models"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the planning API, learning loop, and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	qs, err := openQueues(cfg)
	if err != nil {
		return err
	}
	defer qs.close()

	recorder := experience.NewRecorder(st.experiences, qs.analysis, experience.Config{
		BufferSize:    cfg.Learning.RecorderBuffer,
		SystemVersion: cfg.SystemVersion,
	})
	defer recorder.Close()

	engine := insight.NewEngine(qs.analysis, st.experiences, st.insights, insight.Config{
		Interval:          cfg.Learning.AnalysisInterval,
		BatchSize:         cfg.Learning.MaxBatchSize,
		ValidateThreshold: cfg.Learning.MinConfidenceValidate,
		SuggestThreshold:  cfg.Learning.MinConfidenceSuggest,
		StaleAfter:        cfg.Learning.StaleAfter,
	})

	llm := provider.NewOpenAIProvider(cfg.Provider.Endpoint, cfg.Provider.APIKey, cfg.Provider.Model)

	repos, err := gitops.NewManager(cfg.Analyzer.WorkDir)
	if err != nil {
		return err
	}
	repoAnalyzer := analyzer.New(repos, llm, provider.GenerateOptions{
		Temperature:     cfg.Provider.Temperature,
		MaxOutputTokens: cfg.Provider.MaxOutputTokens,
	}, analyzer.Config{
		Concurrency:  cfg.Analyzer.Concurrency,
		MaxFileBytes: cfg.Analyzer.MaxFileBytes,
		MaxMainFiles: cfg.Analyzer.MaxMainFiles,
	})

	orch := orchestrator.New(llm, qs.tasks, repoAnalyzer, st.insights, orchestrator.Config{
		StageTimeout:         cfg.Orchestrator.StageTimeout,
		Temperature:          cfg.Provider.Temperature,
		MaxOutputTokens:      cfg.Provider.MaxOutputTokens,
		MinInsightConfidence: cfg.Orchestrator.MinInsightConfidence,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Skein] insight engine stopped: %v", err)
		}
	}()

	if cfg.Learning.RetentionWindow > 0 {
		go runRetention(ctx, cfg, st)
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
			// Backend selection is fixed at startup; tunables that the
			// pipeline reads per request take effect immediately.
			orch.SetConfig(orchestrator.Config{
				StageTimeout:         next.Orchestrator.StageTimeout,
				Temperature:          next.Provider.Temperature,
				MaxOutputTokens:      next.Provider.MaxOutputTokens,
				MinInsightConfidence: next.Orchestrator.MinInsightConfidence,
			})
		})
		if err != nil {
			log.Printf("[Skein] config watch unavailable: %v", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	metrics.NewMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	api := &apiServer{orch: orch, tasks: qs.tasks, recorder: recorder}
	mux.HandleFunc("/v1/plan", api.handlePlan)
	mux.HandleFunc("/v1/tasks/next", api.handleNextTask)

	server := &http.Server{
		Addr:         cfg.Server.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // planning holds the request open
	}
	go func() {
		log.Printf("[Skein] listening on %s (model %s)", cfg.Server.MetricsAddr, llm.Model())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Skein] server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[Skein] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type apiServer struct {
	orch     *orchestrator.Orchestrator
	tasks    queue.TaskQueue
	recorder *experience.Recorder
}

type planRequest struct {
	Input       string `json:"input"`
	ProjectID   string `json:"project_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Description string `json:"description,omitempty"`
	RepoURL     string `json:"repo_url,omitempty"`
}

func (s *apiServer) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Input == "" {
		http.Error(w, "input is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	subtasks, err := s.orch.ProcessUserRequestToTasks(r.Context(), req.Input, orchestrator.ProjectContext{
		ProjectID:   req.ProjectID,
		SessionID:   req.SessionID,
		Description: req.Description,
		RepoURL:     req.RepoURL,
	})

	exp := &models.Experience{
		Type: models.ExperienceOrchestration,
		Context: models.ExperienceContext{
			ProjectID: req.ProjectID,
			SessionID: req.SessionID,
		},
		Outcome: models.ExperienceOutcome{
			Status:     experience.OutcomeForError(err),
			DurationMs: time.Since(start).Milliseconds(),
		},
		Metadata: models.ExperienceMetadata{Source: "api"},
	}
	if err != nil {
		exp.Outcome.Error = &models.ErrorDetail{Code: "planning_failed", Message: err.Error()}
		s.recorder.Record(exp)
		log.Printf("[Skein] planning failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	exp.Outcome.Metrics = map[string]float64{"subtasks": float64(len(subtasks))}
	s.recorder.Record(exp)

	writeJSON(w, http.StatusOK, map[string]any{"subtasks": subtasks})
}

func (s *apiServer) handleNextTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	task, err := s.tasks.DequeueOne(r.Context())
	if errors.Is(err, queue.ErrEmpty) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Skein] failed to write response: %v", err)
	}
}

// runRetention prunes experiences outside the retention window once a
// day.
func runRetention(ctx context.Context, cfg *config.Config, st *stores) {
	m := metrics.NewMetrics()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-cfg.Learning.RetentionWindow)
			n, err := st.experiences.PruneOldExperiences(ctx, cutoff)
			if err != nil {
				log.Printf("[Skein] retention prune failed: %v", err)
				continue
			}
			if n > 0 {
				m.ExperiencesPruned.Add(float64(n))
				log.Printf("[Skein] pruned %d experiences older than %s", n, cutoff.Format(time.RFC3339))
			}
		}
	}
}
