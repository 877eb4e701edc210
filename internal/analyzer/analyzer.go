// Package analyzer builds a structured understanding of an external code
// repository: its file tree plus a model-derived analysis of each main
// source file.
package analyzer

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jordanhubbard/skein/internal/gitops"
	"github.com/jordanhubbard/skein/internal/llmparse"
	"github.com/jordanhubbard/skein/internal/metrics"
	"github.com/jordanhubbard/skein/internal/prompts"
	"github.com/jordanhubbard/skein/internal/provider"
)

// RepoSource abstracts repository access for testability.
type RepoSource interface {
	CloneRepository(ctx context.Context, url string) (string, error)
	ListFiles(localPath string, recursive bool) (*gitops.FileListing, error)
	ReadFile(localPath, relPath string) (string, error)
}

// FileAnalysis is the parsed model output for one source file.
type FileAnalysis struct {
	Path     string         `json:"path"`
	Analysis map[string]any `json:"analysis"`
}

// RepoAnalysis is the result of analyzing one repository. Repository-level
// failures (clone, listing) do not raise: they come back as a partial result
// with the error recorded, since repository context is an optional
// enrichment of planning, not a hard dependency.
type RepoAnalysis struct {
	RepoURL         string         `json:"repo_url"`
	Files           []string       `json:"files,omitempty"`
	MainFiles       []FileAnalysis `json:"main_files,omitempty"`
	PartialAnalysis bool           `json:"partial_analysis"`
	Error           string         `json:"error,omitempty"`
}

// Config tunes the analyzer.
type Config struct {
	Concurrency  int // Max in-flight per-file model calls
	MaxFileBytes int // Per-file content cap fed to the model
	MaxMainFiles int // Cap on how many main files get analyzed (0 = all)
}

// DefaultConfig returns the default analyzer tuning.
func DefaultConfig() Config {
	return Config{
		Concurrency:  4,
		MaxFileBytes: 16 * 1024,
		MaxMainFiles: 50,
	}
}

// Analyzer runs bounded-parallel per-file analysis over a repository.
type Analyzer struct {
	source  RepoSource
	llm     provider.Generator
	opts    provider.GenerateOptions
	cfg     Config
	metrics *metrics.Metrics
}

// New creates an analyzer.
func New(source RepoSource, llm provider.Generator, opts provider.GenerateOptions, cfg Config) *Analyzer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultConfig().MaxFileBytes
	}
	return &Analyzer{source: source, llm: llm, opts: opts, cfg: cfg, metrics: metrics.NewMetrics()}
}

// Analyze clones the repository, lists its tree, and analyzes each main
// file with at most cfg.Concurrency model calls in flight. A per-file parse
// failure aborts the whole analysis with an error; repository access
// failures degrade to a partial result instead.
func (a *Analyzer) Analyze(ctx context.Context, repoURL string) (*RepoAnalysis, error) {
	result := &RepoAnalysis{RepoURL: repoURL}

	localPath, err := a.source.CloneRepository(ctx, repoURL)
	if err != nil {
		log.Printf("[Analyzer] clone of %s failed, returning partial analysis: %v", repoURL, err)
		result.PartialAnalysis = true
		result.Error = err.Error()
		a.metrics.ReposAnalyzed.WithLabelValues("partial").Inc()
		return result, nil
	}

	listing, err := a.source.ListFiles(localPath, true)
	if err != nil {
		log.Printf("[Analyzer] listing %s failed, returning partial analysis: %v", repoURL, err)
		result.PartialAnalysis = true
		result.Error = err.Error()
		a.metrics.ReposAnalyzed.WithLabelValues("partial").Inc()
		return result, nil
	}
	result.Files = listing.All

	mainFiles := listing.MainFiles
	if a.cfg.MaxMainFiles > 0 && len(mainFiles) > a.cfg.MaxMainFiles {
		mainFiles = mainFiles[:a.cfg.MaxMainFiles]
	}

	var mu sync.Mutex
	analyses := make(map[string]FileAnalysis, len(mainFiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for _, relPath := range mainFiles {
		relPath := relPath
		g.Go(func() error {
			fa, err := a.analyzeFile(gctx, localPath, relPath)
			if err != nil {
				return err
			}
			mu.Lock()
			analyses[relPath] = *fa
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var rae *gitops.RepoAccessError
		if errors.As(err, &rae) {
			// Unreadable files are repository trouble, not model trouble.
			result.PartialAnalysis = true
			result.Error = err.Error()
			a.metrics.ReposAnalyzed.WithLabelValues("partial").Inc()
			return result, nil
		}
		a.metrics.ReposAnalyzed.WithLabelValues("failed").Inc()
		return nil, err
	}

	for _, relPath := range mainFiles {
		if fa, ok := analyses[relPath]; ok {
			result.MainFiles = append(result.MainFiles, fa)
		}
	}
	sort.Slice(result.MainFiles, func(i, j int) bool {
		return result.MainFiles[i].Path < result.MainFiles[j].Path
	})
	a.metrics.ReposAnalyzed.WithLabelValues("full").Inc()
	return result, nil
}

func (a *Analyzer) analyzeFile(ctx context.Context, localPath, relPath string) (*FileAnalysis, error) {
	content, err := a.source.ReadFile(localPath, relPath)
	if err != nil {
		return nil, err
	}
	if len(content) > a.cfg.MaxFileBytes {
		content = content[:a.cfg.MaxFileBytes]
	}

	system, user := prompts.AnalyzeFile(relPath, content)
	opts := a.opts
	opts.SystemPrompt = system
	raw, err := a.llm.GenerateText(ctx, user, opts)
	if err != nil {
		return nil, err
	}

	var analysis map[string]any
	if err := llmparse.Decode("file_analysis", raw, &analysis); err != nil {
		return nil, err
	}
	a.metrics.FilesAnalyzed.Inc()
	return &FileAnalysis{Path: relPath, Analysis: analysis}, nil
}
