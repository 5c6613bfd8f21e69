package preflight

import (
	"context"

	"reelsmith/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Provider checks only run when a key is configured; without one the
// generative gateway uses its fallback and there is nothing to reach.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
	}
	if cfg.Storage.Backend == config.StorageLocal {
		results = append(results, CheckDirectoryAccess("Blob directory", cfg.Storage.LocalDir))
	}

	for _, status := range CheckSystemDeps(cfg) {
		detail := status.Command
		if !status.Available {
			detail = status.Detail
		}
		results = append(results, Result{Name: status.Name, Passed: status.Available, Detail: detail})
	}

	if cfg.LLM.APIKey != "" {
		results = append(results, CheckLLM(ctx, cfg.LLM))
	}
	if cfg.Speech.APIKey != "" {
		results = append(results, CheckSpeech(ctx, cfg.Speech))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
