package main

import (
	"context"
	"fmt"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/internal/assistant"
	"github.com/finlegal/tenkdraft/internal/audit"
	"github.com/finlegal/tenkdraft/internal/filingstore"
	"github.com/finlegal/tenkdraft/internal/generation"
	"github.com/finlegal/tenkdraft/internal/index"
	srv "github.com/finlegal/tenkdraft/internal/server"
	"github.com/finlegal/tenkdraft/provider"
)

// localPipeline wires the generation pipeline from cached filings, the way the
// server does, but with file-backed audit and no session persistence. Used by
// the chat and generate commands.
func localPipeline(ctx context.Context, cfg *config.Config) (*generation.Pipeline, provider.Provider, audit.Recorder, error) {
	prov, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return nil, nil, nil, err
	}
	filings, err := filingstore.New(cfg.Storage.FilingsDir())
	if err != nil {
		return nil, nil, nil, err
	}
	ix, err := index.New(prov)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := srv.BuildIndex(ctx, ix, filings); err != nil {
		return nil, nil, nil, fmt.Errorf("building index: %w", err)
	}
	recorder, err := audit.NewFileStore(cfg.Storage.AuditDir())
	if err != nil {
		return nil, nil, nil, err
	}
	return generation.NewPipeline(prov, ix, recorder, cfg.LLM, cfg.Retrieval.TopK), prov, recorder, nil
}

func localAssistant(ctx context.Context, cfg *config.Config) (*assistant.Assistant, error) {
	pipeline, prov, recorder, err := localPipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return assistant.New(prov, pipeline, assistant.NewMemoryStore(0), recorder, cfg.Companies, cfg.LLM), nil
}
