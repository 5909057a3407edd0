package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iris-ai/iris-go/internal/agents"
	"github.com/iris-ai/iris-go/internal/api"
	"github.com/iris-ai/iris-go/internal/config"
	"github.com/iris-ai/iris-go/internal/history"
	"github.com/iris-ai/iris-go/internal/prefs"
	"github.com/iris-ai/iris-go/internal/session"
)

const defaultBaseURL = "https://api.iris.dev"

// runtimeEnv bundles everything a command needs: config, backend client,
// local stores and the session registry.
type runtimeEnv struct {
	Config   *config.Config
	Manager  *config.Manager
	Client   *api.Client
	Sessions *session.Manager
	Prefs    *prefs.Store
	Archive  *history.Archive
	Agents   *agents.Registry
}

func prepareRuntimeEnv(ctx context.Context) (*runtimeEnv, error) {
	manager, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	cfg, err := manager.Load()
	if err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if v := os.Getenv("IRIS_BASE_URL"); v != "" {
		baseURL = v
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiKey := cfg.APIKey
	if v := os.Getenv("IRIS_API_KEY"); v != "" {
		apiKey = v
	}

	dataDir := manager.DataDir(cfg)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	prefStore, err := prefs.Open(ctx, filepath.Join(dataDir, "prefs.db"))
	if err != nil {
		return nil, err
	}
	archive, err := history.Open(ctx, filepath.Join(dataDir, "history.db"))
	if err != nil {
		prefStore.Close()
		return nil, err
	}

	agentsPath := cfg.AgentsPath
	if agentsPath == "" {
		agentsPath = filepath.Join(filepath.Dir(manager.GetConfigPath()), "agents.yaml")
	}
	registry, err := agents.LoadRegistry(agentsPath)
	if err != nil {
		prefStore.Close()
		archive.Close()
		return nil, err
	}

	return &runtimeEnv{
		Config:  cfg,
		Manager: manager,
		Client: api.NewClient(api.Config{
			BaseURL: baseURL,
			APIKey:  apiKey,
		}),
		Sessions: session.NewManager(),
		Prefs:    prefStore,
		Archive:  archive,
		Agents:   registry,
	}, nil
}

func (e *runtimeEnv) Close() {
	if e.Prefs != nil {
		e.Prefs.Close()
	}
	if e.Archive != nil {
		e.Archive.Close()
	}
}
