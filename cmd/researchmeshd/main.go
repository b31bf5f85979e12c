// Command researchmeshd serves the research pipeline over HTTP: a streaming
// chat endpoint, session CRUD, history export and Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/researchmesh"
	"github.com/hupe1980/researchmesh/config"
	"github.com/hupe1980/researchmesh/httpapi"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/model/anthropic"
	"github.com/hupe1980/researchmesh/model/openai"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// An unreachable MongoDB degrades to no-op persistence instead of
	// blocking startup.
	st := store.NewMongo(ctx, func(o *store.MongoOptions) {
		o.URI = cfg.Mongo.URI
		o.Database = cfg.Mongo.Database
		o.Logger = logger.WithComponent("store")
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	llm, err := buildModel(cfg)
	if err != nil {
		return err
	}

	mesh := researchmesh.New(llm, search.NewTavily(cfg.Tavily.APIKey), func(o *researchmesh.Options) {
		o.Store = st
		o.CallTimeout = cfg.CallTimeout
		o.Logger = logger.WithComponent("pipeline")
	})

	handler := httpapi.NewHandler(mesh.Graph(), st, func(o *httpapi.HandlerOptions) {
		o.Logger = logger.WithComponent("httpapi")
	})
	server := httpapi.NewServer(handler, func(o *httpapi.ServerOptions) {
		o.Addr = cfg.Addr()
		o.Logger = logger.WithComponent("httpapi")
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	logger.Info("researchmeshd started", "addr", cfg.Addr(), "provider", cfg.Provider, "store_connected", st.Connected())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildModel(cfg *config.Config) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		client := openaisdk.NewClient(option.WithAPIKey(cfg.OpenAI.APIKey))
		return openai.NewModelFromClient(&client, func(o *openai.Options) {
			o.Model = openaisdk.ChatModel(cfg.OpenAI.Model)
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.Anthropic.APIKey
			o.Model = anthropicsdk.Model(cfg.Anthropic.Model)
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
