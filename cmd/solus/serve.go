package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/solus-ai/solus/config"
	"github.com/solus-ai/solus/engine"
	"github.com/solus-ai/solus/llm"
	"github.com/solus-ai/solus/memory"
	"github.com/solus-ai/solus/prompt"
	"github.com/solus-ai/solus/server"
)

// warmupTimeout bounds the startup probe of the embedding backend.
const warmupTimeout = 2 * time.Minute

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), a.cfg)
		},
	}

	f := cmd.Flags()
	f.String("model", "", "generation model name")
	f.String("host", "", "HTTP listen host")
	f.Int("port", 0, "HTTP listen port")
	f.Int("grpc-port", 0, "gRPC health port (0 disables)")
	f.Int("threads", 0, "inference threads")
	f.Int("gpu-layers", 0, "layers offloaded to the GPU")
	f.Int("ctx-size", 0, "model context window in tokens")
	f.Float32("temperature", 0, "sampling temperature")
	f.Bool("verbose", false, "log per-request timing")

	bindFlags(a.v, f, map[string]string{
		"model.name":             "model",
		"server.host":            "host",
		"server.port":            "port",
		"server.grpc_port":       "grpc-port",
		"model.threads":          "threads",
		"model.gpu_layers":       "gpu-layers",
		"model.context_size":     "ctx-size",
		"generation.temperature": "temperature",
		"verbose":                "verbose",
	})
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := log.Default().WithPrefix("solus")

	b, err := newBackends(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	dim, err := warmup(ctx, b.runtime, cfg, logger)
	if err != nil {
		return err
	}

	store, err := memory.New(
		memory.Config{Path: cfg.Memory.Path, Dimension: dim, Capacity: cfg.Memory.Capacity},
		memory.WithIndexFactory(newIndexFactory(cfg)),
		memory.WithCodec(newCodec(cfg)),
	)
	if err != nil {
		return err
	}
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize memory: %w", err)
	}

	eng, err := newEngine(cfg, b, store)
	if err != nil {
		return err
	}

	srv := server.New(eng, store, b.runtime,
		server.WithConfig(server.Config{
			Addr:            cfg.Server.Addr(),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Verbose:         cfg.Verbose,
		}),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen for grpc: %w", err)
		}
		health := server.NewHealthServer(b.runtime, nil)
		running++
		go func() { errCh <- health.Serve(ctx, lis, 0) }()
	}

	logger.Info("solus ready",
		"addr", cfg.Server.Addr(),
		"backend", cfg.Model.Backend,
		"model", cfg.Model.Name,
		"memories", store.Count(),
		"embedding_dim", dim,
	)

	var errs []error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil {
			logger.Error("listener failed", "error", err)
			errs = append(errs, err)
		}
		// Either listener stopping stops the other.
		cancel()
	}

	logger.Info("saving memory before exit", "memories", store.Count())
	saveCtx, cancelSave := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelSave()
	if err := store.Close(saveCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to save memory: %w", err))
	}
	return errors.Join(errs...)
}

// warmup probes the embedding backend and settles the store dimension. A
// failed probe is fatal only when the dimension cannot be taken from config.
func warmup(ctx context.Context, rt *llm.Runtime, cfg *config.Config, logger *log.Logger) (int, error) {
	wctx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	probed, err := rt.Warmup(wctx)
	switch {
	case err != nil && cfg.Memory.Dimension > 0:
		logger.Warn("model not loaded; serving with configured dimension", "dimension", cfg.Memory.Dimension, "error", err)
		return cfg.Memory.Dimension, nil
	case err != nil:
		return 0, fmt.Errorf("failed to probe embedding dimension (set memory.dimension to start without the backend): %w", err)
	case cfg.Memory.Dimension > 0 && probed != cfg.Memory.Dimension:
		return 0, fmt.Errorf("memory.dimension %d does not match embedder dimension %d", cfg.Memory.Dimension, probed)
	}
	return probed, nil
}

func newEngine(cfg *config.Config, b *backends, store *memory.Store) (*engine.Engine, error) {
	template := prompt.DefaultTemplate(cfg.Prompt.RoleLabel)
	if cfg.Prompt.TemplateFile != "" {
		t, err := prompt.LoadTemplate(cfg.Prompt.TemplateFile)
		if err != nil {
			return nil, err
		}
		template = t
	}
	assembler, err := prompt.NewAssembler(template)
	if err != nil {
		return nil, err
	}
	format, err := prompt.ParseFormat(cfg.Prompt.Format)
	if err != nil {
		return nil, err
	}

	params := llm.Params{
		Temperature:   cfg.Generation.Temperature,
		TopP:          cfg.Generation.TopP,
		TopK:          cfg.Generation.TopK,
		MaxTokens:     cfg.Generation.MaxTokens,
		RepeatLastN:   cfg.Generation.RepeatLastN,
		RepeatPenalty: cfg.Generation.RepeatPenalty,
	}

	return engine.NewEngine(b.embedder, b.runtime, store, assembler,
		engine.WithParams(params),
		engine.WithTopK(cfg.Memory.TopK),
		engine.WithFormat(format),
		engine.WithRoleLabel(cfg.Prompt.RoleLabel),
	), nil
}
