package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"relay/internal/agent"
	"relay/internal/cache"
	"relay/internal/config"
	"relay/internal/llm"
	"relay/internal/mcp"
	"relay/internal/tools"
	"relay/internal/tui"
)

const version = "1.0.0"

func main() {
	if err := execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "relay is a streaming chat TUI with remote tool execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose)
			warnMissingEnv(logger)

			cfg, err := config.Load(config.LoadOptions{Path: strings.TrimSpace(configPath)})
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			session, err := buildSession(cfg, logger)
			if err != nil {
				return fmt.Errorf("build session: %w", err)
			}

			app := tui.NewApp(tui.AppConfig{
				Version:   version,
				Provider:  cfg.Provider.Name,
				ModelName: cfg.Provider.Model,
				ThemeName: cfg.TUI.Theme,
				Session:   session,
			})

			program := tea.NewProgram(app, tea.WithAltScreen())
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("run tui: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	return cmd
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// warnMissingEnv flags absent endpoint variables without refusing to
// start; the config file may supply the same values.
func warnMissingEnv(logger zerolog.Logger) {
	for _, name := range []string{"OPENAI_API_KEY", "OPENAI_API_BASE", "RELAY_MODEL"} {
		if strings.TrimSpace(os.Getenv(name)) == "" {
			logger.Warn().Str("var", name).Msg("environment variable not set")
		}
	}
}

func buildSession(cfg config.Config, logger zerolog.Logger) (*agent.Session, error) {
	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
		Provider: cfg.Provider.Name,
		APIKey:   cfg.Provider.APIKey,
		BaseURL:  cfg.Provider.BaseURL,
		Logger:   logger,
	})

	registry, err := buildToolRegistry()
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	catalog, err := buildCatalogLoader(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build tool catalog: %w", err)
	}

	return agent.New(agent.Config{
		Provider:      provider,
		Model:         cfg.Provider.Model,
		Temperature:   float32(cfg.Provider.Temperature),
		SystemPrompt:  cfg.Agent.SystemPrompt,
		Tools:         registry,
		Catalog:       catalog,
		MaxIterations: cfg.Agent.MaxIterations,
		Logger:        logger,
	})
}

func buildToolRegistry() (*tools.Registry, error) {
	registry := tools.NewRegistry()
	codeAssistant, err := tools.NewCodeAssistant()
	if err != nil {
		return nil, err
	}
	if err := registry.Register(codeAssistant); err != nil {
		return nil, err
	}
	return registry, nil
}

// buildCatalogLoader wires the remote tool client when MCP connections
// are configured. Without connections the session runs on local tools
// only.
func buildCatalogLoader(cfg config.Config, logger zerolog.Logger) (agent.CatalogLoader, error) {
	if len(cfg.MCP) == 0 {
		return nil, nil
	}

	ttl, err := cfg.CacheTTL()
	if err != nil {
		return nil, err
	}

	client, err := mcp.NewClient(mcp.Options{
		Connections: cfg.MCP,
		Cache:       cache.NewMemory(cfg.Cache.Capacity),
		CatalogTTL:  ttl,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) ([]tools.Tool, error) {
		return client.GetTools(ctx, "")
	}, nil
}
