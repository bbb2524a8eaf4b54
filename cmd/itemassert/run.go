package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/rendis/itemassert/internal/actions"
	"github.com/rendis/itemassert/internal/docs"
	"github.com/rendis/itemassert/internal/expressions"
	"github.com/rendis/itemassert/internal/runner"
	"github.com/rendis/itemassert/internal/validation"
	"github.com/rendis/itemassert/pkg/schema"
)

// app bundles what every subcommand needs.
type app struct {
	validator *validation.JSONSchemaValidator
	registry  *actions.Registry
}

func newApp(ctx context.Context, withDocs bool) (*app, error) {
	v, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	reg := actions.NewRegistry()
	if err := actions.RegisterBuiltins(reg, v, expressions.NewSelector(), logger); err != nil {
		return nil, err
	}
	if withDocs {
		if err := actions.RegisterDocs(reg, newDocsClient(ctx), v); err != nil {
			return nil, err
		}
	}
	return &app{validator: v, registry: reg}, nil
}

func newDocsClient(ctx context.Context) *docs.Client {
	var ts oauth2.TokenSource
	if cfg.DocsToken != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.DocsToken})
	}
	return docs.NewClient(ctx, docs.Config{
		BaseURL:     cfg.DocsBaseURL,
		TokenSource: ts,
		Timeout:     time.Duration(cfg.DocsTimeout),
		RateLimit: docs.RateLimitConfig{
			RequestsPerSecond: cfg.DocsRateLimit,
			BurstSize:         cfg.DocsBurst,
		},
		Node:   nodeName("docs.request"),
		Logger: logger,
	})
}

func nodeName(fallback string) string {
	if flagNode != "" {
		return flagNode
	}
	return fallback
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// runAction executes the named action over items and prints the output items
// as a JSON array.
func (a *app) runAction(cmd *cobra.Command, name string, params map[string]any, items []schema.Item) error {
	action, err := a.registry.Get(name)
	if err != nil {
		return err
	}

	r := runner.New(runner.Config{
		Node:           nodeName(name),
		Concurrency:    cfg.Concurrency,
		ContinueOnFail: cfg.ContinueOnFail,
		Logger:         logger,
	})
	out, err := r.Run(cmd.Context(), action, params, items)
	if err != nil {
		return err
	}
	logger.DebugContext(cmd.Context(), "run metrics", "metrics", r.Metrics().String())
	return printJSON(cmd, out)
}

func (a *app) loadItems(cmd *cobra.Command, path string) ([]schema.Item, error) {
	raw, err := readInput(cmd, path)
	if err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}
	return a.validator.ParseItems(raw)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
