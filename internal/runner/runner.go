// Package runner applies an action to every item of a batch, the way a host
// pipeline invokes a node once per item.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/itemassert/internal/actions"
	"github.com/rendis/itemassert/internal/logging"
	"github.com/rendis/itemassert/pkg/schema"
)

// Config configures a Runner.
type Config struct {
	// Node is the node name attached to errors and log records.
	Node string
	// Concurrency bounds how many items are processed at once. Values below 1 mean 1.
	Concurrency int
	// ContinueOnFail turns a failing item into an error record instead of
	// aborting the batch.
	ContinueOnFail bool
	// Logger should carry a logging.CorrelationHandler so records get run and item ids.
	Logger *slog.Logger
}

// Metrics counts item outcomes across all runs of a Runner.
type Metrics struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// Runner executes an action over a batch of items. Items are independent;
// output order always matches input order.
type Runner struct {
	cfg     Config
	logger  *slog.Logger
	metrics Metrics
}

// New creates a Runner.
func New(cfg Config) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Metrics returns a snapshot of the runner's counters.
func (r *Runner) Metrics() Metrics {
	return Metrics{
		Completed: atomic.LoadInt64(&r.metrics.Completed),
		Failed:    atomic.LoadInt64(&r.metrics.Failed),
		Panics:    atomic.LoadInt64(&r.metrics.Panics),
	}
}

// Run validates params once, then executes action for each item. Without
// ContinueOnFail the first failure cancels the remaining items and is returned
// with node and item context. Each output item carries the action's result
// record as its JSON.
func (r *Runner) Run(ctx context.Context, action actions.Action, params map[string]any, items []schema.Item) ([]schema.Item, error) {
	runID := uuid.New().String()
	ctx = logging.WithIDs(ctx, runID, r.cfg.Node)
	logger := r.logger

	if err := action.Validate(params); err != nil {
		return nil, schema.AsNodeError(err).WithNode(r.cfg.Node)
	}

	logger.InfoContext(ctx, "run started",
		slog.String("action", action.Name()),
		slog.Int("items", len(items)),
		slog.Int("concurrency", r.cfg.Concurrency))

	out := make([]schema.Item, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			itemCtx := logging.WithItemIndex(gctx, i)
			res, err := r.runItem(itemCtx, action, params, &items[i])
			if err == nil {
				atomic.AddInt64(&r.metrics.Completed, 1)
				out[i] = res
				return nil
			}

			atomic.AddInt64(&r.metrics.Failed, 1)
			nodeErr := schema.AsNodeError(err).WithNode(r.cfg.Node).WithItem(i)
			if !r.cfg.ContinueOnFail {
				return nodeErr
			}
			r.logger.WarnContext(itemCtx, "item failed, continuing",
				slog.String("code", nodeErr.Code),
				slog.String("error", nodeErr.Message))
			out[i] = errorItem(nodeErr)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.ErrorContext(ctx, "run failed", slog.String("error", err.Error()))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "run cancelled").WithNode(r.cfg.Node).WithCause(err)
	}

	logger.InfoContext(ctx, "run completed", slog.Int("items", len(out)))
	return out, nil
}

// runItem executes the action for one item, converting panics into errors.
func (r *Runner) runItem(ctx context.Context, action actions.Action, params map[string]any, item *schema.Item) (res schema.Item, err error) {
	defer func() {
		if p := recover(); p != nil {
			atomic.AddInt64(&r.metrics.Panics, 1)
			err = schema.NewErrorf(schema.ErrCodeExecution, "action %s panicked: %v", action.Name(), p)
		}
	}()

	output, err := action.Execute(ctx, actions.ActionInput{Params: params, Item: item})
	if err != nil {
		return schema.Item{}, err
	}
	return outputItem(output)
}

// outputItem wraps an action's result record into an item envelope. Records
// that are not JSON objects are stored under "result".
func outputItem(output *actions.ActionOutput) (schema.Item, error) {
	if output == nil || len(output.Data) == 0 {
		return schema.NewItem(nil), nil
	}
	var v any
	if err := json.Unmarshal(output.Data, &v); err != nil {
		return schema.Item{}, schema.NewError(schema.ErrCodeExecution, "action returned invalid JSON").WithCause(err)
	}
	if obj, ok := v.(map[string]any); ok {
		return schema.NewItem(obj), nil
	}
	return schema.NewItem(map[string]any{"result": v}), nil
}

func errorItem(err *schema.NodeError) schema.Item {
	data := map[string]any{
		"error": err.Message,
		"code":  err.Code,
	}
	if len(err.Details) > 0 {
		data["details"] = err.Details
	}
	return schema.NewItem(data)
}

// String implements fmt.Stringer for log output.
func (m Metrics) String() string {
	return fmt.Sprintf("completed=%d failed=%d panics=%d", m.Completed, m.Failed, m.Panics)
}
