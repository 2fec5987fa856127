package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/log"
)

// Execute walks the chain starting at action, handing each unskipped action
// to the handler for its type. It stops at the first verdict that is no
// longer running, or after one action in single-step test mode. A returned
// error is always an engine failure; user failures are verdicts
func (e *Engine) Execute(
	ctx context.Context, action *api.FlowAction, fc *api.FlowContext,
	c *Constants,
) (*api.FlowContext, error) {
	start := e.now()
	for cur := action; cur != nil; cur = cur.NextAction {
		if cur.Skip {
			continue
		}
		next, err := e.dispatch(ctx, cur, fc, c)
		if err != nil {
			slog.Error("Action failed",
				log.RunID(fc.RunID),
				log.StepName(cur.Name),
				log.ActionType(cur.Type),
				log.Error(err))
			return nil, err
		}
		fc = next
		c.report(ctx, fc)
		if c.TestSingleStep || !fc.Verdict.IsRunning() {
			break
		}
	}
	return fc.SetDuration(e.now().Sub(start).Milliseconds()), nil
}

func (e *Engine) dispatch(
	ctx context.Context, action *api.FlowAction, fc *api.FlowContext,
	c *Constants,
) (*api.FlowContext, error) {
	switch action.Type {
	case api.ActionCode:
		return e.handleCode(ctx, action, fc, c)
	case api.ActionPiece:
		return e.handlePiece(ctx, action, fc, c)
	case api.ActionBranch:
		return e.handleBranch(ctx, action, fc, c)
	case api.ActionRouter:
		return e.handleRouter(ctx, action, fc, c)
	case api.ActionLoop:
		return e.handleLoop(ctx, action, fc, c)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnimplementedActionType,
			action.Type)
	}
}
