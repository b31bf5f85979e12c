package agent

import (
	"context"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/store"
)

// Agent is a single pipeline stage operating on the shared state.
type Agent interface {
	Name() string
	Run(ctx context.Context, state *core.SharedState) error
}

// defaultCallTimeout bounds each external model or search call.
const defaultCallTimeout = 60 * time.Second

// callContext derives a bounded context for one external call.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// logOutput writes an agent's raw output to the store on a fire-and-forget
// basis. A store failure is warned about and dropped, never propagated.
func logOutput(ctx context.Context, st store.Store, logger logging.Logger, queryID, agent, output string, metadata map[string]any) {
	if st == nil {
		return
	}
	if _, err := st.LogAgentOutput(ctx, queryID, agent, output, metadata); err != nil {
		logger.Warn("failed to log agent output", "agent", agent, "error", err)
	}
}
