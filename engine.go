package cunner

import (
	"fmt"

	"github.com/cmwaters/cunner/consensus"
	"github.com/cmwaters/cunner/consensus/avalanche"
	"github.com/cmwaters/cunner/consensus/solo"
	"github.com/rs/zerolog"
)

// Hooks are the callbacks an engine uses to hand its output back to the
// node. Engines only use the hooks that apply to them.
type Hooks struct {
	Relay  consensus.RelayFn
	Decide consensus.DecideFn

	// Metrics is optional and only used by the avalanche engine
	Metrics *avalanche.Metrics
}

// NewEngine constructs the engine selected by cfg.Engine
func NewEngine(cfg Config, hooks Hooks, logger zerolog.Logger) (consensus.Engine, error) {
	kind, err := consensus.ParseKind(cfg.Engine)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("engine", string(kind)).Logger()

	switch kind {
	case consensus.Solo:
		return solo.New(hooks.Relay,
			solo.WithBlockInterval(cfg.BlockInterval),
			solo.WithLogger(logger),
		)
	case consensus.Avalanche:
		opts := []avalanche.Option{avalanche.WithLogger(logger)}
		if hooks.Decide != nil {
			opts = append(opts, avalanche.WithDecideFn(hooks.Decide))
		}
		if hooks.Metrics != nil {
			opts = append(opts, avalanche.WithMetrics(hooks.Metrics))
		}
		return avalanche.New(cfg.Nodes, cfg.Avalanche, opts...)
	default:
		return nil, fmt.Errorf("no constructor for engine %q", kind)
	}
}
