package interpreter

import (
	"context"
	"fmt"
	"strings"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
)

// Strategy names, in the order they are attempted.
const (
	StrategyNative  = "native"
	StrategyPointer = "pointer"
	StrategyScript  = "script"
)

// strategy is one way of performing an interaction.
type strategy struct {
	name string
	run  func(ctx context.Context) error
}

// firstSuccess tries strategies in order and stops at the first success.
// It returns the winning strategy name and the errors of those that failed
// before it. When all fail the error is ElementNotFound carrying every
// attempt; a done context stops the chain with the context error.
func firstSuccess(ctx context.Context, what string, strategies ...strategy) (string, []string, error) {
	var attempts []string
	for _, st := range strategies {
		if err := ctx.Err(); err != nil {
			return "", attempts, err
		}
		if err := st.run(ctx); err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", st.name, err))
			continue
		}
		return st.name, attempts, nil
	}
	if err := ctx.Err(); err != nil {
		return "", attempts, err
	}
	return "", attempts, core.ErrElementNotFound.
		WithMessage(fmt.Sprintf("%s: every interaction strategy failed (%s)", what, strings.Join(attempts, "; "))).
		WithDetails(map[string]any{"attempts": attempts})
}
