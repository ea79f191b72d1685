package visitor

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/Lxi0707/Typecho-play/pkg/types"
)

// pageRenderer is the contract Composite needs from RenderVisitor. The
// error return signals that the page never loaded and a plain HTTP visit
// should take over.
type pageRenderer interface {
	visit(ctx context.Context, task types.VisitTask) (types.VisitOutcome, error)
}

// Composite routes a configured fraction of visits through the headless
// renderer and the rest (plus any renderer failures) through plain HTTP.
type Composite struct {
	base     Visitor
	renderer pageRenderer
	fraction float64
	logger   *slog.Logger
}

// NewComposite builds a composite visitor. A nil renderer or zero
// fraction degrades to the base visitor alone.
func NewComposite(base Visitor, renderer *RenderVisitor, fraction float64, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Composite{base: base, fraction: fraction, logger: logger}
	if renderer != nil {
		c.renderer = renderer
	}
	return c
}

// Visit dispatches one visit, falling back to HTTP on renderer errors.
func (c *Composite) Visit(ctx context.Context, task types.VisitTask) types.VisitOutcome {
	if c.renderer != nil && c.fraction > 0 && rand.Float64() < c.fraction {
		outcome, err := c.renderer.visit(ctx, task)
		if err == nil {
			return outcome
		}
		c.logger.Warn("renderer failed, falling back to HTTP visit",
			"url", task.URL.String(), "error", err)
	}
	return c.base.Visit(ctx, task)
}
