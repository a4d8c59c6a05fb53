//go:build cgo

package facade

import (
	"context"

	"github.com/dusk-indust/csngraph/internal/graph"
)

// newPropertyGraphEngine opens an embedded Kuzu database and binds g to it.
func newPropertyGraphEngine(ctx context.Context, g *graph.Graph) (graph.Engine, error) {
	e, err := graph.NewKuzuEngine()
	if err != nil {
		return nil, err
	}
	if err := e.Bind(ctx, g); err != nil {
		e.Close() //nolint:errcheck
		return nil, err
	}
	return e, nil
}
