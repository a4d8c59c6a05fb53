//go:build !cgo

package facade

import (
	"context"

	"github.com/dusk-indust/csngraph/internal/graph"
)

// newPropertyGraphEngine reports the property-graph backend as unavailable
// in cgo-less builds. The facade falls back to the in-memory engine when
// configured to do so.
func newPropertyGraphEngine(_ context.Context, _ *graph.Graph) (graph.Engine, error) {
	return nil, graph.Errf(graph.KindBackendUnavailable, "property-graph backend requires a cgo build")
}
