package worker

import (
	"time"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/match"
	"github.com/samstream/engine/pkg/query"
	"github.com/samstream/engine/pkg/request"
	"github.com/samstream/engine/pkg/transport"
)

func msToDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func toWireEdge(e edge.Edge) transport.WireEdge {
	return transport.WireEdge{ID: e.ID, WorkerID: e.WorkerID, Label: e.Label, Tuple: map[string]interface{}(e.Tuple)}
}

func fromWireEdge(we transport.WireEdge) edge.Edge {
	return edge.Edge{ID: we.ID, WorkerID: we.WorkerID, Label: we.Label, Tuple: edge.Tuple(we.Tuple)}
}

func toWireEdges(edges []edge.Edge) []transport.WireEdge {
	out := make([]transport.WireEdge, len(edges))
	for i, e := range edges {
		out[i] = toWireEdge(e)
	}
	return out
}

func toWirePartial(pm *match.PartialMatch) *transport.ForwardedMatchPayload {
	bindings := make(map[string]string, len(pm.Bindings))
	for k, v := range pm.Bindings {
		bindings[k] = v
	}
	return &transport.ForwardedMatchPayload{
		Bindings:     bindings,
		MatchedEdges: toWireEdges(pm.MatchedEdges),
		ExpireAt:     pm.ExpireAt,
	}
}

func fromWirePartial(q *query.SubgraphQuery, p *transport.ForwardedMatchPayload) *match.PartialMatch {
	edges := make([]edge.Edge, len(p.MatchedEdges))
	for i, we := range p.MatchedEdges {
		edges[i] = fromWireEdge(we)
	}
	bindings := make(map[string]string, len(p.Bindings))
	for k, v := range p.Bindings {
		bindings[k] = v
	}
	return &match.PartialMatch{Query: q, MatchedEdges: edges, Bindings: bindings, ExpireAt: p.ExpireAt}
}

func toWireRequest(r request.EdgeRequest) *transport.EdgeRequestPayload {
	return &transport.EdgeRequestPayload{
		IndexVertex: r.IndexVertex, WildcardVertex: r.WildcardVertex, IndexIsSource: r.IndexIsSource,
		StartLo: r.StartLo, StartHi: r.StartHi, EndLo: r.EndLo, EndHi: r.EndHi,
		ReturnWorker: r.ReturnWorker, QueryID: r.QueryID, EdgeVar: r.EdgeVar,
	}
}

func fromWireRequest(p *transport.EdgeRequestPayload) request.EdgeRequest {
	return request.EdgeRequest{
		IndexVertex: p.IndexVertex, WildcardVertex: p.WildcardVertex, IndexIsSource: p.IndexIsSource,
		StartLo: p.StartLo, StartHi: p.StartHi, EndLo: p.EndLo, EndHi: p.EndHi,
		ReturnWorker: p.ReturnWorker, QueryID: p.QueryID, EdgeVar: p.EdgeVar,
	}
}
