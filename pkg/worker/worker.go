// Package worker orchestrates spec components 4.A-4.H into one running
// SAM worker process: it owns this node's local edge stores, feature
// map, partial-match table, and transport, and drives edges arriving
// from ingestion or from peers through partial-match extension, request
// broadcast, and result emission.
//
// Grounded on the shape of the teacher's pkg/server package (a top-level
// type wiring together the teacher's storage, cache, and protocol
// pieces into one addressable object with Start/Stop-style lifecycle
// methods) generalized to SAM's ingest -> match -> emit pipeline.
package worker

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/samstream/engine/pkg/config"
	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/edgestore"
	"github.com/samstream/engine/pkg/feature"
	"github.com/samstream/engine/pkg/match"
	"github.com/samstream/engine/pkg/pool"
	"github.com/samstream/engine/pkg/query"
	"github.com/samstream/engine/pkg/request"
	"github.com/samstream/engine/pkg/sink"
	"github.com/samstream/engine/pkg/transport"
	"github.com/samstream/engine/pkg/window"
)

// Worker ties every component of one SAM node together.
type Worker struct {
	ID     int
	Config *config.WorkerConfig
	Query  *query.SubgraphQuery

	BySource *edgestore.Store
	ByTarget *edgestore.Store
	Features *feature.Map
	Table    *match.Table
	Dedup    *request.TemporalSet

	// Operators are the spec §4.B sliding-window feature computations this
	// worker runs over every ingested edge before attempting a match,
	// publishing into Features so VertexConstraintExpression closures (spec
	// §4.F) can read them back (e.g. a top-k-membership or rate-threshold
	// constraint). A worker with no query-level feature constraints simply
	// carries an empty slice.
	Operators []window.Operator

	Transport *transport.Transport
	Sink      *sink.Printer

	dropped atomic.Int64
}

// New constructs a Worker from cfg and a finalized query, but does not
// yet start its transport. ops are the sliding-window feature operators
// (spec §4.B) to run over every ingested edge before matching; pass none
// for a query with no feature-backed vertex constraints. New builds its
// own feature.Map; callers that compile vertex constraints or features
// ahead of worker construction (so the same map backs both) should use
// NewWithFeatures instead.
func New(cfg *config.WorkerConfig, q *query.SubgraphQuery, out *sink.Printer, ops ...window.Operator) *Worker {
	return NewWithFeatures(cfg, q, out, feature.New(cfg.FeatureCapacity), ops...)
}

// NewWithFeatures is New, but takes an externally-constructed
// feature.Map instead of building one internally — the query's own
// vertex constraints (compiled through pkg/expr from a declarative
// query definition) and its window operators must read from and publish
// into the very same map, which means the map has to exist before the
// query's operators and constraints are compiled, and therefore before
// the Worker itself.
func NewWithFeatures(cfg *config.WorkerConfig, q *query.SubgraphQuery, out *sink.Printer, features *feature.Map, ops ...window.Operator) *Worker {
	return &Worker{
		ID:        cfg.NodeID,
		Config:    cfg,
		Query:     q,
		BySource:  edgestore.New(edgestore.BySource, cfg.GraphCapacity, cfg.TimeWindow),
		ByTarget:  edgestore.New(edgestore.ByTarget, cfg.GraphCapacity, cfg.TimeWindow),
		Features:  features,
		Table:     match.New(cfg.TableCapacity),
		Dedup:     request.NewTemporalSet(cfg.TableCapacity, q.MaxTimeExtent),
		Operators: ops,
		Sink:      out,
	}
}

// Start brings up the worker's transport: listening for inbound peer
// traffic and dialing every other node in the cluster.
func (w *Worker) Start() error {
	tr := transport.New(transport.Config{
		WorkerID:   w.ID,
		NumWorkers: w.Config.NumNodes,
		HWM:        w.Config.HWM,
		Timeout:    msToDuration(w.Config.Timeout),
	})
	if err := tr.Listen(w.Config.ListenAddr(), w.handleEnvelope); err != nil {
		return fmt.Errorf("worker %d: starting transport: %w", w.ID, err)
	}
	for id := 0; id < w.Config.NumNodes; id++ {
		if id == w.ID {
			continue
		}
		if err := tr.Dial(id, w.Config.PeerAddr(id)); err != nil {
			log.Printf("worker %d: dialing peer %d: %v", w.ID, id, err)
		}
	}
	w.Transport = tr
	return nil
}

// Shutdown runs the two-phase cooperative termination described by spec
// §5, delegating to the transport, then flushes the result sink.
func (w *Worker) Shutdown() {
	for _, op := range w.Operators {
		op.Terminate()
	}
	if w.Transport != nil {
		w.Transport.Shutdown()
	}
	if w.Sink != nil {
		_ = w.Sink.Close()
	}
}

func (w *Worker) localOwner(vertex string) bool {
	if w.Transport == nil {
		return true
	}
	return w.Transport.Router().WorkerFor(vertex) == w.ID
}

// ConsumeEdge is the ingestion entry point (spec §4.A-§4.E): it stores e
// in both local edge stores, seeds a new partial match if e satisfies
// the query's first edge description, and attempts to extend any
// partials already waiting on e.Source().
func (w *Worker) ConsumeEdge(e edge.Edge) {
	w.BySource.Add(e)
	w.ByTarget.Add(e)

	for _, op := range w.Operators {
		op.Consume(e)
	}

	w.trySeed(e)
	w.tryExtend(e)
}

// trySeed starts a new PartialMatch if e satisfies the query's first
// edge description (its time ranges and vertex constraints). The new
// partial goes into this worker's own table whichever worker owns its
// next-expected vertex; ownership is only consulted when a partial is
// extended (see tryExtend).
func (w *Worker) trySeed(e edge.Edge) {
	first := w.Query.Edges[0]
	if !first.StartTimeRange.Contains(e.Time()) || !first.EndTimeRange.Contains(e.EndTime()) {
		return
	}
	if !w.Query.CheckConstraints(first.Source, e.Source()) || !w.Query.CheckConstraints(first.Target, e.Target()) {
		return
	}

	pm := match.NewPartialMatch(w.Query, e)
	if pm.Complete() {
		w.Sink.Print(&match.Result{Bindings: pm.Bindings, Edges: pm.MatchedEdges})
		return
	}
	w.Table.Add(pm)
}

// tryExtend feeds e into the partial-match table and handles every
// resulting outcome: emit completed results, forward partials whose next
// vertex belongs to a remote peer, and leave locally re-inserted partials
// as-is (the table already re-inserted them).
func (w *Worker) tryExtend(e edge.Edge) {
	now := e.Time()
	outcomes := w.Table.Process(e, now, w.localOwner)
	for _, o := range outcomes {
		switch {
		case o.Result != nil:
			w.Sink.Print(o.Result)
		case o.Forward:
			w.forward(o.NextVertex, o.Partial)
		}
	}
}

// forward hands an extended partial to the worker that owns NextVertex
// (spec §4.H step 1) and, since the partial's anchor may not yet be
// visible to peers, broadcasts an EdgeRequest so any worker already
// holding a matching edge can push it back.
func (w *Worker) forward(nextVertex string, pm *match.PartialMatch) {
	if w.Transport == nil {
		return
	}
	owner := w.Transport.Router().WorkerFor(nextVertex)
	payload := toWirePartial(pm)

	if !w.Transport.SendTo(owner, transport.Envelope{Kind: transport.KindForwardedMatch, ForwardedMatch: payload}) {
		w.dropped.Add(1)
		return
	}

	nextDesc := pm.Query.Edges[pm.MatchedEdgesLen()]
	req := request.EdgeRequest{
		IndexVertex:   nextVertex,
		IndexIsSource: true,
		StartLo:       nextDesc.StartTimeRange.Lo, StartHi: nextDesc.StartTimeRange.Hi,
		EndLo: nextDesc.EndTimeRange.Lo, EndHi: nextDesc.EndTimeRange.Hi,
		ReturnWorker: owner,
		EdgeVar:      nextDesc.EdgeID,
	}
	if !w.Dedup.ShouldBroadcast(req, pm.MatchedEdges[len(pm.MatchedEdges)-1].Time()) {
		return
	}
	w.Transport.Broadcast(transport.Envelope{Kind: transport.KindEdgeRequest, EdgeRequest: toWireRequest(req)}, w.ID)
}

// handleEnvelope dispatches one inbound transport.Envelope per spec
// §4.H: a forwarded match is inserted locally and re-harvested against
// already-stored edges; an edge request is answered from local storage;
// an edge response is fed back into the match table as if freshly
// arrived.
func (w *Worker) handleEnvelope(env transport.Envelope) {
	switch env.Kind {
	case transport.KindForwardedMatch:
		w.receiveForwardedMatch(env.ForwardedMatch)
	case transport.KindEdgeRequest:
		w.answerEdgeRequest(env.EdgeRequest)
	case transport.KindEdgeResponse:
		w.receiveEdgeResponse(env.EdgeResponse)
	}
}

func (w *Worker) receiveForwardedMatch(p *transport.ForwardedMatchPayload) {
	pm := fromWirePartial(w.Query, p)
	w.Table.Add(pm)

	// Harvest already-stored matching edges locally, per spec §4.H step 2.
	nextVertex, ok := pm.NextExpectedVertex()
	if !ok {
		return
	}
	nextDesc := pm.Query.Edges[pm.MatchedEdgesLen()]
	buf := pool.GetEdgeSlice()
	defer pool.PutEdgeSlice(buf)
	found := w.BySource.FindEdges(edgestore.Request{
		IndexVertex: nextVertex,
		StartLo:     nextDesc.StartTimeRange.Lo, StartHi: nextDesc.StartTimeRange.Hi,
		EndLo: nextDesc.EndTimeRange.Lo, EndHi: nextDesc.EndTimeRange.Hi,
	}, buf)
	for _, e := range found {
		w.tryExtend(e)
	}
}

func (w *Worker) answerEdgeRequest(p *transport.EdgeRequestPayload) {
	req := fromWireRequest(p)
	buf := pool.GetEdgeSlice()
	defer pool.PutEdgeSlice(buf)
	found := w.BySource.FindEdges(edgestore.Request{
		IndexVertex: req.IndexVertex,
		Other:       req.WildcardVertex, OtherIsSrc: !req.IndexIsSource,
		StartLo: req.StartLo, StartHi: req.StartHi,
		EndLo: req.EndLo, EndHi: req.EndHi,
	}, buf)
	if len(found) == 0 || w.Transport == nil {
		return
	}
	w.Transport.SendTo(req.ReturnWorker, transport.Envelope{Kind: transport.KindEdgeResponse, EdgeResponse: &transport.EdgeResponsePayload{
		QueryID: req.QueryID, EdgeVar: req.EdgeVar, Edges: toWireEdges(found),
	}})
}

func (w *Worker) receiveEdgeResponse(p *transport.EdgeResponsePayload) {
	for _, we := range p.Edges {
		w.tryExtend(fromWireEdge(we))
	}
}

// Dropped returns the number of forwarded partials this worker failed
// to deliver (spec §4.H failure semantics: no retry, counted loss).
func (w *Worker) Dropped() int64 { return w.dropped.Load() }
