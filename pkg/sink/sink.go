// Package sink implements subgraph-match result printers (spec §6's
// "persisted state / disk or stdout printer"): a result is formatted and
// written to a destination exactly once, serialized by a mutex so
// concurrent matches from multiple workers don't interleave their
// output lines.
//
// Grounded on original_source/SamSrc/sam/SubgraphDiskPrinter.hpp (a
// single-file, mutex-guarded ofstream writer) and
// original_source/SamSrc/sam/AbstractSubgraphPrinter.hpp (the
// result.toString() formatting it delegates to); badger is deliberately
// not wired here since durable persistence of the graph itself is out of
// scope (spec §6/Non-goals) — only match *results* are written, to a
// plain file or stdout.
package sink

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/samstream/engine/pkg/match"
)

// Printer writes subgraph match results to a destination, one per line.
type Printer struct {
	mu  sync.Mutex
	w   io.Writer
	closer io.Closer
}

// NewWriterPrinter wraps an already-open io.Writer (e.g. os.Stdout).
func NewWriterPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// NewDiskPrinter opens path for writing, truncating any existing file,
// matching SubgraphDiskPrinter.hpp's constructor behavior.
func NewDiskPrinter(path string) (*Printer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: opening %s for result output: %w", path, err)
	}
	return &Printer{w: f, closer: f}, nil
}

// Print formats and writes one completed match. Per
// SubgraphDiskPrinter.hpp, a write failure is swallowed rather than
// propagated: a result sink must never back-pressure or crash the match
// pipeline that feeds it.
func (p *Printer) Print(result *match.Result) {
	line := formatResult(result)
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}

// Close releases the underlying file, if this Printer opened one.
func (p *Printer) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// formatResult renders a match.Result the way
// AbstractSubgraphPrinter::ResultType::toString does: bindings sorted by
// variable name, then each matched edge's source/target/time/duration in
// order, so output is stable for testing and diffing.
func formatResult(result *match.Result) string {
	vars := make([]string, 0, len(result.Bindings))
	for v := range result.Bindings {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	var b strings.Builder
	for i, v := range vars {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", v, result.Bindings[v])
	}
	b.WriteString(" | ")
	for i, e := range result.Edges {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s->%s@%.6f+%.6f", e.Source(), e.Target(), e.Time(), e.Duration())
	}
	return b.String()
}
