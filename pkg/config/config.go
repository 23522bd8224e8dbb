// Package config defines the CLI-flag-driven configuration for a SAM
// worker process, covering cluster topology, transport tuning, storage
// capacities, and I/O paths (spec §6).
//
// Grounded on the teacher's cmd/nornicdb/main.go, which wires every
// runtime knob as a cobra/pflag flag on a subcommand rather than reading
// environment variables; WorkerConfig mirrors that shape as a plain
// struct populated from a *pflag.FlagSet so cmd/samworker can bind it to
// cobra without this package importing cobra itself.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// WorkerConfig holds every flag spec.md §6 names for a worker process.
type WorkerConfig struct {
	NumNodes int
	NodeID   int
	Prefix   string

	StartingPort   int
	HWM            int
	QueueLength    int
	NumSockets     int
	NumPullThreads int
	Timeout        int // milliseconds

	GraphCapacity   int
	TableCapacity   int
	ResultsCapacity int
	FeatureCapacity int
	TimeWindow      float64

	NcIP   string
	NcPort int

	InputFile       string
	OutputFile      string
	PrinterLocation string
}

// RegisterFlags adds every WorkerConfig flag to fs with the defaults
// spec.md §6 specifies. Call fs.Parse, then use the returned
// *WorkerConfig directly — pflag writes parsed values straight into the
// bound fields.
func RegisterFlags(fs *pflag.FlagSet) *WorkerConfig {
	cfg := &WorkerConfig{}
	fs.IntVar(&cfg.NumNodes, "numNodes", 1, "total number of worker nodes in the cluster")
	fs.IntVar(&cfg.NodeID, "nodeId", 0, "this worker's zero-based node id")
	fs.StringVar(&cfg.Prefix, "prefix", "node", "hostname prefix used to resolve peer addresses")

	fs.IntVar(&cfg.StartingPort, "startingPort", 10000, "base TCP port; peer N listens on startingPort+N")
	fs.IntVar(&cfg.HWM, "hwm", 1000, "high-water mark: max buffered outbound messages per peer before dropping")
	fs.IntVar(&cfg.QueueLength, "queueLength", 1000, "inbound queue depth per pull thread (accepted but not used by this worker)")
	fs.IntVar(&cfg.NumSockets, "numSockets", 1, "number of push sockets per peer (accepted but not used: one push socket per peer is opened)")
	fs.IntVar(&cfg.NumPullThreads, "numPullThreads", 1, "number of concurrent pull/accept threads (accepted but not used by this worker)")
	fs.IntVar(&cfg.Timeout, "timeout", 1000, "send timeout in milliseconds before a message is dropped")

	fs.IntVar(&cfg.GraphCapacity, "graphCapacity", 1024, "stripe count for local edge stores")
	fs.IntVar(&cfg.TableCapacity, "tableCapacity", 1024, "stripe count for the partial-match table")
	fs.IntVar(&cfg.ResultsCapacity, "resultsCapacity", 256, "buffered capacity for the result sink (accepted but not used by this worker)")
	fs.IntVar(&cfg.FeatureCapacity, "featureCapacity", 1024, "stripe count for the feature map")
	fs.Float64Var(&cfg.TimeWindow, "timeWindow", 3600, "edge retention window in seconds")

	fs.StringVar(&cfg.NcIP, "ncIp", "127.0.0.1", "network controller IP (accepted but not used by this worker)")
	fs.IntVar(&cfg.NcPort, "ncPort", 9999, "network controller port (accepted but not used by this worker)")

	fs.StringVar(&cfg.InputFile, "inputfile", "", "path to the CSV edge file to ingest; empty reads stdin")
	fs.StringVar(&cfg.OutputFile, "outputfile", "", "path to write subgraph match results; empty writes stdout")
	fs.StringVar(&cfg.PrinterLocation, "printerLocation", "", "directory for per-worker result files (accepted but not used by this worker; see outputfile)")

	return cfg
}

// Validate applies the invariants spec.md §6/§7 require of a worker
// configuration before a worker is allowed to start.
func (c *WorkerConfig) Validate() error {
	if c.NumNodes <= 0 {
		return fmt.Errorf("config: numNodes must be positive, got %d", c.NumNodes)
	}
	if c.NodeID < 0 || c.NodeID >= c.NumNodes {
		return fmt.Errorf("config: nodeId %d out of range [0, %d)", c.NodeID, c.NumNodes)
	}
	if c.HWM <= 0 {
		return fmt.Errorf("config: hwm must be positive, got %d", c.HWM)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %d", c.Timeout)
	}
	if c.TimeWindow <= 0 {
		return fmt.Errorf("config: timeWindow must be positive, got %f", c.TimeWindow)
	}
	return nil
}

// PeerAddr resolves the TCP address of peer node id under this config's
// prefix/startingPort convention.
func (c *WorkerConfig) PeerAddr(nodeID int) string {
	return fmt.Sprintf("%s%d:%d", c.Prefix, nodeID, c.StartingPort+nodeID)
}

// ListenAddr returns the address this worker itself should listen on.
func (c *WorkerConfig) ListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.StartingPort+c.NodeID)
}
