package config

import "time"

// Infrastructure defaults shared by the binaries and adapters.
const (
	DefaultShutdownTimeout = 10 * time.Second

	DefaultWorkerPoll  = 250 * time.Millisecond
	DefaultWorkerBatch = 10

	DefaultPGMaxConns     = 5
	DefaultPGMinConns     = 1
	DefaultPGReadyTimeout = 15 * time.Second

	// DefaultMaxBatchBytes caps a POSTed batch body.
	DefaultMaxBatchBytes = 1 << 20
)
