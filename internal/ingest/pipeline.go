package ingest

import "context"

// Pipeline defines the common interface for relay pipelines
type Pipeline interface {
	// Run executes the pipeline until its input ends, it is stopped or it fails
	Run(ctx context.Context) error

	// Stop gracefully stops the pipeline
	Stop()
}
