package storage

import (
	"github.com/indygreg/docker-worker/pkg/types"
)

// Store is the persisted run history
type Store interface {
	// Put upserts the record for one terminal run
	Put(record *types.RunRecord) error

	// Get returns the record for one run
	Get(taskID string, runID int) (*types.RunRecord, error)

	// List returns up to limit records, most recently finished first.
	// A limit of zero or less means no cap.
	List(limit int) ([]*types.RunRecord, error)

	// CountByResult tallies recorded runs by outcome
	CountByResult() (succeeded, failed int, err error)

	// Close closes the underlying database
	Close() error
}
