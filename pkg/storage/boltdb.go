package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/indygreg/docker-worker/pkg/types"
)

var bucketTaskRuns = []byte("task_runs")

// RunStore implements Store using BoltDB
type RunStore struct {
	db *bolt.DB
}

// NewRunStore opens the run history database under dataDir, creating
// the directory if needed
func NewRunStore(dataDir string) (*RunStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "docker-worker.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTaskRuns); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketTaskRuns, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &RunStore{db: db}, nil
}

// Close closes the database
func (s *RunStore) Close() error {
	return s.db.Close()
}

func runKey(taskID string, runID int) []byte {
	return []byte(fmt.Sprintf("%s/%d", taskID, runID))
}

// Put upserts the record for one terminal run
func (s *RunStore) Put(record *types.RunRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTaskRuns)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(runKey(record.TaskID, record.RunID), data)
	})
}

// Get returns the record for one run
func (s *RunStore) Get(taskID string, runID int) (*types.RunRecord, error) {
	var record types.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTaskRuns)
		data := b.Get(runKey(taskID, runID))
		if data == nil {
			return fmt.Errorf("run not found: %s/%d", taskID, runID)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns up to limit records, most recently finished first
func (s *RunStore) List(limit int) ([]*types.RunRecord, error) {
	var records []*types.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTaskRuns)
		return b.ForEach(func(k, v []byte) error {
			var record types.RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].FinishedAt.After(records[j].FinishedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// CountByResult tallies recorded runs by outcome. Infra-aborted runs
// carry an error and count as failed.
func (s *RunStore) CountByResult() (succeeded, failed int, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTaskRuns)
		return b.ForEach(func(k, v []byte) error {
			var record types.RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if record.Success {
				succeeded++
			} else {
				failed++
			}
			return nil
		})
	})
	return succeeded, failed, err
}
