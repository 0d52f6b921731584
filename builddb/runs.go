package builddb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// RunRecord captures one mkimg build invocation.
type RunRecord struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ContentSource string    `json:"content_source"`
	Retry         int       `json:"retry"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Success       bool      `json:"success"`
	Aborted       bool      `json:"aborted"`
	Attempts      int       `json:"attempts"`
}

// Running reports whether the run has not been finished.
func (r *RunRecord) Running() bool {
	return r.EndTime.IsZero()
}

// AttemptRecord is the persisted outcome of one attempt.
type AttemptRecord struct {
	ID                string    `json:"id"`
	Attempt           int       `json:"attempt"`
	Status            string    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	BuilderExitCode   *int      `json:"builder_exit_code"`
	PopulatorExitCode *int      `json:"populator_exit_code"`
	MarkerSeen        bool      `json:"marker_seen"`
	PopulatorStarted  bool      `json:"populator_started"`
	ForcedStop        bool      `json:"forced_stop"`
	ForcedUnmount     bool      `json:"forced_unmount"`
	UnmountError      string    `json:"unmount_error,omitempty"`
	Lines             int       `json:"lines"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
}

// StartRun stores a new run. rec.ID is required.
func (db *DB) StartRun(rec *RunRecord) error {
	if rec == nil || rec.ID == "" {
		return &ValidationError{Field: "run.ID", Err: ErrEmptyUUID}
	}
	return db.saveRun(rec)
}

// FinishRun marks a run finished at endTime with its final result.
func (db *DB) FinishRun(runID string, success, aborted bool, attempts int, endTime time.Time) error {
	if runID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}

	return db.updateRun(runID, func(rec *RunRecord) {
		rec.EndTime = endTime
		rec.Success = success
		rec.Aborted = aborted
		rec.Attempts = attempts
	})
}

// GetRun fetches a run record by its ID.
func (db *DB) GetRun(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}

	var rec RunRecord
	err := db.view(func(tx *bolt.Tx) error {
		bucket, err := db.bucket(tx, BucketRuns)
		if err != nil {
			return err
		}

		data := bucket.Get([]byte(runID))
		if data == nil {
			return &RecordError{Op: "get run", UUID: runID, Err: ErrRecordNotFound}
		}
		return decode(data, &rec, runID)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 returns
// every run.
func (db *DB) ListRuns(limit int) ([]RunRecord, error) {
	var runs []RunRecord

	err := db.view(func(tx *bolt.Tx) error {
		bucket, err := db.bucket(tx, BucketRuns)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rec RunRecord
			if err := decode(v, &rec, string(k)); err != nil {
				return err
			}
			runs = append(runs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// ActiveRun returns the first run that has no end time, or nil. A run left
// active by a crashed mkimg stays active until it is finished.
func (db *DB) ActiveRun() (*RunRecord, error) {
	var active *RunRecord

	err := db.view(func(tx *bolt.Tx) error {
		bucket, err := db.bucket(tx, BucketRuns)
		if err != nil {
			return err
		}

		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r RunRecord
			if err := decode(v, &r, string(k)); err != nil {
				return err
			}
			if r.Running() {
				active = &r
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

// PutAttempt writes or replaces the record of one attempt of a run.
func (db *DB) PutAttempt(runID string, rec *AttemptRecord) error {
	if runID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}
	if rec == nil {
		return fmt.Errorf("attempt record is nil")
	}
	if rec.Attempt < 1 {
		return &ValidationError{Field: "attempt", Value: fmt.Sprint(rec.Attempt), Err: ErrInvalidAttempt}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return &RecordError{Op: "marshal attempt", UUID: runID, Err: err}
	}

	return db.update(func(tx *bolt.Tx) error {
		if runs, err := db.bucket(tx, BucketRuns); err != nil {
			return err
		} else if runs.Get([]byte(runID)) == nil {
			return &RecordError{Op: "put attempt", UUID: runID, Err: ErrRecordNotFound}
		}

		bucket, err := db.bucket(tx, BucketAttempts)
		if err != nil {
			return err
		}
		return bucket.Put(attemptKey(runID, rec.Attempt), data)
	})
}

// ListAttempts returns the attempts of a run in attempt order.
func (db *DB) ListAttempts(runID string) ([]AttemptRecord, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}

	prefix := attemptPrefix(runID)
	var records []AttemptRecord

	err := db.view(func(tx *bolt.Tx) error {
		bucket, err := db.bucket(tx, BucketAttempts)
		if err != nil {
			return err
		}

		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec AttemptRecord
			if err := decode(v, &rec, runID); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// attemptKey zero-pads the attempt number so cursor order is attempt order.
func attemptKey(runID string, attempt int) []byte {
	return append(attemptPrefix(runID), []byte(fmt.Sprintf("%06d", attempt))...)
}

func attemptPrefix(runID string) []byte {
	return []byte(runID + "\x00")
}

func decode(data []byte, v any, runID string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &RecordError{Op: "unmarshal", UUID: runID, Err: fmt.Errorf("%w: %v", ErrCorruptedData, err)}
	}
	return nil
}

func (db *DB) saveRun(rec *RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &RecordError{Op: "marshal run", UUID: rec.ID, Err: err}
	}

	return db.update(func(tx *bolt.Tx) error {
		bucket, err := db.bucket(tx, BucketRuns)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(rec.ID), data)
	})
}

func (db *DB) updateRun(runID string, mutate func(*RunRecord)) error {
	return db.update(func(tx *bolt.Tx) error {
		bucket, err := db.bucket(tx, BucketRuns)
		if err != nil {
			return err
		}

		data := bucket.Get([]byte(runID))
		if data == nil {
			return &RecordError{Op: "update run", UUID: runID, Err: ErrRecordNotFound}
		}

		var rec RunRecord
		if err := decode(data, &rec, runID); err != nil {
			return err
		}

		mutate(&rec)

		updated, err := json.Marshal(&rec)
		if err != nil {
			return &RecordError{Op: "marshal run", UUID: runID, Err: err}
		}

		return bucket.Put([]byte(runID), updated)
	})
}
