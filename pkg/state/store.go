// Package state keeps a small bbolt database inside the environment directory with the
// history of setup runs and the stamp of the last successful install.
package state

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"time"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	bolt "go.etcd.io/bbolt"
)

// FileName is the database file created inside the environment directory.
const FileName = ".mpe-setup.db"

// MaxRuns is the number of runs kept in the history.
const MaxRuns = 20

var (
	runsBucket   = []byte("runs")
	stampsBucket = []byte("stamps")
	installKey   = []byte("install")
)

// Outcome is the final result of a run.
type Outcome string

const (
	OutcomeRunning Outcome = "running"
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
)

// Run records one setup invocation.
type Run struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitempty"`
	Outcome  Outcome   `json:"outcome"`
	Stage    string    `json:"stage"`
	Manifest string    `json:"manifest,omitempty"`
	Digest   string    `json:"digest,omitempty"`
	Skipped  bool      `json:"skipped,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Stamp identifies the manifest content of the last successful install.
type Stamp struct {
	Manifest string    `json:"manifest"`
	Digest   string    `json:"digest"`
	Packages []string  `json:"packages"`
	Time     time.Time `json:"time"`
}

// Store wraps the bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database in envPath. Another process holding the lock makes
// Open fail after a second instead of blocking.
func Open(envPath string) (*Store, error) {
	dbPath := filepath.Join(envPath, FileName)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to open %s", dbPath)
	}

	buckets := [][]byte{runsBucket, stampsBucket}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			_, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "Failed to initialize %s", dbPath)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NewRun returns a run with a fresh id, started now.
func NewRun(stage string) *Run {
	return &Run{
		ID:      nanoid.New(),
		Started: time.Now().UTC(),
		Outcome: OutcomeRunning,
		Stage:   stage,
	}
}

// SaveRun stores run and prunes the history to MaxRuns entries.
func (s *Store) SaveRun(run *Run) error {
	encoded, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "Failed to encode run")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(runsBucket)
		if err := bucket.Put([]byte(run.ID), encoded); err != nil {
			return err
		}

		runs, err := decodeRuns(bucket)
		if err != nil {
			return err
		}

		for idx := MaxRuns; idx < len(runs); idx++ {
			if err := bucket.Delete([]byte(runs[idx].ID)); err != nil {
				return err
			}
		}

		return nil
	})
}

// Runs returns the stored runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		runs, err = decodeRuns(tx.Bucket(runsBucket))
		return err
	})
	return runs, err
}

// LastRun returns the newest run or nil.
func (s *Store) LastRun() (*Run, error) {
	runs, err := s.Runs()
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

func decodeRuns(bucket *bolt.Bucket) ([]Run, error) {
	runs := []Run{}
	err := bucket.ForEach(func(k, v []byte) error {
		var run Run
		if err := json.Unmarshal(v, &run); err != nil {
			return eris.Wrapf(err, "Failed to decode run %s", k)
		}
		runs = append(runs, run)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Started.After(runs[j].Started)
	})
	return runs, nil
}

// Stamp returns the install stamp or nil if nothing was installed yet.
func (s *Store) Stamp() (*Stamp, error) {
	var stamp *Stamp
	err := s.db.View(func(tx *bolt.Tx) error {
		item := tx.Bucket(stampsBucket).Get(installKey)
		if item == nil {
			return nil
		}

		stamp = new(Stamp)
		return json.Unmarshal(item, stamp)
	})
	return stamp, err
}

// SaveStamp replaces the install stamp.
func (s *Store) SaveStamp(stamp Stamp) error {
	encoded, err := json.Marshal(stamp)
	if err != nil {
		return eris.Wrap(err, "Failed to encode stamp")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stampsBucket).Put(installKey, encoded)
	})
}

// ClearStamp removes the install stamp, i.e. after a failed install.
func (s *Store) ClearStamp() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stampsBucket).Delete(installKey)
	})
}
