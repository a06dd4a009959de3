package rl

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNoCheckpoint is returned by Load when no checkpoint exists for the key.
var ErrNoCheckpoint = errors.New("no checkpoint found")

// CheckpointStore persists learner snapshots in BadgerDB, keyed by
// symbol so multiple agents can share one store.
type CheckpointStore struct {
	db *badger.DB
}

func OpenCheckpointStore(dir string) (*CheckpointStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &CheckpointStore{db: db}, nil
}

func (s *CheckpointStore) Close() error { return s.db.Close() }

type checkpoint struct {
	Snapshot snapshot  `json:"snapshot"`
	SavedAt  time.Time `json:"saved_at"`
}

func checkpointKey(key string) []byte {
	return []byte("ckpt:" + key)
}

// Save writes the learner's current Q-table and epsilon under key.
func (s *CheckpointStore) Save(key string, learner *Learner) error {
	if learner == nil {
		return errors.New("learner is required")
	}
	buf, err := json.Marshal(checkpoint{
		Snapshot: learner.snapshot(),
		SavedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey(key), buf)
	})
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", key, err)
	}
	return nil
}

// Load restores the learner from the checkpoint under key.
func (s *CheckpointStore) Load(key string, learner *Learner) error {
	if learner == nil {
		return errors.New("learner is required")
	}
	var ck checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ck)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNoCheckpoint
	}
	if err != nil {
		return fmt.Errorf("load checkpoint %s: %w", key, err)
	}

	learner.restore(ck.Snapshot)
	return nil
}
