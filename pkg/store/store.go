// Copyright 2025 Certen Protocol
//
// Package store implements the content-addressed blob store that
// backs every PoJ chain block, index node, and chain-metadata record.
// It wraps CometBFT's dbm.DB the same way the teacher's pkg/kvdb
// adapter wraps it for the ledger store, trading the ledger's
// height-prefixed keys for CID-prefixed ones.
package store

import (
	"bytes"
	"fmt"
	"log"
	"os"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/pojchain/pkg/chainerr"
	"github.com/certen/pojchain/pkg/cid"
)

// keyPrefix namespaces blob keys (block cores and HAMT nodes alike)
// within the shared backing DB so they never collide with the keys
// other components write through RawDB.
var keyPrefix = []byte("blob/")

// BlockStore is a content-addressed blob store keyed by CID. Puts are
// idempotent for identical bytes and fatal for CID collisions with
// differing bytes; gets are O(1) amortized via the backing DB's own
// indexing.
type BlockStore struct {
	db     dbm.DB
	logger *log.Logger
}

// New wraps an already-open dbm.DB. The caller owns the DB's
// lifecycle (Close).
func New(db dbm.DB) *BlockStore {
	return &BlockStore{
		db:     db,
		logger: log.New(log.Writer(), "[store] ", log.LstdFlags),
	}
}

// Open initializes a GoLevelDB-backed store rooted at dir/name.db,
// creating dir if necessary. This is the on-disk path used by cmd/pojd;
// tests construct a BlockStore directly over dbm.NewMemDB() instead.
func Open(name, dir string) (*BlockStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", chainerr.ErrStoreIO, dir, err)
	}
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", chainerr.ErrStoreIO, name, err)
	}
	return New(db), nil
}

func blobKey(c cid.CID) []byte {
	return append(append([]byte{}, keyPrefix...), []byte(c)...)
}

// Put writes bytes under cid c. Rewriting the same CID with identical
// bytes is a no-op success; rewriting with different bytes is a fatal
// integrity error, since CIDs are meant to be collision-resistant.
func (s *BlockStore) Put(c cid.CID, data []byte) error {
	existing, err := s.db.Get(blobKey(c))
	if err != nil {
		return fmt.Errorf("%w: get %s: %v", chainerr.ErrStoreIO, c, err)
	}
	if existing != nil {
		if bytes.Equal(existing, data) {
			return nil
		}
		return fmt.Errorf("%w: cid %s already stored with different bytes", chainerr.ErrStoreIO, c)
	}
	// SetSync gives write-then-durable semantics equivalent to a
	// write-then-rename: the put either lands fully or not at all.
	if err := s.db.SetSync(blobKey(c), data); err != nil {
		return fmt.Errorf("%w: put %s: %v", chainerr.ErrStoreIO, c, err)
	}
	return nil
}

// Get returns the bytes stored at c, or (nil, nil) if absent.
func (s *BlockStore) Get(c cid.CID) ([]byte, error) {
	data, err := s.db.Get(blobKey(c))
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", chainerr.ErrStoreIO, c, err)
	}
	return data, nil
}

// Has reports whether c is present without fetching its bytes.
func (s *BlockStore) Has(c cid.CID) (bool, error) {
	ok, err := s.db.Has(blobKey(c))
	if err != nil {
		return false, fmt.Errorf("%w: has %s: %v", chainerr.ErrStoreIO, c, err)
	}
	return ok, nil
}

// PutComputed hashes data, stores it under the resulting CID, and
// returns that CID. Convenience wrapper used by callers that do not
// already know the CID of the bytes they are writing.
func (s *BlockStore) PutComputed(data []byte) (cid.CID, error) {
	c := cid.Sum(data)
	if err := s.Put(c, data); err != nil {
		return "", err
	}
	return c, nil
}

// Close releases the underlying DB handle.
func (s *BlockStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", chainerr.ErrStoreIO, err)
	}
	return nil
}

// RawDB exposes the backing dbm.DB for components (chain metadata,
// mutable block records) that share the same physical database but use
// a different key namespace.
func (s *BlockStore) RawDB() dbm.DB {
	return s.db
}
