// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package leveldb implements the database.DB contract on top of
// syndtr/goleveldb, generalized from the teacher's pkg/core/chain/
// database.go ldb type (prefix-keyed Put/Get over a single
// leveldb.DB handle) to the block/label/metadata schema spec §6
// names.
package leveldb

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
	goleveldb "github.com/syndtr/goleveldb/leveldb"
	dberrors "github.com/syndtr/goleveldb/leveldb/errors"

	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/core/database"
)

const (
	prefixBlock  = "b:"
	prefixLabel  = "l:"
	prefixHeight = "h:"
)

// DB is a goleveldb-backed database.DB.
type DB struct {
	storage *goleveldb.DB
}

// Open opens (or creates) the database at path, attempting a single
// recovery pass on a corrupted store (mirrors the teacher's
// NewDatabase recovery branch).
func Open(path string) (*DB, error) {
	storage, err := goleveldb.OpenFile(path, nil)
	if _, corrupted := err.(*dberrors.ErrCorrupted); corrupted {
		storage, err = goleveldb.RecoverFile(path, nil)
	}
	if _, denied := err.(*os.PathError); denied {
		return nil, errors.Wrap(err, "database: could not open or create store")
	}
	if err != nil {
		return nil, errors.Wrap(err, "database: open")
	}
	return &DB{storage: storage}, nil
}

// Close implements database.DB.
func (d *DB) Close() error {
	return d.storage.Close()
}

// Update implements database.DB. Writes accumulate in a batch and are
// committed atomically only if fn returns nil.
func (d *DB) Update(fn func(database.Transaction) error) error {
	batch := new(goleveldb.Batch)
	txn := &transaction{db: d.storage, batch: batch}

	if err := fn(txn); err != nil {
		return err
	}
	return d.storage.Write(batch, nil)
}

// View implements database.DB against a point-in-time snapshot.
func (d *DB) View(fn func(database.Transaction) error) error {
	snap, err := d.storage.GetSnapshot()
	if err != nil {
		return errors.Wrap(err, "database: snapshot")
	}
	defer snap.Release()

	txn := &transaction{snapshot: snap}
	return fn(txn)
}

type transaction struct {
	db       *goleveldb.DB
	snapshot *goleveldb.Snapshot
	batch    *goleveldb.Batch
}

func (t *transaction) get(key []byte) ([]byte, bool, error) {
	var (
		val []byte
		err error
	)
	if t.snapshot != nil {
		val, err = t.snapshot.Get(key, nil)
	} else {
		val, err = t.db.Get(key, nil)
	}
	if err == goleveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (t *transaction) put(key, val []byte) error {
	if t.batch == nil {
		return errors.New("database: write attempted on a read-only transaction")
	}
	t.batch.Put(key, val)
	return nil
}

func (t *transaction) delete(key []byte) error {
	if t.batch == nil {
		return errors.New("database: write attempted on a read-only transaction")
	}
	t.batch.Delete(key)
	return nil
}

func (t *transaction) StoreBlock(blk ledger.Block, label ledger.Label) error {
	var buf bytes.Buffer
	if err := ledger.MarshalBlock(&buf, blk); err != nil {
		return errors.Wrap(err, "database: marshal block")
	}
	if err := t.put(append([]byte(prefixBlock), blk.Header.Hash[:]...), buf.Bytes()); err != nil {
		return err
	}

	var labelBuf bytes.Buffer
	if err := ledger.MarshalLabel(&labelBuf, label); err != nil {
		return errors.Wrap(err, "database: marshal label")
	}
	if err := t.put(append([]byte(prefixLabel), blk.Header.Hash[:]...), labelBuf.Bytes()); err != nil {
		return err
	}

	heightKey := make([]byte, 8)
	binary.BigEndian.PutUint64(heightKey, blk.Header.Height)
	return t.put(append([]byte(prefixHeight), heightKey...), blk.Header.Hash[:])
}

func (t *transaction) FetchBlock(hash [32]byte) (ledger.Block, error) {
	raw, ok, err := t.get(append([]byte(prefixBlock), hash[:]...))
	if err != nil {
		return ledger.Block{}, err
	}
	if !ok {
		return ledger.Block{}, errors.Errorf("database: no block for hash %x", hash)
	}
	return ledger.UnmarshalBlock(bytes.NewReader(raw))
}

func (t *transaction) FetchBlockLabel(hash [32]byte) (ledger.Label, error) {
	raw, ok, err := t.get(append([]byte(prefixLabel), hash[:]...))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.Errorf("database: no label for hash %x", hash)
	}
	return ledger.UnmarshalLabel(bytes.NewReader(raw))
}

func (t *transaction) UpdateBlockLabel(hash [32]byte, label ledger.Label) error {
	var buf bytes.Buffer
	if err := ledger.MarshalLabel(&buf, label); err != nil {
		return errors.Wrap(err, "database: marshal label")
	}
	return t.put(append([]byte(prefixLabel), hash[:]...), buf.Bytes())
}

func (t *transaction) DeleteBlock(hash [32]byte) error {
	if err := t.delete(append([]byte(prefixBlock), hash[:]...)); err != nil {
		return err
	}
	return t.delete(append([]byte(prefixLabel), hash[:]...))
}

func (t *transaction) FetchBlockHashByHeight(height uint64) ([32]byte, bool, error) {
	heightKey := make([]byte, 8)
	binary.BigEndian.PutUint64(heightKey, height)

	raw, ok, err := t.get(append([]byte(prefixHeight), heightKey...))
	if err != nil || !ok {
		return [32]byte{}, ok, err
	}

	var hash [32]byte
	copy(hash[:], raw)
	return hash, true, nil
}

func (t *transaction) Get(key string) ([]byte, bool, error) {
	return t.get([]byte(key))
}

func (t *transaction) Put(key string, value []byte) error {
	return t.put([]byte(key), value)
}
