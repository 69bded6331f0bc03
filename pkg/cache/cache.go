// Package cache persists lowered modules in a bolt database, keyed by a
// digest of the source text, so unchanged modules are not lowered again.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/loomlang/loom/pkg/ir"
)

const bucketLowered = "lowered"

func init() {
	// Instruction and value types reached through interface fields.
	gob.Register(&ir.ConstOp{})
	gob.Register(&ir.MoveOp{})
	gob.Register(&ir.BinOpOp{})
	gob.Register(&ir.CallOp{})
	gob.Register(&ir.MakeClosureOp{})
	gob.Register(&ir.AllocFrameOp{})
	gob.Register(&ir.LoadEnvOp{})
	gob.Register(&ir.StoreEnvOp{})
	gob.Register(&ir.LoadGlobalOp{})
	gob.Register(&ir.StoreGlobalOp{})
	gob.Register(&ir.EnterWithOp{})
	gob.Register(&ir.ExitWithOp{})
	gob.Register(&ir.SpillOp{})
	gob.Register(&ir.ReloadOp{})
	gob.Register(&ir.LoadStateOp{})
	gob.Register(&ir.TakeInputOp{})
	gob.Register(&ir.CatchExcOp{})
	gob.Register(&ir.ClearExcOp{})
	gob.Register(&ir.JumpOp{})
	gob.Register(&ir.BranchOp{})
	gob.Register(&ir.SwitchOp{})
	gob.Register(&ir.ReturnOp{})
	gob.Register(&ir.RaiseOp{})
	gob.Register(&ir.YieldOp{})
	gob.Register(&ir.DelegateOp{})
}

// Cache is a lowering cache backed by a bolt database file.
type Cache struct {
	db *bolt.DB
}

// Open opens the database at path, creating it if needed.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketLowered))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db}, nil
}

// Close closes the database.
func (c *Cache) Close() error { return c.db.Close() }

// Get looks up the lowered form of the given source. The second return value
// is false on a miss; a stale or undecodable entry counts as a miss.
func (c *Cache) Get(src *ir.Source) (*ir.CompiledModule, bool, error) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLowered))
		if v := b.Get(key(src)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, false, err
	}
	var m ir.CompiledModule
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&m); err != nil {
		return nil, false, nil
	}
	return &m, true, nil
}

// Put stores the lowered form of the given source.
func (c *Cache) Put(src *ir.Source, m *ir.CompiledModule) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLowered))
		return b.Put(key(src), buf.Bytes())
	})
}

func key(src *ir.Source) []byte {
	h := sha256.New()
	h.Write([]byte(src.Name))
	h.Write([]byte{0})
	h.Write([]byte(src.Code))
	return h.Sum(nil)
}
