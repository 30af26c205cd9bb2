package engine

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/roach88/stratum/internal/dserr"
	"github.com/roach88/stratum/internal/eglock"
	"github.com/roach88/stratum/internal/entity"
	"github.com/roach88/stratum/internal/sortkey"
	"github.com/roach88/stratum/internal/store"
)

// Put writes entities and returns their completed keys. Incomplete keys
// get an id from the allocator before writing. Inside a transaction the
// writes are buffered until Commit; outside one, each write happens
// under its entity-group lock immediately.
func (e *Engine) Put(ctx context.Context, txn *Transaction, entities []entity.Entity) ([]entity.Key, error) {
	var st *txState
	if txn != nil {
		var err error
		st, err = e.txnState(txn)
		if err != nil {
			return nil, err
		}
	}

	keys := make([]entity.Key, 0, len(entities))
	for _, ent := range entities {
		if err := ent.Key.Validate(); err != nil {
			return nil, err
		}
		if err := e.validateApp(ent.Key.App); err != nil {
			return nil, err
		}
		obfuscateUsers(&ent)

		prefix, err := e.store.EnsureNamespace(ctx, ent.Key.App, ent.Key.Namespace)
		if err != nil {
			return nil, err
		}
		if ent.Key.Incomplete() {
			id, err := e.alloc.Allocate(ctx, prefix, 1)
			if err != nil {
				return nil, err
			}
			// The caller may reuse its path slice across entities, so the
			// allocated id goes into a private copy.
			path := make([]entity.PathElement, len(ent.Key.Path))
			copy(path, ent.Key.Path)
			path[len(path)-1].ID = id
			ent.Key.Path = path
		}
		ent.Group = []entity.PathElement{ent.Key.Root()}

		path := sortkey.EncodePath(ent.Key.Path)
		if st != nil {
			if err := e.lockTxnGroup(st, ent.Key.Namespace, ent.Key); err != nil {
				return nil, err
			}
			staged := ent
			st.stage(ent.Key.Namespace, path, &staged)
		} else {
			if err := e.putNow(ctx, prefix, ent, path); err != nil {
				return nil, err
			}
		}
		keys = append(keys, ent.Key)
	}
	return keys, nil
}

func (e *Engine) putNow(ctx context.Context, prefix string, ent entity.Entity, path []byte) error {
	blob, err := entity.Marshal(ent)
	if err != nil {
		return err
	}
	rows, err := indexRowsFor(ent, path)
	if err != nil {
		return err
	}
	return e.withGroupLock(ent.Key, func() error {
		return e.store.PutEntities(ctx, prefix,
			[]store.EntityRow{{Path: path, Kind: ent.Key.Kind(), Data: blob}}, rows)
	})
}

// Get fetches entities by key, returning nil for keys with no entity.
// Transactional gets take the entity-group lock but still read committed
// state: the transaction's own buffered writes are not visible.
func (e *Engine) Get(ctx context.Context, txn *Transaction, keys []entity.Key) ([]*entity.Entity, error) {
	var st *txState
	if txn != nil {
		var err error
		st, err = e.txnState(txn)
		if err != nil {
			return nil, err
		}
	}

	out := make([]*entity.Entity, 0, len(keys))
	for _, key := range keys {
		if err := e.validateKey(key); err != nil {
			return nil, err
		}
		if st != nil {
			if err := e.lockTxnGroup(st, key.Namespace, key); err != nil {
				return nil, err
			}
		}
		prefix, err := e.store.EnsureNamespace(ctx, key.App, key.Namespace)
		if err != nil {
			return nil, err
		}
		blob, err := e.store.GetEntity(ctx, prefix, sortkey.EncodePath(key.Path))
		if err != nil {
			return nil, err
		}
		if blob == nil {
			out = append(out, nil)
			continue
		}
		ent, err := entity.Unmarshal(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, &ent)
	}
	return out, nil
}

// Delete removes entities by key. Deleting an absent entity is not an
// error. Inside a transaction the deletes are buffered until Commit.
func (e *Engine) Delete(ctx context.Context, txn *Transaction, keys []entity.Key) error {
	var st *txState
	if txn != nil {
		var err error
		st, err = e.txnState(txn)
		if err != nil {
			return err
		}
	}

	for _, key := range keys {
		if err := e.validateKey(key); err != nil {
			return err
		}
		path := sortkey.EncodePath(key.Path)
		if st != nil {
			if err := e.lockTxnGroup(st, key.Namespace, key); err != nil {
				return err
			}
			st.stage(key.Namespace, path, nil)
			continue
		}
		prefix, err := e.store.EnsureNamespace(ctx, key.App, key.Namespace)
		if err != nil {
			return err
		}
		err = e.withGroupLock(key, func() error {
			return e.store.DeleteEntities(ctx, prefix, [][]byte{path})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) validateKey(key entity.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if key.Incomplete() {
		return dserr.New(dserr.CodeBadRequest, "key is incomplete")
	}
	return e.validateApp(key.App)
}

// withGroupLock runs fn while holding the key's entity-group lock.
func (e *Engine) withGroupLock(key entity.Key, fn func() error) error {
	name := lockName(key.App, key.Namespace, key.GroupString())
	if err := e.locks.Acquire(name, eglock.DefaultTimeout); err != nil {
		return err
	}
	defer e.locks.Release(name)
	return fn()
}

// indexRowsFor builds the index rows for an entity's indexed properties.
// The fingerprint keys the row, so re-putting an entity is idempotent.
func indexRowsFor(ent entity.Entity, path []byte) ([]store.IndexRow, error) {
	kind := ent.Key.Kind()
	var rows []store.IndexRow
	for _, p := range ent.Properties {
		if !p.Indexed {
			continue
		}
		value, err := sortkey.EncodeValue(p.Value)
		if err != nil {
			return nil, err
		}
		rows = append(rows, store.IndexRow{
			Kind:        kind,
			Name:        p.Name,
			Value:       value,
			Path:        path,
			Fingerprint: rowFingerprint(kind, p.Name, value, path),
		})
	}
	return rows, nil
}

func rowFingerprint(kind, name string, value, path []byte) string {
	h := md5.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(value)
	h.Write([]byte{0})
	h.Write(path)
	return hex.EncodeToString(h.Sum(nil))
}

// obfuscateUsers fills in the derived ObfuscatedID on user values that
// lack one. The id is stable for a given email.
func obfuscateUsers(ent *entity.Entity) {
	for i, p := range ent.Properties {
		u, ok := p.Value.(entity.User)
		if !ok || u.ObfuscatedID != "" {
			continue
		}
		u.ObfuscatedID = obfuscatedID(u.Email)
		ent.Properties[i].Value = u
	}
}

func obfuscatedID(email string) string {
	digest := md5.Sum([]byte(strings.ToLower(email)))
	var b strings.Builder
	b.WriteString("1")
	for _, by := range digest[:10] {
		fmt.Fprintf(&b, "%02d", int(by)%100)
	}
	return b.String()
}
