package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Entity provides generic CRUD operations for any domain type.
type Entity[T any] struct {
	store   *Store
	prefix  string
	indexes []Index[T]
}

// Index defines a secondary index on an entity.
type Index[T any] struct {
	name            string
	keyGen          func(*T) []string
	unique          bool
	lookupTransform func(string) string // Optional transformation for lookups
}

// NewEntity creates a new Entity instance for type T.
func NewEntity[T any](s *Store, prefix string) *Entity[T] {
	return &Entity[T]{
		store:   s,
		prefix:  prefix,
		indexes: make([]Index[T], 0),
	}
}

// WithIndex adds a multi-value secondary index. Many records may share a value.
func (e *Entity[T]) WithIndex(name string, keyGen func(*T) []string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{
		name:   name,
		keyGen: keyGen,
	})
	return e
}

// WithUniqueIndex adds a secondary index whose values must be unique across
// records. The lookupTransform, if set, is applied to values passed to
// GetByIndex (case folding, normalization).
func (e *Entity[T]) WithUniqueIndex(name string, keyGen func(*T) []string, lookupTransform func(string) string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{
		name:            name,
		keyGen:          keyGen,
		unique:          true,
		lookupTransform: lookupTransform,
	})
	return e
}

type writeMode int

const (
	modeCreate writeMode = iota
	modeUpdate
	modePut
)

// Create creates a new entity with the given ID.
// Returns ErrAlreadyExists if an entity with this ID already exists.
func (e *Entity[T]) Create(ctx context.Context, id string, entity *T) error {
	return e.write(ctx, id, entity, modeCreate)
}

// Update updates an existing entity.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Update(ctx context.Context, id string, entity *T) error {
	return e.write(ctx, id, entity, modeUpdate)
}

// Put creates or replaces the entity.
func (e *Entity[T]) Put(ctx context.Context, id string, entity *T) error {
	return e.write(ctx, id, entity, modePut)
}

func (e *Entity[T]) write(ctx context.Context, id string, entity *T, mode writeMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		old, err := e.getTxn(txn, id)
		switch {
		case err == nil && mode == modeCreate:
			return ErrAlreadyExists
		case errors.Is(err, ErrNotFound) && mode == modeUpdate:
			return ErrNotFound
		case err != nil && !errors.Is(err, ErrNotFound):
			return err
		}

		if err := e.checkUnique(txn, old, entity); err != nil {
			return err
		}
		if old != nil {
			if err := e.deleteIndexes(txn, id, old); err != nil {
				return err
			}
		}

		if err := txn.Set(buildKey(e.prefix, id), data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}
		return e.setIndexes(txn, id, entity)
	})
}

// checkUnique rejects new unique index values already owned by another record.
func (e *Entity[T]) checkUnique(txn *badger.Txn, old, entity *T) error {
	for _, idx := range e.indexes {
		if !idx.unique {
			continue
		}

		oldKeys := make(map[string]bool)
		if old != nil {
			for _, k := range idx.keyGen(old) {
				oldKeys[k] = true
			}
		}

		for _, value := range idx.keyGen(entity) {
			if oldKeys[value] {
				continue
			}
			_, err := txn.Get(buildUniqueIndexKey(e.prefix, idx.name, value))
			if err == nil {
				return fmt.Errorf("index %s conflict on key %s: %w", idx.name, value, ErrAlreadyExists)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("failed to check index key: %w", err)
			}
		}
	}
	return nil
}

func (e *Entity[T]) indexKey(idx Index[T], value, id string) []byte {
	if idx.unique {
		return buildUniqueIndexKey(e.prefix, idx.name, value)
	}
	return buildMultiIndexKey(e.prefix, idx.name, value, id)
}

func (e *Entity[T]) setIndexes(txn *badger.Txn, id string, entity *T) error {
	for _, idx := range e.indexes {
		for _, value := range idx.keyGen(entity) {
			if err := txn.Set(e.indexKey(idx, value, id), []byte(id)); err != nil {
				return fmt.Errorf("failed to set index key: %w", err)
			}
		}
	}
	return nil
}

func (e *Entity[T]) deleteIndexes(txn *badger.Txn, id string, entity *T) error {
	for _, idx := range e.indexes {
		for _, value := range idx.keyGen(entity) {
			if err := txn.Delete(e.indexKey(idx, value, id)); err != nil {
				return fmt.Errorf("failed to delete index key: %w", err)
			}
		}
	}
	return nil
}

// Get retrieves an entity by ID.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entity *T
	err := e.store.db.View(func(txn *badger.Txn) error {
		var err error
		entity, err = e.getTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (e *Entity[T]) getTxn(txn *badger.Txn, id string) (*T, error) {
	item, err := txn.Get(buildKey(e.prefix, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	var entity T
	err = item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, &entity); err != nil {
			return fmt.Errorf("failed to unmarshal entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// GetByIndex retrieves an entity by a unique secondary index.
// If the index has a lookup transform, it is applied to the value first.
func (e *Entity[T]) GetByIndex(ctx context.Context, indexName, value string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, idx := range e.indexes {
		if idx.name == indexName && idx.lookupTransform != nil {
			value = idx.lookupTransform(value)
			break
		}
	}

	var entity *T
	err := e.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(buildUniqueIndexKey(e.prefix, indexName, value))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		entity, err = e.getTxn(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// ListByIndex returns an iterator over every entity whose multi-value index
// named indexName holds value. Order is by record ID.
func (e *Entity[T]) ListByIndex(ctx context.Context, indexName, value string) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		prefix := multiIndexValuePrefix(e.prefix, indexName, value)

		_ = e.store.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return err
				}

				id, err := it.Item().ValueCopy(nil)
				if err != nil {
					yield(nil, err)
					return err
				}

				entity, err := e.getTxn(txn, string(id))
				if errors.Is(err, ErrNotFound) {
					continue // index entry outlived its record
				}
				if !yield(entity, err) || err != nil {
					return nil
				}
			}
			return nil
		})
	}
}

// PageByIndex walks the multi-value index named indexName in key order
// (reverse when newestFirst is set) and returns up to params.Limit entities
// accepted by match. A nil match accepts everything.
func (e *Entity[T]) PageByIndex(ctx context.Context, indexName string, params PaginationParams, newestFirst bool, match func(*T) bool) (*PaginatedResult[*T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params.Validate()

	prefix := indexPrefix(e.prefix, indexName)
	cursorKey, err := DecodeCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursorKey != "" && !strings.HasPrefix(cursorKey, string(prefix)) {
		return nil, ErrInvalidCursor
	}

	result := &PaginatedResult[*T]{Items: make([]*T, 0, params.Limit)}
	var lastKey []byte

	err = e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = newestFirst
		it := txn.NewIterator(opts)
		defer it.Close()

		start := prefix
		if newestFirst {
			start = append(bytes.Clone(prefix), 0xFF)
		}
		if cursorKey != "" {
			start = []byte(cursorKey)
		}

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			key := it.Item().KeyCopy(nil)
			if cursorKey != "" && string(key) == cursorKey {
				continue
			}

			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			entity, err := e.getTxn(txn, string(id))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if match != nil && !match(entity) {
				continue
			}

			if len(result.Items) == params.Limit {
				result.HasMore = true
				return nil
			}
			result.Items = append(result.Items, entity)
			lastKey = key
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.HasMore {
		result.NextCursor = EncodeCursor(string(lastKey))
	}
	return result, nil
}

// Delete deletes an entity by ID.
// This operation is idempotent - it does not return an error if the entity does not exist.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		entity, err := e.getTxn(txn, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := e.deleteIndexes(txn, id, entity); err != nil {
			return err
		}
		if err := txn.Delete(buildKey(e.prefix, id)); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}
		return nil
	})
}

// List returns an iterator over all entities.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		_ = e.store.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(e.prefix)
			opts.PrefetchValues = true

			it := txn.NewIterator(opts)
			defer it.Close()

			indexKeys := []byte(e.prefix + "idx:")
			for it.Seek([]byte(e.prefix)); it.ValidForPrefix([]byte(e.prefix)); it.Next() {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return ctx.Err()
				}

				// Skip index keys
				if bytes.HasPrefix(it.Item().Key(), indexKeys) {
					continue
				}

				var entity T
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &entity)
				})
				if err != nil {
					yield(nil, err)
					return err
				}

				if !yield(&entity, nil) {
					return nil // Consumer stopped early
				}
			}
			return nil
		})
	}
}
