// Package repository implements the domain repositories on top of any
// record.Store. Entities are stored as JSON documents, one per record.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/edutracker/edutracker/internal/domain/record"
)

// documents maps one collection to entities of type T.
type documents[T any] struct {
	store      record.Store
	collection record.Collection
	notFound   error
}

func newDocuments[T any](store record.Store, collection record.Collection, notFound error) documents[T] {
	return documents[T]{store: store, collection: collection, notFound: notFound}
}

func (d documents[T]) get(ctx context.Context, id string) (*T, error) {
	rec, err := d.store.Get(ctx, d.collection, id)
	if err != nil {
		return nil, d.translate(err)
	}
	v := new(T)
	if err := rec.Decode(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (d documents[T]) exists(ctx context.Context, id string) (bool, error) {
	_, err := d.store.Get(ctx, d.collection, id)
	if errors.Is(err, record.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (d documents[T]) list(ctx context.Context) ([]*T, error) {
	recs, err := d.store.List(ctx, d.collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.collection, err)
	}
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		v := new(T)
		if err := rec.Decode(v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d documents[T]) put(ctx context.Context, id string, v *T) error {
	rec, err := record.New(d.collection, id, v)
	if err != nil {
		return err
	}
	if _, err := d.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("put %s: %w", rec.Key(), err)
	}
	return nil
}

func (d documents[T]) delete(ctx context.Context, id string) error {
	return d.translate(d.store.Delete(ctx, d.collection, id))
}

func (d documents[T]) translate(err error) error {
	if errors.Is(err, record.ErrNotFound) && d.notFound != nil {
		return d.notFound
	}
	return err
}
