package cache

import (
	"context"
	"fmt"
)

// Repository is the typed front of a Backend. When the backend is configured
// with automatic serialization it encodes values on Put and decodes them on
// Get; otherwise it only passes raw bytes and strings through.
type Repository struct {
	backend    Backend
	serializer Serializer
	automatic  bool
}

// NewRepository wraps b using the serializer named in its configuration.
func NewRepository(b Backend) (*Repository, error) {
	cfg := b.Config()
	serializer, err := SerializerFor(cfg.Serializer)
	if err != nil {
		return nil, err
	}
	return &Repository{
		backend:    b,
		serializer: serializer,
		automatic:  cfg.AutomaticSerialization,
	}, nil
}

// Backend returns the wrapped backend.
func (r *Repository) Backend() Backend {
	return r.backend
}

// Put stores v under id.
func (r *Repository) Put(ctx context.Context, id string, v any, tags []string, opts ...SaveOption) error {
	payload, err := r.encode(v)
	if err != nil {
		return err
	}
	return r.backend.Save(ctx, id, payload, tags, opts...)
}

// Get decodes the entry stored under id into dst. It reports false when the
// entry is missing or expired.
func (r *Repository) Get(ctx context.Context, id string, dst any) (bool, error) {
	payload, found, err := r.backend.Load(ctx, id)
	if err != nil || !found {
		return false, err
	}
	if err := r.decode(payload, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Remember loads id into dst, or computes it with fn and stores the result
// when the entry is absent.
func (r *Repository) Remember(ctx context.Context, id string, dst any, tags []string, fn func(ctx context.Context) (any, error), opts ...SaveOption) error {
	found, err := r.Get(ctx, id, dst)
	if err != nil || found {
		return err
	}
	v, err := fn(ctx)
	if err != nil {
		return err
	}
	payload, err := r.encode(v)
	if err != nil {
		return err
	}
	if err := r.backend.Save(ctx, id, payload, tags, opts...); err != nil {
		return err
	}
	return r.decode(payload, dst)
}

// Forget removes id.
func (r *Repository) Forget(ctx context.Context, id string) error {
	return r.backend.Remove(ctx, id)
}

// FlushTags removes every entry carrying one of tags.
func (r *Repository) FlushTags(ctx context.Context, tags ...string) error {
	return r.backend.InvalidateTags(ctx, tags)
}

// Prune removes every expired entry.
func (r *Repository) Prune(ctx context.Context) error {
	return r.backend.InvalidateExpired(ctx)
}

// Flush removes everything.
func (r *Repository) Flush(ctx context.Context) error {
	return r.backend.Clear(ctx)
}

func (r *Repository) encode(v any) ([]byte, error) {
	if r.automatic {
		return r.serializer.Marshal(v)
	}
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("cache: automatic serialization disabled, cannot store %T", v)
	}
}

func (r *Repository) decode(payload []byte, dst any) error {
	if r.automatic {
		return r.serializer.Unmarshal(payload, dst)
	}
	switch t := dst.(type) {
	case *[]byte:
		*t = payload
		return nil
	case *string:
		*t = string(payload)
		return nil
	default:
		return fmt.Errorf("cache: automatic serialization disabled, cannot load into %T", dst)
	}
}
