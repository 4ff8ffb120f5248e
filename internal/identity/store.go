package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mirrorgate/internal/environment"
	"mirrorgate/internal/store"
)

// DefaultKey is the storage key of the identity record.
const DefaultKey = "mirrorgate.identity"

// Store persists the single identity record of this profile.
type Store struct {
	backend store.Backend
	key     string
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used for fail-soft reads.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a Store over backend.
func NewStore(backend store.Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save overwrites the stored record. The record is encoded in full before
// the write so a failed encode leaves the previous record untouched.
func (s *Store) Save(ctx context.Context, r Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Load returns the stored record, or nil when none is usable. Missing,
// malformed and corrupted data all read as absent; failures are logged.
func (s *Store) Load(ctx context.Context) *Record {
	data, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, store.ErrCorrupt) {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "identity read failed, treating as absent", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	r, err := Decode(data)
	if err != nil {
		s.logger.Warn("stored identity is malformed, treating as absent", "error", err)
		return nil
	}
	return &r
}

// Clear deletes the stored record.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

// Signature derives the device signature: userAgent|WxH|locale.
func Signature(env environment.Descriptor) string {
	return strings.Join([]string{env.UserAgent, env.Resolution(), env.Locale}, payloadSeparator)
}
