package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/MikeSquared-Agency/Cortex/internal/ledger"
)

const (
	ledgerKey        = "ledger.state"
	assignmentPrefix = "assignment."
)

// KVStore keeps the ledger snapshot and the assignment log in a JetStream
// key-value bucket. Assignment keys are assignment.<modality>.<id>.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore opens bucket, creating it when missing.
func NewKVStore(ctx context.Context, js jetstream.JetStream, bucket string) (*KVStore, error) {
	kv, err := ensureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "cortex ledger and assignment log",
		History:     1,
	}, 3)
	if err != nil {
		return nil, err
	}
	return &KVStore{kv: kv}, nil
}

// ensureBucket creates or opens a bucket. Concurrent instances may race on
// creation, so ErrBucketExists falls back to opening and other errors retry
// with exponential backoff.
func ensureBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig, maxRetries int) (jetstream.KeyValue, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		kv, err := js.CreateKeyValue(ctx, cfg)
		if err == nil {
			return kv, nil
		}
		if errors.Is(err, jetstream.ErrBucketExists) {
			if kv, err = js.KeyValue(ctx, cfg.Bucket); err == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("create or open kv bucket %s after %d attempts: %w", cfg.Bucket, maxRetries, lastErr)
}

func (s *KVStore) SaveAssignment(ctx context.Context, a *Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(ctx, assignmentPrefix+a.Modality+"."+a.ID.String(), data)
	return err
}

func (s *KVStore) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]*Assignment, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lister.Stop() }()

	prefix := assignmentPrefix
	if filter.Modality != "" {
		prefix += filter.Modality + "."
	}

	var matched []*Assignment
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, err := s.kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		a := &Assignment{}
		if err := json.Unmarshal(entry.Value(), a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		if filter.matches(a) {
			matched = append(matched, a)
		}
	}
	return page(matched, filter), nil
}

func (s *KVStore) SaveLedger(ctx context.Context, st ledger.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(ctx, ledgerKey, data)
	return err
}

func (s *KVStore) LoadLedger(ctx context.Context) (*ledger.State, error) {
	entry, err := s.kv.Get(ctx, ledgerKey)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st := &ledger.State{}
	if err := json.Unmarshal(entry.Value(), st); err != nil {
		return nil, fmt.Errorf("decode ledger state: %w", err)
	}
	return st, nil
}

// Close is a no-op; the connection belongs to the hermes client.
func (s *KVStore) Close() error { return nil }
