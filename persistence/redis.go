package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/genflow/types"
	"github.com/BaSui01/genflow/workflow"
)

const (
	defaultRedisPrefix = "genflow:"
	maxWatchRetries    = 5
)

// RedisStore implements workflow.Store on Redis. Each session and each
// approval request is one JSON string key.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the expiration for session and approval keys. Zero keeps
// them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithRedisLogger sets the logger.
func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(s *RedisStore) { s.logger = logger }
}

// NewRedisStore creates a store on an existing client. The caller owns the
// client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("component", "redis_store"))
	return s
}

func (s *RedisStore) sessionKey(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

func (s *RedisStore) approvalKey(approvalID string) string {
	return s.prefix + "approval:" + approvalID
}

// Load implements workflow.Store.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*workflow.SessionRecord, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessionNotFound(sessionID)
	}
	if err != nil {
		return nil, storeError("load session", err)
	}
	var rec workflow.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, storeError("decode session", err)
	}
	return &rec, nil
}

// Save implements workflow.Store. The read-modify-write is guarded with
// WATCH and retried on conflict.
func (s *RedisStore) Save(ctx context.Context, sessionID string, patch workflow.SessionPatch) error {
	key := s.sessionKey(sessionID)

	txf := func(tx *redis.Tx) error {
		now := s.now()
		rec := workflow.SessionRecord{SessionID: sessionID, Status: workflow.StatusIdle, CreatedAt: now}

		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
		}

		patch.Apply(&rec)
		rec.UpdatedAt = now
		out, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("session changed during save, retrying", zap.String("session_id", sessionID))
			continue
		}
		return storeError("save session", err)
	}
	return storeError("save session", fmt.Errorf("too many concurrent updates to %s", sessionID))
}

// CreateApprovalRequest implements workflow.Store.
func (s *RedisStore) CreateApprovalRequest(ctx context.Context, req *workflow.ApprovalRequest) (*workflow.ApprovalRequest, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, storeError("encode approval", err)
	}
	ok, err := s.client.SetNX(ctx, s.approvalKey(req.ID), data, s.ttl).Result()
	if err != nil {
		return nil, storeError("create approval", err)
	}
	if !ok {
		return nil, types.NewError(types.ErrStoreFailure, fmt.Sprintf("approval %s already exists", req.ID))
	}
	return req.Clone(), nil
}

// GetApprovalRequest implements workflow.Store.
func (s *RedisStore) GetApprovalRequest(ctx context.Context, approvalID string) (*workflow.ApprovalRequest, error) {
	data, err := s.client.Get(ctx, s.approvalKey(approvalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, approvalNotFound(approvalID)
	}
	if err != nil {
		return nil, storeError("get approval", err)
	}
	var req workflow.ApprovalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, storeError("decode approval", err)
	}
	return &req, nil
}

// UpdateApprovalRequest implements workflow.Store. The pending check and the
// write run under WATCH so two concurrent verdicts cannot both land.
func (s *RedisStore) UpdateApprovalRequest(ctx context.Context, req *workflow.ApprovalRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return storeError("encode approval", err)
	}
	key := s.approvalKey(req.ID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return approvalNotFound(req.ID)
		}
		if err != nil {
			return err
		}
		var cur workflow.ApprovalRequest
		if err := json.Unmarshal(raw, &cur); err != nil {
			return fmt.Errorf("decode approval: %w", err)
		}
		if cur.Status != workflow.ApprovalPending {
			return approvalResolved(req.ID, cur.Status)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case types.IsErrorCode(err, types.ErrApprovalNotFound), types.IsErrorCode(err, types.ErrApprovalResolved):
			return err
		default:
			return storeError("update approval", err)
		}
	}
	return storeError("update approval", fmt.Errorf("too many concurrent updates to %s", req.ID))
}

// Ping implements HealthChecker.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
