package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/genflow/types"
	"github.com/BaSui01/genflow/workflow"
)

const (
	mongoSessions  = "genflow_sessions"
	mongoApprovals = "genflow_approval_requests"
)

// sessionDoc 记录体以 JSON 保存在 data 中，与其他后端编码一致；
// status 与 updated_at 单独存放以便索引和 TTL。version 为乐观锁，新文档从 1 开始。
type sessionDoc struct {
	ID        string    `bson:"_id"`
	Version   int64     `bson:"version"`
	Status    string    `bson:"status"`
	UpdatedAt time.Time `bson:"updated_at"`
	Data      string    `bson:"data"`
}

type approvalDoc struct {
	ID        string    `bson:"_id"`
	SessionID string    `bson:"session_id"`
	Status    string    `bson:"status"`
	UpdatedAt time.Time `bson:"updated_at"`
	Data      string    `bson:"data"`
}

// MongoStore 基于 MongoDB 的 workflow.Store。Save 读取、合并后按 version 条件替换，冲突时重试。
type MongoStore struct {
	sessions  *mongo.Collection
	approvals *mongo.Collection
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewMongoStore ttl 大于 0 时 EnsureIndexes 会按 updated_at 建 TTL 索引
func NewMongoStore(db *mongo.Database, ttl time.Duration, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{
		sessions:  db.Collection(mongoSessions),
		approvals: db.Collection(mongoApprovals),
		ttl:       ttl,
		now:       time.Now,
		logger:    logger.With(zap.String("component", "mongo_store")),
	}
}

// ConnectMongo 建立连接并确认可达；调用方负责 Disconnect
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetAppName("genflow"))
	if err != nil {
		return nil, storeError("connect mongo", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, storeError("ping mongo", err)
	}
	return client, nil
}

// EnsureIndexes 幂等，启动时调用
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.approvals.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}},
	}); err != nil {
		return storeError("create approval index", err)
	}
	if s.ttl <= 0 {
		return nil
	}
	ttl := mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(s.ttl / time.Second)),
	}
	for _, c := range []*mongo.Collection{s.sessions, s.approvals} {
		if _, err := c.Indexes().CreateOne(ctx, ttl); err != nil {
			return storeError("create ttl index", err)
		}
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, sessionID string) (*workflow.SessionRecord, error) {
	doc, err := s.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, sessionNotFound(sessionID)
	}
	return decodeSession(doc)
}

// findSession 不存在时返回 nil, nil
func (s *MongoStore) findSession(ctx context.Context, sessionID string) (*sessionDoc, error) {
	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("load session", err)
	}
	return &doc, nil
}

func (s *MongoStore) Save(ctx context.Context, sessionID string, patch workflow.SessionPatch) error {
	for range maxWatchRetries {
		cur, err := s.findSession(ctx, sessionID)
		if err != nil {
			return err
		}
		now := s.now()
		rec := &workflow.SessionRecord{SessionID: sessionID, Status: workflow.StatusIdle, CreatedAt: now}
		var version int64
		if cur != nil {
			if rec, err = decodeSession(cur); err != nil {
				return err
			}
			version = cur.Version
		}
		patch.Apply(rec)
		rec.UpdatedAt = now

		next, err := encodeSession(rec, version+1)
		if err != nil {
			return err
		}
		applied, err := s.swap(ctx, next, version)
		if err != nil {
			return storeError("save session", err)
		}
		if applied {
			return nil
		}
		s.logger.Debug("session changed during save, retrying", zap.String("session_id", sessionID))
	}
	return storeError("save session", fmt.Errorf("too many concurrent updates to %s", sessionID))
}

// swap 以 version 为条件写入；另一写者抢先时返回 false
func (s *MongoStore) swap(ctx context.Context, next *sessionDoc, version int64) (bool, error) {
	if version == 0 {
		_, err := s.sessions.InsertOne(ctx, next)
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return err == nil, err
	}
	res, err := s.sessions.ReplaceOne(ctx, bson.M{"_id": next.ID, "version": version}, next)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (s *MongoStore) CreateApprovalRequest(ctx context.Context, req *workflow.ApprovalRequest) (*workflow.ApprovalRequest, error) {
	doc, err := s.encodeApproval(req)
	if err != nil {
		return nil, err
	}
	_, err = s.approvals.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return nil, types.NewError(types.ErrStoreFailure, fmt.Sprintf("approval %s already exists", req.ID))
	}
	if err != nil {
		return nil, storeError("create approval", err)
	}
	return req.Clone(), nil
}

func (s *MongoStore) GetApprovalRequest(ctx context.Context, approvalID string) (*workflow.ApprovalRequest, error) {
	var doc approvalDoc
	err := s.approvals.FindOne(ctx, bson.M{"_id": approvalID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, approvalNotFound(approvalID)
	}
	if err != nil {
		return nil, storeError("get approval", err)
	}
	var req workflow.ApprovalRequest
	if err := json.Unmarshal([]byte(doc.Data), &req); err != nil {
		return nil, storeError("decode approval", err)
	}
	return &req, nil
}

func (s *MongoStore) UpdateApprovalRequest(ctx context.Context, req *workflow.ApprovalRequest) error {
	doc, err := s.encodeApproval(req)
	if err != nil {
		return err
	}
	res, err := s.approvals.ReplaceOne(ctx, bson.M{"_id": req.ID, "status": string(workflow.ApprovalPending)}, doc)
	if err != nil {
		return storeError("update approval", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	cur, err := s.GetApprovalRequest(ctx, req.ID)
	if err != nil {
		return err
	}
	return approvalResolved(req.ID, cur.Status)
}

// Ping 供就绪探针使用
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.sessions.Database().Client().Ping(ctx, nil)
}

func encodeSession(rec *workflow.SessionRecord, version int64) (*sessionDoc, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, storeError("encode session", err)
	}
	return &sessionDoc{
		ID:        rec.SessionID,
		Version:   version,
		Status:    string(rec.Status),
		UpdatedAt: rec.UpdatedAt,
		Data:      string(data),
	}, nil
}

func decodeSession(doc *sessionDoc) (*workflow.SessionRecord, error) {
	var rec workflow.SessionRecord
	if err := json.Unmarshal([]byte(doc.Data), &rec); err != nil {
		return nil, storeError("decode session", err)
	}
	return &rec, nil
}

func (s *MongoStore) encodeApproval(req *workflow.ApprovalRequest) (*approvalDoc, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, storeError("encode approval", err)
	}
	return &approvalDoc{
		ID:        req.ID,
		SessionID: req.SessionID,
		Status:    string(req.Status),
		UpdatedAt: s.now(),
		Data:      string(data),
	}, nil
}
