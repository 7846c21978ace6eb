package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/genflow/workflow"
)

// SessionModel is the genflow_sessions row. JSON columns are stored as text
// so the schema is identical across PostgreSQL, MySQL and SQLite.
type SessionModel struct {
	SessionID string    `gorm:"column:session_id;primaryKey;size:128"`
	Prompt    string    `gorm:"column:prompt;type:text"`
	Content   string    `gorm:"column:content;type:text"`
	Document  string    `gorm:"column:document;type:text"`
	Charts    string    `gorm:"column:charts;type:text"`
	Status    string    `gorm:"column:status;size:32;index"`
	Error     string    `gorm:"column:error;type:text"`
	Metadata  string    `gorm:"column:metadata;type:text"`
	Snapshot  string    `gorm:"column:snapshot;type:text"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName implements gorm's Tabler.
func (SessionModel) TableName() string { return "genflow_sessions" }

// ApprovalModel is the genflow_approval_requests row.
type ApprovalModel struct {
	ID         string     `gorm:"column:id;primaryKey;size:64"`
	SessionID  string     `gorm:"column:session_id;size:128;index"`
	Kind       string     `gorm:"column:kind;size:64"`
	Payload    string     `gorm:"column:payload;type:text"`
	Status     string     `gorm:"column:status;size:16;index"`
	Comment    string     `gorm:"column:comment;type:text"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	ResolvedAt *time.Time `gorm:"column:resolved_at"`
}

// TableName implements gorm's Tabler.
func (ApprovalModel) TableName() string { return "genflow_approval_requests" }

// AutoMigrate creates the tables. Production deployments use the SQL
// migrations in internal/migration instead.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&SessionModel{}, &ApprovalModel{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// TxRunner runs fn inside a transaction. database.PoolManager.Transact
// provides one that retries deadlocks and serialization failures.
type TxRunner func(ctx context.Context, fn func(tx *gorm.DB) error) error

// GormOption configures a GormStore.
type GormOption func(*GormStore)

// WithTxRunner replaces the plain single-attempt transaction.
func WithTxRunner(tx TxRunner) GormOption {
	return func(s *GormStore) {
		if tx != nil {
			s.tx = tx
		}
	}
}

// GormStore implements workflow.Store on a relational database.
type GormStore struct {
	db     *gorm.DB
	tx     TxRunner
	logger *zap.Logger
}

// NewGormStore wraps an open connection.
func NewGormStore(db *gorm.DB, logger *zap.Logger, opts ...GormOption) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GormStore{db: db, logger: logger.With(zap.String("component", "gorm_store"))}
	s.tx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return s.db.WithContext(ctx).Transaction(fn)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load implements workflow.Store.
func (s *GormStore) Load(ctx context.Context, sessionID string) (*workflow.SessionRecord, error) {
	var m SessionModel
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sessionNotFound(sessionID)
	}
	if err != nil {
		return nil, storeError("load session", err)
	}
	return m.toRecord()
}

// Save implements workflow.Store. The read-modify-write runs in one
// transaction with a row lock where the dialect supports it.
func (s *GormStore) Save(ctx context.Context, sessionID string, patch workflow.SessionPatch) error {
	err := s.tx(ctx, func(tx *gorm.DB) error {
		var m SessionModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", sessionID).First(&m).Error

		rec := &workflow.SessionRecord{SessionID: sessionID, Status: workflow.StatusIdle}
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			if rec, err = m.toRecord(); err != nil {
				return err
			}
		}

		patch.Apply(rec)
		next, err := fromRecord(rec)
		if err != nil {
			return err
		}
		next.CreatedAt = m.CreatedAt
		return tx.Save(next).Error
	})
	if err != nil {
		s.logger.Warn("save session failed", zap.String("session_id", sessionID), zap.Error(err))
		return storeError("save session", err)
	}
	return nil
}

// CreateApprovalRequest implements workflow.Store.
func (s *GormStore) CreateApprovalRequest(ctx context.Context, req *workflow.ApprovalRequest) (*workflow.ApprovalRequest, error) {
	m := approvalFromRequest(req)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, storeError("create approval", err)
	}
	return m.toRequest(), nil
}

// GetApprovalRequest implements workflow.Store.
func (s *GormStore) GetApprovalRequest(ctx context.Context, approvalID string) (*workflow.ApprovalRequest, error) {
	var m ApprovalModel
	err := s.db.WithContext(ctx).Where("id = ?", approvalID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, approvalNotFound(approvalID)
	}
	if err != nil {
		return nil, storeError("get approval", err)
	}
	return m.toRequest(), nil
}

// UpdateApprovalRequest implements workflow.Store.
func (s *GormStore) UpdateApprovalRequest(ctx context.Context, req *workflow.ApprovalRequest) error {
	res := s.db.WithContext(ctx).Model(&ApprovalModel{}).
		Where("id = ? AND status = ?", req.ID, string(workflow.ApprovalPending)).
		Updates(map[string]any{
			"status":      string(req.Status),
			"comment":     req.Comment,
			"resolved_at": req.ResolvedAt,
		})
	if res.Error != nil {
		return storeError("update approval", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// 未命中：记录不存在或已被其他请求决议
	cur, err := s.GetApprovalRequest(ctx, req.ID)
	if err != nil {
		return err
	}
	return approvalResolved(req.ID, cur.Status)
}

// Ping implements HealthChecker.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (m *SessionModel) toRecord() (*workflow.SessionRecord, error) {
	rec := &workflow.SessionRecord{
		SessionID: m.SessionID,
		Prompt:    m.Prompt,
		Content:   m.Content,
		Status:    workflow.Status(m.Status),
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Document != "" {
		rec.Document = &workflow.Document{}
		if err := json.Unmarshal([]byte(m.Document), rec.Document); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	if m.Charts != "" {
		if err := json.Unmarshal([]byte(m.Charts), &rec.Charts); err != nil {
			return nil, fmt.Errorf("decode charts: %w", err)
		}
	}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if m.Snapshot != "" {
		rec.Snapshot = []byte(m.Snapshot)
	}
	return rec, nil
}

func fromRecord(r *workflow.SessionRecord) (*SessionModel, error) {
	m := &SessionModel{
		SessionID: r.SessionID,
		Prompt:    r.Prompt,
		Content:   r.Content,
		Status:    string(r.Status),
		Error:     r.Error,
		Snapshot:  string(r.Snapshot),
	}
	if r.Document != nil {
		data, err := json.Marshal(r.Document)
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		m.Document = string(data)
	}
	if r.Charts != nil {
		data, err := json.Marshal(r.Charts)
		if err != nil {
			return nil, fmt.Errorf("encode charts: %w", err)
		}
		m.Charts = string(data)
	}
	if len(r.Metadata) > 0 {
		data, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		m.Metadata = string(data)
	}
	return m, nil
}

func approvalFromRequest(r *workflow.ApprovalRequest) *ApprovalModel {
	return &ApprovalModel{
		ID:         r.ID,
		SessionID:  r.SessionID,
		Kind:       r.Kind,
		Payload:    string(r.Payload),
		Status:     string(r.Status),
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
		ResolvedAt: r.ResolvedAt,
	}
}

func (m *ApprovalModel) toRequest() *workflow.ApprovalRequest {
	req := &workflow.ApprovalRequest{
		ID:         m.ID,
		SessionID:  m.SessionID,
		Kind:       m.Kind,
		Status:     workflow.ApprovalStatus(m.Status),
		Comment:    m.Comment,
		CreatedAt:  m.CreatedAt,
		ResolvedAt: m.ResolvedAt,
	}
	if m.Payload != "" {
		req.Payload = json.RawMessage(m.Payload)
	}
	return req
}
