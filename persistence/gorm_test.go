package persistence

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/genflow/persistence/storetest"
	"github.com/BaSui01/genflow/workflow"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Each sqlite :memory: connection is its own database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func TestGormStore_Contract(t *testing.T) {
	storetest.RunStoreContract(t, NewGormStore(setupTestDB(t), zaptest.NewLogger(t)))
}

func TestGormStore_TableNames(t *testing.T) {
	db := setupTestDB(t)
	assert.True(t, db.Migrator().HasTable("genflow_sessions"))
	assert.True(t, db.Migrator().HasTable("genflow_approval_requests"))
}

func TestGormStore_CreatedAtIsStable(t *testing.T) {
	db := setupTestDB(t)
	s := NewGormStore(db, nil)
	ctx := context.Background()

	status := workflow.StatusIdle
	require.NoError(t, s.Save(ctx, "s1", workflow.SessionPatch{Status: &status}))
	first, err := s.Load(ctx, "s1")
	require.NoError(t, err)

	status = workflow.StatusCompleted
	require.NoError(t, s.Save(ctx, "s1", workflow.SessionPatch{Status: &status}))
	second, err := s.Load(ctx, "s1")
	require.NoError(t, err)

	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.Equal(t, workflow.StatusCompleted, second.Status)

	var count int64
	require.NoError(t, db.Model(&SessionModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormStore_Ping(t *testing.T) {
	assert.NoError(t, NewGormStore(setupTestDB(t), nil).Ping(context.Background()))
}

func TestGormStore_SaveUsesTxRunner(t *testing.T) {
	db := setupTestDB(t)
	calls := 0
	s := NewGormStore(db, nil, WithTxRunner(func(ctx context.Context, fn func(*gorm.DB) error) error {
		calls++
		return db.WithContext(ctx).Transaction(fn)
	}))

	status := workflow.StatusAnalyzing
	require.NoError(t, s.Save(context.Background(), "s1", workflow.SessionPatch{Status: &status}))
	assert.Equal(t, 1, calls)

	rec, err := s.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusAnalyzing, rec.Status)
}
