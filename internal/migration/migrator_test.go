package migration

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/genflow/config"
	"github.com/BaSui01/genflow/internal/database"
	"github.com/BaSui01/genflow/persistence"
	"github.com/BaSui01/genflow/workflow"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"postgres", DialectPostgres, false},
		{"PostgreSQL", DialectPostgres, false},
		{"pg", DialectPostgres, false},
		{"mariadb", DialectMySQL, false},
		{" mysql ", DialectMySQL, false},
		{"sqlite3", DialectSQLite, false},
		{"oracle", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURLFor(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.DatabaseConfig
		wantDialect Dialect
		wantURL     string
	}{
		{
			name:        "postgres defaults sslmode",
			cfg:         config.DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "gf", Password: "pw", Name: "genflow"},
			wantDialect: DialectPostgres,
			wantURL:     "host=db port=5432 user=gf password=pw dbname=genflow sslmode=disable",
		},
		{
			name:        "mysql enables multi statements",
			cfg:         config.DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "gf", Password: "pw", Name: "genflow"},
			wantDialect: DialectMySQL,
			wantURL:     "gf:pw@tcp(db:3306)/genflow?parseTime=true&multiStatements=true",
		},
		{
			name:        "sqlite file",
			cfg:         config.DatabaseConfig{Driver: "sqlite", Name: "/var/lib/genflow.db"},
			wantDialect: DialectSQLite,
			wantURL:     "file:/var/lib/genflow.db?mode=rwc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, url, err := URLFor(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDialect, d)
			assert.Equal(t, tt.wantURL, url)
		})
	}

	_, _, err := URLFor(config.DatabaseConfig{Driver: "sqlite"})
	assert.Error(t, err)
	_, _, err = URLFor(config.DatabaseConfig{Driver: "mongo"})
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	for _, d := range []Dialect{DialectPostgres, DialectMySQL, DialectSQLite} {
		t.Run(string(d), func(t *testing.T) {
			catalog, err := loadCatalog(d)
			require.NoError(t, err)
			require.NotEmpty(t, catalog)
			assert.Equal(t, uint(1), catalog[0].Version)
			assert.Equal(t, "create_genflow_tables", catalog[0].Name)
			for i := 1; i < len(catalog); i++ {
				assert.Greater(t, catalog[i].Version, catalog[i-1].Version)
			}
		})
	}

	_, err := loadCatalog("oracle")
	assert.Error(t, err)
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{Dialect: DialectSQLite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}

func newSQLiteMigrator(t *testing.T) (*SQLMigrator, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genflow.db")
	m, err := FromDatabaseConfig(config.DatabaseConfig{Driver: "sqlite", Name: path}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, path
}

func TestSQLMigrator_Lifecycle(t *testing.T) {
	m, _ := newSQLiteMigrator(t)
	ctx := context.Background()

	v, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.Total, info.Pending)

	require.NoError(t, m.Up(ctx))
	// 已是最新版本时 Up 不报错
	require.NoError(t, m.Up(ctx))

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.True(t, s.Applied, "migration %d", s.Version)
		assert.False(t, s.Dirty)
	}

	info, err = m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.Total, info.Applied)
	assert.Zero(t, info.Pending)
	assert.Equal(t, statuses[len(statuses)-1].Version, info.Current)

	require.NoError(t, m.DownAll(ctx))
	v, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, m.Goto(ctx, 1))
	v, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	require.NoError(t, m.Down(ctx))
	v, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestSQLMigrator_CanceledContext(t *testing.T) {
	m, _ := newSQLiteMigrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Up(ctx)
	// 已取消的 ctx 可能在迁移完成前或后被观察到
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestSQLMigrator_SchemaMatchesGormStore(t *testing.T) {
	m, path := newSQLiteMigrator(t)
	ctx := context.Background()
	require.NoError(t, m.Up(ctx))

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Name: path}, zaptest.NewLogger(t))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	store := persistence.NewGormStore(db, zaptest.NewLogger(t))
	content := "# Title"
	status := workflow.StatusCompleted
	require.NoError(t, store.Save(ctx, "s1", workflow.SessionPatch{Content: &content, Status: &status}))

	rec, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "# Title", rec.Content)
	assert.Equal(t, workflow.StatusCompleted, rec.Status)

	req, err := store.CreateApprovalRequest(ctx, &workflow.ApprovalRequest{
		ID:        "ap-1",
		SessionID: "s1",
		Kind:      "publish",
		Status:    workflow.ApprovalPending,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	got, err := store.GetApprovalRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.ApprovalPending, got.Status)
}

// stubMigrator 以回调实现 Migrator，未设置的回调返回零值
type stubMigrator struct {
	up      func(context.Context) error
	version func(context.Context) (uint, bool, error)
	status  func(context.Context) ([]Migration, error)
	info    func(context.Context) (*Info, error)
}

func (s *stubMigrator) Up(ctx context.Context) error {
	if s.up != nil {
		return s.up(ctx)
	}
	return nil
}
func (s *stubMigrator) Down(context.Context) error       { return nil }
func (s *stubMigrator) DownAll(context.Context) error    { return nil }
func (s *stubMigrator) Goto(context.Context, uint) error { return nil }
func (s *stubMigrator) Force(context.Context, int) error { return nil }
func (s *stubMigrator) Close() error                     { return nil }
func (s *stubMigrator) Version(ctx context.Context) (uint, bool, error) {
	if s.version != nil {
		return s.version(ctx)
	}
	return 0, false, nil
}
func (s *stubMigrator) Status(ctx context.Context) ([]Migration, error) {
	if s.status != nil {
		return s.status(ctx)
	}
	return nil, nil
}
func (s *stubMigrator) Info(ctx context.Context) (*Info, error) {
	if s.info != nil {
		return s.info(ctx)
	}
	return &Info{}, nil
}

func TestCLI(t *testing.T) {
	ctx := context.Background()

	t.Run("up prints resulting version", func(t *testing.T) {
		var buf bytes.Buffer
		cli := NewCLI(&stubMigrator{
			version: func(context.Context) (uint, bool, error) { return 1, false, nil },
		}, WithOutput(&buf))
		require.NoError(t, cli.RunUp(ctx))
		assert.Contains(t, buf.String(), "schema at version 1")
	})

	t.Run("up error skips version", func(t *testing.T) {
		var buf bytes.Buffer
		boom := errors.New("boom")
		cli := NewCLI(&stubMigrator{up: func(context.Context) error { return boom }}, WithOutput(&buf))
		assert.ErrorIs(t, cli.RunUp(ctx), boom)
		assert.NotContains(t, buf.String(), "schema at version")
	})

	t.Run("status table", func(t *testing.T) {
		var buf bytes.Buffer
		cli := NewCLI(&stubMigrator{
			status: func(context.Context) ([]Migration, error) {
				return []Migration{
					{Version: 1, Name: "create_genflow_tables", Applied: true},
					{Version: 2, Name: "add_index", Applied: true, Dirty: true},
					{Version: 3, Name: "add_column"},
				}, nil
			},
		}, WithOutput(&buf))
		require.NoError(t, cli.RunStatus(ctx))
		out := buf.String()
		assert.Contains(t, out, "VERSION")
		assert.Regexp(t, `000001\s+create_genflow_tables\s+applied`, out)
		assert.Regexp(t, `000002\s+add_index\s+dirty`, out)
		assert.Regexp(t, `000003\s+add_column\s+pending`, out)
	})

	t.Run("info warns when dirty", func(t *testing.T) {
		var buf bytes.Buffer
		cli := NewCLI(&stubMigrator{
			info: func(context.Context) (*Info, error) {
				return &Info{Current: 2, Dirty: true, Total: 3, Applied: 2, Pending: 1}, nil
			},
		}, WithOutput(&buf))
		require.NoError(t, cli.RunInfo(ctx))
		assert.Contains(t, buf.String(), "current: 2 (dirty)")
		assert.Contains(t, buf.String(), "applied: 2/3")
		assert.Contains(t, buf.String(), "migrate force")
	})

	t.Run("version on fresh database", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewCLI(&stubMigrator{}, WithOutput(&buf)).RunVersion(ctx))
		assert.Equal(t, "0\n", buf.String())
	})
}
