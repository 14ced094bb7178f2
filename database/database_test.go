package database

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/kbukum/flowkit/component"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/provider/providertest"
	"github.com/kbukum/flowkit/run"
	"github.com/kbukum/flowkit/stream"
	"github.com/kbukum/flowkit/workflow"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), Config{Enabled: true, DSN: ":memory:"}, logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"sqlite file", Config{Enabled: true, DSN: "flowkit.db"}, false},
		{"missing dsn", Config{Enabled: true}, true},
		{"unknown driver", Config{Enabled: true, Driver: "oracle", DSN: "x"}, true},
		{"negative lifetime", Config{Enabled: true, DSN: "x", Pool: PoolConfig{MaxLifetime: -time.Second}}, true},
		{"idle above open", Config{Enabled: true, DSN: "x", Pool: PoolConfig{MaxOpen: 2, MaxIdle: 3}}, true},
		{"unknown log level", Config{Enabled: true, DSN: "x", Log: LogConfig{Level: "trace"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_InMemorySqliteUsesOneConnection(t *testing.T) {
	cfg := Config{Enabled: true, DSN: ":memory:", Pool: PoolConfig{MaxOpen: 10}}
	cfg.ApplyDefaults()
	if cfg.Pool.MaxOpen != 1 || cfg.Pool.MaxIdle != 1 {
		t.Errorf("pool = %d/%d, want 1/1", cfg.Pool.MaxOpen, cfg.Pool.MaxIdle)
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	version, dirty, err := MigrateVersion(db)
	if err != nil || dirty || version != 1 {
		t.Errorf("MigrateVersion = %d, %v, %v", version, dirty, err)
	}
	if err := MigrateDown(db); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	if db.GormDB.Migrator().HasTable("flowkit_runs") {
		t.Error("flowkit_runs survived MigrateDown")
	}
}

func TestFromDatabase(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      errors.ErrorCode
		retryable bool
	}{
		{"not found", gorm.ErrRecordNotFound, errors.ErrCodeNotFound, false},
		{"duplicate", gorm.ErrDuplicatedKey, errors.ErrCodeAlreadyExists, false},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, errors.ErrCodeDatabaseError, true},
		{"locked", fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), errors.ErrCodeDatabaseError, true},
		{"unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, errors.ErrCodeAlreadyExists, false},
		{"not null", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, errors.ErrCodePermanent, false},
		{"bad conn", driver.ErrBadConn, errors.ErrCodeDatabaseError, true},
		{"connection", stderrors.New("dial tcp: connection refused"), errors.ErrCodeDatabaseError, true},
		{"syntax", sqlite3.Error{Code: sqlite3.ErrError}, errors.ErrCodeDatabaseError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromDatabase(tt.err, "run")
			appErr, ok := errors.AsAppError(err)
			if !ok {
				t.Fatalf("FromDatabase returned %T", err)
			}
			if appErr.Code != tt.code || appErr.Retryable != tt.retryable {
				t.Errorf("got %s retryable=%v, want %s retryable=%v", appErr.Code, appErr.Retryable, tt.code, tt.retryable)
			}
		})
	}
	if FromDatabase(nil, "run") != nil {
		t.Error("nil error should stay nil")
	}
}

func TestComponent_MigratesAndServesRunStore(t *testing.T) {
	ctx := context.Background()
	comp := NewComponent(Config{Enabled: true, DSN: filepath.Join(t.TempDir(), "runs.db"), AutoMigrate: true}, nil)
	if _, err := comp.RunStore(); err == nil {
		t.Error("RunStore before Start should fail")
	}
	if err := comp.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer comp.Stop(ctx)

	if h := comp.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("health = %+v", h)
	}
	store, err := comp.RunStore()
	if err != nil {
		t.Fatalf("RunStore: %v", err)
	}
	if err := store.Create(ctx, &run.Run{ID: "r1", WorkflowID: "wf", Status: run.StatusQueued, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Create on migrated schema: %v", err)
	}
}

// --- RunStore ---

func TestRunStore_Lifecycle(t *testing.T) {
	store := NewRunStore(newTestDB(t))
	ctx := context.Background()
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	r := &run.Run{
		ID: "r1", WorkflowID: "wf", Status: run.StatusQueued,
		Trigger:  run.Trigger{Type: run.TriggerScheduled, Cron: "@hourly", Timezone: "UTC"},
		Snapshot: []byte(`{"id":"wf"}`), CreatedAt: created,
	}
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, r); !errors.HasCode(err, errors.ErrCodeAlreadyExists) {
		t.Fatalf("duplicate Create: %v, want ALREADY_EXISTS", err)
	}
	if err := store.Transition(ctx, "r1", run.Transition{To: run.StatusRunning}); err != nil {
		t.Fatalf("Transition running: %v", err)
	}
	for _, c := range []stream.Cursor{"1", "2", "3"} {
		if err := store.SaveCheckpoint(ctx, "r1", "src", c); err != nil {
			t.Fatalf("SaveCheckpoint %s: %v", c, err)
		}
	}
	if err := store.SaveCheckpoint(ctx, "r1", "other", "9"); err != nil {
		t.Fatal(err)
	}
	if err := store.Transition(ctx, "r1", run.Transition{
		To:      run.StatusCompleted,
		Metrics: &run.Metrics{ItemsRead: map[string]int64{"src": 3}, ItemsWritten: map[string]int64{"out": 3}},
	}); err != nil {
		t.Fatalf("Transition completed: %v", err)
	}

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != run.StatusCompleted || got.Error != nil {
		t.Errorf("status = %s, error = %+v", got.Status, got.Error)
	}
	if got.Trigger.Cron != "@hourly" || string(got.Snapshot) != `{"id":"wf"}` {
		t.Errorf("trigger or snapshot lost: %+v", got)
	}
	if got.Checkpoints["src"] != "3" || got.Checkpoints["other"] != "9" {
		t.Errorf("checkpoints = %v", got.Checkpoints)
	}
	if got.Metrics.ItemsWritten["out"] != 3 {
		t.Errorf("metrics = %+v", got.Metrics)
	}
	if !got.CreatedAt.Equal(created) || got.StartedAt.IsZero() || got.CompletedAt.IsZero() {
		t.Errorf("timestamps created=%v started=%v completed=%v", got.CreatedAt, got.StartedAt, got.CompletedAt)
	}

	if err := store.Transition(ctx, "r1", run.Transition{To: run.StatusFailed}); !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Errorf("transition of a terminal run: %v, want CONFLICT", err)
	}
	if err := store.SaveCheckpoint(ctx, "r1", "src", "4"); !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Errorf("checkpoint of a terminal run: %v, want CONFLICT", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("Get missing: %v, want NOT_FOUND", err)
	}
	if err := store.SaveCheckpoint(ctx, "missing", "src", "1"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("SaveCheckpoint missing: %v, want NOT_FOUND", err)
	}
}

func TestRunStore_FailedRunKeepsErrorRecord(t *testing.T) {
	store := NewRunStore(newTestDB(t))
	ctx := context.Background()
	if err := store.Create(ctx, &run.Run{ID: "r", WorkflowID: "wf", Status: run.StatusQueued, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}
	rec := &run.ErrorRecord{NodeID: "out", Class: "fatal", Code: "PERMANENT", Message: "rejected", Cursor: "3"}
	if err := store.Transition(ctx, "r", run.Transition{To: run.StatusFailed, Error: rec}); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, "r")
	if err != nil {
		t.Fatal(err)
	}
	if got.Error == nil || *got.Error != *rec {
		t.Errorf("error record = %+v, want %+v", got.Error, rec)
	}
}

func TestRunStore_List(t *testing.T) {
	store := NewRunStore(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		wf := "wf1"
		if id == "b" {
			wf = "wf2"
		}
		if err := store.Create(ctx, &run.Run{ID: id, WorkflowID: wf, Status: run.StatusQueued, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.SaveCheckpoint(ctx, "c", "src", "5"); err != nil {
		t.Fatal(err)
	}

	runs, err := store.List(ctx, run.ListFilter{WorkflowID: "wf1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if !slices.Equal(ids, []string{"c", "a"}) {
		t.Errorf("List(wf1) = %v, want [c a]", ids)
	}
	if runs[0].Checkpoints["src"] != "5" {
		t.Errorf("listed run lost its checkpoints: %+v", runs[0])
	}
	limited, _ := store.List(ctx, run.ListFilter{Limit: 1})
	if len(limited) != 1 || limited[0].ID != "c" {
		t.Errorf("List(limit 1) = %+v", limited)
	}
}

// --- sql-table provider ---

func seedTable(t *testing.T, dsn string, n int) {
	t.Helper()
	db, err := New(context.Background(), Config{Enabled: true, DSN: dsn}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.GormDB.Exec(`CREATE TABLE events (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.GormDB.Exec(`CREATE TABLE copies (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`).Error; err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= n; i++ {
		if err := db.GormDB.Exec(`INSERT INTO events (id, name) VALUES (?, ?)`, i*10, "event").Error; err != nil {
			t.Fatal(err)
		}
	}
}

func openTable(t *testing.T, params map[string]any, creds provider.Credentials) *tableProvider {
	t.Helper()
	p, err := TableFactory(context.Background(), creds, params)
	if err != nil {
		t.Fatalf("TableFactory: %v", err)
	}
	tp := p.(*tableProvider)
	t.Cleanup(func() { _ = tp.Close(context.Background()) })
	if err := tp.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return tp
}

func TestTable_ReadPagesAndResumes(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.db")
	seedTable(t, dsn, 5)
	src := openTable(t, map[string]any{"table": "events", "page_size": 2}, provider.NewCredentials("db", map[string]string{"dsn": dsn}))
	ctx := context.Background()

	it, err := src.Read(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	items, err := pipeline.Collect(ctx, it)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var cursors []stream.Cursor
	for _, item := range items {
		cursors = append(cursors, item.Cursor)
	}
	if !slices.Equal(cursors, []stream.Cursor{"10", "20", "30", "40", "50"}) {
		t.Fatalf("cursors = %v", cursors)
	}
	if row := items[0].Payload.(map[string]any); row["name"] != "event" || items[0].Metadata[MetaTable] != "events" {
		t.Errorf("unexpected first item %+v", items[0])
	}

	it, err = src.Read(ctx, "30")
	if err != nil {
		t.Fatal(err)
	}
	rest, err := pipeline.Collect(ctx, it)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 || rest[0].Cursor != "40" {
		t.Errorf("resumed items = %+v", rest)
	}
}

func TestTable_LimitCapsRead(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.db")
	seedTable(t, dsn, 5)
	src := openTable(t, map[string]any{"dsn": dsn, "table": "events", "page_size": 2, "limit": 3}, provider.Credentials{})
	it, err := src.Read(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	items, err := pipeline.Collect(context.Background(), it)
	if err != nil || len(items) != 3 {
		t.Fatalf("read %d items (%v), want 3", len(items), err)
	}
}

func TestTable_CopyWorkflow(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.db")
	seedTable(t, dsn, 4)
	reg := provider.NewRegistry()
	RegisterProviders(reg)
	wf := &workflow.Workflow{
		ID: "copy",
		Nodes: []workflow.Node{
			{ID: "src", Kind: workflow.KindSource, Config: map[string]any{"provider": TableProviderID, "params": map[string]any{"dsn": dsn, "table": "events"}}},
			{ID: "dst", Kind: workflow.KindSink, Config: map[string]any{"provider": TableProviderID, "params": map[string]any{"dsn": dsn, "table": "copies"}, "batch_size": 3}},
		},
		Edges: []workflow.Edge{{From: "src", To: "dst"}},
	}
	store := NewRunStore(newTestDB(t))
	h, err := run.NewController(store).Start(context.Background(), wf, run.Registries{Providers: reg}, run.StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r, err := h.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != run.StatusCompleted || r.Checkpoints["src"] != "40" {
		t.Fatalf("run = %s checkpoints %v error %+v", r.Status, r.Checkpoints, r.Error)
	}

	check := openTable(t, map[string]any{"dsn": dsn, "table": "copies"}, provider.Credentials{})
	var n int64
	if err := check.db.GormDB.Table("copies").Count(&n).Error; err != nil || n != 4 {
		t.Errorf("copies holds %d rows (%v), want 4", n, err)
	}
}

func TestTable_Contract(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "contract.db")
	seedTable(t, dsn, 0)
	providertest.Run(t, providertest.Harness{
		Open: func(t *testing.T) provider.Provider {
			return openTable(t, map[string]any{"dsn": dsn, "table": "copies", "page_size": 2}, provider.Credentials{})
		},
		Items: []stream.Item{
			{Payload: map[string]any{"id": 1, "name": "a"}},
			{Payload: map[string]any{"id": 2, "name": "b"}},
			{Payload: map[string]any{"id": 3, "name": "c"}},
		},
	})
}

func TestTable_RejectsBadInput(t *testing.T) {
	if _, err := TableFactory(context.Background(), provider.Credentials{}, map[string]any{"dsn": "x.db", "table": "events; DROP TABLE x"}); !errors.HasCode(err, errors.ErrCodeInvalidParams) {
		t.Errorf("unsafe table name: %v, want INVALID_PARAMS", err)
	}
	if _, err := TableFactory(context.Background(), provider.Credentials{}, map[string]any{"table": "events"}); !errors.HasCode(err, errors.ErrCodeInvalidParams) {
		t.Errorf("missing dsn: %v, want INVALID_PARAMS", err)
	}

	dsn := filepath.Join(t.TempDir(), "events.db")
	seedTable(t, dsn, 1)
	sink := openTable(t, map[string]any{"dsn": dsn, "table": "copies"}, provider.Credentials{})
	err := sink.Write(context.Background(), []stream.Item{{Payload: "not a row"}})
	if !errors.HasCode(err, errors.ErrCodeMalformedItem) {
		t.Errorf("string payload: %v, want MALFORMED_ITEM", err)
	}
	if _, err := sink.Read(context.Background(), "{"); !errors.HasCode(err, errors.ErrCodeInvalidParams) {
		t.Errorf("bad cursor: %v, want INVALID_PARAMS", err)
	}
}

func TestVerb(t *testing.T) {
	tests := map[string]string{
		"SELECT * FROM flowkit_runs WHERE id = ?": "SELECT",
		"  insert INTO copies (id) VALUES (1)":    "INSERT",
		"WITH(x) AS (SELECT 1) SELECT * FROM x":   "WITH",
		"":                                        "",
	}
	for sql, want := range tests {
		if got := verb(sql); got != want {
			t.Errorf("verb(%q) = %q, want %q", sql, got, want)
		}
	}
}
