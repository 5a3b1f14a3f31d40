package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeExecutor struct {
	sql   string
	args  []any
	calls int
	err   error
}

func (f *fakeExecutor) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls++
	f.sql = sql
	f.args = args
	return pgconn.CommandTag{}, f.err
}

func TestRecordOnFillsDefaults(t *testing.T) {
	exec := &fakeExecutor{}
	r := &Recorder{}

	entry := Entry{
		TenantID:    uuid.New(),
		ActorUserID: uuid.New(),
		ActorRole:   "admin",
		Action:      ActionCreate,
		EntityType:  "branch_grant",
		NewValues:   map[string]any{"is_manager": true},
	}
	if err := r.RecordOn(context.Background(), exec, entry); err != nil {
		t.Fatalf("record on: %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("expected one insert, got %d", exec.calls)
	}
	if id, ok := exec.args[0].(uuid.UUID); !ok || id == uuid.Nil {
		t.Fatalf("expected generated id, got %v", exec.args[0])
	}
	if exec.args[12] != string(StatusCompleted) {
		t.Fatalf("expected default status completed, got %v", exec.args[12])
	}
	if exec.args[9] == nil {
		t.Fatal("expected new values JSON")
	}
	if b, ok := exec.args[8].([]byte); ok && b != nil {
		t.Fatalf("expected nil old values, got %s", b)
	}
}

func TestRecordOnRequiresActionAndEntityType(t *testing.T) {
	exec := &fakeExecutor{}
	r := &Recorder{}

	if err := r.RecordOn(context.Background(), exec, Entry{EntityType: "sales"}); err == nil {
		t.Fatal("expected error for missing action")
	}
	if err := r.RecordOn(context.Background(), exec, Entry{Action: ActionUpdate}); err == nil {
		t.Fatal("expected error for missing entity type")
	}
	if exec.calls != 0 {
		t.Fatalf("invalid entries must not reach the store, got %d calls", exec.calls)
	}
}

func TestRecordRequiresPool(t *testing.T) {
	var r *Recorder
	if err := r.Record(context.Background(), Entry{Action: ActionCreate, EntityType: "x"}); err == nil {
		t.Fatal("expected error for nil recorder")
	}
	if err := (&Recorder{}).Record(context.Background(), Entry{Action: ActionCreate, EntityType: "x"}); err == nil {
		t.Fatal("expected error for missing pool")
	}
}
