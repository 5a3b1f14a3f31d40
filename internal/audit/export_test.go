package audit

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestWriteCSV(t *testing.T) {
	target := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	rows := []TimelineRow{
		{
			At:          time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
			ActorUserID: uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000001"),
			ActorRole:   "super_admin",
			Action:      "bypass-read",
			EntityType:  "audit_log",
			TargetTenantID: &target,
			Status:      "completed",
			Success:     true,
		},
		{
			At:            time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC),
			ActorUserID:   uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002"),
			ActorRole:     "cashier",
			Action:        "permission-denied",
			EntityType:    "inventory",
			Status:        "completed",
			FailureReason: "insufficient_role",
		},
	}

	data, err := WriteCSV(rows)
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[0][0] != "occurred_at" || records[0][6] != "target_tenant_id" {
		t.Fatalf("unexpected header %v", records[0])
	}
	if records[1][6] != target.String() {
		t.Fatalf("expected target tenant in row, got %q", records[1][6])
	}
	if records[2][6] != "" {
		t.Fatalf("expected empty target tenant, got %q", records[2][6])
	}
	if records[2][8] != "false" {
		t.Fatalf("expected success false, got %q", records[2][8])
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	data, err := WriteCSV(nil)
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected header only, got %d records", len(records))
	}
}
