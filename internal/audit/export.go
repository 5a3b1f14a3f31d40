package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// WriteCSV renders timeline rows as a compliance export. Column order is
// stable; downstream tooling parses it.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{
		"occurred_at", "actor_user_id", "actor_role", "action",
		"entity_type", "entity_id", "target_tenant_id", "status",
		"success", "failure_reason",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, row := range rows {
		target := ""
		if row.TargetTenantID != nil {
			target = row.TargetTenantID.String()
		}
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.ActorUserID.String(),
			row.ActorRole,
			row.Action,
			row.EntityType,
			row.EntityID,
			target,
			row.Status,
			strconv.FormatBool(row.Success),
			row.FailureReason,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
