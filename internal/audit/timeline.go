package audit

import (
	"time"

	"github.com/google/uuid"
)

// TimelineFilters narrows a per-tenant audit query. The HTTP layer pins
// TenantID to the caller's tenant; pointing it at another tenant is
// possible only inside a scoped super-admin bypass.
type TimelineFilters struct {
	TenantID   uuid.UUID
	From       time.Time
	To         time.Time
	Actor      string
	EntityType string
	Action     string
	Page       int
	PageSize   int
}

// TimelineRow is one row of the compliance timeline.
type TimelineRow struct {
	At             time.Time
	ActorUserID    uuid.UUID
	ActorRole      string
	Action         string
	EntityType     string
	EntityID       string
	TargetTenantID *uuid.UUID
	Status         string
	Success        bool
	FailureReason  string
}

// PagingInfo holds simple pagination metadata.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}
