package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pharmos-erp/pharmos-erp/internal/access"
	"github.com/pharmos-erp/pharmos-erp/internal/audit"
)

type stubService struct {
	result      audit.Result
	lastFilters audit.TimelineFilters
}

func (s *stubService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.result.Rows, nil
}

type stubAuthorizer struct {
	decision access.Decision
}

func (s *stubAuthorizer) Authorize(ctx context.Context, p *access.Principal, entityKind string, op access.Operation, target *access.Envelope) (access.Decision, error) {
	return s.decision, nil
}

type stubBypassAudit struct {
	beginCalls    int
	completeCalls int
	final         audit.Status
}

func (s *stubBypassAudit) Begin(ctx context.Context, e audit.Entry) (uuid.UUID, error) {
	s.beginCalls++
	return uuid.New(), nil
}

func (s *stubBypassAudit) Complete(ctx context.Context, id uuid.UUID, final audit.Status) error {
	s.completeCalls++
	s.final = final
	return nil
}

var (
	homeTenant  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	otherTenant = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func allow() *stubAuthorizer {
	return &stubAuthorizer{decision: access.Decision{Effect: access.EffectAllow}}
}

func doRequest(h *Handler, p *access.Principal, url string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if p != nil {
		req = req.WithContext(access.ContextWithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	h.Timeline(rec, req)
	return rec
}

func TestTimelineRequiresPrincipal(t *testing.T) {
	h := NewHandler(nil, &stubService{}, allow(), nil)
	rec := doRequest(h, nil, "/api/audit", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTimelineDenyLooksLikeMissing(t *testing.T) {
	authz := &stubAuthorizer{decision: access.Decision{Effect: access.EffectDeny, Reason: access.ReasonInsufficientRole}}
	h := NewHandler(nil, &stubService{}, authz, nil)
	p := &access.Principal{TenantID: homeTenant, UserID: uuid.New(), Role: access.RoleCashier}
	rec := doRequest(h, p, "/api/audit", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTimelineScopesToPrincipalTenant(t *testing.T) {
	svc := &stubService{result: audit.Result{
		Rows:   []audit.TimelineRow{{At: time.Now(), ActorUserID: uuid.New(), Action: "create", EntityType: "sales"}},
		Paging: audit.PagingInfo{Page: 1, PageSize: 20},
	}}
	h := NewHandler(nil, svc, allow(), nil)
	p := &access.Principal{TenantID: homeTenant, UserID: uuid.New(), Role: access.RoleAdmin}

	rec := doRequest(h, p, "/api/audit?page=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, homeTenant, svc.lastFilters.TenantID)

	var body struct {
		Rows []rowResponse `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
}

func TestTimelineRejectsBadWindow(t *testing.T) {
	h := NewHandler(nil, &stubService{}, allow(), nil)
	p := &access.Principal{TenantID: homeTenant, UserID: uuid.New(), Role: access.RoleAdmin}

	rec := doRequest(h, p, "/api/audit?from=2026-06-01T00:00:00Z&to=2026-01-01T00:00:00Z", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimelineCrossTenantNeedsGate(t *testing.T) {
	h := NewHandler(nil, &stubService{}, allow(), nil)
	p := &access.Principal{TenantID: homeTenant, UserID: uuid.New(), Role: access.RoleSuperAdmin}

	rec := doRequest(h, p, "/api/audit?tenant_id="+otherTenant.String(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTimelineCrossTenantWithoutJustification(t *testing.T) {
	audits := &stubBypassAudit{}
	h := NewHandler(nil, &stubService{}, allow(), access.NewGate(audits, nil))
	p := &access.Principal{TenantID: homeTenant, UserID: uuid.New(), Role: access.RoleSuperAdmin}

	rec := doRequest(h, p, "/api/audit?tenant_id="+otherTenant.String(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Zero(t, audits.beginCalls)
}

func TestTimelineCrossTenantBypass(t *testing.T) {
	audits := &stubBypassAudit{}
	svc := &stubService{}
	h := NewHandler(nil, svc, allow(), access.NewGate(audits, nil))
	p := &access.Principal{TenantID: homeTenant, UserID: uuid.New(), Role: access.RoleSuperAdmin}

	rec := doRequest(h, p, "/api/audit?tenant_id="+otherTenant.String(), map[string]string{
		justificationHeader: "support ticket 1142",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, otherTenant, svc.lastFilters.TenantID)
	require.Equal(t, 1, audits.beginCalls)
	require.Equal(t, 1, audits.completeCalls)
	require.Equal(t, audit.StatusCompleted, audits.final)
}

func TestTimelineCrossTenantDeniedForAdmin(t *testing.T) {
	audits := &stubBypassAudit{}
	h := NewHandler(nil, &stubService{}, allow(), access.NewGate(audits, nil))
	p := &access.Principal{TenantID: homeTenant, UserID: uuid.New(), Role: access.RoleAdmin}

	rec := doRequest(h, p, "/api/audit?tenant_id="+otherTenant.String(), map[string]string{
		justificationHeader: "curiosity",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Zero(t, audits.beginCalls)
}

func TestExportCSVHeaders(t *testing.T) {
	svc := &stubService{result: audit.Result{Rows: []audit.TimelineRow{
		{At: time.Now(), ActorUserID: uuid.New(), ActorRole: "admin", Action: "update", EntityType: "inventory", EntityID: "7", Status: "completed", Success: true},
	}}}
	h := NewHandler(nil, svc, allow(), nil)
	p := &access.Principal{TenantID: homeTenant, UserID: uuid.New(), Role: access.RoleAdmin}

	req := httptest.NewRequest(http.MethodGet, "/api/audit/export.csv", nil)
	req = req.WithContext(access.ContextWithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	h.ExportCSV(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	require.Contains(t, rec.Body.String(), "occurred_at")
}
