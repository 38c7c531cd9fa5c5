package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fixora/condoguard/application/port/inbound"
	"github.com/fixora/condoguard/domain/entity"
	domainerror "github.com/fixora/condoguard/domain/error"
	"github.com/fixora/condoguard/infrastructure/http/response"
)

// AuditHandler serves the read side of the audit trail to administrators.
type AuditHandler struct {
	query inbound.AuditQuery
}

func NewAuditHandler(query inbound.AuditQuery) *AuditHandler {
	return &AuditHandler{query: query}
}

type AuditLogPage struct {
	Entries []*entity.AuditLogEntry `json:"entries"`
	Count   int                     `json:"count"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// ListAuditLogs handles GET /v1/admin/audit-logs.
func (h *AuditHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) error {
	filter, err := ParseAuditFilter(r.URL.Query())
	if err != nil {
		return err
	}
	filter = filter.Normalize()

	entries, err := h.query.GetAuditLogs(r.Context(), filter)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []*entity.AuditLogEntry{}
	}

	response.Success(w, http.StatusOK, "Audit logs retrieved", AuditLogPage{
		Entries: entries,
		Count:   len(entries),
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
	return nil
}

// GetAuditLogStats handles GET /v1/admin/audit-logs/stats.
func (h *AuditHandler) GetAuditLogStats(w http.ResponseWriter, r *http.Request) error {
	filter, err := ParseAuditFilter(r.URL.Query())
	if err != nil {
		return err
	}

	stats, err := h.query.GetAuditLogStats(r.Context(), filter)
	if err != nil {
		return err
	}
	response.Success(w, http.StatusOK, "Audit log statistics retrieved", stats)
	return nil
}

// GetSecurityInsights handles GET /v1/admin/security/insights?range=24h.
func (h *AuditHandler) GetSecurityInsights(w http.ResponseWriter, r *http.Request) error {
	tr, err := entity.ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		return domainerror.ErrInvalidQueryFilter("range")
	}

	insights, err := h.query.GetSecurityInsights(r.Context(), tr)
	if err != nil {
		return err
	}
	response.Success(w, http.StatusOK, "Security insights retrieved", insights)
	return nil
}

// ParseAuditFilter reads filter criteria from query parameters. Dates are
// RFC 3339; limit and offset must be non-negative integers.
func ParseAuditFilter(q url.Values) (entity.AuditLogFilter, error) {
	var f entity.AuditLogFilter

	if v := q.Get("type"); v != "" {
		f.Type = entity.AuditType(v)
		if !f.Type.Valid() {
			return f, domainerror.ErrInvalidQueryFilter("type")
		}
	}
	if v := q.Get("severity"); v != "" {
		f.Severity = entity.Severity(v)
		if !f.Severity.Valid() {
			return f, domainerror.ErrInvalidQueryFilter("severity")
		}
	}
	f.Action = q.Get("action")
	f.UserID = q.Get("userId")
	f.EntityType = q.Get("entityType")

	var err error
	if f.StartDate, err = parseDate(q, "startDate"); err != nil {
		return f, err
	}
	if f.EndDate, err = parseDate(q, "endDate"); err != nil {
		return f, err
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, domainerror.ErrInvalidQueryFilter("endDate")
	}

	if f.Limit, err = parseNonNegative(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseNonNegative(q, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func parseDate(q url.Values, field string) (*time.Time, error) {
	v := q.Get(field)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, domainerror.ErrInvalidQueryFilter(field)
	}
	return &t, nil
}

func parseNonNegative(q url.Values, field string) (int, error) {
	v := q.Get(field)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, domainerror.ErrInvalidQueryFilter(field)
	}
	return n, nil
}
