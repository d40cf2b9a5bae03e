// internal/app/features/auditlog/list.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/dalemusser/spendhub/internal/app/features/errors"
	"github.com/dalemusser/spendhub/internal/app/policy/grouppolicy"
	"github.com/dalemusser/spendhub/internal/app/store/audit"
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/dalemusser/spendhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const pageSize = 50

// ServeGroupLog handles GET /audit/groups/{id}: the group's membership
// history, newest first. Only OWNER and ADMIN members may read it.
//
// Query parameters: event_type, start_date and end_date (YYYY-MM-DD), page.
func (h *Handler) ServeGroupLog(w http.ResponseWriter, r *http.Request) {
	groupID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		h.Resp.BadRequest(w, "invalid group id")
		return
	}

	q := r.URL.Query()
	eventType := strings.TrimSpace(q.Get("event_type"))
	startDate := strings.TrimSpace(q.Get("start_date"))
	endDate := strings.TrimSpace(q.Get("end_date"))

	page := 1
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}

	filter := audit.QueryFilter{
		GroupID:   &groupID,
		EventType: eventType,
		Limit:     pageSize,
		Offset:    int64((page - 1) * pageSize),
	}
	if startDate != "" {
		t, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			h.Resp.BadRequest(w, "start_date must be YYYY-MM-DD")
			return
		}
		filter.StartTime = &t
	}
	if endDate != "" {
		t, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			h.Resp.BadRequest(w, "end_date must be YYYY-MM-DD")
			return
		}
		// End of day
		endOfDay := t.Add(24*time.Hour - time.Second)
		filter.EndTime = &endOfDay
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "group audit log")
	defer cancel()

	if _, err := h.Auth.Authorize(ctx, auth.ActorOrAnonymous(r), groupID, grouppolicy.CanViewAuditLog); err != nil {
		h.Resp.Error(w, r, err)
		return
	}

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	total, err := h.Events.CountByFilter(ctx, filter)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}

	names := h.resolveNames(ctx, events)
	items := make([]listItem, 0, len(events))
	for _, e := range events {
		item := listItem{
			ID:        e.ID.Hex(),
			Timestamp: e.Timestamp,
			Category:  e.Category,
			EventType: e.EventType,
			Success:   e.Success,
			Details:   e.Details,
		}
		if e.ActorID != nil {
			item.ActorID = e.ActorID.Hex()
			item.ActorName = names[*e.ActorID]
		}
		if e.UserID != nil {
			item.UserID = e.UserID.Hex()
			item.TargetName = names[*e.UserID]
		}
		items = append(items, item)
	}

	totalPages := int((total + pageSize - 1) / pageSize)
	apierrors.JSON(w, http.StatusOK, listData{
		Items:      items,
		EventType:  eventType,
		StartDate:  startDate,
		EndDate:    endDate,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	})
}

// resolveNames looks up each distinct actor and target once. Unknown users
// are left out; the id is still in the item.
func (h *Handler) resolveNames(ctx context.Context, events []audit.Event) map[primitive.ObjectID]string {
	names := make(map[primitive.ObjectID]string)
	lookup := func(id *primitive.ObjectID) {
		if id == nil {
			return
		}
		if _, done := names[*id]; done {
			return
		}
		u, err := h.Users.GetByID(ctx, *id)
		if err != nil {
			h.Log.Debug("audit log: user lookup failed", zap.String("user_id", id.Hex()), zap.Error(err))
			names[*id] = ""
			return
		}
		names[*id] = u.FullName
	}
	for _, e := range events {
		lookup(e.ActorID)
		lookup(e.UserID)
	}
	return names
}
