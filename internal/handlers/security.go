package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/authcore/internal/auth"
	"github.com/BradenHooton/authcore/internal/models"
	pkghttp "github.com/BradenHooton/authcore/pkg/http"
	"github.com/go-chi/chi/v5"
)

// DeviceLister reads and forgets a user's devices
type DeviceLister interface {
	ListForUser(ctx context.Context, userID string) ([]*models.Device, error)
	Remove(ctx context.Context, userID, deviceID string) error
}

// EventLister reads the auth event log
type EventLister interface {
	ListRecent(ctx context.Context, limit, offset int) ([]*models.AuthEvent, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuthEvent, error)
	ListFailures(ctx context.Context, limit, offset int) ([]*models.AuthEvent, error)
	Count(ctx context.Context) (int64, error)
	CountFailures(ctx context.Context) (int64, error)
}

// AlertLister reads security alerts
type AlertLister interface {
	ListRecent(ctx context.Context, limit, offset int, unresolvedOnly bool) ([]*models.SecurityAlert, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error)
}

// SecurityHandler serves the self-service and admin security dashboards
type SecurityHandler struct {
	devices DeviceLister
	events  EventLister
	alerts  AlertLister
	logger  *slog.Logger
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(devices DeviceLister, events EventLister, alerts AlertLister, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{
		devices: devices,
		events:  events,
		alerts:  alerts,
		logger:  logger,
	}
}

// EventListResponse is a page of auth events
type EventListResponse struct {
	Events []*models.AuthEvent `json:"events"`
	Total  *int64              `json:"total,omitempty"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// AlertListResponse is a page of security alerts
type AlertListResponse struct {
	Alerts []*models.SecurityAlert `json:"alerts"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// DeviceListResponse lists a user's known devices
type DeviceListResponse struct {
	Devices []*models.Device `json:"devices"`
}

// MyDevices lists the caller's devices, most recently used first
// @Router /me/devices [get]
func (h *SecurityHandler) MyDevices(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	h.writeDevices(w, r, identity.ID)
}

// RemoveMyDevice forgets one of the caller's devices
// @Router /me/devices/{deviceID} [delete]
func (h *SecurityHandler) RemoveMyDevice(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	deviceID := chi.URLParam(r, "deviceID")
	if deviceID == "" {
		pkghttp.WriteBadRequest(w, "device id is required")
		return
	}

	if err := h.devices.Remove(r.Context(), identity.ID, deviceID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MyEvents lists the caller's own auth events
// @Router /me/events [get]
func (h *SecurityHandler) MyEvents(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	page, err := parsePageQuery(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	events, err := h.events.ListForUser(r.Context(), identity.ID, page.Limit, page.Offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, EventListResponse{Events: events, Limit: page.Limit, Offset: page.Offset})
}

// MyAlerts lists alerts raised for the caller's account
// @Router /me/alerts [get]
func (h *SecurityHandler) MyAlerts(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	page, err := parsePageQuery(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	alerts, err := h.alerts.ListForUser(r.Context(), identity.ID, page.Limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AlertListResponse{Alerts: alerts, Limit: page.Limit})
}

// ListEvents lists recent auth events; ?failures=true narrows to failed attempts (admin only)
// @Router /admin/security/events [get]
func (h *SecurityHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageQuery(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var (
		events []*models.AuthEvent
		total  int64
	)
	if r.URL.Query().Get("failures") == "true" {
		events, err = h.events.ListFailures(r.Context(), page.Limit, page.Offset)
		if err == nil {
			total, err = h.events.CountFailures(r.Context())
		}
	} else {
		events, err = h.events.ListRecent(r.Context(), page.Limit, page.Offset)
		if err == nil {
			total, err = h.events.Count(r.Context())
		}
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, EventListResponse{Events: events, Total: &total, Limit: page.Limit, Offset: page.Offset})
}

// ListAlerts lists security alerts; ?unresolved=true hides resolved ones (admin only)
// @Router /admin/security/alerts [get]
func (h *SecurityHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageQuery(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	unresolvedOnly := r.URL.Query().Get("unresolved") == "true"
	alerts, err := h.alerts.ListRecent(r.Context(), page.Limit, page.Offset, unresolvedOnly)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AlertListResponse{Alerts: alerts, Limit: page.Limit, Offset: page.Offset})
}

// UserDevices lists another user's devices (admin only)
// @Router /admin/users/{id}/devices [get]
func (h *SecurityHandler) UserDevices(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "user id is required")
		return
	}

	h.writeDevices(w, r, userID)
}

func (h *SecurityHandler) writeDevices(w http.ResponseWriter, r *http.Request, userID string) {
	devices, err := h.devices.ListForUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, DeviceListResponse{Devices: devices})
}
