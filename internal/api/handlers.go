/**
 * @description
 * This file contains the HTTP handlers for the banklink-service. Handlers parse
 * the request, call the engine and map domain errors onto HTTP status codes.
 *
 * @notes
 * - Verifications are always returned as their redacted view; micro-deposit
 *   amounts never leave the service.
 */

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/transfa/banklink-service/internal/app"
	"github.com/transfa/banklink-service/internal/bankcheck"
	"github.com/transfa/banklink-service/internal/domain"
	"github.com/transfa/banklink-service/internal/routing"
)

// Handlers holds the engine the handlers operate on.
type Handlers struct {
	engine *app.Engine
	logger *slog.Logger
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(engine *app.Engine, logger *slog.Logger) *Handlers {
	return &Handlers{engine: engine, logger: logger}
}

type validateBankAccountRequest struct {
	RoutingNumber string `json:"routing_number"`
	AccountNumber string `json:"account_number"`
}

type linkConnectionRequest struct {
	TenantID  string            `json:"tenant_id"`
	AccountID string            `json:"account_id"`
	Link      domain.LinkResult `json:"link"`
}

type setPermissionRequest struct {
	Granted   bool       `json:"granted"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type initiateVerificationRequest struct {
	Method domain.VerificationMethod `json:"method"`
}

type microDepositRequest struct {
	Amounts []int64 `json:"amounts"`
}

type reviewRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

type reverseRequest struct {
	Reason string `json:"reason"`
}

type resolveRouteRequest struct {
	OrganizationID string                 `json:"organization_id,omitempty"`
	Routes         []domain.PaymentRoute  `json:"routes,omitempty"`
	Context        routing.PaymentContext `json:"context"`
}

type resolveRouteResponse struct {
	AccountID string `json:"account_id,omitempty"`
	Matched   bool   `json:"matched"`
}

type setRouteActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

// ValidateBankAccountHandler checks a routing/account number pair.
func (h *Handlers) ValidateBankAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req validateBankAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeJSON(w, http.StatusOK, bankcheck.ValidateBankAccount(req.RoutingNumber, req.AccountNumber))
}

// LinkConnectionHandler registers a connection from a completed link session.
func (h *Handlers) LinkConnectionHandler(w http.ResponseWriter, r *http.Request) {
	var req linkConnectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	conn, err := h.engine.LinkConnection(r.Context(), req.TenantID, req.Link, req.AccountID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, conn)
}

// ListConnectionsHandler lists the connections of ?tenant_id=.
func (h *Handlers) ListConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" {
		h.writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	conns, err := h.engine.Registry.List(r.Context(), tenantID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conns)
}

// GetConnectionHandler returns one connection.
func (h *Handlers) GetConnectionHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.engine.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conn)
}

// UpdateConnectionHandler merges a partial update into a connection.
func (h *Handlers) UpdateConnectionHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ConnectionUpdate
	if !h.decode(w, r, &req) {
		return
	}
	conn, err := h.engine.Registry.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conn)
}

// RemoveConnectionHandler deletes a connection without in-flight transactions.
func (h *Handlers) RemoveConnectionHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Registry.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPermissionHandler grants or revokes one permission.
func (h *Handlers) SetPermissionHandler(w http.ResponseWriter, r *http.Request) {
	var req setPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	kind := domain.PermissionKind(chi.URLParam(r, "kind"))
	conn, err := h.engine.Registry.SetPermission(r.Context(), chi.URLParam(r, "id"), kind, req.Granted, req.ExpiresAt)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conn)
}

// InitiateVerificationHandler opens a verification for a connection.
func (h *Handlers) InitiateVerificationHandler(w http.ResponseWriter, r *http.Request) {
	var req initiateVerificationRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.engine.InitiateVerification(r.Context(), chi.URLParam(r, "id"), req.Method)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, v.View())
}

// LatestVerificationHandler returns the newest verification of a connection.
func (h *Handlers) LatestVerificationHandler(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.Verification.Latest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v.View())
}

// ListConnectionTransactionsHandler lists a connection's transactions.
func (h *Handlers) ListConnectionTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.engine.Registry.Get(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	txs, err := h.engine.Processor.ListByConnection(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// GetVerificationHandler returns the redacted view of a verification.
func (h *Handlers) GetVerificationHandler(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.Verification.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v.View())
}

// SubmitMicroDepositsHandler checks a micro-deposit guess.
func (h *Handlers) SubmitMicroDepositsHandler(w http.ResponseWriter, r *http.Request) {
	var req microDepositRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.SubmitMicroDepositAmounts(r.Context(), chi.URLParam(r, "id"), req.Amounts)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ReviewVerificationHandler records a manual review decision.
func (h *Handlers) ReviewVerificationHandler(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.engine.Verification.CompleteManual(r.Context(), chi.URLParam(r, "id"), req.Approved, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v.View())
}

// SubmitTransactionHandler starts an ACH transaction.
func (h *Handlers) SubmitTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.SubmitTransaction(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

// GetTransactionHandler returns one transaction.
func (h *Handlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	tx, err := h.engine.Processor.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// CancelTransactionHandler cancels a pending transaction.
func (h *Handlers) CancelTransactionHandler(w http.ResponseWriter, r *http.Request) {
	tx, err := h.engine.Processor.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// ReverseTransactionHandler reverses a completed transaction.
func (h *Handlers) ReverseTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	tx, err := h.engine.Processor.Reverse(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// ResolveRouteHandler resolves either an explicit route set or an organization's
// stored routes with its primary account as fallback.
func (h *Handlers) ResolveRouteHandler(w http.ResponseWriter, r *http.Request) {
	var req resolveRouteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if orgID := strings.TrimSpace(req.OrganizationID); orgID != "" {
		accountID, err := h.engine.Ledger.ResolvePaymentAccount(r.Context(), orgID, req.Context)
		if errors.Is(err, domain.ErrBusinessAccountNotFound) {
			h.writeJSON(w, http.StatusOK, resolveRouteResponse{})
			return
		}
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, resolveRouteResponse{AccountID: accountID, Matched: true})
		return
	}
	accountID, ok := h.engine.ResolveRoute(req.Routes, req.Context)
	h.writeJSON(w, http.StatusOK, resolveRouteResponse{AccountID: accountID, Matched: ok})
}

// GetRouteHandler returns one payment route.
func (h *Handlers) GetRouteHandler(w http.ResponseWriter, r *http.Request) {
	route, err := h.engine.Ledger.GetRoute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, route)
}

// SetRouteActiveHandler toggles a payment route.
func (h *Handlers) SetRouteActiveHandler(w http.ResponseWriter, r *http.Request) {
	var req setRouteActiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		h.writeError(w, http.StatusBadRequest, "is_active is required")
		return
	}
	route, err := h.engine.Ledger.SetRouteActive(r.Context(), chi.URLParam(r, "id"), *req.IsActive)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, route)
}

// DeleteRouteHandler deletes a payment route.
func (h *Handlers) DeleteRouteHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ledger.DeleteRoute(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateBusinessAccountHandler registers a business account for the organization.
func (h *Handlers) CreateBusinessAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req app.BusinessAccountInput
	if !h.decode(w, r, &req) {
		return
	}
	req.OrganizationID = chi.URLParam(r, "orgID")
	account, err := h.engine.Ledger.CreateAccount(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// ListBusinessAccountsHandler lists an organization's accounts; ?receivable=true
// keeps only accounts that can receive payments.
func (h *Handlers) ListBusinessAccountsHandler(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	var (
		accounts []domain.BusinessBankAccount
		err      error
	)
	if r.URL.Query().Get("receivable") == "true" {
		accounts, err = h.engine.Ledger.ListReceivable(r.Context(), orgID)
	} else {
		accounts, err = h.engine.Ledger.ListAccounts(r.Context(), orgID)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// CreateRouteHandler stores a payment route for the organization.
func (h *Handlers) CreateRouteHandler(w http.ResponseWriter, r *http.Request) {
	var req app.RouteInput
	if !h.decode(w, r, &req) {
		return
	}
	req.OrganizationID = chi.URLParam(r, "orgID")
	route, err := h.engine.Ledger.CreateRoute(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, route)
}

// ListRoutesHandler lists an organization's routes in priority order.
func (h *Handlers) ListRoutesHandler(w http.ResponseWriter, r *http.Request) {
	routes, err := h.engine.Ledger.ListRoutes(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, routes)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLimitExceeded), errors.Is(err, domain.ErrDomain):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "component", "api", "method", r.Method, "path", r.URL.Path, "error", err)
		h.writeError(w, status, "Internal server error")
		return
	}
	h.writeError(w, status, err.Error())
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
