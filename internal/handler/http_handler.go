package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/doctype"
	"github.com/halcyon-erp/be-approvals/internal/repository"
	"github.com/halcyon-erp/be-approvals/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	approvals     *service.ApprovalService
	notifications *repository.NotificationRepository
	log           zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(approvals *service.ApprovalService, notifications *repository.NotificationRepository, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		approvals:     approvals,
		notifications: notifications,
		log:           log,
	}
}

// StartApproval handles requests to put a submitted document under approval.
func (h *HTTPHandler) StartApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		CompanyID     string  `json:"company_id"`
		DocumentID    string  `json:"document_id"`
		DocumentType  string  `json:"document_type"`
		DocumentRoute *string `json:"document_route,omitempty"`
		Amount        *int64  `json:"amount,omitempty"`
		WorkflowID    *string `json:"workflow_id,omitempty"`
		TargetUserID  *int64  `json:"target_user_id,omitempty"`
		SubmittedBy   int64   `json:"submitted_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	t, err := doctype.Normalize(req.DocumentType)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.approvals.Start(r.Context(), &service.StartRequest{
		CompanyID:     req.CompanyID,
		DocumentID:    req.DocumentID,
		DocumentType:  t,
		DocumentRoute: req.DocumentRoute,
		Amount:        req.Amount,
		WorkflowID:    req.WorkflowID,
		TargetUserID:  req.TargetUserID,
		SubmittedBy:   req.SubmittedBy,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// Act handles approver decisions against a pending instance.
func (h *HTTPHandler) Act(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		InstanceID   string  `json:"instance_id"`
		ActorUserID  int64   `json:"actor_user_id"`
		Action       string  `json:"action"`
		Comments     *string `json:"comments,omitempty"`
		TargetUserID *int64  `json:"target_user_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.InstanceID == "" {
		http.Error(w, "Instance ID is required", http.StatusBadRequest)
		return
	}

	result, err := h.approvals.Act(r.Context(), &service.ActRequest{
		InstanceID:   req.InstanceID,
		ActorUserID:  req.ActorUserID,
		Action:       req.Action,
		Comments:     req.Comments,
		TargetUserID: req.TargetUserID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// ListPending handles approval inbox requests.
func (h *HTTPHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		http.Error(w, "Company ID is required", http.StatusBadRequest)
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	items, err := h.approvals.PendingForUser(r.Context(), companyID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": items,
		"total":   len(items),
	})
}

// GetInstance handles instance detail requests.
func (h *HTTPHandler) GetInstance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	instanceID := r.URL.Query().Get("id")
	if instanceID == "" {
		http.Error(w, "Instance ID is required", http.StatusBadRequest)
		return
	}

	detail, err := h.approvals.GetInstanceDetail(r.Context(), instanceID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, detail)
}

// ListNotifications handles notification inbox requests.
func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		http.Error(w, "Company ID is required", http.StatusBadRequest)
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	items, err := h.notifications.ListForUser(r.Context(), companyID, userID, unreadOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": items,
		"total":         len(items),
	})
}

// MarkNotificationRead handles notification read receipts.
func (h *HTTPHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID     string `json:"id"`
		UserID int64  `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "Notification ID is required", http.StatusBadRequest)
		return
	}

	if err := h.notifications.MarkRead(r.Context(), req.ID, req.UserID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// Health handles liveness probes.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": apperr.MessageOf(err),
		"code":  string(code),
	})
}
