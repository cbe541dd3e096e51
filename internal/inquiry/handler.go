package inquiry

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/sourcing/internal/compare"
	"github.com/odyssey-erp/sourcing/internal/platform/httpx"
	"github.com/odyssey-erp/sourcing/internal/refchain"
)

// Handler wires the reconciliation and comparison endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inquiry routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/inquiries", h.handleListInquiries)
	r.Get("/inquiries/{id}/reconciliation", h.handleReconcile)
	r.Post("/inquiries/{id}/comparison", h.handleStartComparison)
	r.Post("/inquiries/{id}/orders", h.handleBuildOrders)
	r.Get("/comparison/{sessionID}", h.handleGetComparison)
	r.Post("/comparison/{sessionID}/edits", h.handleApplyEdit)
	r.Get("/comparison/{sessionID}/summary", h.handleSummaries)
	r.Post("/reference-changes", h.handleRecordReferenceChange)
}

func (h *Handler) handleListInquiries(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	items, pagination, err := h.service.ListInquiries(r.Context(), page, perPage)
	if err != nil {
		h.respondError(w, r, "list inquiries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toListInquiriesResponse(items, pagination))
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	inquiryID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := h.service.Reconcile(r.Context(), inquiryID)
	if err != nil {
		h.respondError(w, r, "reconcile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReconcileResponse(out))
}

func (h *Handler) handleStartComparison(w http.ResponseWriter, r *http.Request) {
	inquiryID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	sessionID, results, err := h.service.StartComparison(r.Context(), inquiryID)
	if err != nil {
		h.respondError(w, r, "start comparison", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toComparisonResponse(sessionID, results))
}

func (h *Handler) handleGetComparison(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	results, err := h.service.Compare(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, r, "get comparison", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toComparisonResponse(sessionID, results))
}

func (h *Handler) handleApplyEdit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req editRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	// Quantity edits carry no group; only parse what arrived.
	var group compare.GroupKey
	if req.Group != "" {
		parsed, err := compare.ParseGroupKey(req.Group)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		group = parsed
	}
	edit := compare.Edit{
		Kind:   compare.EditKind(req.Kind),
		ItemID: req.ItemID,
		Group:  group,
		Price:  req.Price,
		Qty:    req.Qty,
	}
	if req.Active != nil {
		edit.Active = *req.Active
	}
	results, err := h.service.ApplyEdit(r.Context(), sessionID, edit)
	if err != nil {
		h.respondError(w, r, "apply edit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toComparisonResponse(sessionID, results))
}

func (h *Handler) handleSummaries(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	summaries, err := h.service.Summaries(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, r, "session summary", err)
		return
	}
	dtos := make([]groupSummaryDTO, 0, len(summaries))
	for group, sum := range summaries {
		dtos = append(dtos, groupSummaryDTO{
			Group:        group.String(),
			TotalItems:   sum.TotalItems,
			WinningItems: sum.WinningItems,
			TotalValue:   sum.TotalValue,
		})
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Group < dtos[j].Group })
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": dtos})
}

func (h *Handler) handleBuildOrders(w http.ResponseWriter, r *http.Request) {
	inquiryID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req buildOrdersRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	selected := make([]compare.GroupKey, 0, len(req.Groups))
	for _, raw := range req.Groups {
		group, err := compare.ParseGroupKey(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		selected = append(selected, group)
	}
	cands, err := h.service.BuildOrders(r.Context(), inquiryID, req.SessionID, selected, actorID(r))
	if err != nil {
		h.respondError(w, r, "build orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBuildOrdersResponse(cands))
}

func (h *Handler) handleRecordReferenceChange(w http.ResponseWriter, r *http.Request) {
	var req referenceChangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	changeDate, err := req.parseDate()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "change_date must be YYYY-MM-DD")
		return
	}
	ev := refchain.ReferenceChangeEvent{
		OriginalItemID: req.OriginalItemID,
		NewReferenceID: req.NewReferenceID,
		ChangeDate:     changeDate,
		Source:         refchain.Source(req.Source),
		SupplierID:     req.SupplierID,
		Notes:          req.Notes,
	}
	if err := h.service.RecordReferenceChange(r.Context(), ev); err != nil {
		h.respondError(w, r, "record reference change", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid inquiry id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, compare.ErrSessionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrSelfReference), errors.Is(err, compare.ErrBadGroupKey):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateEvent):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// actorID reads the acting user from the gateway header. Authentication is
// handled upstream; zero means unattributed.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}
