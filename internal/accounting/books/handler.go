package books

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/trialbalance/internal/accounting/export"
	"github.com/odyssey-erp/trialbalance/internal/accounting/shared"
	"github.com/odyssey-erp/trialbalance/internal/platform/httpx"
	"github.com/odyssey-erp/trialbalance/internal/platform/kv"
)

// ExportEnqueuer schedules asynchronous export rendering.
type ExportEnqueuer interface {
	EnqueueExport(ctx context.Context, view export.View) (string, error)
}

// Handler exposes the books over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer ExportEnqueuer
}

// NewHandler builds a Handler. enqueuer may be nil, which disables export jobs.
func NewHandler(logger *slog.Logger, service *Service, enqueuer ExportEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer}
}

// MountRoutes registers the books endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/trial-balance", func(r chi.Router) {
		r.Get("/", h.getTrialBalance)
		r.Post("/entries", h.postEntry)
		r.Patch("/entries/{id}", h.patchEntry)
		r.Delete("/entries/{id}", h.deleteEntry)
		r.Post("/reset", h.postReset)
	})
	r.Get("/ledger", h.getLedger)
	r.Get("/accounts", h.getAccounts)
	r.Route("/adjustments", func(r chi.Router) {
		r.Get("/", h.getAdjustments)
		r.Post("/", h.postAdjustment)
		r.Get("/adjusted", h.getAdjusted)
		r.Get("/comparison", h.getComparison)
		r.Get("/journal", h.getJournal)
		r.Post("/apply", h.postApply)
		r.Patch("/{id}", h.patchAdjustment)
		r.Delete("/{id}", h.deleteAdjustment)
	})
	r.Get("/exports/{view}", h.getExport)
	r.Get("/exports/{view}/stored", h.getStoredExport)
	r.Post("/exports/{view}/jobs", h.postExportJob)
}

func (h *Handler) getTrialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.service.TrialBalance(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	var in EntryInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", shared.ErrInvalidEntry, err))
		return
	}
	entry, err := h.service.AddEntry(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) patchEntry(w http.ResponseWriter, r *http.Request) {
	var patch EntryPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", shared.ErrInvalidEntry, err))
		return
	}
	entry, err := h.service.UpdateEntry(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) postReset(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ResetTrialBalance(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) getLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.service.Ledger(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) getAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.Accounts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) getAdjustments(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Adjustments(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var in AdjustmentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", shared.ErrInvalidEntry, err))
		return
	}
	adj, err := h.service.AddAdjustment(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) patchAdjustment(w http.ResponseWriter, r *http.Request) {
	var patch AdjustmentPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", shared.ErrInvalidEntry, err))
		return
	}
	adj, err := h.service.UpdateAdjustment(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) deleteAdjustment(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveAdjustment(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getAdjusted(w http.ResponseWriter, r *http.Request) {
	tb, err := h.service.AdjustedTrialBalance(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) getComparison(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Comparison(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Journal(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) postApply(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ApplyAdjustments(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	view, err := export.ParseView(chi.URLParam(r, "view"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), view, &buf); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Attachment(w, view.Filename(), "text/csv")
	_, _ = buf.WriteTo(w)
}

func (h *Handler) getStoredExport(w http.ResponseWriter, r *http.Request) {
	view, err := export.ParseView(chi.URLParam(r, "view"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payload, err := h.service.StoredExport(r.Context(), view)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if httpx.NotModified(w, r, httpx.ETag(payload)) {
		return
	}
	httpx.Attachment(w, view.Filename(), "text/csv")
	_, _ = w.Write(payload)
}

func (h *Handler) postExportJob(w http.ResponseWriter, r *http.Request) {
	view, err := export.ParseView(chi.URLParam(r, "view"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "export jobs are not configured")
		return
	}
	id, err := h.enqueuer.EnqueueExport(r.Context(), view)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": id, "view": string(view)})
}

// fail maps domain errors onto HTTP problems.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrEntryNotFound), errors.Is(err, shared.ErrAdjustmentNotFound), errors.Is(err, kv.ErrNotFound):
		err = fmt.Errorf("%w: %w", httpx.ErrNotFound, err)
	case errors.Is(err, shared.ErrInvalidEntry), errors.Is(err, shared.ErrUnknownView):
		err = fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	case errors.Is(err, shared.ErrUnbalancedAdjustments):
		err = fmt.Errorf("%w: %w", httpx.ErrUnprocessable, err)
	default:
		h.logger.Error("books request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
