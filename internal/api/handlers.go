package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/clustermap/internal/apperr"
	"github.com/starford/clustermap/internal/models"
	"github.com/starford/clustermap/internal/resultservice"
)

const maxResultBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *resultservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *resultservice.Service) *Handler {
	return &Handler{svc: svc}
}

// SubmitResult handles POST /api/results.
//
//	@Summary		Submit a clustering snapshot
//	@Tags			results
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.ClusterResult	true	"Snapshot"
//	@Success		201		{object}	SubmitResultResponse
//	@Success		200		{object}	SubmitResultResponse	"Unchanged"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/results [post]
func (h *Handler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxResultBytes)
	var res models.ClusterResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON: "+err.Error()))
		return
	}

	snap, stored, err := h.svc.Submit(r.Context(), "api", &res)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidResult) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		} else {
			slog.Error("api: submit result failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	status := http.StatusOK
	if stored {
		status = http.StatusCreated
	}
	writeJSON(w, status, SubmitResultResponse{Seq: snap.Seq, Checksum: snap.Checksum, Stored: stored})
}

// CurrentResult handles GET /api/results/current.
//
//	@Summary		Get the current snapshot
//	@Tags			results
//	@Produce		json
//	@Success		200	{object}	models.Snapshot
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/results/current [get]
func (h *Handler) CurrentResult(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Current(r.Context())
	h.writeSnapshot(w, snap, err)
}

// GetResult handles GET /api/results/{seq}.
//
//	@Summary		Get a snapshot by sequence number
//	@Tags			results
//	@Produce		json
//	@Param			seq	path		int	true	"Sequence number"
//	@Success		200	{object}	models.Snapshot
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/results/{seq} [get]
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if err != nil || seq <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("seq must be a positive integer"))
		return
	}
	snap, err := h.svc.Get(r.Context(), seq)
	h.writeSnapshot(w, snap, err)
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, snap *models.Snapshot, err error) {
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("api: get snapshot failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListResults handles GET /api/results.
//
//	@Summary		List snapshot history
//	@Tags			results
//	@Produce		json
//	@Param			limit	query		int	false	"Max entries (default 20)"
//	@Success		200		{object}	ResultListResponse
//	@Security		BearerAuth
//	@Router			/results [get]
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.svc.History(r.Context(), limit)
	if err != nil {
		slog.Error("api: list results failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if items == nil {
		items = []models.Snapshot{}
	}
	writeJSON(w, http.StatusOK, ResultListResponse{Results: items})
}

// Tree handles GET /api/tree.
//
//	@Summary		Get the last published display tree
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	object
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, _ *http.Request) {
	root, err := h.svc.Tree()
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("no tree published yet"))
		return
	}
	writeJSON(w, http.StatusOK, root)
}

// Select handles POST /api/selection.
//
//	@Summary		Report a viewer selection
//	@Tags			tree
//	@Accept			json
//	@Param			body	body	SelectionRequest	true	"Selection"
//	@Success		202
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/selection [post]
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if len(req.Selection) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("selection is required"))
		return
	}
	h.svc.Select(req.Selection)
	w.WriteHeader(http.StatusAccepted)
}
