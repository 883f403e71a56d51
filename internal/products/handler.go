package products

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tracechain/tracechain/internal/guard"
	"github.com/tracechain/tracechain/internal/platform/httpx"
	"github.com/tracechain/tracechain/internal/rbac"
)

// Handler serves product endpoints behind guard chains.
type Handler struct {
	logger    *slog.Logger
	repo      Repository
	validator *validator.Validate
	verbose   bool
}

// NewHandler constructs a Handler. verbose exposes internal error messages
// and must be off in production.
func NewHandler(logger *slog.Logger, repo Repository, verbose bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, repo: repo, validator: validator.New(), verbose: verbose}
}

// OwnerResolver resolves the owner of the product addressed by the {id}
// route parameter. Unknown products resolve to no owner so that non-admins
// are denied without learning whether the product exists.
func (h *Handler) OwnerResolver() guard.OwnerResolver {
	return func(ctx context.Context, req *guard.Request) (string, error) {
		owner, err := h.repo.OwnerOf(ctx, req.Param("id"))
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return owner, err
	}
}

// MountRoutes registers product routes. base carries the chain options
// (recorder, logger); auditor records mutating operations.
func (h *Handler) MountRoutes(r chi.Router, base *guard.Chain, auditor *guard.Auditor) {
	read := base.With(
		guard.AuthPresence(),
		guard.RequireResourcePermission(rbac.ResourceProduct, rbac.PermRead),
		guard.RoleRateLimit(),
	)
	update := base.With(
		guard.AuthPresence(),
		guard.RequireResourcePermission(rbac.ResourceProduct, rbac.PermWrite),
		guard.Ownership(h.OwnerResolver(), h.logger),
		auditor.Stage("update", rbac.ResourceProduct),
	)
	remove := base.With(
		guard.AuthPresence(),
		guard.RequireResourcePermission(rbac.ResourceProduct, rbac.PermDelete),
		guard.Ownership(h.OwnerResolver(), h.logger),
		guard.RequireMFA(),
		auditor.Stage("delete", rbac.ResourceProduct),
	)
	r.With(read.Middleware).Get("/products/{id}", h.handleGet)
	r.With(update.Middleware).Patch("/products/{id}", h.handleUpdate)
	r.With(remove.Middleware).Delete("/products/{id}", h.handleDelete)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	product, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch Patch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if patch.Empty() {
		httpx.Error(w, r, http.StatusBadRequest, "No fields to update")
		return
	}
	if err := h.validator.Struct(patch); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "Invalid product fields")
		return
	}
	product, err := h.repo.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.respondError(w, r, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Error(w, r, http.StatusNotFound, "Product not found")
		return
	}
	h.logger.Error(op, slog.Any("error", err), slog.String("product_id", chi.URLParam(r, "id")))
	httpx.RespondError(w, r, err, h.verbose)
}
