package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	licenseservice "geekship/internal/license/service"
	"geekship/internal/platform/middleware"
	"geekship/internal/transport/http/shared"
	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
)

type Handler struct {
	licenses *licenseservice.Service
	logger   *slog.Logger
}

func New(licenses *licenseservice.Service, logger *slog.Logger) *Handler {
	return &Handler{licenses: licenses, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/licenses/mint", h.handleMint)
	r.Post("/licenses/{id}/burn", h.handleBurn)
	r.Get("/licenses", h.handleList)
	r.Put("/licenses/mint-window", h.handleEditMintWindow)
}

type mintRequest struct {
	Name          string `json:"name"`
	LicenseNumber string `json:"license_number"`
	IPFSImageHash string `json:"ipfs_image_hash"`
	Amount        uint64 `json:"amount"`
}

type licenseResponse struct {
	TokenID       uint64 `json:"token_id"`
	OwnerUID      string `json:"owner_uid"`
	Name          string `json:"name"`
	LicenseNumber string `json:"license_number"`
	IPFSImageHash string `json:"ipfs_image_hash"`
	Burned        bool   `json:"burned"`
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	token, err := h.licenses.PublicMint(r.Context(), middleware.Caller(r.Context()),
		req.Name, req.LicenseNumber, req.IPFSImageHash, req.Amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "mint failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, licenseResponse{
		TokenID:       uint64(token.TokenID),
		OwnerUID:      token.OwnerUID.String(),
		Name:          token.Name,
		LicenseNumber: token.LicenseNumber,
		IPFSImageHash: token.IPFSImageHash,
	})
}

func (h *Handler) handleBurn(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, domerrors.Wrap(err, domerrors.CodeInvalidInput, "malformed token id"))
		return
	}
	if err := h.licenses.Burn(r.Context(), middleware.Caller(r.Context()), domain.TokenID(id)); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.licenses.ListByOwner(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]licenseResponse, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, licenseResponse{
			TokenID:       uint64(token.TokenID),
			OwnerUID:      token.OwnerUID.String(),
			Name:          token.Name,
			LicenseNumber: token.LicenseNumber,
			IPFSImageHash: token.IPFSImageHash,
			Burned:        token.Burned,
		})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

type mintWindowRequest struct {
	Open bool `json:"open"`
}

func (h *Handler) handleEditMintWindow(w http.ResponseWriter, r *http.Request) {
	var req mintWindowRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.licenses.EditMintWindow(r.Context(), middleware.Caller(r.Context()), req.Open); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
