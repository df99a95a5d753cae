package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"geekship/internal/dispute/models"
	disputeservice "geekship/internal/dispute/service"
	"geekship/internal/platform/middleware"
	"geekship/internal/transport/http/shared"
	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
)

// Handler exposes the juror-facing dispute surface. Disputes are opened by
// the engine, never over HTTP.
type Handler struct {
	disputes *disputeservice.Service
	logger   *slog.Logger
}

func New(disputes *disputeservice.Service, logger *slog.Logger) *Handler {
	return &Handler{disputes: disputes, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/disputes", h.handleListOpen)
	r.Get("/disputes/{id}", h.handleGet)
	r.Post("/disputes/{id}/votes", h.handleVote)
}

type disputeResponse struct {
	RequestID           uint64 `json:"request_id"`
	Shipper             string `json:"shipper_uid"`
	Driver              string `json:"driver_uid"`
	Receiver            string `json:"receiver_uid"`
	OriginApproxGeoHash string `json:"origin_approx_geohash"`
	DestApproxGeoHash   string `json:"dest_approx_geohash"`
	VotesCast           int    `json:"votes_cast"`
	Resolved            bool   `json:"resolved"`
	Winner              string `json:"winner,omitempty"`
	OpenedAt            string `json:"opened_at"`
}

func toDisputeResponse(d *models.Dispute) disputeResponse {
	out := disputeResponse{
		RequestID:           uint64(d.RequestID),
		Shipper:             d.Shipper.String(),
		Driver:              d.Driver.String(),
		Receiver:            d.Receiver.String(),
		OriginApproxGeoHash: d.OriginApproxGeoHash,
		DestApproxGeoHash:   d.DestApproxGeoHash,
		VotesCast:           len(d.Votes),
		Resolved:            d.Resolved,
		OpenedAt:            d.OpenedAt.UTC().Format(time.RFC3339),
	}
	if d.Resolved {
		out.Winner = d.Winner.String()
	}
	return out
}

func (h *Handler) handleListOpen(w http.ResponseWriter, r *http.Request) {
	disputes, err := h.disputes.ListOpenInRegion(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]disputeResponse, 0, len(disputes))
	for _, d := range disputes {
		out = append(out, toDisputeResponse(d))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	d, err := h.disputes.GetDispute(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDisputeResponse(d))
}

type voteRequest struct {
	ForDriver bool `json:"for_driver"`
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req voteRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	d, err := h.disputes.Vote(r.Context(), middleware.Caller(r.Context()), id, req.ForDriver)
	if err != nil {
		h.logger.WarnContext(r.Context(), "dispute vote failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDisputeResponse(d))
}

func parseID(r *http.Request) (domain.RequestID, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, domerrors.Wrap(err, domerrors.CodeInvalidInput, "malformed request id")
	}
	return domain.RequestID(id), nil
}
