package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"geekship/internal/platform/middleware"
	"geekship/internal/servicerequest/models"
	srservice "geekship/internal/servicerequest/service"
	"geekship/internal/transport/http/shared"
	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
)

// Handler is the HTTP layer over the engine. All state and capability checks
// live in the service; this layer only shapes requests and responses.
type Handler struct {
	engine *srservice.Service
	logger *slog.Logger
}

func New(engine *srservice.Service, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/service-requests", h.handleCreate)
	r.Get("/service-requests", h.handleListMine)
	r.Get("/service-requests/all", h.handleListAll)
	r.Get("/service-requests/auctions", h.handleListAuctions)
	r.Get("/service-requests/{id}", h.handleGet)
	r.Put("/service-requests/{id}", h.handleEdit)
	r.Post("/service-requests/{id}/cancel", h.handleCancel)
	r.Post("/service-requests/{id}/bids", h.handleBid)
	r.Post("/service-requests/{id}/winner", h.handleDeclareWinner)
	r.Post("/service-requests/{id}/reopen", h.handleReopen)
	r.Post("/service-requests/{id}/status", h.handleUpdateStatus)
	r.Post("/service-requests/{id}/holdback/release", h.handleReleaseHoldback)
}

type createRequest struct {
	Receiver            string    `json:"receiver_uid"`
	ReceiverName        string    `json:"receiver_name"`
	ReceiverPhone       string    `json:"receiver_phone"`
	Description         string    `json:"description"`
	OriginGeoHash       string    `json:"origin_geohash"`
	DestGeoHash         string    `json:"dest_geohash"`
	OriginApproxGeoHash string    `json:"origin_approx_geohash"`
	DestApproxGeoHash   string    `json:"dest_approx_geohash"`
	InsurableValue      uint64    `json:"cargo_insurable_value"`
	ServiceFee          uint64    `json:"service_fee"`
	PickupAt            time.Time `json:"pickup_at"`
	DeliveryAt          time.Time `json:"delivery_at"`
	AuctionWindowMS     int64     `json:"auction_window_ms"`
}

type bidResponse struct {
	Driver string `json:"driver_uid"`
	Amount uint64 `json:"amount"`
}

type srResponse struct {
	ID                  uint64       `json:"request_id"`
	Shipper             string       `json:"shipper_uid"`
	Receiver            string       `json:"receiver_uid"`
	Description         string       `json:"description"`
	OriginGeoHash       string       `json:"origin_geohash"`
	DestGeoHash         string       `json:"dest_geohash"`
	OriginApproxGeoHash string       `json:"origin_approx_geohash"`
	DestApproxGeoHash   string       `json:"dest_approx_geohash"`
	InsurableValue      uint64       `json:"cargo_insurable_value"`
	ServiceFee          uint64       `json:"service_fee"`
	PickupAt            string       `json:"pickup_at"`
	DeliveryAt          string       `json:"delivery_at"`
	Status              int          `json:"status"`
	StatusName          string       `json:"status_name"`
	Driver              string       `json:"driver_uid,omitempty"`
	Bid                 *bidResponse `json:"current_bid,omitempty"`
	AuctionEndsAt       string       `json:"auction_ends_at,omitempty"`
}

func toSRResponse(sr *models.ServiceRequest) srResponse {
	out := srResponse{
		ID:                  uint64(sr.ID),
		Shipper:             sr.Shipper.String(),
		Receiver:            sr.Receiver.String(),
		Description:         sr.Description,
		OriginGeoHash:       sr.OriginGeoHash,
		DestGeoHash:         sr.DestGeoHash,
		OriginApproxGeoHash: sr.OriginApproxGeoHash,
		DestApproxGeoHash:   sr.DestApproxGeoHash,
		InsurableValue:      sr.CargoInsurableValue,
		ServiceFee:          sr.ServiceFee,
		PickupAt:            sr.RequestedPickupAt.UTC().Format(time.RFC3339),
		DeliveryAt:          sr.RequestedDeliveryAt.UTC().Format(time.RFC3339),
		Status:              int(sr.Status),
		StatusName:          sr.Status.String(),
	}
	if !sr.Driver.IsNil() {
		out.Driver = sr.Driver.String()
	}
	if sr.Bid != nil {
		out.Bid = &bidResponse{Driver: sr.Bid.Driver.String(), Amount: sr.Bid.Amount}
	}
	if !sr.AuctionEndsAt.IsZero() {
		out.AuctionEndsAt = sr.AuctionEndsAt.UTC().Format(time.RFC3339)
	}
	return out
}

func toSRResponses(srs []*models.ServiceRequest) []srResponse {
	out := make([]srResponse, 0, len(srs))
	for _, sr := range srs {
		out = append(out, toSRResponse(sr))
	}
	return out
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	receiver, err := domain.ParseUserID(req.Receiver)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sr, err := h.engine.CreateNewSR(r.Context(), middleware.Caller(r.Context()), srservice.CreateParams{
		Receiver:            receiver,
		ReceiverName:        req.ReceiverName,
		ReceiverPhone:       req.ReceiverPhone,
		Description:         req.Description,
		OriginGeoHash:       req.OriginGeoHash,
		DestGeoHash:         req.DestGeoHash,
		OriginApproxGeoHash: req.OriginApproxGeoHash,
		DestApproxGeoHash:   req.DestApproxGeoHash,
		InsurableValue:      req.InsurableValue,
		ServiceFee:          req.ServiceFee,
		PickupAt:            req.PickupAt,
		DeliveryAt:          req.DeliveryAt,
		AuctionWindow:       time.Duration(req.AuctionWindowMS) * time.Millisecond,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "create service request failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toSRResponse(sr))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sr, err := h.engine.GetSR(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSRResponse(sr))
}

type editRequest struct {
	Description         string    `json:"description"`
	OriginGeoHash       string    `json:"origin_geohash"`
	DestGeoHash         string    `json:"dest_geohash"`
	OriginApproxGeoHash string    `json:"origin_approx_geohash"`
	DestApproxGeoHash   string    `json:"dest_approx_geohash"`
	InsurableValue      uint64    `json:"cargo_insurable_value"`
	ServiceFee          uint64    `json:"service_fee"`
	PickupAt            time.Time `json:"pickup_at"`
	DeliveryAt          time.Time `json:"delivery_at"`
	AuctionWindowMS     int64     `json:"auction_window_ms"`
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req editRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	sr, err := h.engine.EditDraftSR(r.Context(), middleware.Caller(r.Context()), id, srservice.EditParams{
		Description:         req.Description,
		OriginGeoHash:       req.OriginGeoHash,
		DestGeoHash:         req.DestGeoHash,
		OriginApproxGeoHash: req.OriginApproxGeoHash,
		DestApproxGeoHash:   req.DestApproxGeoHash,
		InsurableValue:      req.InsurableValue,
		ServiceFee:          req.ServiceFee,
		PickupAt:            req.PickupAt,
		DeliveryAt:          req.DeliveryAt,
		AuctionWindow:       time.Duration(req.AuctionWindowMS) * time.Millisecond,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSRResponse(sr))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sr, err := h.engine.CancelSR(r.Context(), middleware.Caller(r.Context()), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSRResponse(sr))
}

type bidRequest struct {
	Amount uint64 `json:"amount"`
}

func (h *Handler) handleBid(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req bidRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	sr, err := h.engine.DutchBid(r.Context(), middleware.Caller(r.Context()), id, req.Amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSRResponse(sr))
}

func (h *Handler) handleDeclareWinner(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sr, err := h.engine.DeclareWinner(r.Context(), middleware.Caller(r.Context()), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSRResponse(sr))
}

func (h *Handler) handleReopen(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sr, err := h.engine.ReopenAuction(r.Context(), middleware.Caller(r.Context()), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSRResponse(sr))
}

type updateStatusRequest struct {
	Status int `json:"status"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateStatusRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	sr, err := h.engine.UpdateSRStatus(r.Context(), middleware.Caller(r.Context()), id, models.Status(req.Status))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSRResponse(sr))
}

func (h *Handler) handleReleaseHoldback(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sr, err := h.engine.ReleaseHoldback(r.Context(), middleware.Caller(r.Context()), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSRResponse(sr))
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	srs, err := h.engine.GetMySRs(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSRResponses(srs))
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	srs, err := h.engine.GetAllSRs(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSRResponses(srs))
}

func (h *Handler) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	srs, err := h.engine.GetAuctionSRsInDriverRegion(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSRResponses(srs))
}

func parseID(r *http.Request) (domain.RequestID, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, domerrors.Wrap(err, domerrors.CodeInvalidInput, "malformed request id")
	}
	return domain.RequestID(id), nil
}
