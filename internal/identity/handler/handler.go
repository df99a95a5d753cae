package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"geekship/internal/identity/models"
	identityservice "geekship/internal/identity/service"
	"geekship/internal/platform/middleware"
	"geekship/internal/transport/http/shared"
	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
)

// Handler is the thin HTTP layer over the registry; all validation is
// re-checked by the service regardless of what the UI sends.
type Handler struct {
	identity *identityservice.Service
	logger   *slog.Logger
}

func New(identity *identityservice.Service, logger *slog.Logger) *Handler {
	return &Handler{identity: identity, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/users", h.handleCreateUser)
	r.Get("/users/me", h.handleGetMe)
	r.Get("/users/{uid}", h.handleGetUser)
	r.Post("/roles/requests", h.handleCreateRoleRequest)
	r.Get("/roles/requests", h.handleListRoleRequests)
	r.Post("/roles/requests/{id}/resolve", h.handleResolveRoleRequest)
}

type createUserRequest struct {
	Name    string `json:"name"`
	GeoHash string `json:"service_geohash"`
	Phone   string `json:"phone_number"`
}

type userResponse struct {
	UID            string `json:"uid"`
	Name           string `json:"name"`
	PhoneNumber    string `json:"phone_number"`
	ServiceGeoHash string `json:"service_geohash"`
	Roles          []int  `json:"roles"`
	RatingStars    int    `json:"rating_stars"`
}

func toUserResponse(u *models.User) userResponse {
	roles := make([]int, 0, len(u.Roles))
	for role := range u.Roles {
		roles = append(roles, int(role))
	}
	return userResponse{
		UID:            u.UID.String(),
		Name:           u.Name,
		PhoneNumber:    u.PhoneNumber,
		ServiceGeoHash: u.ServiceGeoHash,
		Roles:          roles,
		RatingStars:    u.RatingStars,
	}
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	user, err := h.identity.CreateUser(r.Context(), middleware.Caller(r.Context()), req.Name, req.GeoHash, req.Phone)
	if err != nil {
		h.logger.WarnContext(r.Context(), "create user failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.GetUserInfo(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	uid, err := domain.ParseUserID(chi.URLParam(r, "uid"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	user, err := h.identity.GetUserInfo(r.Context(), uid)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

type createRoleRequestRequest struct {
	Role int `json:"role"`
}

type roleRequestResponse struct {
	ID           uint64 `json:"request_id"`
	ApplicantUID string `json:"applicant_uid"`
	Role         int    `json:"role"`
	Status       string `json:"status"`
	ApproverUID  string `json:"approver_uid,omitempty"`
}

func toRoleRequestResponse(req *models.RoleRequest) roleRequestResponse {
	out := roleRequestResponse{
		ID:           uint64(req.ID),
		ApplicantUID: req.ApplicantUID.String(),
		Role:         int(req.Role),
		Status:       req.Status.String(),
	}
	if !req.ApproverUID.IsNil() {
		out.ApproverUID = req.ApproverUID.String()
	}
	return out
}

func (h *Handler) handleCreateRoleRequest(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequestRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	created, err := h.identity.CreateRoleRequest(r.Context(), middleware.Caller(r.Context()), models.Role(req.Role))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toRoleRequestResponse(created))
}

func (h *Handler) handleListRoleRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.identity.ListRoleRequests(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]roleRequestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toRoleRequestResponse(req))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

type resolveRoleRequestRequest struct {
	Approve bool `json:"approve"`
}

func (h *Handler) handleResolveRoleRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, domerrors.Wrap(err, domerrors.CodeInvalidInput, "malformed request id"))
		return
	}
	var req resolveRoleRequestRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	resolved, err := h.identity.ApproveOrRejectRoleRequest(r.Context(), middleware.Caller(r.Context()), domain.RequestID(id), req.Approve)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRoleRequestResponse(resolved))
}
