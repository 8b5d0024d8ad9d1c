package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dkeye/Playroom/internal/app/orch"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch *orch.Orchestrator
	ice  webrtc.Configuration
}

type errorBody struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

func statusOf(code domain.Code) int {
	switch code {
	case domain.CodeInvalidArgument, domain.CodeInvalidTarget:
		return http.StatusBadRequest
	case domain.CodeUnauthenticated:
		return http.StatusUnauthorized
	case domain.CodeForbidden, domain.CodeNotAMember:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeAlreadyResolved, domain.CodeAlreadyDecided:
		return http.StatusConflict
	case domain.CodeExpired:
		return http.StatusGone
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, errorBody{Code: domain.CodeUnknown, Message: "internal error"})
		return
	}
	c.JSON(statusOf(de.Code), errorBody{Code: de.Code, Message: de.Message})
}

type createInviteRequest struct {
	ToUsername string `json:"toUsername"`
	GameName   string `json:"gameName"`
	Type       string `json:"type"`
}

type invitationRequest struct {
	InvitationID string `json:"invitationId"`
}

func (h *handlers) createInvite(c *gin.Context) {
	var req createInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Errorf(domain.CodeInvalidArgument, "malformed body"))
		return
	}
	to, err := domain.NewIdentity(req.ToUsername)
	if err != nil {
		writeError(c, domain.Errorf(domain.CodeInvalidTarget, "toUsername is required"))
		return
	}
	inv, err := h.orch.Invites.Create(c.Request.Context(), identityOf(c), to, req.GameName, req.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (h *handlers) listInvites(c *gin.Context) {
	list, err := h.orch.Invites.Pending(c.Request.Context(), identityOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *handlers) bindInvitation(c *gin.Context) (string, bool) {
	var req invitationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.InvitationID) == "" {
		writeError(c, domain.Errorf(domain.CodeInvalidArgument, "invitationId is required"))
		return "", false
	}
	return req.InvitationID, true
}

func (h *handlers) acceptInvite(c *gin.Context) {
	id, ok := h.bindInvitation(c)
	if !ok {
		return
	}
	roomID, err := h.orch.Invites.Accept(c.Request.Context(), id, identityOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID})
}

func (h *handlers) declineInvite(c *gin.Context) {
	id, ok := h.bindInvitation(c)
	if !ok {
		return
	}
	if err := h.orch.Invites.Decline(c.Request.Context(), id, identityOf(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}

// presence answers for ?users=a,b. Unknown names are reported offline.
func (h *handlers) presence(c *gin.Context) {
	var ids []domain.Identity
	for _, name := range strings.Split(c.Query("users"), ",") {
		if id, err := domain.NewIdentity(name); err == nil {
			ids = append(ids, id)
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": h.orch.Presence(ids)})
}

func (h *handlers) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.orch.RoomList()})
}

func (h *handlers) webrtcConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.ice.ICEServers})
}
