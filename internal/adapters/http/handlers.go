package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beam/internal/app"
	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
)

type CallController struct {
	Coord *app.Coordinator
}

type allocateRequest struct {
	ParticipantID string `json:"participantId"`
}

type allocateResponse struct {
	SessionID string `json:"sessionId"`
}

type callResponse struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
}

func (ctl *CallController) Allocate(c *gin.Context) {
	me := domain.ParticipantID(c.GetString("client_token"))

	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ParticipantID == "" ||
		len(req.ParticipantID) > domain.MaxParticipantIDLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant required"})
		return
	}

	id, err := ctl.Coord.Allocate(c.Request.Context(), me, domain.ParticipantID(req.ParticipantID))
	if err != nil {
		if errors.Is(err, domain.ErrSessionLimitExceeded) {
			c.JSON(http.StatusConflict, gin.H{"error": "session limit exceeded"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Msg("allocate")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "allocate failed"})
		return
	}
	c.JSON(http.StatusOK, allocateResponse{SessionID: string(id)})
}

func (ctl *CallController) Join(c *gin.Context) {
	me := domain.ParticipantID(c.GetString("client_token"))
	id := domain.SessionID(c.Param("id"))

	if err := ctl.Coord.Join(c.Request.Context(), id, me); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		case errors.Is(err, domain.ErrSessionLimitExceeded):
			c.JSON(http.StatusConflict, gin.H{"error": "session limit exceeded"})
		case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, core.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		default:
			log.Error().Err(err).Str("module", "adapters.http").Str("sid", string(id)).Msg("join")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "join failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (ctl *CallController) End(c *gin.Context) {
	me := domain.ParticipantID(c.GetString("client_token"))
	id := domain.SessionID(c.Param("id"))

	sess, err := ctl.Coord.Snapshot(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if !sess.IsParticipant(me) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}
	if err := ctl.Coord.Terminate(id, domain.ReasonUserEnded); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (ctl *CallController) Get(c *gin.Context) {
	me := domain.ParticipantID(c.GetString("client_token"))
	id := domain.SessionID(c.Param("id"))

	sess, err := ctl.Coord.Snapshot(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if !sess.IsParticipant(me) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}
	c.JSON(http.StatusOK, callResponse{
		SessionID: string(sess.ID),
		State:     sess.State.String(),
		Reason:    string(sess.EndReason),
	})
}
