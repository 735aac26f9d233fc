package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/middleware"
	"github.com/stemsi/paperquiz-backend/internal/response"
	"github.com/stemsi/paperquiz-backend/internal/service"
	ws "github.com/stemsi/paperquiz-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// AttemptRunner opens live attempts and streams their events.
type AttemptRunner interface {
	Open(ctx context.Context, userID string, quizID uuid.UUID) (*attempt.Controller, error)
	Listen(userID string, quizID uuid.UUID) (<-chan service.AttemptEvent, func(), error)
}

// WSHandler handles the WebSocket attempt stream.
type WSHandler struct {
	attempts      AttemptRunner
	submitTimeout time.Duration
	log           zerolog.Logger
	upgrader      websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts AttemptRunner, submitTimeout time.Duration, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts:      attempts,
		submitTimeout: submitTimeout,
		log:           log.With().Str("component", "ws_handler").Logger(),
		upgrader:      buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/quizzes/:quiz_id/attempt
// Upgrades to WebSocket, starts or resumes the caller's attempt and streams
// state, tick and submission events. Disconnecting leaves the attempt running.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer raw.Close()

	userID := claims.UserID()
	wsLog := h.log.With().
		Str("user_id", userID).
		Str("quiz_id", quizID.String()).
		Logger()

	ctrl, err := h.attempts.Open(c.Request.Context(), userID, quizID)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Opening attempt failed")
		conn.WriteError(wsErrorMessage(err))
		conn.Close("attempt unavailable")
		return
	}

	conn.WriteTyped(ws.StateResponse{
		Event:     ws.EventState,
		State:     ctrl.Snapshot(),
		Questions: ctrl.Questions(),
	})

	events, cancel, err := h.attempts.Listen(userID, quizID)
	if err != nil {
		// Resumed attempt ran out of time during Open and is already submitted.
		conn.Close("attempt ended")
		return
	}
	defer cancel()

	wsLog.Info().Msg("Attempt stream connected")
	go h.forward(conn, ctrl, events)

	for {
		var msg ws.Request
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		h.handleAction(conn, wsLog, ctrl, &msg)
	}
}

// handleAction applies one client action and answers with the new state.
func (h *WSHandler) handleAction(conn *ws.Conn, wsLog zerolog.Logger, ctrl *attempt.Controller, msg *ws.Request) {
	switch msg.Action {
	case ws.ActionPing:
		conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		return
	case ws.ActionGoTo:
		if msg.Index == nil {
			conn.WriteError("index is required")
			return
		}
		ctrl.GoToQuestion(*msg.Index)
	case ws.ActionSelect:
		choice, ok := attempt.ParseChoice(msg.Answer)
		if !ok || msg.Question <= 0 {
			conn.WriteError("q and ans (A, B, C or D) are required")
			return
		}
		ctrl.SelectAnswer(msg.Question, choice)
	case ws.ActionSaveNext:
		ctrl.SaveAndNext()
	case ws.ActionSaveReview:
		ctrl.SaveAndMarkForReview()
	case ws.ActionReviewNext:
		ctrl.MarkForReviewAndNext()
	case ws.ActionClear:
		ctrl.ClearResponse()
	case ws.ActionSubmit:
		// Detached from the connection so a dropped socket cannot abort the write.
		ctx, cancel := context.WithTimeout(context.Background(), h.submitTimeout)
		defer cancel()
		if _, err := ctrl.Submit(ctx); err != nil {
			conn.WriteError(wsErrorMessage(err))
		}
		// The submitted event arrives through the listener.
		return
	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		conn.WriteError("unknown action: " + string(msg.Action))
		return
	}

	conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: ctrl.Snapshot()})
}

// forward relays attempt events to the client and closes the connection once
// the attempt ends.
func (h *WSHandler) forward(conn *ws.Conn, ctrl *attempt.Controller, events <-chan service.AttemptEvent) {
	for ev := range events {
		switch ev.Type {
		case service.AttemptEventTick:
			conn.WriteTyped(ws.NewTickResponse(ev.Remaining))
		case service.AttemptEventSubmitted:
			if ev.Result != nil {
				conn.WriteTyped(ws.NewSubmittedResponse(*ev.Result))
			}
			conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: ctrl.Snapshot()})
			conn.Close("attempt submitted")
			return
		case service.AttemptEventClosed:
			conn.WriteTyped(ws.ClosedResponse{Event: ws.EventClosed, Reason: "attempt closed without submission"})
			conn.Close("attempt closed")
			return
		}
	}
	conn.Close("attempt ended")
}
