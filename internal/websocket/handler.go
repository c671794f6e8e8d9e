package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"parley-chat/config"
	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/events"
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"
	parley_errors "parley-chat/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Inbound frame names.
const (
	inJoinRoom          = "join-room"
	inLeaveRoom         = "leave-room"
	inJoinPersonalRoom  = "joinPersonalRoom"
	inLeavePersonalRoom = "leavePersonalRoom"
	inSubscribeStatus   = "subscribeToStatus"
	inUnsubscribeStatus = "unsubscribeFromStatus"
	inSetOnline         = "set-online"
	inSetOffline        = "set-offline"

	eventError = "error"
)

type Handler struct {
	auth       *services.AuthService
	hub        *Hub
	gateway    *Gateway
	authorizer *RoomAuthorizer
	presence   *services.PresenceService
	log        *Logger

	eventsPerSecond rate.Limit
	burst           int
	upgrader        websocket.Upgrader
}

func NewHandler(cfg *config.Config, auth *services.AuthService, hub *Hub, gateway *Gateway, authorizer *RoomAuthorizer, presence *services.PresenceService) *Handler {
	return &Handler{
		auth:            auth,
		hub:             hub,
		gateway:         gateway,
		authorizer:      authorizer,
		presence:        presence,
		log:             NewLogger(),
		eventsPerSecond: rate.Limit(cfg.WSEventsPerSecond),
		burst:           cfg.WSEventBurst,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// Connect upgrades an authenticated request and serves the connection until it closes.
func (h *Handler) Connect(c *gin.Context) {
	claims, err := h.auth.ParseAccessToken(bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("upgrade_failed", claims.UserID, "", err)
		return
	}

	client := h.newClient(conn, claims.UserID)
	ctx, cancel := context.WithCancel(services.WithUserContext(context.Background(), claims.UserID))
	defer cancel()

	if !h.hub.Register(client) {
		conn.Close()
		return
	}
	h.hub.Subscribe(client, events.UserRoom(client.UserID))
	go client.WriteLoop(ctx)

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("read_failed", client.UserID, client.ID, zap.Error(err))
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleRaw(ctx, client, raw)
	}

	h.hub.Unregister(client)
}

func (h *Handler) newClient(conn *websocket.Conn, userID int64) *Client {
	var limiter *rate.Limiter
	if h.eventsPerSecond > 0 {
		limiter = rate.NewLimiter(h.eventsPerSecond, h.burst)
	}
	return NewClient(conn, userID, limiter)
}

func (h *Handler) handleRaw(ctx context.Context, client *Client, raw []byte) {
	if !client.Allow() {
		h.replyError(client, parley_errors.ErrRateLimited)
		return
	}
	var frame events.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.replyError(client, fmt.Errorf("%w: malformed frame", parley_errors.ErrInvalidInput))
		return
	}
	if err := h.dispatch(ctx, client, frame); err != nil {
		h.log.Warn("frame_rejected", client.UserID, client.ID, zap.String("name", frame.Event), zap.Error(err))
		h.replyError(client, err)
	}
}

type roomRequest struct {
	Type   conversation.Kind `json:"type"`
	SmthID int64             `json:"smthId"`
}

func (r roomRequest) ref() (conversation.Ref, error) {
	ref := conversation.Ref{Kind: r.Type, ID: r.SmthID}
	if !ref.Valid() {
		return conversation.Ref{}, fmt.Errorf("%w: bad room %s", parley_errors.ErrInvalidInput, ref)
	}
	return ref, nil
}

type personalRequest struct {
	UserID int64 `json:"userId"`
}

type statusRequest struct {
	TargetUserIDs []int64 `json:"targetUserIds"`
}

// dispatch applies one inbound frame for client.
func (h *Handler) dispatch(ctx context.Context, client *Client, frame events.Frame) error {
	switch frame.Event {
	case inJoinRoom, inLeaveRoom, events.EventTyping, events.EventTypingStop:
		var req roomRequest
		if err := decode(frame.Data, &req); err != nil {
			return err
		}
		ref, err := req.ref()
		if err != nil {
			return err
		}
		room := events.ConversationRoom(ref)
		switch frame.Event {
		case inJoinRoom:
			return h.join(ctx, client, room)
		case inLeaveRoom:
			h.hub.Unsubscribe(client, room)
			return nil
		}
		if !client.InRoom(room) {
			return fmt.Errorf("%w: not in %s", parley_errors.ErrForbidden, room)
		}
		h.gateway.Publish(ctx, room, events.NewTyping(frame.Event, ref, client.UserID))
		return nil

	case inJoinPersonalRoom, inLeavePersonalRoom:
		userID, err := personalUserID(frame.Data)
		if err != nil {
			return err
		}
		room := events.UserRoom(userID)
		if frame.Event == inLeavePersonalRoom {
			h.hub.Unsubscribe(client, room)
			return nil
		}
		return h.join(ctx, client, room)

	case inSubscribeStatus, inUnsubscribeStatus:
		var req statusRequest
		if err := decode(frame.Data, &req); err != nil {
			return err
		}
		for _, id := range req.TargetUserIDs {
			if id <= 0 {
				continue
			}
			if frame.Event == inSubscribeStatus {
				h.hub.Subscribe(client, events.StatusRoom(id))
			} else {
				h.hub.Unsubscribe(client, events.StatusRoom(id))
			}
		}
		return nil

	case inSetOnline, inSetOffline:
		if h.presence == nil {
			return fmt.Errorf("%w: presence disabled", parley_errors.ErrServiceUnavailable)
		}
		return h.presence.Signal(ctx, client.UserID, frame.Event == inSetOnline)
	}
	return fmt.Errorf("%w: unknown event %q", parley_errors.ErrInvalidInput, frame.Event)
}

func (h *Handler) join(ctx context.Context, client *Client, room events.Room) error {
	ok, err := h.authorizer.CanSubscribe(ctx, client.UserID, room)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: cannot join %s", parley_errors.ErrForbidden, room)
	}
	h.hub.Subscribe(client, room)
	return nil
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", parley_errors.ErrInvalidInput)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", parley_errors.ErrInvalidInput, err)
	}
	return nil
}

// personalUserID accepts either a bare id or {"userId": id}.
func personalUserID(data json.RawMessage) (int64, error) {
	var id int64
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		if err := decode(trimmed, &id); err != nil {
			return 0, err
		}
	} else {
		var req personalRequest
		if err := decode(data, &req); err != nil {
			return 0, err
		}
		id = req.UserID
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: bad user id", parley_errors.ErrInvalidInput)
	}
	return id, nil
}

type errorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (h *Handler) replyError(client *Client, err error) {
	msg := err.Error()
	if services.HTTPStatus(err) == http.StatusInternalServerError {
		msg = "internal error"
	}
	frame, encErr := events.Encode(events.Event{Name: eventError, Data: errorData{Message: msg, Code: services.ErrorCode(err)}})
	if encErr != nil {
		return
	}
	client.SendMessage(frame)
}
