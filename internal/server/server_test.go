package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"parley-chat/config"
	"parley-chat/internal/domain/role"
	"parley-chat/internal/domain/user"
	"parley-chat/internal/events"
	"parley-chat/internal/handler"
	"parley-chat/internal/redis"
	"parley-chat/internal/repository/memstore"
	"parley-chat/internal/services"
	"parley-chat/pkg/logger"
)

type fakeLimiter struct {
	allowed bool
}

func (f fakeLimiter) AllowMessage(context.Context, int64) (*redis.RateLimitResult, error) {
	return &redis.RateLimitResult{Allowed: f.allowed, Limit: 1, ResetIn: time.Minute}, nil
}

type testServer struct {
	t      *testing.T
	engine http.Handler
	store  *memstore.Store
	auth   *services.AuthService
}

func newTestServer(t *testing.T, limiter fakeLimiter) *testServer {
	t.Helper()
	cfg := &config.Config{AppMode: TestMode, AppPort: "0", JWTSecret: "test-secret"}
	store := memstore.New()
	pub := &events.Recorder{}
	paging := services.DefaultPaging()
	auth := services.NewAuthService(cfg)
	messages := services.NewMessageService(store, pub, nil, paging)

	srv := New(cfg, logger.NewNop())
	srv.SetupRoutes(&Handlers{
		Conversations: handler.NewConversationHandler(services.NewConversationService(store, pub, nil, paging), messages),
		Members:       handler.NewMemberHandler(services.NewMembershipService(store, pub, nil)),
		Roles:         handler.NewRoleHandler(services.NewPermissionService(store, pub, nil)),
		Messages:      handler.NewMessageHandler(messages),
		Chats:         handler.NewChatHandler(services.NewDirectChatService(store, pub)),
		Attachments:   handler.NewAttachmentHandler(services.NewAttachmentService(nil)),
		Presence:      handler.NewPresenceHandler(services.NewPresenceService(store, nil)),
	}, auth, limiter, nil)

	return &testServer{t: t, engine: srv.Engine(), store: store, auth: auth}
}

func (s *testServer) user(name string) int64 {
	return s.store.AddUser(user.User{Name: name}).ID
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
}

// do sends body as JSON on behalf of userID (0 sends no token).
func (s *testServer) do(userID int64, method, path string, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reader).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, err := s.auth.IssueAccessToken(userID, time.Minute)
		if err != nil {
			s.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("%s %s: bad body %q", method, path, rec.Body.String())
		}
	}
	return rec.Code, env
}

func (s *testServer) expect(userID int64, method, path string, body interface{}, status int) envelope {
	s.t.Helper()
	code, env := s.do(userID, method, path, body)
	if code != status {
		s.t.Fatalf("%s %s = %d (%s), want %d", method, path, code, env.Code, status)
	}
	return env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode %s: %v", env.Data, err)
	}
}

func TestPingAndAuth(t *testing.T) {
	s := newTestServer(t, fakeLimiter{allowed: true})
	s.expect(0, http.MethodGet, "/ping", nil, http.StatusOK)
	s.expect(0, http.MethodGet, "/health", nil, http.StatusOK)

	env := s.expect(0, http.MethodGet, "/v1/permissions", nil, http.StatusUnauthorized)
	if env.Code != "UNAUTHORIZED" {
		t.Errorf("code = %q", env.Code)
	}

	var perms struct {
		Permissions []string `json:"permissions"`
	}
	decodeData(t, s.expect(s.user("u"), http.MethodGet, "/v1/permissions", nil, http.StatusOK), &perms)
	if len(perms.Permissions) != 8 {
		t.Errorf("permissions = %v", perms.Permissions)
	}
}

func TestMessageFlow(t *testing.T) {
	s := newTestServer(t, fakeLimiter{allowed: true})
	owner := s.user("owner")
	reader := s.user("reader")

	var group struct {
		ID int64 `json:"id"`
	}
	decodeData(t, s.expect(owner, http.MethodPost, "/v1/groups", map[string]interface{}{"name": "Test"}, http.StatusOK), &group)
	base := fmt.Sprintf("/v1/groups/%d", group.ID)

	s.expect(reader, http.MethodPost, base+"/join", nil, http.StatusOK)
	s.expect(reader, http.MethodPost, base+"/join", nil, http.StatusConflict)

	var msg struct {
		ID int64 `json:"id"`
	}
	decodeData(t, s.expect(owner, http.MethodPost, "/v1/messages", map[string]interface{}{
		"type": "group", "smthId": group.ID, "content": "hello",
	}, http.StatusOK), &msg)

	var counter struct {
		Count int `json:"count"`
	}
	decodeData(t, s.expect(reader, http.MethodGet, base+"/notifications", nil, http.StatusOK), &counter)
	if counter.Count != 1 {
		t.Fatalf("unread = %d, want 1", counter.Count)
	}

	readPath := fmt.Sprintf("/v1/messages/%d/read", msg.ID)
	s.expect(reader, http.MethodPost, readPath, nil, http.StatusOK)
	s.expect(reader, http.MethodPost, readPath, nil, http.StatusOK)
	s.expect(owner, http.MethodPost, readPath, nil, http.StatusConflict)
	decodeData(t, s.expect(reader, http.MethodGet, base+"/notifications", nil, http.StatusOK), &counter)
	if counter.Count != 0 {
		t.Fatalf("unread after read = %d, want 0", counter.Count)
	}

	var page struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	decodeData(t, s.expect(reader, http.MethodGet, fmt.Sprintf("/v1/messages?type=group&id=%d", group.ID), nil, http.StatusOK), &page)
	if len(page.Messages) != 1 || page.Messages[0].Content != "hello" {
		t.Errorf("page = %+v", page)
	}
}

func TestStatusMapping(t *testing.T) {
	s := newTestServer(t, fakeLimiter{allowed: true})
	owner := s.user("owner")
	member := s.user("member")
	var group struct {
		ID int64 `json:"id"`
	}
	decodeData(t, s.expect(owner, http.MethodPost, "/v1/groups", map[string]interface{}{"name": "Test"}, http.StatusOK), &group)
	base := fmt.Sprintf("/v1/groups/%d", group.ID)
	s.expect(member, http.MethodPost, base+"/join", nil, http.StatusOK)

	tests := []struct {
		name   string
		userID int64
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"bad id", owner, http.MethodGet, "/v1/groups/abc", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"missing name", owner, http.MethodPost, "/v1/groups", map[string]interface{}{}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown group", owner, http.MethodDelete, "/v1/groups/999", nil, http.StatusNotFound, "NOT_FOUND"},
		{"not a member", s.user("outsider"), http.MethodGet, base + "/members", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"no permission", member, http.MethodDelete, fmt.Sprintf("%s/members/%d", base, owner), nil, http.StatusForbidden, "FORBIDDEN"},
		{"system role", owner, http.MethodDelete, base + "/roles/" + url.PathEscape(role.AdminName), nil, http.StatusUnprocessableEntity, "INVARIANT_VIOLATION"},
		{"unknown permission", owner, http.MethodGet, base + "/permissions/fly", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"no storage", owner, http.MethodPost, "/v1/attachments/presign", map[string]interface{}{"content_type": "image/png", "size_bytes": 10}, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"bad presence", owner, http.MethodPatch, "/v1/presence", map[string]interface{}{"action": "away"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"self chat", owner, http.MethodPost, "/v1/chats", map[string]interface{}{"user_id": owner}, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(tt.userID, tt.method, tt.path, tt.body)
			if code != tt.status || env.Code != tt.code {
				t.Errorf("got %d %q, want %d %q", code, env.Code, tt.status, tt.code)
			}
		})
	}
}

func TestPermissionCheckRoute(t *testing.T) {
	s := newTestServer(t, fakeLimiter{allowed: true})
	owner := s.user("owner")
	member := s.user("member")
	var channel struct {
		ID int64 `json:"id"`
	}
	decodeData(t, s.expect(owner, http.MethodPost, "/v1/channels", map[string]interface{}{"name": "news"}, http.StatusOK), &channel)
	base := fmt.Sprintf("/v1/channels/%d", channel.ID)
	s.expect(member, http.MethodPost, base+"/join", nil, http.StatusOK)

	var check struct {
		Allowed bool `json:"allowed"`
	}
	decodeData(t, s.expect(owner, http.MethodGet, base+"/permissions/sendMessage", nil, http.StatusOK), &check)
	if !check.Allowed {
		t.Error("owner should be allowed to send")
	}
	decodeData(t, s.expect(member, http.MethodGet, base+"/permissions/sendMessage", nil, http.StatusOK), &check)
	if check.Allowed {
		t.Error("channel reader should not be allowed to send")
	}

	s.expect(owner, http.MethodPost, base+"/discussion", nil, http.StatusOK)
	s.expect(owner, http.MethodPost, base+"/discussion", nil, http.StatusConflict)
	s.expect(owner, http.MethodDelete, base+"/discussion", nil, http.StatusOK)
}

func TestMessageRateLimit(t *testing.T) {
	s := newTestServer(t, fakeLimiter{allowed: false})
	owner := s.user("owner")
	var group struct {
		ID int64 `json:"id"`
	}
	decodeData(t, s.expect(owner, http.MethodPost, "/v1/groups", map[string]interface{}{"name": "Test"}, http.StatusOK), &group)

	env := s.expect(owner, http.MethodPost, "/v1/messages", map[string]interface{}{
		"type": "group", "smthId": group.ID, "content": "hello",
	}, http.StatusTooManyRequests)
	if env.Code != "RATE_LIMITED" {
		t.Errorf("code = %q", env.Code)
	}
}
