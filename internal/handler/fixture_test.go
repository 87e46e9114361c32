package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/handler"
	"github.com/Baaaki/pharmsoc-messaging/internal/presence"
	"github.com/Baaaki/pharmsoc-messaging/internal/realtime"
	"github.com/Baaaki/pharmsoc-messaging/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// apiFixture is the full HTTP stack over one test database, without Redis
type apiFixture struct {
	router  *gin.Engine
	svc     *testutil.Services
	hub     *realtime.Hub
	typing  *presence.Tracker
	gateway *realtime.Gateway
}

func newAPIFixture(db *gorm.DB, sessionLifetime time.Duration) *apiFixture {
	gin.SetMode(gin.TestMode)

	svc := testutil.NewServices(db, nil)
	hub := realtime.NewHub(nil)
	typing := presence.NewTracker(presence.DefaultTTL)
	gateway := realtime.NewGateway(hub, svc.Messages, typing)

	router := gin.New()
	handler.Routes{
		Auth:           handler.NewAuthHandler(svc.Auth),
		Admin:          handler.NewAdminHandler(svc.Auth),
		Messages:       handler.NewMessageHandler(svc.Messages, svc.Conversations, gateway),
		WebSocket:      handler.NewWebSocketHandler(gateway, []string{"http://localhost:3000"}, sessionLifetime),
		JWTSecret:      testutil.TestJWTSecret,
		AllowedOrigins: []string{"http://localhost:3000"},
	}.Register(router)

	return &apiFixture{
		router:  router,
		svc:     svc,
		hub:     hub,
		typing:  typing,
		gateway: gateway,
	}
}

// do performs a request with an optional JSON body and bearer token
func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
