package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/auth"
)

type fakeAuth struct {
	auth.Service
	claims *auth.Claims
	err    error
}

func (f *fakeAuth) ParseToken(raw string) (*auth.Claims, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "test-subscriber")
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	// Registration happens after the handshake; give the hub loop a beat.
	time.Sleep(100 * time.Millisecond)
	return conn
}

func TestHubDeliversPublishedEvents(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()
	conn := dialHub(t, hub)

	hub.Publish(Event{
		Type:          EventCertificateIssued,
		CertificateID: "cert-1",
		Fingerprint:   "ab12",
		Status:        "pending",
		At:            time.Now().UTC(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventCertificateIssued, got.Type)
	assert.Equal(t, "cert-1", got.CertificateID)
	assert.Equal(t, "ab12", got.Fingerprint)
}

func TestHubCloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := dialHub(t, hub)

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	// No subscribers and a bounded queue: flooding must return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			hub.Publish(Event{Type: EventCertificateAnchored})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a saturated hub")
	}
}

func newSubscribeRouter(svc auth.Service) (*gin.Engine, *Hub) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(zap.NewNop())
	handler := NewHandler(hub, svc, zap.NewNop())
	router := gin.New()
	handler.RegisterRoutes(router.Group("/ws"))
	return router, hub
}

func TestSubscribeRejectsMissingToken(t *testing.T) {
	router, hub := newSubscribeRouter(&fakeAuth{})
	defer hub.Close()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubscribeRejectsInvalidToken(t *testing.T) {
	router, hub := newSubscribeRouter(&fakeAuth{err: auth.ErrInvalidToken})
	defer hub.Close()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/events?token=bogus", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubscribeAcceptsQueryToken(t *testing.T) {
	claims := &auth.Claims{
		AccountType:      auth.AccountVerifier,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "0b9f1c2e-4a5d-4e6f-8a7b-9c0d1e2f3a4b"},
	}
	router, hub := newSubscribeRouter(&fakeAuth{claims: claims})
	defer hub.Close()

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?token=valid"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()
	time.Sleep(100 * time.Millisecond)

	hub.Publish(Event{Type: EventVerificationRecorded, Status: "FULLY_VERIFIED"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventVerificationRecorded, got.Type)
	assert.Equal(t, "FULLY_VERIFIED", got.Status)
}
