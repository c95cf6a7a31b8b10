package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-core/internal/auth"
	"chat-core/internal/dispatcher"
	"chat-core/internal/mocks"
	"chat-core/internal/models"
)

// ctxRecordingTracker remembers the liveness of every context handed to
// SetTyping, so a test can tell whether the read loop ran on a context that
// died with the handshake.
type ctxRecordingTracker struct {
	mu   sync.Mutex
	errs []error
}

func (t *ctxRecordingTracker) SetTyping(ctx context.Context, roomID int, userID int, isTyping bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs = append(t.errs, ctx.Err())
	return nil
}

func (t *ctxRecordingTracker) ListTyping(ctx context.Context, roomID int) ([]int, error) {
	return nil, nil
}

func (t *ctxRecordingTracker) recorded() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]error(nil), t.errs...)
}

func signToken(t *testing.T, secret, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           userID,
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// The gin request context is cancelled as soon as Handle returns, but the
// socket outlives it. Typing frames arriving afterwards must still reach the
// tracker and the room's typing stream on a live context.
func TestRoomSocketTypingAfterHandshakeReturns(t *testing.T) {
	gin.SetMode(gin.TestMode)

	roomRepo := new(mocks.RoomRepositoryMock)
	roomRepo.On("IsMember", mock.Anything, 42, 5).Return(true, nil)

	tracker := &ctxRecordingTracker{}
	hub := NewHub(dispatcher.New(), nil, tracker)
	handler := NewRoomWebSocketHandler(hub, roomRepo, tracker, auth.NewVerifier("socket-secret"))

	router := gin.New()
	router.GET("/ws/rooms/:room_id", handler.Handle)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/rooms/42?token=" + signToken(t, "socket-secret", "5")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	observer, err := hub.SubscribeTyping(context.Background(), 42)
	require.NoError(t, err)
	defer observer.Cancel()

	require.NoError(t, conn.WriteJSON(typingFrame{Type: "typing", IsTyping: true}))

	ev := recvEvent(t, observer)
	assert.Equal(t, dispatcher.Added, ev.Type)
	typing, ok := ev.Entity.(*models.TypingEvent)
	require.True(t, ok)
	assert.Equal(t, 5, typing.UserID)
	assert.True(t, typing.IsTyping)

	// disconnect cleanup clears the typing state through the same context
	require.NoError(t, conn.Close())
	deadline := time.Now().Add(2 * time.Second)
	for len(tracker.recorded()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	errs := tracker.recorded()
	require.GreaterOrEqual(t, len(errs), 2, "expected typing set and disconnect clear")
	for _, recErr := range errs {
		assert.NoError(t, recErr, "typing update ran on a cancelled context")
	}
	roomRepo.AssertExpectations(t)
}

func TestRoomSocketRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	roomRepo := new(mocks.RoomRepositoryMock)
	tracker := &ctxRecordingTracker{}
	hub := NewHub(dispatcher.New(), nil, tracker)
	handler := NewRoomWebSocketHandler(hub, roomRepo, tracker, auth.NewVerifier("socket-secret"))

	router := gin.New()
	router.GET("/ws/rooms/:room_id", handler.Handle)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/rooms/42?token=" + signToken(t, "wrong-secret", "5")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
