package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// newSocketPair dials a real WebSocket over an httptest server and returns
// both ends: the client side for reading assertions and the server side for
// registering with the hub.
func newSocketPair(t *testing.T) (client, server *websocket.Conn) {
	t.Helper()

	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { c.Close() })

	select {
	case s := <-serverSide:
		return c, s
	case <-time.After(2 * time.Second):
		t.Fatal("server side of the socket never arrived")
		return nil, nil
	}
}

func readMessage(t *testing.T, c *websocket.Conn) WSMessage {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, c.ReadJSON(&msg))
	return msg
}

func TestSendToUserDisconnected(t *testing.T) {
	hub := NewWSHub()
	assert.Error(t, hub.SendToUser("nobody", WSMessage{Type: "test"}))
}

func TestSendToUserDelivers(t *testing.T) {
	hub := NewWSHub()
	client, server := newSocketPair(t)
	hub.Register("alice", server)

	require.NoError(t, hub.SendToUser("alice", WSMessage{Type: "upload_created", DateID: "2025-06-01"}))

	msg := readMessage(t, client)
	assert.Equal(t, "upload_created", msg.Type)
	assert.Equal(t, "2025-06-01", msg.DateID)
}

// A stale reader's deferred unregister runs after the user has already
// reconnected; it must not tear down the replacement connection.
func TestUnregisterIgnoresReplacedConnection(t *testing.T) {
	hub := NewWSHub()
	_, first := newSocketPair(t)
	secondClient, second := newSocketPair(t)

	hub.Register("alice", first)
	hub.Register("alice", second) // closes first

	hub.Unregister("alice", first)
	assert.True(t, hub.IsOnline("alice"))

	require.NoError(t, hub.SendToUser("alice", WSMessage{Type: "test"}))
	assert.Equal(t, "test", readMessage(t, secondClient).Type)

	hub.Unregister("alice", second)
	assert.False(t, hub.IsOnline("alice"))
}

// Fan-out and request handlers can hit the same user concurrently; every
// write must land intact on the single underlying connection.
func TestSendToUserConcurrentWriters(t *testing.T) {
	hub := NewWSHub()
	client, server := newSocketPair(t)
	hub.Register("alice", server)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, hub.SendToUser("alice", WSMessage{Type: "partner_status"}))
		}()
	}

	for i := 0; i < writers; i++ {
		assert.Equal(t, "partner_status", readMessage(t, client).Type)
	}
	wg.Wait()
}
