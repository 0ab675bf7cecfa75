package enterprise

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thural/quietspace-realtime/transport"
)

// echoServer upgrades incoming requests and echoes every frame back.
type echoServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	headers []http.Header
	conns   []*websocket.Conn
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	es := &echoServer{}
	es.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := es.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		es.mu.Lock()
		es.headers = append(es.headers, r.Header.Clone())
		es.conns = append(es.conns, conn)
		es.mu.Unlock()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(es.server.Close)
	return es
}

func (es *echoServer) url() string {
	return "ws" + strings.TrimPrefix(es.server.URL, "http")
}

func (es *echoServer) closeConns() {
	es.mu.Lock()
	defer es.mu.Unlock()
	for _, conn := range es.conns {
		conn.Close()
	}
	es.conns = nil
}

func TestClientStartSendReceive(t *testing.T) {
	es := newEchoServer(t)
	client := NewClient(nil)

	var mu sync.Mutex
	var received [][]byte
	client.SetMessageHandler(func(data []byte) error {
		mu.Lock()
		received = append(received, data)
		mu.Unlock()
		return nil
	})

	config := &transport.EnterpriseConfig{AuthToken: "tok-1"}
	require.NoError(t, client.Start(context.Background(), es.url(), config))
	assert.True(t, client.IsConnected())

	require.NoError(t, client.Write([]byte(`{"type":"chat_message","feature":"chat","data":{}}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The handshake carried the auth token.
	es.mu.Lock()
	require.Len(t, es.headers, 1)
	assert.Equal(t, "Bearer tok-1", es.headers[0].Get("Authorization"))
	assert.NotEmpty(t, es.headers[0].Get("X-Client-ID"))
	es.mu.Unlock()

	require.NoError(t, client.Stop(context.Background()))
	assert.False(t, client.IsConnected())
}

func TestClientWriteNotConnected(t *testing.T) {
	client := NewClient(nil)
	err := client.Write([]byte("x"))
	assert.ErrorIs(t, err, transport.ErrNotConnected)
}

func TestClientRejectsWrongConfigType(t *testing.T) {
	client := NewClient(nil)
	err := client.Start(context.Background(), "ws://localhost", &transport.LegacyConfig{Addr: "x"})
	assert.ErrorIs(t, err, transport.ErrInvalidConfig)
}

func TestClientAlreadyStarted(t *testing.T) {
	es := newEchoServer(t)
	client := NewClient(nil)

	require.NoError(t, client.Start(context.Background(), es.url(), &transport.EnterpriseConfig{}))
	defer client.Stop(context.Background())

	err := client.Start(context.Background(), es.url(), &transport.EnterpriseConfig{})
	assert.ErrorIs(t, err, transport.ErrAlreadyStarted)
}

func TestClientStartFailure(t *testing.T) {
	client := NewClient(nil)
	config := &transport.EnterpriseConfig{HandshakeTimeout: 500 * time.Millisecond}
	err := client.Start(context.Background(), "ws://127.0.0.1:1", config)
	require.Error(t, err)
	assert.False(t, client.IsConnected())

	// A failed start leaves the client reusable.
	es := newEchoServer(t)
	require.NoError(t, client.Start(context.Background(), es.url(), &transport.EnterpriseConfig{}))
	client.Stop(context.Background())
}

func TestClientRestartCycle(t *testing.T) {
	es := newEchoServer(t)
	client := NewClient(nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, client.Start(context.Background(), es.url(), &transport.EnterpriseConfig{}))
		assert.True(t, client.IsConnected())
		require.NoError(t, client.Stop(context.Background()))
		assert.False(t, client.IsConnected())
	}

	select {
	case _, ok := <-client.Errors():
		require.True(t, ok, "error channel must stay open across restarts")
	default:
	}
}

func TestClientDisconnectionHandler(t *testing.T) {
	es := newEchoServer(t)
	client := NewClient(nil)

	disconnected := make(chan error, 1)
	client.SetDisconnectionHandler(func(err error) {
		select {
		case disconnected <- err:
		default:
		}
	})

	require.NoError(t, client.Start(context.Background(), es.url(), &transport.EnterpriseConfig{}))

	es.closeConns()

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnection handler was not called")
	}
	assert.False(t, client.IsConnected())
}

func TestClientReconnects(t *testing.T) {
	es := newEchoServer(t)
	client := NewClient(nil)

	reconnected := make(chan struct{}, 1)
	client.SetReconnectionHandler(func() {
		select {
		case reconnected <- struct{}{}:
		default:
		}
	})

	config := &transport.EnterpriseConfig{Reconnect: true}
	require.NoError(t, client.Start(context.Background(), es.url(), config))

	es.closeConns()

	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("client did not reconnect")
	}
	assert.True(t, client.IsConnected())

	require.NoError(t, client.Stop(context.Background()))
}

func TestRegisterWithFactory(t *testing.T) {
	factory := transport.NewDefaultFactory()
	RegisterWithFactory(factory, nil)

	types := factory.SupportedTypes()
	require.Len(t, types, 1)
	assert.Equal(t, transport.EnterpriseImplementation, types[0])

	conn, err := factory.CreateConnection(&transport.EnterpriseConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Client{}, conn)

	_, err = factory.CreateConnection(&transport.LegacyConfig{Addr: "x"})
	assert.Error(t, err)
}
