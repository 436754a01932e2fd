package alpaca

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/domain"
)

// streamServer is a scripted websocket endpoint recording client frames.
type streamServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conn   *websocket.Conn
	frames []map[string]interface{}

	srv *httptest.Server
}

func newStreamServer(t *testing.T) *streamServer {
	t.Helper()
	s := &streamServer{t: t}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		for {
			var frame map[string]interface{}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			s.mu.Lock()
			s.frames = append(s.frames, frame)
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *streamServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *streamServer) send(payload string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NotNil(s.t, conn, "no client connected yet")
	require.NoError(s.t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func (s *streamServer) clientFrames() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]interface{}(nil), s.frames...)
}

// waitFrames blocks until the server has recorded n client frames.
func (s *streamServer) waitFrames(n int) []map[string]interface{} {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frames := s.clientFrames()
		if len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("timed out waiting for %d client frames, have %d", n, len(s.clientFrames()))
	return nil
}

func newTestStream(t *testing.T, srv *streamServer, handler func(domain.PricePoint)) *Stream {
	t.Helper()
	if handler == nil {
		handler = func(domain.PricePoint) {}
	}
	stream, err := NewStream(StreamConfig{
		URL:       srv.url(),
		APIKey:    "test-key",
		SecretKey: "test-secret",
		Logger:    &mockLogger{},
		Handler:   handler,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stream.Close() })
	return stream
}

func TestStreamConnectSendsAuthFrame(t *testing.T) {
	srv := newStreamServer(t)
	stream := newTestStream(t, srv, nil)
	require.NoError(t, stream.Connect(context.Background()))

	frames := srv.waitFrames(1)
	assert.Equal(t, "auth", frames[0]["action"])
	assert.Equal(t, "test-key", frames[0]["key"])
	assert.Equal(t, "test-secret", frames[0]["secret"])
	assert.False(t, stream.Authenticated(), "auth flag only flips on the provider's confirmation")
}

func TestStreamAuthConfirmationAndResubscribe(t *testing.T) {
	srv := newStreamServer(t)
	stream := newTestStream(t, srv, nil)
	require.NoError(t, stream.Connect(context.Background()))
	srv.waitFrames(1)

	require.NoError(t, stream.Subscribe("AAPL", "MSFT"))
	srv.waitFrames(2)

	srv.send(`[{"T":"success","msg":"authenticated"}]`)

	// authentication replays the whole subscription set
	frames := srv.waitFrames(3)
	assert.True(t, stream.Authenticated())
	last := frames[len(frames)-1]
	assert.Equal(t, "subscribe", last["action"])
	bars := last["bars"].([]interface{})
	assert.Len(t, bars, 2)
}

func TestStreamSubscribeIsIdempotent(t *testing.T) {
	srv := newStreamServer(t)
	stream := newTestStream(t, srv, nil)
	require.NoError(t, stream.Connect(context.Background()))
	srv.waitFrames(1)

	require.NoError(t, stream.Subscribe("AAPL"))
	srv.waitFrames(2)

	// fully duplicate subscriptions must not produce a wire frame
	require.NoError(t, stream.Subscribe("AAPL"))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, srv.clientFrames(), 2)

	// a mixed batch sends only the new symbol
	require.NoError(t, stream.Subscribe("AAPL", "MSFT"))
	frames := srv.waitFrames(3)
	bars := frames[2]["bars"].([]interface{})
	assert.Equal(t, []interface{}{"MSFT"}, bars)

	subscribed := stream.Subscribed()
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, subscribed)
}

func TestStreamDeliversBars(t *testing.T) {
	srv := newStreamServer(t)
	received := make(chan domain.PricePoint, 4)
	stream := newTestStream(t, srv, func(p domain.PricePoint) { received <- p })
	require.NoError(t, stream.Connect(context.Background()))
	srv.waitFrames(1)

	srv.send(`[{"T":"b","S":"AAPL","o":100.5,"h":101.0,"l":99.9,"c":100.8,"v":321,"t":"2026-03-02T14:30:00Z"}]`)

	select {
	case p := <-received:
		assert.Equal(t, "AAPL", p.Symbol)
		assert.Equal(t, "100.8", p.Close.String())
		assert.Equal(t, int64(321), p.Volume)
		assert.Equal(t, time.UTC, p.Instant.Location())
	case <-time.After(2 * time.Second):
		t.Fatal("bar never reached the handler")
	}
}

func TestStreamDeliversStringEncodedBars(t *testing.T) {
	srv := newStreamServer(t)
	received := make(chan domain.PricePoint, 4)
	stream := newTestStream(t, srv, func(p domain.PricePoint) { received <- p })
	require.NoError(t, stream.Connect(context.Background()))
	srv.waitFrames(1)

	// some feeds encode OHLC as strings; the frame must decode either way
	srv.send(`[{"T":"b","S":"AAPL","o":"171.68","h":"172.02","l":"171.50","c":"171.90","v":987,"t":"2026-03-02T14:31:00Z"}]`)

	select {
	case p := <-received:
		assert.Equal(t, "AAPL", p.Symbol)
		assert.Equal(t, "171.68", p.Open.String())
		assert.Equal(t, "171.9", p.Close.String())
		assert.Equal(t, int64(987), p.Volume)
	case <-time.After(2 * time.Second):
		t.Fatal("string-encoded bar never reached the handler")
	}
	select {
	case <-stream.Done():
		t.Fatal("a string-encoded bar must not disconnect the stream")
	default:
	}
}

func TestStreamIgnoresUnknownFrames(t *testing.T) {
	srv := newStreamServer(t)
	received := make(chan domain.PricePoint, 4)
	stream := newTestStream(t, srv, func(p domain.PricePoint) { received <- p })
	require.NoError(t, stream.Connect(context.Background()))
	srv.waitFrames(1)

	srv.send(`[{"T":"q","S":"AAPL","bp":100.1,"ap":100.2},{"T":"subscription","bars":["AAPL"]}]`)
	srv.send(`[{"T":"b","S":"AAPL","o":1,"h":1,"l":1,"c":1,"v":1,"t":"2026-03-02T14:30:00Z"}]`)

	select {
	case p := <-received:
		assert.Equal(t, "AAPL", p.Symbol, "only the bar frame should reach the handler")
	case <-time.After(2 * time.Second):
		t.Fatal("bar never reached the handler")
	}
	select {
	case <-received:
		t.Fatal("non-bar frames must not reach the handler")
	default:
	}
	select {
	case <-stream.Done():
		t.Fatal("unknown frames must not kill the stream")
	default:
	}
}

func TestStreamAuthErrorDropsAuthOnly(t *testing.T) {
	srv := newStreamServer(t)
	stream := newTestStream(t, srv, nil)
	require.NoError(t, stream.Connect(context.Background()))
	srv.waitFrames(1)

	srv.send(`[{"T":"success","msg":"authenticated"}]`)
	waitFor(t, stream.Authenticated)

	srv.send(`[{"T":"error","code":402,"msg":"auth failed"}]`)
	waitFor(t, func() bool { return !stream.Authenticated() })

	select {
	case <-stream.Done():
		t.Fatal("an auth error frame must not close the connection")
	default:
	}
}

func TestStreamMalformedPayloadDisconnects(t *testing.T) {
	srv := newStreamServer(t)
	stream := newTestStream(t, srv, nil)
	require.NoError(t, stream.Connect(context.Background()))
	srv.waitFrames(1)

	srv.send(`this is not json`)

	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("malformed payload must terminally disconnect the stream")
	}
	assert.False(t, stream.Authenticated())
}

func TestStreamSubscribeBeforeConnect(t *testing.T) {
	srv := newStreamServer(t)
	stream := newTestStream(t, srv, nil)
	assert.Error(t, stream.Subscribe("AAPL"))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

// keep the compiler honest about the scripted frames being valid JSON
func TestServerFrameDecoding(t *testing.T) {
	var frames []serverFrame
	payload := `[{"T":"b","S":"AAPL","o":1.5,"h":2,"l":1,"c":1.75,"v":10,"t":"2026-03-02T14:30:00Z"}]`
	require.NoError(t, json.Unmarshal([]byte(payload), &frames))
	require.Len(t, frames, 1)

	p, err := frames[0].toPricePoint()
	require.NoError(t, err)
	assert.Equal(t, "AAPL", p.Symbol)

	frames[0].Instant = "garbage"
	_, err = frames[0].toPricePoint()
	assert.Error(t, err)
}
