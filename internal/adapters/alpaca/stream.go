package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

const defaultStreamURL = "wss://stream.data.alpaca.markets/v2/sip"

// Stream connection states.
const (
	stateDisconnected int32 = iota
	stateConnecting
	stateConnected
	stateAuthenticated
)

// Provider error codes that indicate the credentials (not the connection)
// were rejected.
var authErrorCodes = map[int]struct{}{
	402: {}, // auth failed
	403: {}, // not authenticated
	404: {}, // auth timeout
}

// Stream implements ports.BarStream over the Alpaca realtime websocket.
// It is single-use: after Done closes, dial a fresh Stream. Reconnection
// policy belongs to the supervisor that owns the stream, not here.
type Stream struct {
	url       string
	apiKey    string
	secretKey string
	logger    ports.Logger
	handler   ports.BarHandler
	dialer    *websocket.Dialer

	state     atomic.Int32
	authed    atomic.Bool
	writeMu   sync.Mutex
	conn      *websocket.Conn
	subsMu    sync.Mutex
	subs      map[string]struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// StreamConfig holds configuration specific to the realtime stream adapter.
type StreamConfig struct {
	URL       string // overridable for tests
	APIKey    string
	SecretKey string
	Logger    ports.Logger
	Handler   ports.BarHandler
	Dialer    *websocket.Dialer
}

// NewStream creates a stream adapter. Connect must be called before Subscribe.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Alpaca stream")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("bar handler is required for Alpaca stream")
	}
	streamURL := cfg.URL
	if streamURL == "" {
		streamURL = defaultStreamURL
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	return &Stream{
		url:       streamURL,
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		logger:    cfg.Logger,
		handler:   cfg.Handler,
		dialer:    dialer,
		subs:      make(map[string]struct{}),
		done:      make(chan struct{}),
	}, nil
}

// wire frames

type authFrame struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type subscribeFrame struct {
	Action string   `json:"action"`
	Bars   []string `json:"bars"`
}

// OHLC fields are decimal.Decimal because the provider encodes prices as
// JSON strings on some feeds and as numbers on others; decimal accepts both.
type serverFrame struct {
	Type    string          `json:"T"`
	Msg     string          `json:"msg"`
	Code    int             `json:"code"`
	Symbol  string          `json:"S"`
	Open    decimal.Decimal `json:"o"`
	High    decimal.Decimal `json:"h"`
	Low     decimal.Decimal `json:"l"`
	Close   decimal.Decimal `json:"c"`
	Volume  int64           `json:"v"`
	Instant string          `json:"t"`
}

// Connect dials the stream and sends the auth frame. Incoming frames are
// consumed by a background goroutine until the connection fails.
func (s *Stream) Connect(ctx context.Context) error {
	op := "StreamConnect"
	if !s.state.CompareAndSwap(stateDisconnected, stateConnecting) {
		return fmt.Errorf("%s failed: %w: stream already started", op, ports.ErrInvalidRequest)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.state.Store(stateDisconnected)
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, err)
	}
	s.conn = conn
	s.state.Store(stateConnected)
	s.logger.Info(ctx, "stream connected", map[string]interface{}{"url": s.url})

	if err := s.writeJSON(authFrame{Action: "auth", Key: s.apiKey, Secret: s.secretKey}); err != nil {
		s.teardown(ctx)
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, err)
	}

	go s.readLoop(ctx)
	return nil
}

// Subscribe registers symbols for bar delivery. Symbols already subscribed
// are skipped; if nothing new remains, no frame is sent.
func (s *Stream) Subscribe(symbols ...string) error {
	op := "StreamSubscribe"
	if s.state.Load() < stateConnected {
		return fmt.Errorf("%s failed: %w: stream is not connected", op, ports.ErrConnectionFailed)
	}

	s.subsMu.Lock()
	var fresh []string
	for _, sym := range symbols {
		if _, ok := s.subs[sym]; ok {
			continue
		}
		s.subs[sym] = struct{}{}
		fresh = append(fresh, sym)
	}
	s.subsMu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	if err := s.writeJSON(subscribeFrame{Action: "subscribe", Bars: fresh}); err != nil {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, err)
	}
	return nil
}

// Subscribed returns the currently subscribed symbols.
func (s *Stream) Subscribed() []string {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	out := make([]string, 0, len(s.subs))
	for sym := range s.subs {
		out = append(out, sym)
	}
	return out
}

// Authenticated reports whether the provider accepted the credentials.
func (s *Stream) Authenticated() bool { return s.authed.Load() }

// Done is closed once the stream has terminally disconnected.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Close tears the connection down and releases the read loop.
func (s *Stream) Close() error {
	s.teardown(context.Background())
	return nil
}

func (s *Stream) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("connection is closed")
	}
	return s.conn.WriteJSON(v)
}

func (s *Stream) teardown(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.state.Store(stateDisconnected)
		s.authed.Store(false)
		if s.conn != nil {
			_ = s.conn.Close()
		}
		close(s.done)
		s.logger.Info(ctx, "stream disconnected")
	})
}

// readLoop consumes server frames until the connection breaks. It never
// blocks on downstream work: the bar handler is expected to be a cheap
// cache write plus a non-blocking publish.
func (s *Stream) readLoop(ctx context.Context) {
	defer s.teardown(ctx)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Warn(ctx, "stream read failed", map[string]interface{}{"error": err.Error()})
			return
		}

		// frames arrive as a JSON array of tagged objects
		var frames []serverFrame
		if err := json.Unmarshal(payload, &frames); err != nil {
			s.logger.Error(ctx, err, "malformed stream payload, dropping connection")
			return
		}
		for _, f := range frames {
			s.handleFrame(ctx, f)
		}
	}
}

func (s *Stream) handleFrame(ctx context.Context, f serverFrame) {
	switch f.Type {
	case "success":
		if f.Msg == "authenticated" {
			s.authed.Store(true)
			s.state.Store(stateAuthenticated)
			s.logger.Info(ctx, "stream authenticated")
			s.resubscribeAll(ctx)
		}
	case "error":
		if _, ok := authErrorCodes[f.Code]; ok {
			// credentials rejected; the connection itself stays up
			s.authed.Store(false)
			s.logger.Error(ctx, fmt.Errorf("%w: code %d: %s", ports.ErrAuthFailed, f.Code, f.Msg), "stream authentication rejected")
			return
		}
		s.logger.Warn(ctx, "stream error frame", map[string]interface{}{"code": f.Code, "msg": f.Msg})
	case "subscription":
		s.logger.Debug(ctx, "subscription acknowledged")
	case "b":
		p, err := f.toPricePoint()
		if err != nil {
			s.logger.Warn(ctx, "dropping malformed bar frame", map[string]interface{}{"symbol": f.Symbol, "error": err.Error()})
			return
		}
		s.handler(p)
	default:
		// quotes, trades, and future frame types are not our concern
	}
}

// resubscribeAll replays the full subscription set, used after the provider
// confirms authentication on a fresh connection.
func (s *Stream) resubscribeAll(ctx context.Context) {
	s.subsMu.Lock()
	symbols := make([]string, 0, len(s.subs))
	for sym := range s.subs {
		symbols = append(symbols, sym)
	}
	s.subsMu.Unlock()

	if len(symbols) == 0 {
		return
	}
	if err := s.writeJSON(subscribeFrame{Action: "subscribe", Bars: symbols}); err != nil {
		s.logger.Error(ctx, err, "resubscribe after authentication failed")
	}
}

func (f serverFrame) toPricePoint() (domain.PricePoint, error) {
	instant, err := time.Parse(time.RFC3339, f.Instant)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("bad bar timestamp %q: %w", f.Instant, err)
	}
	return domain.PricePoint{
		Symbol:  f.Symbol,
		Instant: instant.UTC(),
		Open:    f.Open,
		High:    f.High,
		Low:     f.Low,
		Close:   f.Close,
		Volume:  f.Volume,
	}, nil
}
