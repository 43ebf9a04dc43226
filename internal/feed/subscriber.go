package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tokensentry/tokensentry/internal/model"
)

// ---------------------------------------------------------------------------
// WebSocket candidate feed: subscribes to an upstream new-token stream and
// emits candidates onto a channel consumed by the pipeline. Reconnects with
// exponential backoff and keeps the connection alive with pings.
// ---------------------------------------------------------------------------

// SubscriberConfig configures the WebSocket candidate subscriber.
type SubscriberConfig struct {
	Endpoint         string   `yaml:"endpoint"`
	Channels         []string `yaml:"channels"` // upstream channels to subscribe to
	ReconnectDelayMs int      `yaml:"reconnect_delay_ms"`
	PingIntervalS    int      `yaml:"ping_interval_s"`
	MaxReconnects    int      `yaml:"max_reconnects"`
	BufferSize       int      `yaml:"buffer_size"`
}

// DefaultSubscriberConfig returns conservative reconnect defaults.
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		Channels:         []string{"new_pairs"},
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
		MaxReconnects:    0, // 0 = unlimited reconnects
		BufferSize:       256,
	}
}

// Subscriber streams token candidates from an upstream WebSocket feed.
type Subscriber struct {
	config SubscriberConfig

	mu   sync.RWMutex
	conn *websocket.Conn

	out    chan model.Candidate
	closed atomic.Bool

	messagesRecv atomic.Int64
	candidates   atomic.Int64
	reconnects   atomic.Int64
	connected    atomic.Bool
}

// NewSubscriber creates a subscriber for the configured endpoint.
func NewSubscriber(config SubscriberConfig) *Subscriber {
	size := config.BufferSize
	if size <= 0 {
		size = 256
	}
	return &Subscriber{
		config: config,
		out:    make(chan model.Candidate, size),
	}
}

// Start connects and begins streaming. Returns the candidate channel; the
// channel is closed when ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) (<-chan model.Candidate, error) {
	if s.config.Endpoint == "" {
		return nil, fmt.Errorf("feed: endpoint not configured")
	}
	go s.runLoop(ctx)
	return s.out, nil
}

func (s *Subscriber) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("feed: runLoop panic recovered")
		}
		// Synchronize with emit's channel send before closing.
		s.mu.Lock()
		if s.closed.CompareAndSwap(false, true) {
			close(s.out)
		}
		s.mu.Unlock()
	}()

	reconnectDelay := time.Duration(s.config.ReconnectDelayMs) * time.Millisecond
	reconnectCount := 0

	for {
		select {
		case <-ctx.Done():
			s.disconnect()
			return
		default:
		}

		if s.config.MaxReconnects > 0 && reconnectCount >= s.config.MaxReconnects {
			log.Error().Int("max", s.config.MaxReconnects).Msg("feed: max reconnects reached, cooling down")
			select {
			case <-time.After(60 * time.Second):
				reconnectCount = 0
				continue
			case <-ctx.Done():
				s.disconnect()
				return
			}
		}

		if err := s.connect(ctx); err != nil {
			log.Warn().Err(err).Int("attempt", reconnectCount).Msg("feed: connection failed")
			reconnectCount++
			s.reconnects.Add(1)

			maxDelay := 30 * time.Second
			if reconnectDelay > maxDelay {
				reconnectDelay = maxDelay
			}
			select {
			case <-time.After(reconnectDelay):
				reconnectDelay = reconnectDelay * 2
				if reconnectDelay > maxDelay {
					reconnectDelay = maxDelay
				}
			case <-ctx.Done():
				return
			}
			continue
		}

		reconnectCount = 0
		reconnectDelay = time.Duration(s.config.ReconnectDelayMs) * time.Millisecond

		for _, channel := range s.config.Channels {
			if err := s.subscribe(channel); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("feed: subscribe failed")
			}
		}

		s.readLoop(ctx)
	}
}

func (s *Subscriber) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.config.Endpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("feed: dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)

	log.Info().Str("endpoint", s.config.Endpoint).Msg("feed: connected")
	return nil
}

func (s *Subscriber) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected.Store(false)
}

func (s *Subscriber) subscribe(channel string) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("feed: not connected")
	}

	req := map[string]any{
		"action":  "subscribe",
		"channel": channel,
	}

	s.mu.Lock()
	err := s.conn.WriteJSON(req)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("feed: write subscribe: %w", err)
	}

	log.Info().Str("channel", channel).Msg("feed: subscribed")
	return nil
}

func (s *Subscriber) readLoop(ctx context.Context) {
	pingInterval := time.Duration(s.config.PingIntervalS) * time.Second
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}

	// Pings get their own goroutine: ReadMessage blocks on an idle
	// connection, so keepalives cannot share the read loop without the
	// read deadline killing a healthy but quiet connection.
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go s.pingLoop(pingCtx, pingInterval)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("feed: connection closed normally")
			} else {
				log.Warn().Err(err).Msg("feed: read error, reconnecting")
			}
			s.connected.Store(false)
			return
		}

		s.messagesRecv.Add(1)
		s.handleMessage(message)
	}
}

// pingLoop sends keepalives on the configured interval. The write lock
// serializes pings with subscribe writes; a failed ping closes the
// connection so the blocked read returns and the run loop reconnects.
func (s *Subscriber) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			var err error
			if conn != nil {
				err = conn.WriteMessage(websocket.PingMessage, nil)
				if err != nil {
					conn.Close()
				}
			}
			s.mu.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("feed: ping failed")
				return
			}
		}
	}
}

func (s *Subscriber) handleMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("feed: handleMessage panic recovered")
		}
	}()

	var msg struct {
		Channel string          `json:"channel"`
		Event   string          `json:"event"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	// Subscription acks and heartbeats have no payload.
	if len(msg.Data) == 0 || msg.Event == "subscribed" || msg.Event == "heartbeat" {
		return
	}

	candidate, err := DecodeCandidate(msg.Data)
	if err != nil {
		log.Debug().Err(err).Str("channel", msg.Channel).Msg("feed: undecodable candidate")
		return
	}

	s.emit(candidate)
}

func (s *Subscriber) emit(c model.Candidate) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.out <- c:
		s.candidates.Add(1)
		log.Debug().
			Str("symbol", c.Symbol).
			Str("chain", c.Chain).
			Msg("feed: candidate received")
	default:
		log.Warn().Msg("feed: candidate channel full, dropping")
	}
}

// Stats reports subscriber counters.
type Stats struct {
	Connected    bool  `json:"connected"`
	MessagesRecv int64 `json:"messages_recv"`
	Candidates   int64 `json:"candidates"`
	Reconnects   int64 `json:"reconnects"`
}

func (s *Subscriber) Stats() Stats {
	return Stats{
		Connected:    s.connected.Load(),
		MessagesRecv: s.messagesRecv.Load(),
		Candidates:   s.candidates.Load(),
		Reconnects:   s.reconnects.Load(),
	}
}
