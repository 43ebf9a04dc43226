package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageEmitsCandidate(t *testing.T) {
	s := NewSubscriber(DefaultSubscriberConfig())

	s.handleMessage([]byte(`{
		"channel": "new_pairs",
		"event": "candidate",
		"data": {"address": "0xabc", "chain": "ethereum", "symbol": "TKN"}
	}`))

	select {
	case c := <-s.out:
		assert.Equal(t, "0xabc", c.Address)
		assert.Equal(t, "ethereum", c.Chain)
	default:
		t.Fatal("expected a candidate on the channel")
	}
	assert.Equal(t, int64(1), s.Stats().Candidates)
}

func TestHandleMessageSkipsControlFrames(t *testing.T) {
	s := NewSubscriber(DefaultSubscriberConfig())

	s.handleMessage([]byte(`{"channel": "new_pairs", "event": "subscribed"}`))
	s.handleMessage([]byte(`{"event": "heartbeat"}`))
	s.handleMessage([]byte(`garbage`))
	s.handleMessage([]byte(`{"channel": "new_pairs", "event": "candidate", "data": {"chain": "bsc"}}`))

	select {
	case <-s.out:
		t.Fatal("no candidate should be emitted")
	default:
	}
}

func TestHandleMessageDropsWhenFull(t *testing.T) {
	cfg := DefaultSubscriberConfig()
	cfg.BufferSize = 1
	s := NewSubscriber(cfg)

	msg := []byte(`{"event": "candidate", "data": {"address": "0xabc", "chain": "bsc"}}`)
	s.handleMessage(msg)
	s.handleMessage(msg) // buffer full, dropped

	assert.Equal(t, int64(1), s.Stats().Candidates)
}

func TestPingLoopKeepsIdleConnectionAlive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	pings := make(chan struct{}, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetPingHandler(func(string) error {
			pings <- struct{}{}
			return nil
		})
		// Ping handlers only fire inside a pending read.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := NewSubscriber(SubscriberConfig{Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http")})
	require.NoError(t, s.connect(context.Background()))
	defer s.disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.pingLoop(ctx, 10*time.Millisecond)

	// The subscriber sends nothing else, so every ping here proves the
	// keepalive runs independently of the read loop.
	for i := 0; i < 2; i++ {
		select {
		case <-pings:
		case <-time.After(2 * time.Second):
			t.Fatal("no keepalive ping on an idle connection")
		}
	}
}

func TestStartRequiresEndpoint(t *testing.T) {
	s := NewSubscriber(SubscriberConfig{})
	_, err := s.Start(context.Background())
	require.Error(t, err)
}

func TestDefaultSubscriberConfig(t *testing.T) {
	cfg := DefaultSubscriberConfig()
	assert.Equal(t, []string{"new_pairs"}, cfg.Channels)
	assert.Equal(t, 256, cfg.BufferSize)
	assert.Equal(t, 0, cfg.MaxReconnects)
}
