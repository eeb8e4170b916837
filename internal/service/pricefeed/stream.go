package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	"github.com/duke524-dev/synth-subnet/pkg/logger"
)

// Stream is a websocket tick feed. Implements repository.TickStream.
type Stream struct {
	apiKey         string
	websocketURL   string
	assets         []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	conn      *websocket.Conn
	connected bool
}

// NewStream creates the feed for the given assets.
func NewStream(apiKey, websocketURL string, assets []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Stream {
	return &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		assets:         assets,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the websocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.websocketURL, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("price stream connect: %w", err)
	}
	s.conn = conn
	s.connected = true
	s.log.Info("price stream connected")
	return nil
}

// Subscribe subscribes to every configured asset.
func (s *Stream) Subscribe(ctx context.Context) error {
	if s.conn == nil || !s.connected {
		return fmt.Errorf("price stream not connected")
	}
	for _, asset := range s.assets {
		msg := map[string]string{"type": "subscribe", "symbol": asset}
		if err := s.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", asset, err)
		}
		s.log.Debug("price stream subscribed", logger.String("asset", asset))
	}
	return nil
}

type wireTick struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	T int64   `json:"t"` // ms
}

type wireFrame struct {
	Type string     `json:"type"`
	Data []wireTick `json:"data"`
}

// Read streams ticks and errors until ctx is cancelled or the connection
// drops. Slow consumers lose ticks rather than stalling the read loop; the
// EWMA tolerates gaps.
func (s *Stream) Read(ctx context.Context) (<-chan domrepo.Tick, <-chan error) {
	ticks := make(chan domrepo.Tick, 1024)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.conn != nil {
					_ = s.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if s.conn == nil {
					errs <- fmt.Errorf("price stream connection gone")
					return
				}
				_, b, err := s.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("price stream read: %w", err)
					return
				}
				var frame wireFrame
				if err := json.Unmarshal(b, &frame); err != nil {
					// non-trade frames (acks, pings) are not an error
					continue
				}
				if frame.Type != "trade" {
					continue
				}
				for _, d := range frame.Data {
					tick := domrepo.Tick{
						Asset: d.S,
						TS:    time.UnixMilli(d.T).UTC(),
						Price: d.P,
					}
					select {
					case ticks <- tick:
					default:
					}
				}
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes and re-dials after the configured delay.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close shuts the connection down.
func (s *Stream) Close() error {
	s.connected = false
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// IsConnected reports connection status.
func (s *Stream) IsConnected() bool { return s.connected }
