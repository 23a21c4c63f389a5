package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"ForecastMix/internal/domain/models"
	drepo "ForecastMix/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client implements a ForecastStream backed by a WebSocket forecast feed.
// The feed delivers one frame per step: the expert forecast row for a
// mixture followed by the realized observation.
type Client struct {
	token          string
	websocketURL   string
	mixtures       []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	// mu guards conn and connected; Close races the ping and read loops.
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a new forecast feed stream.
func New(token, websocketURL string, mixtures []string, reconnectDelay, pingInterval time.Duration) drepo.ForecastStream {
	return &Client{
		token:          token,
		websocketURL:   websocketURL,
		mixtures:       mixtures,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := c.websocketURL
	if c.token != "" {
		u = fmt.Sprintf("%s?token=%s", c.websocketURL, c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	log.Printf("feed: connected")
	return nil
}

// Subscribe subscribes to configured mixture channels.
func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return fmt.Errorf("feed not connected")
	}
	for _, id := range c.mixtures {
		msg := map[string]string{"type": "subscribe", "mixture": id}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", id, err)
		}
		log.Printf("feed: subscribed %s", id)
	}
	return nil
}

type feedFrame struct {
	Type string                 `json:"type"`
	Data []models.ForecastEvent `json:"data"`
}

// Read streams ForecastEvents and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.ForecastEvent, <-chan error) {
	events := make(chan *models.ForecastEvent, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if conn := c.current(); conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(events)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				conn := c.current()
				if conn == nil {
					errs <- fmt.Errorf("feed conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("feed read: %w", err)
					return
				}
				var m feedFrame
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-event frames
					continue
				}
				if m.Type != "step" {
					continue
				}
				for i := range m.Data {
					ev := m.Data[i]
					if ev.MixtureID == "" || len(ev.Forecasts) == 0 {
						continue
					}
					select {
					case events <- &ev:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return events, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// current returns the live connection, or nil after Close.
func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	return c.conn
}
