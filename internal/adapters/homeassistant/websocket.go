package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/beobridge/halo-bridge-go/internal/core/halosync"
)

const (
	listenerRetryInterval = 5 * time.Second
	listenerAuthTimeout   = 10 * time.Second
	eventBufferSize       = 100
)

// EventListener maintains a WebSocket subscription to Home Assistant
// state_changed events and delivers them on a buffered channel. Events
// are dropped when the consumer falls behind; the periodic resync path
// catches anything missed.
type EventListener struct {
	wsURL  string
	token  string
	logger *logrus.Entry
	events chan halosync.EntityState
}

func NewEventListener(baseURL, token string, logger *logrus.Logger) *EventListener {
	wsURL := strings.TrimRight(baseURL, "/")
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	return &EventListener{
		wsURL:  wsURL + "/api/websocket",
		token:  token,
		logger: logger.WithField("component", "homeassistant_ws"),
		events: make(chan halosync.EntityState, eventBufferSize),
	}
}

// Events returns the state change stream.
func (l *EventListener) Events() <-chan halosync.EntityState {
	return l.events
}

// Run connects, authenticates and subscribes, reconnecting with a
// fixed delay until the context is cancelled.
func (l *EventListener) Run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.WithError(err).Warn("Event subscription lost, retrying")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(listenerRetryInterval):
		}
	}
}

type wsMessage struct {
	ID        int             `json:"id,omitempty"`
	Type      string          `json:"type"`
	Success   *bool           `json:"success,omitempty"`
	Event     *wsEvent        `json:"event,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
	AuthToken string          `json:"access_token,omitempty"`
	EventType string          `json:"event_type,omitempty"`
}

type wsEvent struct {
	EventType string      `json:"event_type"`
	Data      wsEventData `json:"data"`
}

type wsEventData struct {
	EntityID string   `json:"entity_id"`
	NewState *haState `json:"new_state"`
}

func (l *EventListener) listen(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: listenerAuthTimeout}
	conn, _, err := dialer.DialContext(ctx, l.wsURL, nil)
	if err != nil {
		return fmt.Errorf("unable to connect: %w", err)
	}
	defer conn.Close()

	if err := l.authenticate(conn); err != nil {
		return err
	}
	if err := l.subscribe(conn); err != nil {
		return err
	}
	l.logger.Info("Subscribed to state changes")

	// Close the connection when the context ends so the blocking read
	// below returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Type != "event" || msg.Event == nil {
			continue
		}
		if msg.Event.EventType != "state_changed" || msg.Event.Data.NewState == nil {
			continue
		}

		select {
		case l.events <- msg.Event.Data.NewState.toEntityState():
		default:
			l.logger.WithField("entity_id", msg.Event.Data.EntityID).Warn("Event buffer full, dropping state change")
		}
	}
}

func (l *EventListener) authenticate(conn *websocket.Conn) error {
	deadline := time.Now().Add(listenerAuthTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	defer conn.SetReadDeadline(time.Time{})

	var hello wsMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("no auth challenge: %w", err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("unexpected handshake message %q", hello.Type)
	}

	if err := conn.WriteJSON(wsMessage{Type: "auth", AuthToken: l.token}); err != nil {
		return err
	}

	var result wsMessage
	if err := conn.ReadJSON(&result); err != nil {
		return fmt.Errorf("no auth response: %w", err)
	}
	if result.Type != "auth_ok" {
		return fmt.Errorf("authentication failed: %s", result.Type)
	}
	return nil
}

func (l *EventListener) subscribe(conn *websocket.Conn) error {
	return conn.WriteJSON(wsMessage{ID: 1, Type: "subscribe_events", EventType: "state_changed"})
}
