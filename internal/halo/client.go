package halo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const sendQueueSize = 64

// Observer receives transport-level notifications, used to feed
// metrics. All methods are called from the connection goroutine.
type Observer interface {
	FrameReceived()
	FrameSent()
	DecodeFailure()
	Reconnect()
	ConnectionState(connected bool)
}

type nopObserver struct{}

func (nopObserver) FrameReceived()       {}
func (nopObserver) FrameSent()           {}
func (nopObserver) DecodeFailure()       {}
func (nopObserver) Reconnect()           {}
func (nopObserver) ConnectionState(bool) {}

// callbacks holds the registered event handlers. One slot per event
// type plus the two catch-alls and the connection hooks; unregistered
// slots stay nil.
type callbacks struct {
	onConnection     func()
	onConnectionLost func()
	onAllEvents      func(Event, EventType)
	onAllEventsRaw   func(json.RawMessage)
	onButtonEvent    func(ButtonEvent)
	onWheelEvent     func(WheelEvent)
	onPowerEvent     func(PowerEvent)
	onStatusEvent    func(StatusEvent)
	onSystemEvent    func(SystemEvent)
}

// Client owns the WebSocket session to one Beoremote Halo and the
// single Configuration tree mirrored onto the device. All
// configuration access goes through the client so the tree is only
// ever touched under its mutex.
type Client struct {
	host     string
	logger   *logrus.Entry
	observer Observer

	mu            sync.Mutex
	configuration *Configuration
	cbs           callbacks
	active        bool
	done          chan struct{}

	connected atomic.Bool
	queue     chan []byte
}

// NewClient creates a Halo client for the given host. The observer
// may be nil.
func NewClient(host string, logger *logrus.Logger, observer Observer) *Client {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Client{
		host:          host,
		logger:        logger.WithField("halo_host", host),
		observer:      observer,
		configuration: EmptyConfiguration(),
		queue:         make(chan []byte, sendQueueSize),
	}
}

// url derives the device endpoint. A bare host gets the fixed Halo
// port; a host:port pair is used as given.
func (c *Client) url() string {
	host := c.host
	if !strings.Contains(host, ":") {
		host = fmt.Sprintf("%s:%d", host, WebSocketPort)
	}
	return "ws://" + host + "/"
}

// Connected reports whether a session is currently established.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Active reports whether the connection loop is running.
func (c *Client) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// CheckDeviceConnection opens a short-lived connection, waits for the
// first frame and closes again. The Halo announces itself with a
// status event on connect, so a healthy device always produces a
// frame within the timeout. Returns the transport error on failure;
// callers that only need a yes/no ignore the error value.
func (c *Client) CheckDeviceConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: WebSocketTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url(), nil)
	if err != nil {
		return fmt.Errorf("unable to connect to %s: %w", c.host, err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(WebSocketTimeout)); err != nil {
		return err
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		return fmt.Errorf("no frame received from %s: %w", c.host, err)
	}
	return nil
}

// Connect starts the background connection loop. Calling it while the
// loop is already active logs and does nothing. With reconnect set the
// loop retries forever with a fixed delay; otherwise the first
// transport error is terminal. With sendConfiguration set the current
// Configuration is pushed as the first outbound message of every
// session.
func (c *Client) Connect(reconnect, sendConfiguration bool) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		c.logger.Error("WebSocket connection loop already active")
		return
	}
	c.active = true
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(done, reconnect, sendConfiguration)
}

// Disconnect stops the connection loop. The loop's own exit path
// closes the session.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.active = false
	close(c.done)
}

func (c *Client) run(done chan struct{}, reconnect, sendConfiguration bool) {
	dialer := websocket.Dialer{HandshakeTimeout: WebSocketTimeout}

	for {
		conn, _, err := dialer.Dial(c.url(), nil)
		if err == nil {
			err = c.session(done, conn, sendConfiguration)
		}

		select {
		case <-done:
			c.setConnected(false)
			return
		default:
		}

		if c.Connected() {
			c.logger.WithError(err).Debug("WebSocket connection lost")
			c.setConnected(false)
			if cb := c.snapshotCallbacks().onConnectionLost; cb != nil {
				cb()
			}
		}

		if !reconnect {
			c.logger.WithError(err).Error("WebSocket connection failed")
			c.Disconnect()
			return
		}

		select {
		case <-done:
			return
		case <-time.After(WebSocketTimeout):
		}
		c.observer.Reconnect()
	}
}

// session services one established connection until it errors or the
// client is disconnected. Inbound frames and the outbound queue are
// drained from the same loop, so configuration bookkeeping never races
// a dispatch.
func (c *Client) session(done chan struct{}, conn *websocket.Conn, sendConfiguration bool) error {
	defer conn.Close()

	c.setConnected(true)

	if sendConfiguration {
		if frame, err := c.configurationFrame(); err != nil {
			c.logger.WithError(err).Error("Unable to serialize configuration")
		} else {
			c.enqueue(frame)
		}
	}

	if cb := c.snapshotCallbacks().onConnection; cb != nil {
		cb()
	}

	frames := make(chan []byte)
	readErr := make(chan error, 1)

	// stop releases a reader parked on the frames channel when this
	// session exits for any reason, not just client Disconnect.
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-stop:
				return
			}
		}
	}()

	heartbeat := time.NewTicker(WebSocketTimeout)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return nil
		case err := <-readErr:
			return err
		case data := <-frames:
			c.observer.FrameReceived()
			c.dispatch(data)
		case msg := <-c.queue:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
			c.observer.FrameSent()
		case <-heartbeat.C:
			deadline := time.Now().Add(WebSocketTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return err
			}
		}
	}
}

func (c *Client) setConnected(connected bool) {
	if c.connected.Swap(connected) != connected {
		c.observer.ConnectionState(connected)
	}
}

// dispatch decodes one inbound frame and fans it out: raw catch-all
// first, typed catch-all second, per-type callback last. Decode
// failures are logged and the frame dropped.
func (c *Client) dispatch(data []byte) {
	event, err := DecodeEvent(data)
	if err != nil {
		c.observer.DecodeFailure()
		c.logger.WithError(err).Error("Unable to deserialize WebSocket event")
		return
	}

	cbs := c.snapshotCallbacks()

	if cbs.onAllEventsRaw != nil {
		cbs.onAllEventsRaw(json.RawMessage(data))
	}
	if cbs.onAllEvents != nil {
		cbs.onAllEvents(event, event.EventType())
	}

	switch e := event.(type) {
	case ButtonEvent:
		if cbs.onButtonEvent != nil {
			cbs.onButtonEvent(e)
		}
	case WheelEvent:
		if cbs.onWheelEvent != nil {
			cbs.onWheelEvent(e)
		}
	case PowerEvent:
		if cbs.onPowerEvent != nil {
			cbs.onPowerEvent(e)
		}
	case StatusEvent:
		if cbs.onStatusEvent != nil {
			cbs.onStatusEvent(e)
		}
	case SystemEvent:
		if cbs.onSystemEvent != nil {
			cbs.onSystemEvent(e)
		}
	}
}

func (c *Client) snapshotCallbacks() callbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cbs
}

// enqueue puts a serialized frame on the outbound queue. Returns false
// when the loop is inactive or the queue is full; sending is
// fire-and-forget and never blocks.
func (c *Client) enqueue(frame []byte) bool {
	if !c.Active() {
		c.logger.Debug("Unable to send, WebSocket connection loop not active")
		return false
	}
	select {
	case c.queue <- frame:
		return true
	default:
		c.logger.Warn("Outbound queue full, dropping frame")
		return false
	}
}

func (c *Client) configurationFrame() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configuration.MarshalFrame()
}

// SetConfiguration replaces the owned Configuration. A nil
// configuration resets to an empty one. With send set the new tree is
// also pushed to the device; the return value reports whether it was
// queued.
func (c *Client) SetConfiguration(cfg *Configuration, send bool) bool {
	if cfg == nil {
		cfg = EmptyConfiguration()
	}

	c.mu.Lock()
	c.configuration = cfg
	c.mu.Unlock()

	if !send {
		return false
	}
	frame, err := c.configurationFrame()
	if err != nil {
		c.logger.WithError(err).Error("Unable to serialize configuration")
		return false
	}
	return c.enqueue(frame)
}

// Update sends an update to the device. UpdateButton fields are also
// applied to the owned Configuration so subsequent lookups see the
// state the device is showing. Returns whether the frame was queued.
func (c *Client) Update(update Update) bool {
	if ub, ok := update.(UpdateButton); ok {
		c.applyButtonUpdate(ub)
	}

	frame, err := MarshalUpdateFrame(update)
	if err != nil {
		c.logger.WithError(err).Error("Unable to serialize update")
		return false
	}
	return c.enqueue(frame)
}

func (c *Client) applyButtonUpdate(ub UpdateButton) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields := ButtonFields{Value: ub.Value, Content: ub.Content}
	if ub.State != "" {
		state := ub.State
		fields.State = &state
	}
	if ub.Title != "" {
		title := ub.Title
		fields.Title = &title
	}
	if ub.Subtitle != "" {
		subtitle := ub.Subtitle
		fields.Subtitle = &subtitle
	}

	if err := UpdateButtonFields(c.configuration, ub.ID, fields); err != nil {
		c.logger.WithError(err).Debug("Unable to apply button update to configuration")
	}
}

// WithConfiguration runs fn with the owned Configuration under the
// client mutex. This is the only sanctioned way to read or mutate the
// tree from outside the client.
func (c *Client) WithConfiguration(fn func(cfg *Configuration) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.configuration)
}

// Snapshot returns a deep copy of the owned Configuration, for
// persistence and diagnostics.
func (c *Client) Snapshot() *Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := &Configuration{
		Pages:   make([]Page, len(c.configuration.Pages)),
		Version: c.configuration.Version,
		ID:      c.configuration.ID,
	}
	for i, page := range c.configuration.Pages {
		copied := page
		copied.Buttons = make([]Button, len(page.Buttons))
		for j, button := range page.Buttons {
			copied.Buttons[j] = button
			if button.Content != nil {
				content := *button.Content
				copied.Buttons[j].Content = &content
			}
		}
		snapshot.Pages[i] = copied
	}
	return snapshot
}

// Callback registration. The vendor protocol names these get_*; the
// public surface keeps that shape.

// GetOnConnection sets the callback invoked after a session is
// established.
func (c *Client) GetOnConnection(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cbs.onConnection = cb
}

// GetOnConnectionLost sets the callback invoked when an established
// session is lost.
func (c *Client) GetOnConnectionLost(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cbs.onConnectionLost = cb
}

// GetAllEvents sets the catch-all callback receiving every decoded
// event together with its type label.
func (c *Client) GetAllEvents(cb func(Event, EventType)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cbs.onAllEvents = cb
}

// GetAllEventsRaw sets the catch-all callback receiving every inbound
// frame before decoding.
func (c *Client) GetAllEventsRaw(cb func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cbs.onAllEventsRaw = cb
}

// GetButtonEvent sets the ButtonEvent callback.
func (c *Client) GetButtonEvent(cb func(ButtonEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cbs.onButtonEvent = cb
}

// GetWheelEvent sets the WheelEvent callback.
func (c *Client) GetWheelEvent(cb func(WheelEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cbs.onWheelEvent = cb
}

// GetPowerEvent sets the PowerEvent callback.
func (c *Client) GetPowerEvent(cb func(PowerEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cbs.onPowerEvent = cb
}

// GetStatusEvent sets the StatusEvent callback.
func (c *Client) GetStatusEvent(cb func(StatusEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cbs.onStatusEvent = cb
}

// GetSystemEvent sets the SystemEvent callback.
func (c *Client) GetSystemEvent(cb func(SystemEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cbs.onSystemEvent = cb
}
