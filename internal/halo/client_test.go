package halo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newDeviceServer runs handler for every accepted connection and
// counts upgrades.
func newDeviceServer(t *testing.T, handler func(conn *websocket.Conn)) (*httptest.Server, string, *int32) {
	t.Helper()
	var upgrades int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt32(&upgrades, 1)
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv, strings.TrimPrefix(srv.URL, "http://"), &upgrades
}

func TestConnectTerminalWithoutReconnect(t *testing.T) {
	_, host, upgrades := newDeviceServer(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	client := NewClient(host, testLogger(), nil)
	var lost int32
	client.GetOnConnectionLost(func() { atomic.AddInt32(&lost, 1) })

	client.Connect(false, false)
	require.Eventually(t, func() bool { return !client.Active() }, 3*time.Second, 10*time.Millisecond)

	assert.False(t, client.Connected())
	assert.EqualValues(t, 1, atomic.LoadInt32(&lost))

	// No second connection attempt is made.
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(upgrades))
}

func TestConnectRefusedSkipsLostCallback(t *testing.T) {
	// Nothing listens on port 1.
	client := NewClient("127.0.0.1:1", testLogger(), nil)
	var lost int32
	client.GetOnConnectionLost(func() { atomic.AddInt32(&lost, 1) })

	client.Connect(false, false)
	require.Eventually(t, func() bool { return !client.Active() }, 3*time.Second, 10*time.Millisecond)

	// The session never reached connected state, so the callback must
	// not fire.
	assert.EqualValues(t, 0, atomic.LoadInt32(&lost))
}

func TestConnectSendsConfigurationAndDispatches(t *testing.T) {
	frames := make(chan []byte, 4)
	send := make(chan []byte, 1)
	_, host, _ := newDeviceServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames <- data
		if err := conn.WriteMessage(websocket.TextMessage, <-send); err != nil {
			return
		}
		// Hold the session open until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	button, err := NewButton("Lamp", IconContent(IconLights), "", 0, ButtonStateInactive, false)
	require.NoError(t, err)
	page, err := NewPage("Page", []Button{button})
	require.NoError(t, err)
	cfg, err := NewConfiguration([]Page{page})
	require.NoError(t, err)

	client := NewClient(host, testLogger(), nil)
	client.SetConfiguration(cfg, false)

	var mu sync.Mutex
	var order []string
	var label EventType
	buttonEvents := make(chan ButtonEvent, 1)
	client.GetAllEventsRaw(func(json.RawMessage) {
		mu.Lock()
		order = append(order, "raw")
		mu.Unlock()
	})
	client.GetAllEvents(func(_ Event, l EventType) {
		mu.Lock()
		order = append(order, "all")
		label = l
		mu.Unlock()
	})
	client.GetButtonEvent(func(e ButtonEvent) {
		mu.Lock()
		order = append(order, "button")
		mu.Unlock()
		buttonEvents <- e
	})

	client.Connect(false, true)
	defer client.Disconnect()

	select {
	case frame := <-frames:
		decoded, err := UnmarshalConfigurationFrame(frame)
		require.NoError(t, err)
		assert.Equal(t, cfg.ID, decoded.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("no configuration frame received")
	}

	send <- []byte(`{"event":{"type":"button","id":"` + button.ID + `","state":"pressed"}}`)

	select {
	case event := <-buttonEvents:
		assert.Equal(t, button.ID, event.ID)
		assert.Equal(t, ButtonEventStatePressed, event.State)
	case <-time.After(3 * time.Second):
		t.Fatal("button event not dispatched")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"raw", "all", "button"}, order)
	assert.Equal(t, EventTypeButton, label)
}

func TestUpdateAppliesBookkeepingAndSends(t *testing.T) {
	frames := make(chan []byte, 4)
	_, host, _ := newDeviceServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
		}
	})

	button, err := NewButton("Lamp", IconContent(IconLights), "", 0, ButtonStateInactive, false)
	require.NoError(t, err)
	page, err := NewPage("Page", []Button{button})
	require.NoError(t, err)
	cfg, err := NewConfiguration([]Page{page})
	require.NoError(t, err)

	client := NewClient(host, testLogger(), nil)
	client.SetConfiguration(cfg, false)
	client.Connect(false, false)
	require.Eventually(t, client.Connected, 3*time.Second, 10*time.Millisecond)

	update, err := NewUpdateButton(button.ID, ButtonStateActive, 40)
	require.NoError(t, err)
	assert.True(t, client.Update(update))

	select {
	case frame := <-frames:
		var decoded map[string]map[string]interface{}
		require.NoError(t, json.Unmarshal(frame, &decoded))
		assert.Equal(t, "button", decoded["update"]["type"])
		assert.Equal(t, float64(40), decoded["update"]["value"])
	case <-time.After(3 * time.Second):
		t.Fatal("no update frame received")
	}

	// The owned configuration tracks what the device is showing.
	err = client.WithConfiguration(func(c *Configuration) error {
		b, err := GetButton(c, button.ID)
		require.NoError(t, err)
		assert.Equal(t, ButtonStateActive, b.State)
		assert.Equal(t, 40, b.Value)
		return nil
	})
	require.NoError(t, err)

	client.Disconnect()
	require.Eventually(t, func() bool { return !client.Active() }, 3*time.Second, 10*time.Millisecond)

	// Sends after disconnect are rejected, not queued.
	assert.False(t, client.Update(update))
}

func TestConnectIsIdempotent(t *testing.T) {
	_, host, upgrades := newDeviceServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client := NewClient(host, testLogger(), nil)
	client.Connect(false, false)
	require.Eventually(t, client.Connected, 3*time.Second, 10*time.Millisecond)

	// Second call is a logged no-op.
	client.Connect(false, false)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(upgrades))

	client.Disconnect()
	require.Eventually(t, func() bool { return !client.Active() }, 3*time.Second, 10*time.Millisecond)
}

func TestCheckDeviceConnection(t *testing.T) {
	_, host, _ := newDeviceServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		frame, _ := EncodeEvent(StatusEvent{Type: EventTypeStatus, State: StatusEventStateOK})
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		time.Sleep(100 * time.Millisecond)
	})

	client := NewClient(host, testLogger(), nil)
	assert.NoError(t, client.CheckDeviceConnection(context.Background()))

	unreachable := NewClient("127.0.0.1:1", testLogger(), nil)
	assert.Error(t, unreachable.CheckDeviceConnection(context.Background()))
}

func TestFailedSessionsReleaseReaderGoroutines(t *testing.T) {
	frame, err := EncodeEvent(StatusEvent{Type: EventTypeStatus, State: StatusEventStateOK})
	require.NoError(t, err)
	_, host, _ := newDeviceServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		conn.Close()
	})

	baseline := runtime.NumGoroutine()

	for i := 0; i < 20; i++ {
		client := NewClient(host, testLogger(), nil)
		client.GetStatusEvent(func(StatusEvent) {
			// Queue outbound traffic and stall the session loop so the
			// reader is parked with the next frame when the write to
			// the dead connection fails.
			client.Update(NewUpdateNotification("ping", ""))
			time.Sleep(20 * time.Millisecond)
		})
		client.Connect(false, false)
		require.Eventually(t, func() bool { return !client.Active() }, 3*time.Second, 5*time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline+5
	}, 5*time.Second, 50*time.Millisecond)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	button, err := NewButton("Lamp", IconContent(IconLights), "", 10, ButtonStateInactive, false)
	require.NoError(t, err)
	page, err := NewPage("Page", []Button{button})
	require.NoError(t, err)
	cfg, err := NewConfiguration([]Page{page})
	require.NoError(t, err)

	client := NewClient("halo.local", testLogger(), nil)
	client.SetConfiguration(cfg, false)

	snapshot := client.Snapshot()
	snapshot.Pages[0].Buttons[0].Value = 99
	snapshot.Pages[0].Buttons[0].Content.Icon = IconOff

	err = client.WithConfiguration(func(c *Configuration) error {
		b, err := GetButton(c, button.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, b.Value)
		assert.Equal(t, IconLights, b.Content.Icon)
		return nil
	})
	require.NoError(t, err)
}
