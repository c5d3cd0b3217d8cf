package halosync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beobridge/halo-bridge-go/internal/halo"
)

type recordedCall struct {
	Domain   string
	Service  string
	EntityID string
	Data     map[string]interface{}
}

type fakeCaller struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeCaller) CallService(_ context.Context, domain, service, entityID string, data map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{Domain: domain, Service: service, EntityID: entityID, Data: data})
	return nil
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCaller) take() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeStates struct {
	mu     sync.Mutex
	states map[string]EntityState
	gets   int
}

func (f *fakeStates) GetState(_ context.Context, entityID string) (*EntityState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	st, ok := f.states[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", entityID)
	}
	return &st, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	sync     *Synchronizer
	client   *halo.Client
	caller   *fakeCaller
	states   *fakeStates
	buttonID string
}

// newFixture wires a synchronizer around a disconnected client holding
// one button bound to entityID. Updates are still applied to the owned
// configuration, so visuals can be asserted without a device session.
func newFixture(t *testing.T, entityID string, reflect bool, opts ...Option) *fixture {
	t.Helper()

	button, err := halo.NewButton("Lamp", halo.IconContent(halo.IconLights), "", 0, halo.ButtonStateInactive, false)
	require.NoError(t, err)
	page, err := halo.NewPage("Page", []halo.Button{button})
	require.NoError(t, err)
	cfg, err := halo.NewConfiguration([]halo.Page{page})
	require.NoError(t, err)

	client := halo.NewClient("halo.local", testLogger(), nil)
	client.SetConfiguration(cfg, false)

	caller := &fakeCaller{}
	states := &fakeStates{states: make(map[string]EntityState)}
	s := NewSynchronizer(client, caller, states, testLogger(), opts...)
	s.ReplaceBindings([]Binding{{
		ButtonID:           button.ID,
		EntityID:           entityID,
		ReflectStateAsText: reflect,
	}})

	return &fixture{sync: s, client: client, caller: caller, states: states, buttonID: button.ID}
}

func lightState(entityID, state string, brightness float64) EntityState {
	attrs := map[string]interface{}{}
	if brightness >= 0 {
		attrs["brightness"] = brightness
	}
	return EntityState{EntityID: entityID, Domain: "light", State: state, Attributes: attrs}
}

func TestEntityStateChangeUpdatesButton(t *testing.T) {
	f := newFixture(t, "light.lamp", false)

	f.sync.OnEntityStateChanged(lightState("light.lamp", "on", 127))

	err := f.client.WithConfiguration(func(cfg *halo.Configuration) error {
		button, err := halo.GetButton(cfg, f.buttonID)
		require.NoError(t, err)
		assert.Equal(t, halo.ButtonStateActive, button.State)
		assert.Equal(t, 50, button.Value)
		return nil
	})
	require.NoError(t, err)
}

func TestReflectStateAsTextSetsContent(t *testing.T) {
	f := newFixture(t, "sensor.temperature", true)

	f.sync.OnEntityStateChanged(EntityState{
		EntityID: "sensor.temperature", Domain: "sensor", State: "23.5",
	})

	err := f.client.WithConfiguration(func(cfg *halo.Configuration) error {
		button, err := halo.GetButton(cfg, f.buttonID)
		require.NoError(t, err)
		require.NotNil(t, button.Content)
		assert.Equal(t, "23.5", button.Content.Text)
		return nil
	})
	require.NoError(t, err)
}

func TestIdenticalStateSendsNoFrame(t *testing.T) {
	frames := make(chan []byte, 8)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
		}
	}))
	defer srv.Close()

	button, err := halo.NewButton("Lamp", halo.IconContent(halo.IconLights), "", 0, halo.ButtonStateInactive, false)
	require.NoError(t, err)
	page, err := halo.NewPage("Page", []halo.Button{button})
	require.NoError(t, err)
	cfg, err := halo.NewConfiguration([]halo.Page{page})
	require.NoError(t, err)

	client := halo.NewClient(strings.TrimPrefix(srv.URL, "http://"), testLogger(), nil)
	client.SetConfiguration(cfg, false)

	s := NewSynchronizer(client, &fakeCaller{}, &fakeStates{}, testLogger())
	s.ReplaceBindings([]Binding{{ButtonID: button.ID, EntityID: "light.lamp"}})

	client.Connect(false, false)
	defer client.Disconnect()
	require.Eventually(t, client.Connected, 3*time.Second, 10*time.Millisecond)

	s.OnEntityStateChanged(lightState("light.lamp", "on", 254))
	select {
	case <-frames:
	case <-time.After(3 * time.Second):
		t.Fatal("expected an update frame for the first state change")
	}

	// The same state again matches the recorded visuals and must not
	// produce traffic.
	s.OnEntityStateChanged(lightState("light.lamp", "on", 254))
	select {
	case frame := <-frames:
		t.Fatalf("unexpected frame for unchanged state: %s", frame)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWheelDebounceCoalescesTicks(t *testing.T) {
	f := newFixture(t, "light.lamp", false, WithDebounce(60*time.Millisecond))
	f.sync.OnEntityStateChanged(lightState("light.lamp", "off", -1))

	for i := 0; i < 3; i++ {
		f.sync.OnWheelEvent(halo.WheelEvent{ID: f.buttonID, Counts: 2})
	}

	require.Eventually(t, func() bool { return f.caller.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	calls := f.caller.take()
	assert.Equal(t, "light", calls[0].Domain)
	assert.Equal(t, "turn_on", calls[0].Service)
	assert.Equal(t, "light.lamp", calls[0].EntityID)
	assert.Equal(t, 6, calls[0].Data["brightness_step_pct"])

	// The preview text is rolled back to the original content once the
	// gesture commits.
	require.Eventually(t, func() bool {
		restored := false
		_ = f.client.WithConfiguration(func(cfg *halo.Configuration) error {
			button, err := halo.GetButton(cfg, f.buttonID)
			if err == nil {
				restored = button.Content.Equal(halo.IconContent(halo.IconLights))
			}
			return nil
		})
		return restored
	}, 3*time.Second, 10*time.Millisecond)

	// No further commits for the same gesture.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, f.caller.count())
}

func TestWheelTickReArmsDebounce(t *testing.T) {
	f := newFixture(t, "light.lamp", false, WithDebounce(80*time.Millisecond))

	f.sync.OnWheelEvent(halo.WheelEvent{ID: f.buttonID, Counts: 2})
	time.Sleep(40 * time.Millisecond)
	f.sync.OnWheelEvent(halo.WheelEvent{ID: f.buttonID, Counts: 2})

	require.Eventually(t, func() bool { return f.caller.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	calls := f.caller.take()
	assert.Equal(t, 4, calls[0].Data["brightness_step_pct"])
}

func TestWheelPreviewReplacesButtonText(t *testing.T) {
	f := newFixture(t, "light.lamp", false, WithDebounce(time.Minute))
	defer f.sync.onConnectionLost()

	f.sync.OnWheelEvent(halo.WheelEvent{ID: f.buttonID, Counts: 5})

	err := f.client.WithConfiguration(func(cfg *halo.Configuration) error {
		button, err := halo.GetButton(cfg, f.buttonID)
		require.NoError(t, err)
		require.NotNil(t, button.Content)
		assert.Equal(t, "+5%", button.Content.Text)
		return nil
	})
	require.NoError(t, err)
}

func TestSwitchWheelDeadband(t *testing.T) {
	f := newFixture(t, "switch.fan", false, WithDebounce(50*time.Millisecond))
	f.sync.OnEntityStateChanged(EntityState{EntityID: "switch.fan", Domain: "switch", State: "on"})

	// A single tick sits inside the deadband and the gesture is
	// abandoned without a service call.
	f.sync.OnWheelEvent(halo.WheelEvent{ID: f.buttonID, Counts: -1})
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, f.caller.count())

	f.sync.OnWheelEvent(halo.WheelEvent{ID: f.buttonID, Counts: -2})
	require.Eventually(t, func() bool { return f.caller.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	calls := f.caller.take()
	assert.Equal(t, "switch", calls[0].Domain)
	assert.Equal(t, "turn_off", calls[0].Service)
}

func TestSwitchWheelTowardCurrentStateDoesNothing(t *testing.T) {
	f := newFixture(t, "switch.fan", false, WithDebounce(50*time.Millisecond))
	f.sync.OnEntityStateChanged(EntityState{EntityID: "switch.fan", Domain: "switch", State: "on"})

	// Turning clockwise on a switch that is already on must not fire
	// turn_on; the gesture is abandoned.
	f.sync.OnWheelEvent(halo.WheelEvent{ID: f.buttonID, Counts: 2})
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, f.caller.count())

	f.sync.OnEntityStateChanged(EntityState{EntityID: "switch.fan", Domain: "switch", State: "off"})
	f.sync.OnWheelEvent(halo.WheelEvent{ID: f.buttonID, Counts: -2})
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, f.caller.count())
}

func TestWheelAccumulatorSharedAcrossButtons(t *testing.T) {
	first, err := halo.NewButton("Lamp", halo.IconContent(halo.IconLights), "", 0, halo.ButtonStateInactive, false)
	require.NoError(t, err)
	second, err := halo.NewButton("Lamp too", halo.IconContent(halo.IconLights), "", 0, halo.ButtonStateInactive, false)
	require.NoError(t, err)
	page, err := halo.NewPage("Page", []halo.Button{first, second})
	require.NoError(t, err)
	cfg, err := halo.NewConfiguration([]halo.Page{page})
	require.NoError(t, err)

	client := halo.NewClient("halo.local", testLogger(), nil)
	client.SetConfiguration(cfg, false)

	caller := &fakeCaller{}
	s := NewSynchronizer(client, caller, &fakeStates{}, testLogger(), WithDebounce(60*time.Millisecond))
	s.ReplaceBindings([]Binding{
		{ButtonID: first.ID, EntityID: "light.lamp"},
		{ButtonID: second.ID, EntityID: "light.lamp"},
	})

	// Ticks on sibling buttons of the same entity land in one
	// accumulator and commit once.
	s.OnWheelEvent(halo.WheelEvent{ID: first.ID, Counts: 2})
	s.OnWheelEvent(halo.WheelEvent{ID: second.ID, Counts: 2})

	require.Eventually(t, func() bool { return caller.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	calls := caller.take()
	assert.Equal(t, "turn_on", calls[0].Service)
	assert.Equal(t, 4, calls[0].Data["brightness_step_pct"])

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, caller.count())
}

func TestButtonPressTogglesOnRelease(t *testing.T) {
	f := newFixture(t, "light.lamp", false)
	f.sync.OnEntityStateChanged(lightState("light.lamp", "on", 254))

	f.sync.OnButtonEvent(halo.ButtonEvent{ID: f.buttonID, State: halo.ButtonEventStatePressed})
	assert.Equal(t, 0, f.caller.count())

	f.sync.OnButtonEvent(halo.ButtonEvent{ID: f.buttonID, State: halo.ButtonEventStateReleased})
	want := []recordedCall{{Domain: "light", Service: "toggle", EntityID: "light.lamp"}}
	if diff := cmp.Diff(want, f.caller.take()); diff != "" {
		t.Errorf("unexpected service calls (-want +got):\n%s", diff)
	}
}

func TestButtonPressUsesOverride(t *testing.T) {
	f := newFixture(t, "light.lamp", false)
	f.sync.ReplaceBindings([]Binding{{
		ButtonID: f.buttonID,
		EntityID: "light.lamp",
		PressOverride: &ServiceAction{
			Domain:  "scene",
			Service: "turn_on",
			Data:    map[string]interface{}{"transition": 2},
		},
	}})
	f.sync.OnEntityStateChanged(lightState("light.lamp", "on", 254))

	f.sync.OnButtonEvent(halo.ButtonEvent{ID: f.buttonID, State: halo.ButtonEventStateReleased})
	calls := f.caller.take()
	require.Len(t, calls, 1)
	assert.Equal(t, "scene", calls[0].Domain)
	assert.Equal(t, "turn_on", calls[0].Service)
	assert.Equal(t, 2, calls[0].Data["transition"])
}

func TestButtonPressFetchesUncachedState(t *testing.T) {
	f := newFixture(t, "switch.fan", false)
	f.states.states["switch.fan"] = EntityState{EntityID: "switch.fan", Domain: "switch", State: "off"}

	f.sync.OnButtonEvent(halo.ButtonEvent{ID: f.buttonID, State: halo.ButtonEventStateReleased})
	calls := f.caller.take()
	require.Len(t, calls, 1)
	assert.Equal(t, "toggle", calls[0].Service)
	assert.Equal(t, 1, f.states.gets)
}

func TestButtonPressUnknownEntityDoesNothing(t *testing.T) {
	f := newFixture(t, "switch.fan", false)

	f.sync.OnButtonEvent(halo.ButtonEvent{ID: f.buttonID, State: halo.ButtonEventStateReleased})
	assert.Equal(t, 0, f.caller.count())
}

func TestConnectionLostAbandonsWheel(t *testing.T) {
	f := newFixture(t, "light.lamp", false, WithDebounce(50*time.Millisecond))

	f.sync.OnWheelEvent(halo.WheelEvent{ID: f.buttonID, Counts: 10})
	f.sync.onConnectionLost()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, f.caller.count())
}

func TestReplaceBindingsAbandonsWheel(t *testing.T) {
	f := newFixture(t, "light.lamp", false, WithDebounce(50*time.Millisecond))

	f.sync.OnWheelEvent(halo.WheelEvent{ID: f.buttonID, Counts: 10})
	f.sync.ReplaceBindings(nil)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, f.caller.count())
	assert.Empty(t, f.sync.Bindings())
}

func TestResyncRefreshesBoundEntities(t *testing.T) {
	f := newFixture(t, "light.lamp", false)
	f.states.states["light.lamp"] = lightState("light.lamp", "on", 254)

	f.sync.Resync(context.Background())

	err := f.client.WithConfiguration(func(cfg *halo.Configuration) error {
		button, err := halo.GetButton(cfg, f.buttonID)
		require.NoError(t, err)
		assert.Equal(t, halo.ButtonStateActive, button.State)
		assert.Equal(t, halo.MaxValue, button.Value)
		return nil
	})
	require.NoError(t, err)
}

type recordedTelemetry struct {
	mu        sync.Mutex
	power     []int
	connected []bool
}

func (r *recordedTelemetry) PowerChanged(capacity int, _ halo.PowerEventState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.power = append(r.power, capacity)
}

func (r *recordedTelemetry) SystemChanged(halo.SystemEventState) {}

func (r *recordedTelemetry) ConnectionChanged(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, connected)
}

func TestConnectionLostReachesTelemetrySink(t *testing.T) {
	sink := &recordedTelemetry{}
	f := newFixture(t, "light.lamp", false, WithTelemetrySink(sink))

	f.sync.onConnectionLost()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []bool{false}, sink.connected)
}
