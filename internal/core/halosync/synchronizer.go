package halosync

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beobridge/halo-bridge-go/internal/halo"
)

// DefaultDebounce is how long after the last wheel tick the
// accumulated gesture commits.
const DefaultDebounce = time.Second

const serviceCallTimeout = 10 * time.Second

// TelemetrySink receives device telemetry the synchronizer has no use
// for itself (battery, system state, connectivity). Optional.
type TelemetrySink interface {
	PowerChanged(capacity int, state halo.PowerEventState)
	SystemChanged(state halo.SystemEventState)
	ConnectionChanged(connected bool)
}

// GestureMetrics counts acted-on gestures and the service calls they
// produce. Optional.
type GestureMetrics interface {
	ServiceCalled(domain, service string)
	WheelCommitted()
	ButtonPressed()
}

// wheelState tracks one entity's in-flight wheel gesture. counter
// accumulates signed ticks across every button bound to the entity;
// buttonID is the button carrying the preview; timer is the pending
// commit, replaced on every tick; saved holds that button's
// pre-preview content so it can be put back after the commit.
type wheelState struct {
	buttonID string
	counter  int
	timer    *time.Timer
	saved    *halo.Content
	hasSaved bool
}

type boundButton struct {
	binding Binding
	adapter DomainAdapter
}

// Synchronizer keeps Halo button visuals consistent with bound entity
// states and turns button and wheel gestures into service calls. It
// owns the wheel debounce state machines, one per tracked entity.
type Synchronizer struct {
	client   *halo.Client
	caller   ServiceCaller
	states   StateProvider
	logger   *logrus.Entry
	debounce time.Duration
	sink     TelemetrySink
	metrics  GestureMetrics

	mu       sync.Mutex
	bindings map[string]boundButton
	byEntity map[string][]string
	cache    map[string]EntityState
	wheels   map[string]*wheelState
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithDebounce overrides the wheel commit window.
func WithDebounce(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithTelemetrySink forwards power, system and connectivity signals.
func WithTelemetrySink(sink TelemetrySink) Option {
	return func(s *Synchronizer) { s.sink = sink }
}

// WithGestureMetrics counts gestures and service calls.
func WithGestureMetrics(m GestureMetrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

func NewSynchronizer(client *halo.Client, caller ServiceCaller, states StateProvider, logger *logrus.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		client:   client,
		caller:   caller,
		states:   states,
		logger:   logger.WithField("component", "halosync"),
		debounce: DefaultDebounce,
		bindings: make(map[string]boundButton),
		byEntity: make(map[string][]string),
		cache:    make(map[string]EntityState),
		wheels:   make(map[string]*wheelState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach registers the synchronizer's handlers on the client. Call
// once before Connect.
func (s *Synchronizer) Attach() {
	s.client.GetButtonEvent(s.OnButtonEvent)
	s.client.GetWheelEvent(s.OnWheelEvent)
	s.client.GetOnConnection(s.onConnection)
	s.client.GetOnConnectionLost(s.onConnectionLost)
	if s.sink != nil {
		s.client.GetPowerEvent(func(e halo.PowerEvent) {
			s.sink.PowerChanged(e.Capacity, e.State)
		})
		s.client.GetSystemEvent(func(e halo.SystemEvent) {
			s.sink.SystemChanged(e.State)
		})
	}
}

// ReplaceBindings swaps the whole binding set. Wheel gestures for
// buttons that are no longer bound are abandoned; deleting a button
// does not clean up its binding anywhere else, so this is the place.
func (s *Synchronizer) ReplaceBindings(bindings []Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]boundButton, len(bindings))
	byEntity := make(map[string][]string, len(bindings))
	for _, b := range bindings {
		next[b.ButtonID] = boundButton{binding: b, adapter: AdapterForDomain(b.EntityDomain())}
		byEntity[b.EntityID] = append(byEntity[b.EntityID], b.ButtonID)
	}

	for entityID, w := range s.wheels {
		b, still := next[w.buttonID]
		if !still || b.binding.EntityID != entityID {
			if w.timer != nil {
				w.timer.Stop()
			}
			delete(s.wheels, entityID)
		}
	}

	s.bindings = next
	s.byEntity = byEntity
}

// Bindings returns a copy of the current binding set.
func (s *Synchronizer) Bindings() []Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Binding, 0, len(s.bindings))
	for _, b := range s.bindings {
		out = append(out, b.binding)
	}
	return out
}

// OnEntityStateChanged feeds one observed entity state change into the
// outbound sync path. Buttons whose recorded visuals already match are
// skipped so an unchanged state never produces network traffic.
func (s *Synchronizer) OnEntityStateChanged(st EntityState) {
	s.mu.Lock()
	s.cache[st.EntityID] = st
	buttons := make([]boundButton, 0, 1)
	for _, buttonID := range s.byEntity[st.EntityID] {
		if b, ok := s.bindings[buttonID]; ok {
			buttons = append(buttons, b)
		}
	}
	s.mu.Unlock()

	for _, b := range buttons {
		s.syncButton(b, st)
	}
}

func (s *Synchronizer) syncButton(b boundButton, st EntityState) {
	state, value := b.adapter.ComputeDisplay(st)
	text := halo.TrimButtonText(st.State)

	changed := false
	err := s.client.WithConfiguration(func(cfg *halo.Configuration) error {
		button, err := halo.GetButton(cfg, b.binding.ButtonID)
		if err != nil {
			return err
		}
		if button.State != state || button.Value != value {
			changed = true
		}
		if b.binding.ReflectStateAsText {
			current := ""
			if button.Content != nil {
				current = button.Content.Text
			}
			if current != text {
				changed = true
			}
		}
		return nil
	})
	if err != nil {
		// Stale binding, the button was edited away.
		s.logger.WithError(err).WithField("button_id", b.binding.ButtonID).Debug("Skipping update for unknown button")
		return
	}
	if !changed {
		return
	}

	update, err := halo.NewUpdateButton(b.binding.ButtonID, state, value)
	if err != nil {
		s.logger.WithError(err).Error("Unable to build button update")
		return
	}
	if b.binding.ReflectStateAsText {
		update.Content = halo.TextContent(text)
	}
	s.client.Update(update)
}

// OnButtonEvent acts on press-and-release only; the pressed half of
// the pair is ignored so a press never fires twice.
func (s *Synchronizer) OnButtonEvent(e halo.ButtonEvent) {
	if e.State != halo.ButtonEventStateReleased {
		return
	}

	s.mu.Lock()
	b, ok := s.bindings[e.ID]
	if !ok {
		s.mu.Unlock()
		return
	}
	st, haveState := s.cache[b.binding.EntityID]
	s.mu.Unlock()
	if !haveState {
		fetched, err := s.fetchState(b.binding.EntityID)
		if err != nil {
			s.logger.WithError(err).WithField("entity_id", b.binding.EntityID).Warn("No state for pressed button")
			return
		}
		st = fetched
	}

	action := b.binding.PressOverride
	if action == nil {
		current, err := s.currentButton(e.ID)
		if err != nil {
			s.logger.WithError(err).WithField("button_id", e.ID).Debug("Pressed button not in configuration")
			return
		}
		action = b.adapter.HandlePress(st, current)
	}
	if action == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.ButtonPressed()
	}
	s.callService(*action, b.binding.EntityID)
}

// OnWheelEvent accumulates ticks and previews the eventual action on
// the button itself; the real service call waits until the wheel has
// been idle for the debounce window. The accumulator is shared by
// every button bound to the entity. A gesture the adapter deems a
// no-op is abandoned immediately.
func (s *Synchronizer) OnWheelEvent(e halo.WheelEvent) {
	s.mu.Lock()
	b, ok := s.bindings[e.ID]
	if !ok {
		s.mu.Unlock()
		return
	}
	entityID := b.binding.EntityID
	st := s.cache[entityID]

	w := s.wheels[entityID]
	if w == nil {
		w = &wheelState{buttonID: e.ID}
		s.wheels[entityID] = w
	}

	// The gesture moved to a sibling button of the same entity. Put the
	// old button's content back and carry the preview on the new one.
	var stale *halo.UpdateButton
	if w.buttonID != e.ID {
		if prev, bound := s.bindings[w.buttonID]; bound && w.hasSaved && !prev.binding.ReflectStateAsText && w.saved != nil {
			update := halo.NewUpdateButtonContent(w.buttonID, w.saved)
			stale = &update
		}
		w.saved = nil
		w.hasSaved = false
		w.buttonID = e.ID
	}
	w.counter += e.Counts

	step := b.adapter.ComputeWheelStep(st, w.counter)
	if step == nil {
		restore := s.resetWheelLocked(w, b.binding)
		s.mu.Unlock()
		if stale != nil {
			s.client.Update(*stale)
		}
		if restore != nil {
			s.client.Update(*restore)
		}
		return
	}

	if !w.hasSaved {
		w.hasSaved = true
		_ = s.client.WithConfiguration(func(cfg *halo.Configuration) error {
			button, err := halo.GetButton(cfg, e.ID)
			if err != nil || button.Content == nil {
				return nil
			}
			content := *button.Content
			w.saved = &content
			return nil
		})
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(s.debounce, func() { s.commitWheel(entityID) })
	s.mu.Unlock()

	if stale != nil {
		s.client.Update(*stale)
	}
	s.client.Update(halo.NewUpdateButtonContent(e.ID, halo.TextContent(halo.TrimButtonText(step.Label))))
}

func (s *Synchronizer) commitWheel(entityID string) {
	s.mu.Lock()
	w := s.wheels[entityID]
	if w == nil || w.counter == 0 {
		s.mu.Unlock()
		return
	}
	b, bound := s.bindings[w.buttonID]
	if !bound {
		s.mu.Unlock()
		return
	}
	st := s.cache[entityID]
	counter := w.counter
	restore := s.resetWheelLocked(w, b.binding)
	s.mu.Unlock()

	// Recompute from the final counter so a tick that arrived after
	// the preview still lands in the committed action.
	if step := b.adapter.ComputeWheelStep(st, counter); step != nil {
		if s.metrics != nil {
			s.metrics.WheelCommitted()
		}
		s.callService(step.Action, b.binding.EntityID)
	}
	if restore != nil {
		s.client.Update(*restore)
	}
}

// resetWheelLocked returns the gesture to idle and hands back the
// restore update, if any. With reflect-state-as-text the entity's next
// state change rewrites the text anyway, so nothing is restored.
func (s *Synchronizer) resetWheelLocked(w *wheelState, binding Binding) *halo.UpdateButton {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.counter = 0

	var restore *halo.UpdateButton
	if w.hasSaved && !binding.ReflectStateAsText && w.saved != nil {
		update := halo.NewUpdateButtonContent(binding.ButtonID, w.saved)
		restore = &update
	}
	w.saved = nil
	w.hasSaved = false
	return restore
}

// callService runs one action against the bound entity. Failures are
// logged and swallowed so a bad gesture cannot take the remote session
// down with it.
func (s *Synchronizer) callService(action ServiceAction, entityID string) {
	ctx, cancel := context.WithTimeout(context.Background(), serviceCallTimeout)
	defer cancel()

	if s.metrics != nil {
		s.metrics.ServiceCalled(action.Domain, action.Service)
	}
	if err := s.caller.CallService(ctx, action.Domain, action.Service, entityID, action.Data); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"entity_id": entityID,
			"service":   action.Domain + "." + action.Service,
		}).Warn("Service call failed")
	}
}

func (s *Synchronizer) currentButton(buttonID string) (halo.Button, error) {
	var current halo.Button
	err := s.client.WithConfiguration(func(cfg *halo.Configuration) error {
		button, err := halo.GetButton(cfg, buttonID)
		if err != nil {
			return err
		}
		current = *button
		return nil
	})
	return current, err
}

func (s *Synchronizer) fetchState(entityID string) (EntityState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), serviceCallTimeout)
	defer cancel()

	st, err := s.states.GetState(ctx, entityID)
	if err != nil {
		return EntityState{}, err
	}
	s.mu.Lock()
	s.cache[entityID] = *st
	s.mu.Unlock()
	return *st, nil
}

// Resync refreshes every bound entity's state and pushes the resulting
// button visuals. Used after (re)connect, when the device has just
// received the full configuration and needs current values on top.
func (s *Synchronizer) Resync(ctx context.Context) {
	s.mu.Lock()
	entities := make([]string, 0, len(s.byEntity))
	for entityID := range s.byEntity {
		entities = append(entities, entityID)
	}
	s.mu.Unlock()

	for _, entityID := range entities {
		st, err := s.states.GetState(ctx, entityID)
		if err != nil {
			s.logger.WithError(err).WithField("entity_id", entityID).Warn("Unable to refresh entity state")
			continue
		}
		s.OnEntityStateChanged(*st)
	}
}

func (s *Synchronizer) onConnection() {
	if s.sink != nil {
		s.sink.ConnectionChanged(true)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), serviceCallTimeout)
		defer cancel()
		s.Resync(ctx)
	}()
}

// onConnectionLost abandons every in-flight wheel gesture. A commit
// fired mid-outage would be dropped by the inactive transport anyway,
// and the counter would be stale by the time the session returns.
func (s *Synchronizer) onConnectionLost() {
	if s.sink != nil {
		s.sink.ConnectionChanged(false)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wheels {
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.counter = 0
		w.saved = nil
		w.hasSaved = false
	}
}
