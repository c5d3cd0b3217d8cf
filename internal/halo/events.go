package halo

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the concrete variant of an inbound event. The
// values double as the wire discriminator and the label handed to the
// catch-all callback.
type EventType string

const (
	EventTypeButton EventType = "button"
	EventTypeWheel  EventType = "wheel"
	EventTypePower  EventType = "power"
	EventTypeStatus EventType = "status"
	EventTypeSystem EventType = "system"
)

// Event is an inbound message from the Halo.
type Event interface {
	EventType() EventType
}

// ButtonEventState is the press phase reported by a ButtonEvent.
type ButtonEventState string

const (
	ButtonEventStatePressed  ButtonEventState = "pressed"
	ButtonEventStateReleased ButtonEventState = "released"
)

// ButtonEvent reports a button press or release.
type ButtonEvent struct {
	Type  EventType        `json:"type"`
	ID    string           `json:"id"`
	State ButtonEventState `json:"state"`
}

func (ButtonEvent) EventType() EventType { return EventTypeButton }

// WheelEvent reports rotary movement on a button. Counts is signed and
// momentum scaled: 1 for a slow tick up to 5 for a fast clockwise
// spin, negative for counter-clockwise.
type WheelEvent struct {
	Type   EventType `json:"type"`
	ID     string    `json:"id"`
	Counts int       `json:"counts"`
}

func (WheelEvent) EventType() EventType { return EventTypeWheel }

// PowerEventState is the battery condition reported by a PowerEvent.
type PowerEventState string

const (
	PowerEventStateCharging    PowerEventState = "charging"
	PowerEventStateFull        PowerEventState = "full"
	PowerEventStateLow         PowerEventState = "low"
	PowerEventStateCritical    PowerEventState = "critical"
	PowerEventStateFault       PowerEventState = "fault"
	PowerEventStateDischarging PowerEventState = "discharging"
)

// PowerEvent reports battery capacity and charge state.
type PowerEvent struct {
	Type     EventType       `json:"type"`
	Capacity int             `json:"capacity"`
	State    PowerEventState `json:"state"`
}

func (PowerEvent) EventType() EventType { return EventTypePower }

// StatusEventState is the outcome reported by a StatusEvent.
type StatusEventState string

const (
	StatusEventStateOK    StatusEventState = "ok"
	StatusEventStateError StatusEventState = "error"
)

// StatusEvent acknowledges a configuration or update, or reports why
// the Halo rejected one.
type StatusEvent struct {
	Type    EventType        `json:"type"`
	State   StatusEventState `json:"state"`
	Message string           `json:"message,omitempty"`
}

func (StatusEvent) EventType() EventType { return EventTypeStatus }

// SystemEventState is the device power mode reported by a SystemEvent.
type SystemEventState string

const (
	SystemEventStateActive  SystemEventState = "active"
	SystemEventStateStandby SystemEventState = "standby"
	SystemEventStateSleep   SystemEventState = "sleep"
)

// SystemEvent reports the device entering active, standby or sleep.
type SystemEvent struct {
	Type  EventType        `json:"type"`
	State SystemEventState `json:"state"`
}

func (SystemEvent) EventType() EventType { return EventTypeSystem }

// DecodeEvent deserializes an inbound {"event": ...} frame into its
// concrete variant, selected by the type discriminator.
func DecodeEvent(data []byte) (Event, error) {
	var envelope struct {
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &DecodeError{Payload: data, Err: err}
	}
	if len(envelope.Event) == 0 {
		return nil, &DecodeError{Payload: data, Err: fmt.Errorf("missing event object")}
	}

	var discriminator struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(envelope.Event, &discriminator); err != nil {
		return nil, &DecodeError{Payload: data, Err: err}
	}

	var (
		event Event
		err   error
	)
	switch discriminator.Type {
	case EventTypeButton:
		var e ButtonEvent
		err = json.Unmarshal(envelope.Event, &e)
		event = e
	case EventTypeWheel:
		var e WheelEvent
		err = json.Unmarshal(envelope.Event, &e)
		event = e
	case EventTypePower:
		var e PowerEvent
		err = json.Unmarshal(envelope.Event, &e)
		event = e
	case EventTypeStatus:
		var e StatusEvent
		err = json.Unmarshal(envelope.Event, &e)
		event = e
	case EventTypeSystem:
		var e SystemEvent
		err = json.Unmarshal(envelope.Event, &e)
		event = e
	default:
		return nil, &DecodeError{Payload: data, Err: fmt.Errorf("unknown event type %q", discriminator.Type)}
	}
	if err != nil {
		return nil, &DecodeError{Payload: data, Err: err}
	}
	return event, nil
}

// EncodeEvent serializes an event as an inbound-shaped frame. Used by
// tests and by the diagnostics surface.
func EncodeEvent(event Event) ([]byte, error) {
	return json.Marshal(struct {
		Event Event `json:"event"`
	}{event})
}
