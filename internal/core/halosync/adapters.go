package halosync

import (
	"fmt"
	"strconv"

	"github.com/beobridge/halo-bridge-go/internal/halo"
)

// Cover supported_features bits, as reported by Home Assistant.
const (
	coverSupportOpen            = 1
	coverSupportClose           = 2
	coverSupportSetPosition     = 4
	coverSupportOpenTilt        = 16
	coverSupportCloseTilt       = 32
	coverSupportSetTiltPosition = 128
)

// WheelStep is an adapter's verdict on an accumulated wheel gesture:
// a preview label for the button and the action to run on commit. A
// nil WheelStep means the gesture has no effect and is abandoned.
type WheelStep struct {
	Label  string
	Action ServiceAction
}

// DomainAdapter translates between one entity domain and button
// semantics. ComputeDisplay maps entity state to button visuals,
// HandlePress maps a press-and-release to a service call (nil for
// read-only domains), ComputeWheelStep maps an accumulated wheel
// counter to a previewable action (nil when the domain has no wheel
// behavior or the gesture would be a no-op).
type DomainAdapter interface {
	ComputeDisplay(st EntityState) (halo.ButtonState, int)
	HandlePress(st EntityState, current halo.Button) *ServiceAction
	ComputeWheelStep(st EntityState, counter int) *WheelStep
}

// AdapterForDomain selects the adapter for an entity domain. Unknown
// domains get a display-only adapter that never acts.
func AdapterForDomain(domain string) DomainAdapter {
	switch domain {
	case "switch", "input_boolean":
		return binaryAdapter{domain: domain}
	case "binary_sensor":
		return binaryAdapter{domain: domain, readOnly: true}
	case "light":
		return lightAdapter{}
	case "cover":
		return coverAdapter{}
	case "number", "input_number":
		return numberAdapter{domain: domain}
	case "sensor":
		return numberAdapter{domain: domain, readOnly: true}
	case "scene":
		return sceneAdapter{}
	case "script":
		return scriptAdapter{}
	case "button", "input_button":
		return pressAdapter{domain: domain}
	default:
		return noopAdapter{}
	}
}

// binaryAdapter covers on/off entities. The wheel acts as a coarse
// on/off lever with a small deadband so a single stray tick does not
// flip the entity.
type binaryAdapter struct {
	domain   string
	readOnly bool
}

const binaryWheelDeadband = 2

func (binaryAdapter) ComputeDisplay(st EntityState) (halo.ButtonState, int) {
	if st.State == "on" {
		return halo.ButtonStateActive, halo.MaxValue
	}
	return halo.ButtonStateInactive, halo.MinValue
}

func (a binaryAdapter) HandlePress(EntityState, halo.Button) *ServiceAction {
	if a.readOnly {
		return nil
	}
	return &ServiceAction{Domain: a.domain, Service: "toggle"}
}

func (a binaryAdapter) ComputeWheelStep(st EntityState, counter int) *WheelStep {
	if a.readOnly {
		return nil
	}
	// Turning an entity further in the direction it already sits is a
	// no-op, not a service call.
	switch {
	case counter >= binaryWheelDeadband && st.State != "on":
		return &WheelStep{Label: "on", Action: ServiceAction{Domain: a.domain, Service: "turn_on"}}
	case counter <= -binaryWheelDeadband && st.State == "on":
		return &WheelStep{Label: "off", Action: ServiceAction{Domain: a.domain, Service: "turn_off"}}
	default:
		return nil
	}
}

type lightAdapter struct{}

func (lightAdapter) ComputeDisplay(st EntityState) (halo.ButtonState, int) {
	state := halo.ButtonStateInactive
	if st.State == "on" {
		state = halo.ButtonStateActive
	}
	brightness, ok := st.attrFloat("brightness")
	if !ok {
		if state == halo.ButtonStateActive {
			return state, halo.MaxValue
		}
		return state, halo.MinValue
	}
	return state, halo.InterpolateButtonValue(brightness, 0, 254)
}

func (lightAdapter) HandlePress(EntityState, halo.Button) *ServiceAction {
	return &ServiceAction{Domain: "light", Service: "toggle"}
}

func (lightAdapter) ComputeWheelStep(st EntityState, counter int) *WheelStep {
	pct := counter
	if pct > 100 {
		pct = 100
	} else if pct < -100 {
		pct = -100
	}
	if pct == 0 {
		return nil
	}
	return &WheelStep{
		Label: fmt.Sprintf("%+d%%", pct),
		Action: ServiceAction{
			Domain:  "light",
			Service: "turn_on",
			Data:    map[string]interface{}{"brightness_step_pct": pct},
		},
	}
}

// coverAdapter prefers plain position handling and falls back to tilt
// when the cover only supports tilt.
type coverAdapter struct{}

func (a coverAdapter) ComputeDisplay(st EntityState) (halo.ButtonState, int) {
	state := halo.ButtonStateInactive
	if st.State == "closed" {
		state = halo.ButtonStateActive
	}
	position, ok := a.position(st)
	if !ok {
		return state, halo.MinValue
	}
	return state, halo.ClampButtonValue(float64(position))
}

func (a coverAdapter) HandlePress(st EntityState, _ halo.Button) *ServiceAction {
	if a.supportsPosition(st) {
		return &ServiceAction{Domain: "cover", Service: "toggle"}
	}
	if a.supportsTilt(st) {
		return &ServiceAction{Domain: "cover", Service: "toggle_cover_tilt"}
	}
	return &ServiceAction{Domain: "cover", Service: "toggle"}
}

func (a coverAdapter) ComputeWheelStep(st EntityState, counter int) *WheelStep {
	position, ok := a.position(st)
	if !ok {
		return nil
	}
	target := halo.ClampButtonValue(float64(position + counter))
	if target == position {
		return nil
	}

	service, key := "set_cover_position", "position"
	if !a.supportsPosition(st) && a.supportsTilt(st) {
		service, key = "set_cover_tilt_position", "tilt_position"
	}
	return &WheelStep{
		Label: fmt.Sprintf("%d%%", target),
		Action: ServiceAction{
			Domain:  "cover",
			Service: service,
			Data:    map[string]interface{}{key: target},
		},
	}
}

func (a coverAdapter) position(st EntityState) (int, bool) {
	if a.supportsPosition(st) || !a.supportsTilt(st) {
		return st.attrInt("current_position")
	}
	return st.attrInt("current_tilt_position")
}

func (coverAdapter) supportsPosition(st EntityState) bool {
	features, _ := st.attrInt("supported_features")
	return features&(coverSupportOpen|coverSupportClose|coverSupportSetPosition) != 0
}

func (coverAdapter) supportsTilt(st EntityState) bool {
	features, _ := st.attrInt("supported_features")
	return features&(coverSupportOpenTilt|coverSupportCloseTilt|coverSupportSetTiltPosition) != 0
}

// numberAdapter covers range-valued entities. A press jumps to the far
// bound, the wheel nudges by the entity's step attribute.
type numberAdapter struct {
	domain   string
	readOnly bool
}

func (a numberAdapter) ComputeDisplay(st EntityState) (halo.ButtonState, int) {
	current, err := strconv.ParseFloat(st.State, 64)
	if err != nil {
		return halo.ButtonStateInactive, halo.MinValue
	}

	var value int
	min, okMin := st.attrFloat("min")
	max, okMax := st.attrFloat("max")
	if okMin && okMax && max > min {
		value = halo.InterpolateButtonValue(current, min, max)
	} else {
		value = halo.ClampButtonValue(current)
	}

	state := halo.ButtonStateInactive
	if value > 50 {
		state = halo.ButtonStateActive
	}
	return state, value
}

func (a numberAdapter) HandlePress(st EntityState, current halo.Button) *ServiceAction {
	if a.readOnly {
		return nil
	}
	min, okMin := st.attrFloat("min")
	max, okMax := st.attrFloat("max")
	if !okMin || !okMax {
		return nil
	}

	target := max
	if current.State == halo.ButtonStateActive {
		target = min
	}
	return &ServiceAction{
		Domain:  a.domain,
		Service: "set_value",
		Data:    map[string]interface{}{"value": target},
	}
}

func (a numberAdapter) ComputeWheelStep(st EntityState, counter int) *WheelStep {
	if a.readOnly {
		return nil
	}
	current, err := strconv.ParseFloat(st.State, 64)
	if err != nil {
		return nil
	}

	step, ok := st.attrFloat("step")
	if !ok || step <= 0 {
		step = 1
	}
	target := current + float64(counter)*step
	if min, ok := st.attrFloat("min"); ok && target < min {
		target = min
	}
	if max, ok := st.attrFloat("max"); ok && target > max {
		target = max
	}
	if target == current {
		return nil
	}
	return &WheelStep{
		Label: strconv.FormatFloat(target, 'f', -1, 64),
		Action: ServiceAction{
			Domain:  a.domain,
			Service: "set_value",
			Data:    map[string]interface{}{"value": target},
		},
	}
}

type sceneAdapter struct{}

func (sceneAdapter) ComputeDisplay(EntityState) (halo.ButtonState, int) {
	return halo.ButtonStateInactive, halo.MinValue
}

func (sceneAdapter) HandlePress(EntityState, halo.Button) *ServiceAction {
	return &ServiceAction{Domain: "scene", Service: "turn_on"}
}

func (sceneAdapter) ComputeWheelStep(EntityState, int) *WheelStep { return nil }

type scriptAdapter struct{}

func (scriptAdapter) ComputeDisplay(EntityState) (halo.ButtonState, int) {
	return halo.ButtonStateInactive, halo.MinValue
}

func (scriptAdapter) HandlePress(EntityState, halo.Button) *ServiceAction {
	return &ServiceAction{Domain: "script", Service: "turn_on"}
}

func (scriptAdapter) ComputeWheelStep(EntityState, int) *WheelStep { return nil }

type pressAdapter struct {
	domain string
}

func (pressAdapter) ComputeDisplay(EntityState) (halo.ButtonState, int) {
	return halo.ButtonStateInactive, halo.MinValue
}

func (a pressAdapter) HandlePress(EntityState, halo.Button) *ServiceAction {
	return &ServiceAction{Domain: a.domain, Service: "press"}
}

func (pressAdapter) ComputeWheelStep(EntityState, int) *WheelStep { return nil }

// noopAdapter keeps unknown domains visible but inert.
type noopAdapter struct{}

func (noopAdapter) ComputeDisplay(EntityState) (halo.ButtonState, int) {
	return halo.ButtonStateInactive, halo.MinValue
}

func (noopAdapter) HandlePress(EntityState, halo.Button) *ServiceAction { return nil }

func (noopAdapter) ComputeWheelStep(EntityState, int) *WheelStep { return nil }
