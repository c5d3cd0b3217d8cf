package halosync

import (
	"context"
)

// EntityState is one entity's current state as reported by the home
// automation backend. Attributes carries the raw attribute map.
type EntityState struct {
	EntityID   string
	Domain     string
	State      string
	Attributes map[string]interface{}
}

// attrFloat reads a numeric attribute. Home Assistant serializes
// numbers as float64 over JSON but integers can appear after local
// construction, so both are accepted.
func (s EntityState) attrFloat(key string) (float64, bool) {
	raw, ok := s.Attributes[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func (s EntityState) attrInt(key string) (int, bool) {
	f, ok := s.attrFloat(key)
	return int(f), ok
}

// StateProvider fetches entity states on demand, used to seed button
// displays when a device session is established.
type StateProvider interface {
	GetState(ctx context.Context, entityID string) (*EntityState, error)
}

// ServiceCaller executes a service call against the backend.
type ServiceCaller interface {
	CallService(ctx context.Context, domain, service, entityID string, data map[string]interface{}) error
}

// ServiceAction is one service call an adapter wants executed.
type ServiceAction struct {
	Domain  string                 `json:"domain"`
	Service string                 `json:"service"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Binding ties one Halo button to one entity. ReflectStateAsText makes
// the entity state double as the button text, in which case wheel
// previews are not restored after commit. PressOverride replaces the
// adapter's press action when set.
type Binding struct {
	ButtonID           string         `json:"button_id" db:"button_id"`
	EntityID           string         `json:"entity_id" db:"entity_id"`
	ReflectStateAsText bool           `json:"reflect_state_as_text" db:"reflect_text"`
	PressOverride      *ServiceAction `json:"press_override,omitempty"`
}

// EntityDomain extracts the domain from the binding's entity ID.
func (b Binding) EntityDomain() string {
	for i := 0; i < len(b.EntityID); i++ {
		if b.EntityID[i] == '.' {
			return b.EntityID[:i]
		}
	}
	return ""
}
