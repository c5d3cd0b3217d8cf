package halo

import "encoding/json"

// UpdateType identifies the concrete variant of an outbound update.
type UpdateType string

const (
	UpdateTypeButton       UpdateType = "button"
	UpdateTypeDisplayPage  UpdateType = "displaypage"
	UpdateTypeNotification UpdateType = "notification"
)

// Update is an outbound message mutating Halo state.
type Update interface {
	UpdateType() UpdateType
}

// UpdateButton changes attributes of a single Button already present
// in the configuration. Nil/empty optional fields leave the attribute
// untouched on the device.
type UpdateButton struct {
	Type     UpdateType  `json:"type"`
	ID       string      `json:"id"`
	State    ButtonState `json:"state,omitempty"`
	Value    *int        `json:"value,omitempty"`
	Title    string      `json:"title,omitempty"`
	Subtitle string      `json:"subtitle,omitempty"`
	Content  *Content    `json:"content,omitempty"`
}

func (UpdateButton) UpdateType() UpdateType { return UpdateTypeButton }

// NewUpdateButton builds a state/value update for a Button, validating
// the value range.
func NewUpdateButton(buttonID string, state ButtonState, value int) (UpdateButton, error) {
	if err := validateValue(value); err != nil {
		return UpdateButton{}, err
	}
	v := value
	return UpdateButton{
		Type:  UpdateTypeButton,
		ID:    buttonID,
		State: state,
		Value: &v,
	}, nil
}

// NewUpdateButtonContent builds a content-only update for a Button,
// used for wheel gesture previews.
func NewUpdateButtonContent(buttonID string, content *Content) UpdateButton {
	return UpdateButton{
		Type:    UpdateTypeButton,
		ID:      buttonID,
		Content: content,
	}
}

// UpdateDisplayPage makes the Halo focus a page, optionally a specific
// button on it. Note the alias field names on the wire.
type UpdateDisplayPage struct {
	Type     UpdateType `json:"type"`
	PageID   string     `json:"pageid"`
	ButtonID string     `json:"buttonid,omitempty"`
}

func (UpdateDisplayPage) UpdateType() UpdateType { return UpdateTypeDisplayPage }

// NewUpdateDisplayPage builds a display-page update.
func NewUpdateDisplayPage(pageID, buttonID string) UpdateDisplayPage {
	return UpdateDisplayPage{
		Type:     UpdateTypeDisplayPage,
		PageID:   pageID,
		ButtonID: buttonID,
	}
}

// UpdateNotification shows a transient notification on the Halo.
type UpdateNotification struct {
	Type     UpdateType `json:"type"`
	Title    string     `json:"title,omitempty"`
	Subtitle string     `json:"subtitle,omitempty"`
	ID       string     `json:"id"`
}

func (UpdateNotification) UpdateType() UpdateType { return UpdateTypeNotification }

// NewUpdateNotification builds a notification update with a fresh ID.
func NewUpdateNotification(title, subtitle string) UpdateNotification {
	return UpdateNotification{
		Type:     UpdateTypeNotification,
		Title:    title,
		Subtitle: subtitle,
		ID:       NewUUID(),
	}
}

// MarshalUpdateFrame serializes an update as a full outbound frame.
func MarshalUpdateFrame(update Update) ([]byte, error) {
	return json.Marshal(struct {
		Update Update `json:"update"`
	}{update})
}
