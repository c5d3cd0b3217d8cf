package halo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUpdateButtonFrame(t *testing.T) {
	update, err := NewUpdateButton("btn-1", ButtonStateActive, 0)
	require.NoError(t, err)

	frame, err := MarshalUpdateFrame(update)
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	inner := decoded["update"]
	require.NotNil(t, inner)
	assert.Equal(t, "button", inner["type"])
	assert.Equal(t, "btn-1", inner["id"])
	assert.Equal(t, "active", inner["state"])
	// Value 0 must survive serialization, the Halo treats a missing
	// value as "leave unchanged".
	value, present := inner["value"]
	require.True(t, present)
	assert.Equal(t, float64(0), value)
}

func TestMarshalUpdateDisplayPageFrame(t *testing.T) {
	frame, err := MarshalUpdateFrame(NewUpdateDisplayPage("page-1", "btn-1"))
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	inner := decoded["update"]
	assert.Equal(t, "displaypage", inner["type"])
	assert.Equal(t, "page-1", inner["pageid"])
	assert.Equal(t, "btn-1", inner["buttonid"])

	// Without a button the alias key is omitted entirely.
	frame, err = MarshalUpdateFrame(NewUpdateDisplayPage("page-1", ""))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(frame, &decoded))
	_, present := decoded["update"]["buttonid"]
	assert.False(t, present)
}

func TestMarshalUpdateNotificationFrame(t *testing.T) {
	update := NewUpdateNotification("Doorbell", "Front door")
	assert.NotEmpty(t, update.ID)

	frame, err := MarshalUpdateFrame(update)
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	inner := decoded["update"]
	assert.Equal(t, "notification", inner["type"])
	assert.Equal(t, "Doorbell", inner["title"])
	assert.Equal(t, "Front door", inner["subtitle"])
	assert.Equal(t, update.ID, inner["id"])
}

func TestNewUpdateButtonContent(t *testing.T) {
	update := NewUpdateButtonContent("btn-1", TextContent("+12%"))
	assert.Equal(t, UpdateTypeButton, update.Type)
	assert.Nil(t, update.Value)

	frame, err := MarshalUpdateFrame(update)
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	content := decoded["update"]["content"]
	assert.Equal(t, map[string]interface{}{"text": "+12%"}, content)
}
