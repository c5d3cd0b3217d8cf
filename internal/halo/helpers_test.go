package halo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfiguration(t *testing.T) (*Configuration, []string) {
	t.Helper()

	var ids []string
	var pages []Page
	for p := 0; p < 2; p++ {
		var buttons []Button
		for b := 0; b < 3; b++ {
			button, err := NewButton("Button", IconContent(IconLights), "", 0, ButtonStateInactive, false)
			require.NoError(t, err)
			ids = append(ids, button.ID)
			buttons = append(buttons, button)
		}
		page, err := NewPage("Page", buttons)
		require.NoError(t, err)
		pages = append(pages, page)
	}

	cfg, err := NewConfiguration(pages)
	require.NoError(t, err)
	return cfg, ids
}

func TestButtonIndices(t *testing.T) {
	cfg, ids := testConfiguration(t)

	pageIdx, buttonIdx, err := ButtonIndices(cfg, ids[4])
	require.NoError(t, err)
	assert.Equal(t, 1, pageIdx)
	assert.Equal(t, 1, buttonIdx)

	_, _, err = ButtonIndices(cfg, "missing")
	assert.ErrorIs(t, err, ErrButtonNotFound)
}

func TestGetButtonMutatesInPlace(t *testing.T) {
	cfg, ids := testConfiguration(t)

	button, err := GetButton(cfg, ids[0])
	require.NoError(t, err)
	button.Value = 77

	again, err := GetButton(cfg, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 77, again.Value)
}

func TestDefaultButtonInvariant(t *testing.T) {
	cfg, ids := testConfiguration(t)
	assert.Nil(t, DefaultButton(cfg))

	countDefaults := func() int {
		n := 0
		for _, b := range AllButtons(cfg) {
			if b.Default {
				n++
			}
		}
		return n
	}

	// Moving the default always goes through clear-then-set.
	for _, id := range []string{ids[0], ids[3], ids[5], ids[1]} {
		ClearDefaultButton(cfg)
		require.NoError(t, SetDefaultButton(cfg, id, true))
		assert.Equal(t, 1, countDefaults())
		assert.Equal(t, id, DefaultButtonID(cfg))
		assert.NoError(t, cfg.Validate())
	}

	ClearDefaultButton(cfg)
	assert.Equal(t, 0, countDefaults())

	assert.ErrorIs(t, SetDefaultButton(cfg, "missing", true), ErrButtonNotFound)
}

func TestUpdateButtonFieldsPartial(t *testing.T) {
	cfg, ids := testConfiguration(t)

	value := 60
	state := ButtonStateActive
	require.NoError(t, UpdateButtonFields(cfg, ids[2], ButtonFields{
		Value: &value,
		State: &state,
	}))

	button, err := GetButton(cfg, ids[2])
	require.NoError(t, err)
	assert.Equal(t, 60, button.Value)
	assert.Equal(t, ButtonStateActive, button.State)
	// Untouched fields survive.
	assert.Equal(t, "Button", button.Title)
	assert.True(t, button.Content.Equal(IconContent(IconLights)))

	bad := 150
	err = UpdateButtonFields(cfg, ids[2], ButtonFields{Value: &bad})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	title := "A very long title that gets trimmed"
	require.NoError(t, UpdateButtonFields(cfg, ids[2], ButtonFields{Title: &title}))
	button, _ = GetButton(cfg, ids[2])
	assert.Len(t, []rune(button.Title), ButtonTitleMaxLength)
}

func TestDeleteButtonAndPage(t *testing.T) {
	cfg, ids := testConfiguration(t)

	require.NoError(t, DeleteButton(cfg, ids[1]))
	_, err := GetButton(cfg, ids[1])
	assert.ErrorIs(t, err, ErrButtonNotFound)
	assert.Len(t, cfg.Pages[0].Buttons, 2)

	pageID := cfg.Pages[0].ID
	require.NoError(t, DeletePage(cfg, pageID))
	_, err = GetPage(cfg, pageID)
	assert.ErrorIs(t, err, ErrPageNotFound)
	assert.Len(t, cfg.Pages, 1)

	assert.ErrorIs(t, DeleteButton(cfg, "missing"), ErrButtonNotFound)
	assert.ErrorIs(t, DeletePage(cfg, "missing"), ErrPageNotFound)
}

func TestInterpolateAndClamp(t *testing.T) {
	assert.Equal(t, 50, InterpolateButtonValue(127, 0, 254))
	assert.Equal(t, 0, InterpolateButtonValue(-10, 0, 100))
	assert.Equal(t, 100, InterpolateButtonValue(300, 0, 100))
	assert.Equal(t, 0, InterpolateButtonValue(5, 10, 10))

	assert.Equal(t, 0, ClampButtonValue(-3))
	assert.Equal(t, 100, ClampButtonValue(250))
	assert.Equal(t, 42, ClampButtonValue(42.4))
}
