package halo

import "fmt"

// Configuration helpers. All of them walk the single configuration
// tree owned by the client; none of them keep references between
// calls. Mutating helpers do not touch external state keyed by button
// id, cleaning that up is the caller's job.

// ButtonIndices returns the page and button indices for a Button ID.
// Returns ErrButtonNotFound if the id is not in the tree.
func ButtonIndices(cfg *Configuration, buttonID string) (int, int, error) {
	for pageIdx, page := range cfg.Pages {
		for buttonIdx, button := range page.Buttons {
			if button.ID == buttonID {
				return pageIdx, buttonIdx, nil
			}
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrButtonNotFound, buttonID)
}

// PageIndex returns the index for a Page ID. Returns ErrPageNotFound
// if the id is not in the tree.
func PageIndex(cfg *Configuration, pageID string) (int, error) {
	for pageIdx, page := range cfg.Pages {
		if page.ID == pageID {
			return pageIdx, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
}

// GetButton returns a pointer to the Button with the given ID so the
// caller can inspect or mutate it in place.
func GetButton(cfg *Configuration, buttonID string) (*Button, error) {
	pageIdx, buttonIdx, err := ButtonIndices(cfg, buttonID)
	if err != nil {
		return nil, err
	}
	return &cfg.Pages[pageIdx].Buttons[buttonIdx], nil
}

// GetPage returns a pointer to the Page with the given ID.
func GetPage(cfg *Configuration, pageID string) (*Page, error) {
	pageIdx, err := PageIndex(cfg, pageID)
	if err != nil {
		return nil, err
	}
	return &cfg.Pages[pageIdx], nil
}

// DefaultButton returns the Button marked default, or nil if none is.
func DefaultButton(cfg *Configuration) *Button {
	for pageIdx := range cfg.Pages {
		for buttonIdx := range cfg.Pages[pageIdx].Buttons {
			if cfg.Pages[pageIdx].Buttons[buttonIdx].Default {
				return &cfg.Pages[pageIdx].Buttons[buttonIdx]
			}
		}
	}
	return nil
}

// DefaultButtonID returns the id of the default Button, or "".
func DefaultButtonID(cfg *Configuration) string {
	if button := DefaultButton(cfg); button != nil {
		return button.ID
	}
	return ""
}

// ClearDefaultButton removes the default flag if any button carries
// it. Call this before SetDefaultButton to keep the single-default
// invariant.
func ClearDefaultButton(cfg *Configuration) {
	if button := DefaultButton(cfg); button != nil {
		button.Default = false
	}
}

// SetDefaultButton sets or clears the default flag on one Button. The
// caller is responsible for clearing an existing default first.
func SetDefaultButton(cfg *Configuration, buttonID string, isDefault bool) error {
	button, err := GetButton(cfg, buttonID)
	if err != nil {
		return err
	}
	button.Default = isDefault
	return nil
}

// ButtonFields holds the optional attributes for a partial button
// update. Nil fields are left untouched.
type ButtonFields struct {
	Title    *string
	Content  *Content
	Subtitle *string
	Value    *int
	State    *ButtonState
	Default  *bool
}

// UpdateButtonFields applies only the fields set in fields to the
// Button with the given id. This is a partial update, not a replace.
func UpdateButtonFields(cfg *Configuration, buttonID string, fields ButtonFields) error {
	button, err := GetButton(cfg, buttonID)
	if err != nil {
		return err
	}
	if fields.Value != nil {
		if err := validateValue(*fields.Value); err != nil {
			return err
		}
		button.Value = *fields.Value
	}
	if fields.Title != nil {
		button.Title = TrimButtonTitle(*fields.Title)
	}
	if fields.Content != nil {
		button.Content = fields.Content
	}
	if fields.Subtitle != nil {
		button.Subtitle = TrimButtonSubtitle(*fields.Subtitle)
	}
	if fields.State != nil {
		button.State = *fields.State
	}
	if fields.Default != nil {
		button.Default = *fields.Default
	}
	return nil
}

// PageFields holds the optional attributes for a partial page update.
type PageFields struct {
	Title   *string
	Buttons []Button
}

// UpdatePageFields applies only the fields set in fields to the Page
// with the given id.
func UpdatePageFields(cfg *Configuration, pageID string, fields PageFields) error {
	page, err := GetPage(cfg, pageID)
	if err != nil {
		return err
	}
	if fields.Title != nil {
		page.Title = TrimPageTitle(*fields.Title)
	}
	if fields.Buttons != nil {
		if len(fields.Buttons) > MaxButtons {
			return &ValidationError{
				Field:   "buttons",
				Message: fmt.Sprintf("a page holds at most %d buttons, got %d", MaxButtons, len(fields.Buttons)),
			}
		}
		page.Buttons = fields.Buttons
	}
	return nil
}

// DeleteButton removes a Button by id.
func DeleteButton(cfg *Configuration, buttonID string) error {
	pageIdx, buttonIdx, err := ButtonIndices(cfg, buttonID)
	if err != nil {
		return err
	}
	buttons := cfg.Pages[pageIdx].Buttons
	cfg.Pages[pageIdx].Buttons = append(buttons[:buttonIdx], buttons[buttonIdx+1:]...)
	return nil
}

// DeletePage removes a Page by id.
func DeletePage(cfg *Configuration, pageID string) error {
	pageIdx, err := PageIndex(cfg, pageID)
	if err != nil {
		return err
	}
	cfg.Pages = append(cfg.Pages[:pageIdx], cfg.Pages[pageIdx+1:]...)
	return nil
}

// AllButtons returns every Button across all pages, in page order.
func AllButtons(cfg *Configuration) []Button {
	var buttons []Button
	for _, page := range cfg.Pages {
		buttons = append(buttons, page.Buttons...)
	}
	return buttons
}
