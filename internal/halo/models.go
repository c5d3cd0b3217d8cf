package halo

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Icon is one of the fixed set of symbols a Button can display. Every
// icon has an active and an inactive rendering; which one the Halo
// shows is controlled by the Button's state, not by the icon itself.
type Icon string

const (
	IconAlarm        Icon = "alarm"
	IconAlternative  Icon = "alternative"
	IconArmAway      Icon = "arm_away"
	IconArmStay      Icon = "arm_stay"
	IconAuto         Icon = "auto"
	IconBathTub      Icon = "bath_tub"
	IconBlinds       Icon = "blinds"
	IconBliss        Icon = "bliss"
	IconButler       Icon = "butler"
	IconCinema       Icon = "cinema"
	IconClean        Icon = "clean"
	IconClock        Icon = "clock"
	IconCoffee       Icon = "coffee"
	IconCool         Icon = "cool"
	IconCreative     Icon = "creative"
	IconCurtains     Icon = "curtains"
	IconDinner       Icon = "dinner"
	IconDisarm       Icon = "disarm"
	IconDoor         Icon = "door"
	IconDoorlock     Icon = "doorlock"
	IconEnergize     Icon = "energize"
	IconEnjoy        Icon = "enjoy"
	IconEntertain    Icon = "entertain"
	IconFan          Icon = "fan"
	IconFireplace    Icon = "fireplace"
	IconForcedArm    Icon = "forced_arm"
	IconGaming       Icon = "gaming"
	IconGarage       Icon = "garage"
	IconGate         Icon = "gate"
	IconGoodMorning  Icon = "good_morning"
	IconGoodNight    Icon = "good_night"
	IconHeat         Icon = "heat"
	IconHumidity     Icon = "humidity"
	IconIndulge      Icon = "indulge"
	IconLeaving      Icon = "leaving"
	IconLights       Icon = "lights"
	IconLock         Icon = "lock"
	IconMeeting      Icon = "meeting"
	IconMovie        Icon = "movie"
	IconMusic        Icon = "music"
	IconNotification Icon = "notification"
	IconOff          Icon = "off"
	IconParty        Icon = "party"
	IconPool         Icon = "pool"
	IconPrivacy      Icon = "privacy"
	IconProductive   Icon = "productive"
	IconReading      Icon = "reading"
	IconRelax        Icon = "relax"
	IconRequestCar   Icon = "request_car"
	IconRGBLights    Icon = "rgb_lights"
	IconRomantic     Icon = "romantic"
	IconRoofWindow   Icon = "roof_window"
	IconRoomService  Icon = "room_service"
	IconSecurity     Icon = "security"
	IconShades       Icon = "shades"
	IconShower       Icon = "shower"
	IconSleep        Icon = "sleep"
	IconSmartGlass   Icon = "smart_glass"
	IconSpa          Icon = "spa"
	IconSprinkler    Icon = "sprinkler"
	IconTravel       Icon = "travel"
	IconTurntable    Icon = "turntable"
	IconUnlock       Icon = "unlock"
	IconVacation     Icon = "vacation"
	IconWarning      Icon = "warning"
	IconWaterfall    Icon = "waterfall"
	IconWelcome      Icon = "welcome"
	IconWindow       Icon = "window"
	IconWorkOut      Icon = "work_out"
	IconYoga         Icon = "yoga"
)

var knownIcons = map[Icon]struct{}{
	IconAlarm: {}, IconAlternative: {}, IconArmAway: {}, IconArmStay: {},
	IconAuto: {}, IconBathTub: {}, IconBlinds: {}, IconBliss: {},
	IconButler: {}, IconCinema: {}, IconClean: {}, IconClock: {},
	IconCoffee: {}, IconCool: {}, IconCreative: {}, IconCurtains: {},
	IconDinner: {}, IconDisarm: {}, IconDoor: {}, IconDoorlock: {},
	IconEnergize: {}, IconEnjoy: {}, IconEntertain: {}, IconFan: {},
	IconFireplace: {}, IconForcedArm: {}, IconGaming: {}, IconGarage: {},
	IconGate: {}, IconGoodMorning: {}, IconGoodNight: {}, IconHeat: {},
	IconHumidity: {}, IconIndulge: {}, IconLeaving: {}, IconLights: {},
	IconLock: {}, IconMeeting: {}, IconMovie: {}, IconMusic: {},
	IconNotification: {}, IconOff: {}, IconParty: {}, IconPool: {},
	IconPrivacy: {}, IconProductive: {}, IconReading: {}, IconRelax: {},
	IconRequestCar: {}, IconRGBLights: {}, IconRomantic: {}, IconRoofWindow: {},
	IconRoomService: {}, IconSecurity: {}, IconShades: {}, IconShower: {},
	IconSleep: {}, IconSmartGlass: {}, IconSpa: {}, IconSprinkler: {},
	IconTravel: {}, IconTurntable: {}, IconUnlock: {}, IconVacation: {},
	IconWarning: {}, IconWaterfall: {}, IconWelcome: {}, IconWindow: {},
	IconWorkOut: {}, IconYoga: {},
}

// Valid reports whether the icon is part of the closed enumeration.
func (i Icon) Valid() bool {
	_, ok := knownIcons[i]
	return ok
}

// Content is what a Button displays: either an icon or free text,
// never both. Use IconContent or TextContent to construct one.
type Content struct {
	Icon Icon   `json:"icon,omitempty"`
	Text string `json:"text,omitempty"`
}

// IconContent returns icon content for a Button.
func IconContent(icon Icon) *Content {
	return &Content{Icon: icon}
}

// TextContent returns text content for a Button.
func TextContent(text string) *Content {
	return &Content{Text: text}
}

// Equal reports whether two contents render identically.
func (c *Content) Equal(other *Content) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Icon == other.Icon && c.Text == other.Text
}

// ButtonState adjusts the appearance of a Button's icon. It has no
// effect on text content.
type ButtonState string

const (
	ButtonStateActive   ButtonState = "active"
	ButtonStateInactive ButtonState = "inactive"
)

// Button is a single interactable element on the Halo. At most one
// Button in a Configuration may have Default set; it is pre-selected
// when the user first interacts with the device.
type Button struct {
	Title    string      `json:"title"`
	Content  *Content    `json:"content,omitempty"`
	Subtitle string      `json:"subtitle,omitempty"`
	Value    int         `json:"value"`
	State    ButtonState `json:"state"`
	Default  bool        `json:"default,omitempty"`
	ID       string      `json:"id"`
}

// NewButton builds a Button with a fresh ID. The value must be inside
// MinValue..MaxValue.
func NewButton(title string, content *Content, subtitle string, value int, state ButtonState, isDefault bool) (Button, error) {
	if err := validateValue(value); err != nil {
		return Button{}, err
	}
	return Button{
		Title:    TrimButtonTitle(title),
		Content:  content,
		Subtitle: TrimButtonSubtitle(subtitle),
		Value:    value,
		State:    state,
		Default:  isDefault,
		ID:       NewUUID(),
	}, nil
}

// Page groups up to MaxButtons Buttons under a title.
type Page struct {
	Title   string   `json:"title"`
	Buttons []Button `json:"buttons"`
	ID      string   `json:"id"`
}

// NewPage builds a Page with a fresh ID.
func NewPage(title string, buttons []Button) (Page, error) {
	if len(buttons) > MaxButtons {
		return Page{}, &ValidationError{
			Field:   "buttons",
			Message: fmt.Sprintf("a page holds at most %d buttons, got %d", MaxButtons, len(buttons)),
		}
	}
	if buttons == nil {
		buttons = []Button{}
	}
	return Page{
		Title:   TrimPageTitle(title),
		Buttons: buttons,
		ID:      NewUUID(),
	}, nil
}

// Configuration is the full tree of Pages pushed to the Halo.
type Configuration struct {
	Pages   []Page `json:"pages"`
	Version string `json:"version"`
	ID      string `json:"id"`
}

// NewConfiguration builds a Configuration with a fresh ID and validates
// the tree invariants: at most MaxPages pages, at most MaxButtons
// buttons per page and at most one default Button overall.
func NewConfiguration(pages []Page) (*Configuration, error) {
	if len(pages) > MaxPages {
		return nil, &ValidationError{
			Field:   "pages",
			Message: fmt.Sprintf("a configuration holds at most %d pages, got %d", MaxPages, len(pages)),
		}
	}
	if pages == nil {
		pages = []Page{}
	}

	cfg := &Configuration{
		Pages:   pages,
		Version: Version,
		ID:      NewUUID(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EmptyConfiguration returns a valid Configuration with no pages.
func EmptyConfiguration() *Configuration {
	cfg, _ := NewConfiguration(nil)
	return cfg
}

// Validate checks the tree invariants of an already-built tree,
// including one deserialized from persisted state.
func (c *Configuration) Validate() error {
	if len(c.Pages) > MaxPages {
		return &ValidationError{Field: "pages", Message: fmt.Sprintf("too many pages: %d", len(c.Pages))}
	}
	defaults := 0
	for _, page := range c.Pages {
		if len(page.Buttons) > MaxButtons {
			return &ValidationError{
				Field:   "buttons",
				Message: fmt.Sprintf("page %q has too many buttons: %d", page.ID, len(page.Buttons)),
			}
		}
		for _, button := range page.Buttons {
			if err := validateValue(button.Value); err != nil {
				return err
			}
			if button.Default {
				defaults++
			}
		}
	}
	if defaults > 1 {
		return &ValidationError{Field: "default", Message: fmt.Sprintf("found %d default buttons, at most one allowed", defaults)}
	}
	return nil
}

// MarshalFrame serializes the configuration as a full outbound frame.
func (c *Configuration) MarshalFrame() ([]byte, error) {
	return json.Marshal(struct {
		Configuration *Configuration `json:"configuration"`
	}{c})
}

// UnmarshalConfigurationFrame decodes a {"configuration": ...} frame.
func UnmarshalConfigurationFrame(data []byte) (*Configuration, error) {
	var frame struct {
		Configuration *Configuration `json:"configuration"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, &DecodeError{Payload: data, Err: err}
	}
	if frame.Configuration == nil {
		return nil, &DecodeError{Payload: data, Err: fmt.Errorf("missing configuration object")}
	}
	if err := frame.Configuration.Validate(); err != nil {
		return nil, err
	}
	return frame.Configuration, nil
}

// NewUUID returns a RFC 4122 compliant random UUID string. All Halo
// ids must come from here so they are always well formed.
func NewUUID() string {
	return uuid.NewString()
}

func validateValue(value int) error {
	if value < MinValue || value > MaxValue {
		return &ValidationError{
			Field:   "value",
			Message: fmt.Sprintf("button value must be in the range %d..%d, got %d", MinValue, MaxValue, value),
		}
	}
	return nil
}
