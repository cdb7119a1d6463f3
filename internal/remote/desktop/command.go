package desktop

import (
	"encoding/json"
	"fmt"
)

// Command is one parsed viewer instruction. Each concrete command type
// carries only the fields its handler needs; unrecognized types parse into
// UnknownCmd so a newer viewer never kills an older agent's session.
type Command interface {
	commandType() string
}

// Modifiers are key modifiers held for the duration of one key command.
type Modifiers struct {
	Ctrl  bool `json:"ctrl"`
	Alt   bool `json:"alt"`
	Shift bool `json:"shift"`
	Win   bool `json:"win"`
}

// PointerMoveCmd moves the pointer. With Absolute set, X and Y are normalized
// coordinates in [0, 65535] over the selected monitor; otherwise DX and DY
// are relative pixel deltas.
type PointerMoveCmd struct {
	Absolute bool
	X, Y     int
	DX, DY   int
}

// PointerButtonCmd presses or releases a pointer button.
type PointerButtonCmd struct {
	Button string // "left", "right", "middle"
	Action string // "down", "up"
}

// PointerWheelCmd scrolls. Deltas follow the convention of 120 units per
// detent, positive away from the user.
type PointerWheelCmd struct {
	DeltaX, DeltaY int
}

// KeyCmd presses or releases a key, with modifiers applied around it.
type KeyCmd struct {
	KeyCode int
	Action  string // "down", "up"
	Mods    Modifiers
}

// TextCmd types a string as literal characters, independent of keyboard
// layout. Modifiers are held for the whole string.
type TextCmd struct {
	Text string
	Mods Modifiers
}

// MonitorSelectCmd switches the captured monitor.
type MonitorSelectCmd struct {
	MonitorID string
}

// QualityCmd adjusts the JPEG quality of the stream.
type QualityCmd struct {
	Quality int
}

// UnknownCmd preserves the type tag of a command this agent does not
// understand.
type UnknownCmd struct {
	Type string
}

func (PointerMoveCmd) commandType() string   { return "pointer_move" }
func (PointerButtonCmd) commandType() string { return "pointer_button" }
func (PointerWheelCmd) commandType() string  { return "pointer_wheel" }
func (KeyCmd) commandType() string           { return "key" }
func (TextCmd) commandType() string          { return "text" }
func (MonitorSelectCmd) commandType() string { return "monitor_select" }
func (QualityCmd) commandType() string       { return "quality" }
func (u UnknownCmd) commandType() string     { return u.Type }

// rawCommand is the superset wire shape; ParseCommand picks the fields the
// tagged type actually uses.
type rawCommand struct {
	Type      string `json:"type"`
	Absolute  bool   `json:"absolute"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	DX        int    `json:"dx"`
	DY        int    `json:"dy"`
	Button    string `json:"button"`
	Action    string `json:"action"`
	DeltaX    int    `json:"delta_x"`
	DeltaY    int    `json:"delta_y"`
	KeyCode   int    `json:"key_code"`
	Ctrl      bool   `json:"ctrl"`
	Alt       bool   `json:"alt"`
	Shift     bool   `json:"shift"`
	Win       bool   `json:"win"`
	Text      string `json:"text"`
	MonitorID string `json:"monitor_id"`
	Quality   int    `json:"quality"`
}

// ParseCommand decodes one inbound JSON command into its tagged type. A
// malformed document or missing required field is an error; an unrecognized
// type is not, it parses into UnknownCmd.
func ParseCommand(data []byte) (Command, error) {
	var raw rawCommand
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed command: %w", err)
	}

	switch raw.Type {
	case "pointer_move":
		return PointerMoveCmd{
			Absolute: raw.Absolute,
			X:        raw.X, Y: raw.Y,
			DX: raw.DX, DY: raw.DY,
		}, nil
	case "pointer_button":
		switch raw.Button {
		case "left", "right", "middle":
		default:
			return nil, fmt.Errorf("pointer_button: invalid button %q", raw.Button)
		}
		if raw.Action != "down" && raw.Action != "up" {
			return nil, fmt.Errorf("pointer_button: invalid action %q", raw.Action)
		}
		return PointerButtonCmd{Button: raw.Button, Action: raw.Action}, nil
	case "pointer_wheel":
		return PointerWheelCmd{DeltaX: raw.DeltaX, DeltaY: raw.DeltaY}, nil
	case "key":
		if raw.Action != "down" && raw.Action != "up" {
			return nil, fmt.Errorf("key: invalid action %q", raw.Action)
		}
		return KeyCmd{
			KeyCode: raw.KeyCode,
			Action:  raw.Action,
			Mods:    Modifiers{Ctrl: raw.Ctrl, Alt: raw.Alt, Shift: raw.Shift, Win: raw.Win},
		}, nil
	case "text":
		return TextCmd{
			Text: raw.Text,
			Mods: Modifiers{Ctrl: raw.Ctrl, Alt: raw.Alt, Shift: raw.Shift, Win: raw.Win},
		}, nil
	case "monitor_select":
		if raw.MonitorID == "" {
			return nil, fmt.Errorf("monitor_select: missing monitor_id")
		}
		return MonitorSelectCmd{MonitorID: raw.MonitorID}, nil
	case "quality":
		return QualityCmd{Quality: raw.Quality}, nil
	case "":
		return nil, fmt.Errorf("command missing type")
	default:
		return UnknownCmd{Type: raw.Type}, nil
	}
}
