package desktop

import "testing"

func TestParseCommand_PointerMoveRelative(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"pointer_move","dx":5,"dy":-3}`))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	mv, ok := cmd.(PointerMoveCmd)
	if !ok {
		t.Fatalf("got %T", cmd)
	}
	if mv.Absolute || mv.DX != 5 || mv.DY != -3 {
		t.Fatalf("parsed %+v", mv)
	}
}

func TestParseCommand_PointerMoveAbsolute(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"pointer_move","absolute":true,"x":32768,"y":65535}`))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	mv := cmd.(PointerMoveCmd)
	if !mv.Absolute || mv.X != 32768 || mv.Y != 65535 {
		t.Fatalf("parsed %+v", mv)
	}
}

func TestParseCommand_PointerButton(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"pointer_button","button":"right","action":"down"}`))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	btn := cmd.(PointerButtonCmd)
	if btn.Button != "right" || btn.Action != "down" {
		t.Fatalf("parsed %+v", btn)
	}
}

func TestParseCommand_PointerButtonInvalid(t *testing.T) {
	cases := []string{
		`{"type":"pointer_button","button":"side","action":"down"}`,
		`{"type":"pointer_button","button":"left","action":"click"}`,
	}
	for _, c := range cases {
		if _, err := ParseCommand([]byte(c)); err == nil {
			t.Fatalf("expected error for %s", c)
		}
	}
}

func TestParseCommand_Wheel(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"pointer_wheel","delta_y":120}`))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	wh := cmd.(PointerWheelCmd)
	if wh.DeltaY != 120 || wh.DeltaX != 0 {
		t.Fatalf("parsed %+v", wh)
	}
}

func TestParseCommand_KeyWithModifiers(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"key","key_code":65,"action":"down","ctrl":true,"shift":true}`))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	k := cmd.(KeyCmd)
	if k.KeyCode != 65 || k.Action != "down" {
		t.Fatalf("parsed %+v", k)
	}
	if !k.Mods.Ctrl || !k.Mods.Shift || k.Mods.Alt || k.Mods.Win {
		t.Fatalf("modifiers %+v", k.Mods)
	}
}

func TestParseCommand_Text(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"text","text":"héllo"}`))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.(TextCmd).Text != "héllo" {
		t.Fatalf("parsed %+v", cmd)
	}
}

func TestParseCommand_TextWithModifiers(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"text","text":"v","ctrl":true}`))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	txt := cmd.(TextCmd)
	if txt.Text != "v" || !txt.Mods.Ctrl || txt.Mods.Alt || txt.Mods.Shift || txt.Mods.Win {
		t.Fatalf("parsed %+v", txt)
	}
}

func TestParseCommand_MonitorSelect(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"monitor_select","monitor_id":"DISPLAY2"}`))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.(MonitorSelectCmd).MonitorID != "DISPLAY2" {
		t.Fatalf("parsed %+v", cmd)
	}

	if _, err := ParseCommand([]byte(`{"type":"monitor_select"}`)); err == nil {
		t.Fatal("expected error for missing monitor_id")
	}
}

func TestParseCommand_Quality(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"quality","quality":85}`))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.(QualityCmd).Quality != 85 {
		t.Fatalf("parsed %+v", cmd)
	}
}

func TestParseCommand_UnknownTypeIsNotAnError(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"clipboard_sync","data":"x"}`))
	if err != nil {
		t.Fatalf("unknown type must parse: %v", err)
	}
	u, ok := cmd.(UnknownCmd)
	if !ok || u.Type != "clipboard_sync" {
		t.Fatalf("got %T %+v", cmd, cmd)
	}
}

func TestParseCommand_Malformed(t *testing.T) {
	for _, c := range []string{`not json`, `{"type":}`, `{}`, `{"x":1}`} {
		if _, err := ParseCommand([]byte(c)); err == nil {
			t.Fatalf("expected error for %s", c)
		}
	}
}
