package theme

import "testing"

func TestSetCurrentSwitchesPalette(t *testing.T) {
	t.Cleanup(func() { _ = SetCurrent("") })

	if got := ForAction("ban"); got != Of(Error) {
		t.Fatalf("default ban color = %#x, want error %#x", got, Of(Error))
	}
	if err := SetCurrent("pastel"); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if got := ForAction("ban"); got != 0xF28B82 {
		t.Fatalf("pastel ban color = %#x", got)
	}
	// Unset roles fall through to the defaults.
	if got := Of(Info); got != 0x3B82F6 {
		t.Fatalf("pastel info = %#x", got)
	}
	if err := SetCurrent("missing"); err == nil {
		t.Fatal("expected unknown palette to fail")
	}
}

func TestInheritedRoles(t *testing.T) {
	p := Palette{Name: "x", Colors: map[Role]Color{Error: 0x111111, Success: 0x222222}}
	if got := p.Color(Ban); got != 0x111111 {
		t.Fatalf("ban should inherit error, got %#x", got)
	}
	if got := p.Color(Revert); got != 0x222222 {
		t.Fatalf("revert should inherit success, got %#x", got)
	}
	if got := p.Color(Kick); got != 0xE67E22 {
		t.Fatalf("kick should use the default, got %#x", got)
	}
}

func TestForActionGroupsInverseKinds(t *testing.T) {
	for _, kind := range []string{"unban", "unmute", "unwarn", "unlock"} {
		if ForAction(kind) != Of(Revert) {
			t.Fatalf("%s should use the revert color", kind)
		}
	}
	if ForAction("something-else") != Of(Primary) {
		t.Fatal("unknown kinds fall back to primary")
	}
}

func TestRegisterValidates(t *testing.T) {
	if err := Register(Palette{}); err == nil {
		t.Fatal("unnamed palette accepted")
	}
	if err := Register(Palette{Name: "default"}); err == nil {
		t.Fatal("reserved name accepted")
	}
	if err := Register(Palette{Name: "pastel"}); err == nil {
		t.Fatal("duplicate palette accepted")
	}
}
