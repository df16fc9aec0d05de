package model

import "testing"

func TestNormalizeMonsterName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Goblin", "goblin"},
		{"[32]goblin", "goblin"},
		{"goblin (blind)", "goblin"},
		{"Mad Goat", "madgoat"},
		{"ninja snowman (hilt)", "ninjasnowman"},
		{"Cyrus the Virus", "cyrusthevirus"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := NormalizeMonsterName(tc.in); got != tc.want {
			t.Errorf("NormalizeMonsterName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPreferredName(t *testing.T) {
	m := Monster{Name: "mad goat (angry)", ManualName: "mad goat"}

	if got := m.PreferredName(); got != "mad goat" {
		t.Fatalf("expected the manual name preferred, got %q", got)
	}

	m.ManualName = ""

	if got := m.PreferredName(); got != "mad goat (angry)" {
		t.Fatalf("expected the mafia name as fallback, got %q", got)
	}
}

func TestCommand(t *testing.T) {
	m := Monster{ID: 5, Name: "Goblin"}

	if got := m.Command(); got != "[5]Goblin" {
		t.Fatalf("unexpected command form %q", got)
	}
}
