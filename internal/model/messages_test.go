package model

import "testing"

func TestMessageFill(t *testing.T) {
	got := MsgFaxReady.Fill("Goblin", "", "")

	if got != "Your fax is ready: Goblin" {
		t.Fatalf("unexpected fill result %q", got)
	}

	got = MsgTrappedInClan.Fill("", "", "Operator")

	if got != "Error! I am trapped in a clan, please contact my bot operator Operator" {
		t.Fatalf("unexpected fill result %q", got)
	}
}
