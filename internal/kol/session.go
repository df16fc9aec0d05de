package kol

import "context"

// Session is the contract the bot core consumes. Remote failures surface as
// the Unknown variant of the relevant enumeration, or as an error where the
// call has no enumeration; they are never swallowed silently.
type Session interface {
	// LogIn establishes a session. It is safe to call while logged in.
	LogIn(ctx context.Context) error
	IsLoggedOut() bool
	// SetLoggedOut discards session state, e.g. across the rollover blackout.
	SetLoggedOut()
	Player() User

	// JoinClan applies to a clan and decodes the response.
	JoinClan(ctx context.Context, clan Clan) JoinResult
	// UseFaxMachine operates the fax machine in the current clan.
	UseFaxMachine(ctx context.Context, action FaxAction) FaxResult
	// PhotoInfo inspects the held photocopy, nil when none is held.
	PhotoInfo(ctx context.Context) (*Photo, error)

	// MyClan fetches the bot's current clan from its profile.
	MyClan(ctx context.Context) (*Clan, error)
	// CurrentClan is the last clan we know we joined, nil when unknown.
	CurrentClan() *Clan
	// Whitelists lists every clan the bot can currently join.
	Whitelists(ctx context.Context) ([]Clan, error)
	// PlayerClan resolves the clan a player belongs to, nil when none.
	PlayerClan(ctx context.Context, playerID int64) (*Clan, error)
	// ClanMembers lists members of the current clan.
	ClanMembers(ctx context.Context) ([]Member, error)
	// TransferLeadership hands clan leadership to the given member.
	TransferLeadership(ctx context.Context, to User) error

	SendMessage(ctx context.Context, to User, text string)
	FetchNewMessages(ctx context.Context) ([]Message, error)
	// SendChatMacro runs a clan chat macro, used as a keepalive.
	SendChatMacro(ctx context.Context, macro string) error

	IsStuckInFight() bool
	TryEscapeFight(ctx context.Context, reason string)
	// StartFaxFight uses the held photocopy and reports the monster id of the
	// fight it starts, 0 when no fight began.
	StartFaxFight(ctx context.Context) (int64, error)
	// HasRolloverProtection reports whether the account can safely start a
	// fight right before rollover.
	HasRolloverProtection(ctx context.Context) bool
	// CheckFortuneTeller clears pending fortune teller consults in the
	// current clan's VIP lounge.
	CheckFortuneTeller(ctx context.Context)
}
