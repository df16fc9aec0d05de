package service

import (
	"context"
	"fmt"

	"github.com/libraryaddict/KolFaxBot/internal/kol"
)

// fakeSession scripts the remote side of the pipeline. Defaults are the
// happy path: joins succeed, receives grab a fax, sends deliver it.
type fakeSession struct {
	player    kol.User
	loggedOut bool
	current   *kol.Clan

	joinFunc       func(clan kol.Clan) kol.JoinResult
	faxFunc        func(clanID int64, action kol.FaxAction) kol.FaxResult
	photoFunc      func() *kol.Photo
	playerClanFunc func(playerID int64) *kol.Clan

	whitelists []kol.Clan
	members    []kol.Member
	inbox      []kol.Message

	joins       []int64
	faxActions  []string
	sent        []string
	transferred []int64
	macros      []string
	fightID     int64
	stuck       bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{player: kol.User{ID: 1, Name: "OnlyFax"}}
}

func (f *fakeSession) LogIn(ctx context.Context) error { f.loggedOut = false; return nil }
func (f *fakeSession) IsLoggedOut() bool               { return f.loggedOut }
func (f *fakeSession) SetLoggedOut()                   { f.loggedOut = true }
func (f *fakeSession) Player() kol.User                { return f.player }

func (f *fakeSession) JoinClan(ctx context.Context, clan kol.Clan) kol.JoinResult {
	f.joins = append(f.joins, clan.ID)

	result := kol.Joined

	if f.joinFunc != nil {
		result = f.joinFunc(clan)
	}

	if result == kol.Joined {
		joined := clan
		f.current = &joined
	}

	return result
}

func (f *fakeSession) UseFaxMachine(ctx context.Context, action kol.FaxAction) kol.FaxResult {
	clanID := int64(0)

	if f.current != nil {
		clanID = f.current.ID
	}

	f.faxActions = append(f.faxActions, fmt.Sprintf("%d:%s", clanID, action))

	if f.faxFunc != nil {
		return f.faxFunc(clanID, action)
	}

	if action == kol.ReceiveFax {
		return kol.FaxGrabbed
	}

	return kol.FaxSent
}

func (f *fakeSession) PhotoInfo(ctx context.Context) (*kol.Photo, error) {
	if f.photoFunc != nil {
		return f.photoFunc(), nil
	}

	return nil, nil
}

func (f *fakeSession) MyClan(ctx context.Context) (*kol.Clan, error) { return f.current, nil }
func (f *fakeSession) CurrentClan() *kol.Clan                        { return f.current }

func (f *fakeSession) Whitelists(ctx context.Context) ([]kol.Clan, error) {
	return f.whitelists, nil
}

func (f *fakeSession) PlayerClan(ctx context.Context, playerID int64) (*kol.Clan, error) {
	if f.playerClanFunc != nil {
		return f.playerClanFunc(playerID), nil
	}

	return nil, nil
}

func (f *fakeSession) ClanMembers(ctx context.Context) ([]kol.Member, error) {
	return f.members, nil
}

func (f *fakeSession) TransferLeadership(ctx context.Context, to kol.User) error {
	f.transferred = append(f.transferred, to.ID)

	return nil
}

func (f *fakeSession) SendMessage(ctx context.Context, to kol.User, text string) {
	f.sent = append(f.sent, fmt.Sprintf("%d:%s", to.ID, text))
}

func (f *fakeSession) FetchNewMessages(ctx context.Context) ([]kol.Message, error) {
	inbox := f.inbox
	f.inbox = nil

	return inbox, nil
}

func (f *fakeSession) SendChatMacro(ctx context.Context, macro string) error {
	f.macros = append(f.macros, macro)

	return nil
}

func (f *fakeSession) IsStuckInFight() bool                           { return f.stuck }
func (f *fakeSession) TryEscapeFight(ctx context.Context, reason string) { f.stuck = false }

func (f *fakeSession) StartFaxFight(ctx context.Context) (int64, error) {
	return f.fightID, nil
}

func (f *fakeSession) HasRolloverProtection(ctx context.Context) bool { return true }
func (f *fakeSession) CheckFortuneTeller(ctx context.Context)         {}

var _ kol.Session = (*fakeSession)(nil)
