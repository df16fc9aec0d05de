package service

import (
	"context"
	"log"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/config"
	"github.com/libraryaddict/KolFaxBot/internal/kol"
	"github.com/libraryaddict/KolFaxBot/internal/model"
	"github.com/libraryaddict/KolFaxBot/internal/repository"
	"github.com/libraryaddict/KolFaxBot/pkg/uid"
)

// A fax machine occasionally claims we already hold a fax; the fix is to
// dump it and start over, but never endlessly.
const maxAcquireRestarts = 3

// FaxEngine runs one fax request end to end: pick a source clan, join it,
// pull the fax, verify the photocopy, join the destination and send. Every
// step maps the session outcome onto Success, Failed or TryAgain; a TryAgain
// always invalidates at least one registry mapping first, so the retry loop
// shrinks its own search space and terminates.
type FaxEngine struct {
	session  kol.Session
	registry *ClanRegistry
	catalog  *MonsterCatalog
	admin    *Administration
	faxLog   repository.FaxLogRepository

	operator    string
	defaultClan int64
	dumpClan    int64

	now func() time.Time
}

func NewFaxEngine(session kol.Session, registry *ClanRegistry, catalog *MonsterCatalog,
	admin *Administration, faxLog repository.FaxLogRepository, cfg config.BotConfig) *FaxEngine {
	return &FaxEngine{
		session:     session,
		registry:    registry,
		catalog:     catalog,
		admin:       admin,
		faxLog:      faxLog,
		operator:    cfg.Operator,
		defaultClan: cfg.DefaultClan,
		dumpClan:    cfg.FaxDumpClan,
		now:         time.Now,
	}
}

// HandleRequest resolves a player's message into a monster and fulfills it.
// Whatever happens, the attempt is recorded, any leftover fax is dumped and
// the bot returns to its default clan.
func (e *FaxEngine) HandleRequest(ctx context.Context, player kol.User, message string) {
	req := e.prepareRequest(ctx, player, message)

	if req != nil {
		e.Fulfill(ctx, req)

		req.Entry.Completed = e.now()
		e.admin.RecordFax(*req.Entry)
		e.logFax(*req.Entry)

		if req.HasFax {
			e.DumpFax(ctx, req, true)
		}
	}

	current := e.session.CurrentClan()
	if current == nil || current.ID != e.defaultClan {
		e.JoinDefaultClan(ctx)
	}
}

// prepareRequest resolves the message against the catalog and the player's
// clan. A nil return means the player was already told what went wrong.
func (e *FaxEngine) prepareRequest(ctx context.Context, player kol.User, message string) *FaxRequest {
	monsters := e.catalog.Resolve(message)

	if len(monsters) == 0 {
		e.reply(ctx, player, model.MsgMonsterUnknown, "", "")

		return nil
	}

	if len(monsters) > 1 {
		// Several matches; only those actually in the network are viable.
		var inNetwork []model.Monster

		for _, monster := range monsters {
			if _, ok := e.registry.ClanByMonster(monster.ID); ok {
				inNetwork = append(inNetwork, monster)
			}
		}

		if len(inNetwork) == 0 {
			e.reply(ctx, player, model.MsgMultipleMatchesNoneHeld, "", "")

			return nil
		}

		if len(inNetwork) > 1 {
			e.reply(ctx, player, model.MsgMultipleMatches, "", "")

			return nil
		}

		monsters = inNetwork
	}

	monster := monsters[0]

	if _, ok := e.registry.ClanByMonster(monster.ID); !ok {
		e.reply(ctx, player, model.MsgMonsterNotInNetwork, monster.PreferredName(), "")

		return nil
	}

	target, err := e.session.PlayerClan(ctx, player.ID)
	if err != nil {
		log.Printf("[FaxEngine] Failed to look up %s's clan: %v", player.Name, err)
	}

	entry := &model.FaxEntry{
		ID:          uid.New(),
		PlayerID:    player.ID,
		PlayerName:  player.Name,
		MonsterID:   monster.ID,
		MonsterName: monster.PreferredName(),
		Requested:   e.now(),
		Outcome:     string(model.MsgInternalError),
		Request:     message,
	}

	if target != nil {
		entry.ClanID = target.ID
		entry.ClanName = target.Name
	}

	log.Printf("[FaxEngine] Grabbing fax for %s: %s", player.Name, monster.PreferredName())

	return &FaxRequest{
		Requester: player,
		Monster:   monster,
		Target:    target,
		Entry:     entry,
	}
}

// Fulfill drives the acquire/settle/send pipeline until it lands on a
// terminal outcome.
func (e *FaxEngine) Fulfill(ctx context.Context, req *FaxRequest) Outcome {
	status := OutcomeTryAgain
	restarts := 0

	for status == OutcomeTryAgain {
		status = e.AcquireFax(ctx, req)

		if status == outcomeRestart {
			restarts++

			if restarts > maxAcquireRestarts {
				e.notify(ctx, req, model.MsgUnknownFaxMachineState)
				log.Printf("[FaxEngine] Machine kept reporting a held fax, giving up")

				return OutcomeFailed
			}

			status = OutcomeTryAgain

			continue
		}

		if status != OutcomeSuccess {
			continue
		}

		if req.Target == nil {
			// Identification run, the caller deals with the held fax.
			return OutcomeSuccess
		}

		e.admin.SettleWindow(ctx, req)

		status = e.sendFax(ctx, req)

		if req.HasFax && !e.DumpFax(ctx, req, false) {
			break
		}
	}

	return status
}

// AcquireFax performs the front half of the pipeline: source selection
// through photocopy verification. On Success the bot is in the destination
// clan (when there is one) holding the right fax.
func (e *FaxEngine) AcquireFax(ctx context.Context, req *FaxRequest) Outcome {
	source, ok := e.faxSource(req)

	if !ok {
		e.notify(ctx, req, model.MsgMonsterLeftNetwork)
		log.Printf("[FaxEngine] Failed to grab fax, %s is no longer in the fax network",
			req.Monster.PreferredName())

		return OutcomeFailed
	}

	if req.HasFax && !e.DumpFax(ctx, req, false) {
		return OutcomeFailed
	}

	join := e.ForceJoin(ctx, kol.Clan{ID: source.ID, Name: source.Name})

	if status := e.mapSourceJoin(ctx, req, source, join); status != OutcomeSuccess {
		return status
	}

	if status := e.receiveFax(ctx, req, source); status != OutcomeSuccess {
		return status
	}

	if req.Target == nil && req.FixedSource != nil {
		// Rollover runs deliver nowhere; the verified fax in hand is the
		// result.
		return e.verifyFax(ctx, req, source)
	}

	if req.Target == nil {
		e.notify(ctx, req, model.MsgCannotFindYourClan)
		log.Printf("[FaxEngine] Unable to find %s's clan in their profile", req.RequesterName())

		return OutcomeFailed
	}

	if status := e.mapTargetJoin(ctx, req, e.ForceJoin(ctx, *req.Target)); status != OutcomeSuccess {
		return status
	}

	return e.verifyFax(ctx, req, source)
}

// faxSource picks the clan to pull from, honoring a pinned source.
func (e *FaxEngine) faxSource(req *FaxRequest) (model.Clan, bool) {
	if req.FixedSource != nil {
		clan, ok := e.registry.ClanByID(req.FixedSource.ID)

		return clan, ok
	}

	return e.registry.ClanByMonster(req.Monster.ID)
}

func (e *FaxEngine) mapSourceJoin(ctx context.Context, req *FaxRequest, source model.Clan, join kol.JoinResult) Outcome {
	switch join {
	case kol.Joined:
		return OutcomeSuccess
	case kol.JoinNotWhitelisted:
		e.registry.SetFaxMonster(source.ID, 0)
		log.Printf("[FaxEngine] Removed %s from fax network, we're not whitelisted", source.Name)

		return OutcomeTryAgain
	case kol.JoinAmClanLeader:
		e.notify(ctx, req, model.MsgTrappedInClan)
		log.Printf("[FaxEngine] I am trapped in the clan as clan leader")

		return OutcomeFailed
	default:
		e.notify(ctx, req, model.MsgUnableJoinSourceClan)
		log.Printf("[FaxEngine] Unable to join clan, no further information known")

		return OutcomeFailed
	}
}

func (e *FaxEngine) mapTargetJoin(ctx context.Context, req *FaxRequest, join kol.JoinResult) Outcome {
	switch join {
	case kol.Joined:
		return OutcomeSuccess
	case kol.JoinNotWhitelisted:
		e.notify(ctx, req, model.MsgNotWhitelistedYourClan)
		log.Printf("[FaxEngine] Not whitelisted to clan '%s'", req.Target.Name)

		return OutcomeFailed
	case kol.JoinAmClanLeader:
		e.notify(ctx, req, model.MsgTrappedInClan)
		log.Printf("[FaxEngine] Failed to join target clan, I am clan leader and trapped")

		return OutcomeFailed
	default:
		e.notify(ctx, req, model.MsgErrorJoiningYourClan)
		log.Printf("[FaxEngine] Unknown error while trying to join target clan")

		return OutcomeFailed
	}
}

// receiveFax operates the machine in the source clan.
func (e *FaxEngine) receiveFax(ctx context.Context, req *FaxRequest, source model.Clan) Outcome {
	result := e.session.UseFaxMachine(ctx, kol.ReceiveFax)

	if result == kol.FaxAlreadyHave || result == kol.FaxGrabbed {
		req.HasFax = true
	}

	switch result {
	case kol.FaxGrabbed:
		if req.Entry != nil {
			req.Entry.SourceClanID = source.ID
		}

		return OutcomeSuccess
	case kol.FaxAlreadyHave:
		log.Printf("[FaxEngine] Had a fax on hand unexpectedly, now dumping")

		if e.DumpFax(ctx, req, false) {
			return outcomeRestart
		}

		return OutcomeFailed
	case kol.FaxNoneLoaded, kol.FaxNoMachine:
		e.registry.SetFaxMonster(source.ID, 0)
		log.Printf("[FaxEngine] The fax source clan %s had an invalid state: %s", source.Name, result)

		return OutcomeTryAgain
	default:
		e.notify(ctx, req, model.MsgUnknownFaxMachineState)
		log.Printf("[FaxEngine] Unknown fax machine state, no further information")

		return OutcomeFailed
	}
}

// verifyFax inspects the held photocopy against the monster we meant to pull.
// A mismatch corrects the source mapping to what was actually found and
// retries the whole acquisition.
func (e *FaxEngine) verifyFax(ctx context.Context, req *FaxRequest, source model.Clan) Outcome {
	photo, err := e.session.PhotoInfo(ctx)
	if err != nil {
		log.Printf("[FaxEngine] Failed to inspect held photocopy: %v", err)
	}

	if photoMatches(photo, req.Monster) {
		return OutcomeSuccess
	}

	if !e.DumpFax(ctx, req, false) {
		return OutcomeFailed
	}

	found := int64(0)
	foundName := "<nothing>"

	if photo != nil {
		found = photo.MonsterID
		foundName = photo.Name
	}

	e.registry.SetFaxMonster(source.ID, found)
	log.Printf("[FaxEngine] Fax was not as expected, expected %s but received %s. Correcting %s in network",
		req.Monster.PreferredName(), foundName, source.Name)

	return OutcomeTryAgain
}

// photoMatches trusts the photocopy's monster id when the page discloses
// one; ambiguous monsters share a display name and omit the id, so those
// fall back to a normalized name comparison.
func photoMatches(photo *kol.Photo, monster model.Monster) bool {
	if photo == nil {
		return false
	}

	if photo.MonsterID != 0 {
		return photo.MonsterID == monster.ID
	}

	normalized := model.NormalizeMonsterName(photo.Name)

	return normalized != "" &&
		(normalized == model.NormalizeMonsterName(monster.Name) ||
			normalized == model.NormalizeMonsterName(monster.ManualName))
}

// sendFax delivers the held fax to the destination clan the bot is standing
// in. Sending inside a registered fax source would overwrite that source's
// loaded fax, so the destination is checked against the registry first.
func (e *FaxEngine) sendFax(ctx context.Context, req *FaxRequest) Outcome {
	current := e.session.CurrentClan()

	if current == nil {
		e.notify(ctx, req, model.MsgUnknownClan)
		log.Printf("[FaxEngine] Refusing to send, current clan is unknown")

		return OutcomeFailed
	}

	if clan, ok := e.registry.ClanByID(current.ID); ok && clan.Type() == model.ClanTypeFaxSource {
		e.notify(ctx, req, model.MsgIllegalClan)
		log.Printf("[FaxEngine] Refusing to send a fax inside fax source clan %s", clan.Name)

		return OutcomeFailed
	}

	result := e.session.UseFaxMachine(ctx, kol.SendFax)
	req.HasFax = result != kol.FaxSent && result != kol.FaxNothingToSend

	switch result {
	case kol.FaxSent:
		e.notify(ctx, req, model.MsgFaxReady)
		e.admin.NoteFaxServed()
		log.Printf("[FaxEngine] Completed fax request from %s for monster %s",
			req.RequesterName(), req.Monster.PreferredName())

		return OutcomeSuccess
	case kol.FaxNoMachine:
		e.notify(ctx, req, model.MsgNoFaxMachine)
		log.Printf("[FaxEngine] Failed to send fax, they do not have a fax machine")
	case kol.FaxIllegalClan:
		e.notify(ctx, req, model.MsgIllegalClan)
		log.Printf("[FaxEngine] Attempted to send a fax to a source fax clan")
	case kol.FaxNoClanInfo:
		e.notify(ctx, req, model.MsgUnknownClan)
		log.Printf("[FaxEngine] Failed to send fax, unknown clan information")
	}

	return OutcomeFailed
}

// DumpFax discards the held fax into the dump clan. A machine with nothing
// to send counts as already clear. req may be nil for housekeeping dumps.
func (e *FaxEngine) DumpFax(ctx context.Context, req *FaxRequest, silent bool) bool {
	log.Printf("[FaxEngine] Now getting rid of the fax on hand")

	join := e.ForceJoin(ctx, e.clanRef(e.dumpClan))

	if join != kol.Joined {
		log.Printf("[FaxEngine] Failed to join fax dump clan: %s", join)

		if !silent {
			e.notify(ctx, req, model.MsgFailedDumpFax)
		}

		return false
	}

	result := e.session.UseFaxMachine(ctx, kol.SendFax)
	hasFax := result != kol.FaxSent && result != kol.FaxIllegalClan &&
		result != kol.FaxNothingToSend

	if req != nil {
		req.HasFax = hasFax
	}

	if !hasFax {
		return true
	}

	if !silent {
		e.notify(ctx, req, model.MsgFailedDumpFax)
	}

	log.Printf("[FaxEngine] Failed to dump fax: %s", result)

	return false
}

// ForceJoin joins a clan, first handing off leadership when the bot is
// trapped as leader of its current clan.
func (e *FaxEngine) ForceJoin(ctx context.Context, clan kol.Clan) kol.JoinResult {
	result := e.session.JoinClan(ctx, clan)

	if result != kol.JoinAmClanLeader {
		return result
	}

	leader, ok := e.pickNewLeader(ctx)

	if !ok {
		log.Printf("[FaxEngine] Failed to find a new clan leader to hand off to")

		return result
	}

	if err := e.session.TransferLeadership(ctx, leader); err != nil {
		log.Printf("[FaxEngine] Failed to transfer leadership to %s: %v", leader.Name, err)

		return result
	}

	return e.session.JoinClan(ctx, clan)
}

// pickNewLeader chooses a replacement leader from the current clan,
// preferring an inactive member so no active player is disrupted.
func (e *FaxEngine) pickNewLeader(ctx context.Context) (kol.User, bool) {
	members, err := e.session.ClanMembers(ctx)
	if err != nil {
		log.Printf("[FaxEngine] Failed to list clan members: %v", err)

		return kol.User{}, false
	}

	var backup *kol.User

	for i := range members {
		member := members[i]

		if member.ID == e.session.Player().ID {
			continue
		}

		if member.Inactive {
			return member.User, true
		}

		if backup == nil {
			backup = &member.User
		}
	}

	if backup == nil {
		return kol.User{}, false
	}

	return *backup, true
}

// JoinDefaultClan returns the bot to its home clan.
func (e *FaxEngine) JoinDefaultClan(ctx context.Context) {
	e.ForceJoin(ctx, e.clanRef(e.defaultClan))
}

func (e *FaxEngine) clanRef(id int64) kol.Clan {
	if clan, ok := e.registry.ClanByID(id); ok {
		return kol.Clan{ID: clan.ID, Name: clan.Name}
	}

	return kol.Clan{ID: id}
}

// CheckClanInfo probes a whitelisted clan: join it, read the title, poke the
// fax machine to learn what it offers, and fold the result into the
// registry.
func (e *FaxEngine) CheckClanInfo(ctx context.Context, clan kol.Clan) {
	log.Printf("[FaxEngine] Now checking up on clan %s", clan.Name)

	state := e.ForceJoin(ctx, clan)

	if state != kol.Joined {
		log.Printf("[FaxEngine] Failed to join %s: %s", clan.Name, state)

		return
	}

	joined, err := e.session.MyClan(ctx)
	if err != nil || joined == nil || joined.ID != clan.ID {
		// Landed somewhere unexpected, leave it alone.
		return
	}

	result := e.session.UseFaxMachine(ctx, kol.ReceiveFax)

	if result == kol.FaxAlreadyHave || result == kol.FaxUnknown {
		log.Printf("[FaxEngine] Unexpectedly bugged out checking clan fax: %s", result)
		e.DumpFax(ctx, nil, true)

		return
	}

	old, known := e.registry.ClanByID(joined.ID)

	record := model.Clan{
		ID:          joined.ID,
		Name:        joined.Name,
		Title:       joined.Title,
		LastChecked: e.now(),
		FirstAdded:  e.now(),
	}

	if known {
		record.FirstAdded = old.FirstAdded
	}

	if result == kol.FaxGrabbed {
		photo, err := e.session.PhotoInfo(ctx)

		if err != nil || photo == nil {
			log.Printf("[FaxEngine] Failed to find fax information in clan %s", joined.Name)
			e.DumpFax(ctx, nil, true)

			return
		}

		e.DumpFax(ctx, nil, true)

		monsterID := photo.MonsterID

		if monsterID == 0 {
			if matches := e.catalog.Resolve(photo.Name); len(matches) > 0 {
				monsterID = matches[0].ID
			} else if _, err := e.catalog.TryRefresh(ctx); err != nil {
				log.Printf("[FaxEngine] Failed to refresh monsters: %v", err)
			}
		}

		record.FaxMonsterID = monsterID
		record.FaxLastChanged = e.now()

		// Same monster as last visit, its age still counts.
		if known && monsterID != 0 && monsterID == old.FaxMonsterID {
			record.FaxLastChanged = old.FaxLastChanged
		}
	} else if known && old.HasFax() {
		// The machine misbehaved; keep the record we had.
		return
	}

	e.registry.Update(record)
}

// logFax appends the concluded attempt to the fax log without blocking.
func (e *FaxEngine) logFax(entry model.FaxEntry) {
	if e.faxLog == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := e.faxLog.InsertFax(ctx, entry); err != nil {
			log.Printf("[FaxEngine] Failed to record fax attempt: %v", err)
		}
	}()
}

// notify sends a user-facing message and stamps it as the attempt outcome.
func (e *FaxEngine) notify(ctx context.Context, req *FaxRequest, msg model.Message) {
	if req == nil || req.Silent {
		return
	}

	if req.Entry != nil {
		req.Entry.Outcome = string(msg)
	}

	clanName := "Unknown Clan"

	if req.Target != nil {
		clanName = req.Target.Name
	}

	e.reply(ctx, req.Requester, msg, req.Monster.PreferredName(), clanName)
}

func (e *FaxEngine) reply(ctx context.Context, to kol.User, msg model.Message, monster, clan string) {
	e.session.SendMessage(ctx, to, msg.Fill(monster, clan, e.operator))
}
