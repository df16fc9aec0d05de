package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/config"
	"github.com/libraryaddict/KolFaxBot/internal/kol"
	"github.com/libraryaddict/KolFaxBot/internal/model"
)

// KoL forgets we're online after a minute of silence; a periodic nonsense
// chat macro keeps the session visible.
const keepAliveInterval = 30 * time.Second

// Refuse new requests when rollover is this close.
const rolloverRefuseMinutes = 3

type command struct {
	restricted  bool
	description string
	run         func(ctx context.Context, sender kol.User, params string)
}

type senderState struct {
	lastSeen   time.Time
	lastWarned time.Time
}

// Dispatcher routes inbound chat to commands or the fax engine, throttling
// senders who flood and handing control to maintenance when the inbox is
// quiet.
type Dispatcher struct {
	session kol.Session
	engine  *FaxEngine
	admin   *Administration

	admins       map[int64]bool
	spamWindow   time.Duration
	warnCooldown time.Duration

	senders       map[int64]*senderState
	commands      map[string]command
	lastKeepAlive time.Time

	now func() time.Time
}

func NewDispatcher(session kol.Session, engine *FaxEngine, admin *Administration,
	cfg config.BotConfig) *Dispatcher {
	admins := make(map[int64]bool)

	for _, id := range cfg.ControllerIDs() {
		admins[id] = true
	}

	d := &Dispatcher{
		session:      session,
		engine:       engine,
		admin:        admin,
		admins:       admins,
		spamWindow:   cfg.SpamWindow,
		warnCooldown: cfg.WarnCooldown,
		senders:      make(map[int64]*senderState),
		now:          time.Now,
	}

	d.commands = map[string]command{
		"help": {
			description: "Some information, or help as it is commonly known in the noob areas (that's you)",
			run:         d.commandHelp,
		},
		"refresh": {
			restricted:  true,
			description: "'all' refreshes every whitelisted clan, otherwise refreshes the clan the sender is in",
			run:         d.commandRefresh,
		},
	}

	return d
}

// PollMessages fetches and processes the inbox, then yields to maintenance
// when there was nothing to do.
func (d *Dispatcher) PollMessages(ctx context.Context) {
	if d.now().After(d.lastKeepAlive.Add(keepAliveInterval)) {
		d.lastKeepAlive = d.now()

		if err := d.session.SendChatMacro(ctx, "/keepalive"); err != nil {
			log.Printf("[Dispatcher] Keepalive failed: %v", err)
		}
	}

	messages, err := d.session.FetchNewMessages(ctx)
	if err != nil {
		log.Printf("[Dispatcher] Failed to fetch messages: %v", err)

		return
	}

	for i := range messages {
		d.ProcessMessage(ctx, messages[i])
	}

	if len(messages) > 0 {
		return
	}

	d.admin.RunMaintenance(ctx)
}

// ProcessMessage handles one inbound chat message.
func (d *Dispatcher) ProcessMessage(ctx context.Context, msg kol.Message) {
	d.admin.PruneLedger()

	if kol.IsRolloverRisk(d.now(), rolloverRefuseMinutes) {
		if msg.Type == kol.MessagePrivate && msg.Who != nil &&
			msg.Who.ID != d.session.Player().ID {
			d.session.SendMessage(ctx, *msg.Who, string(model.MsgTooCloseRollover))
		}

		return
	}

	if msg.Type == kol.MessageEvent {
		d.handleEvent(ctx, msg)

		return
	}

	if msg.Type != kol.MessagePrivate || msg.Who == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}

	sender := *msg.Who

	if d.suppressSpam(ctx, sender) {
		return
	}

	text := strings.TrimSpace(msg.Text)

	name, params, _ := strings.Cut(text, " ")

	if cmd, ok := d.commands[strings.ToLower(name)]; ok &&
		(!cmd.restricted || d.admins[sender.ID]) {
		cmd.run(ctx, sender, strings.TrimSpace(params))

		return
	}

	d.engine.HandleRequest(ctx, sender, text)
}

// handleEvent reacts to non-chat notifications: a VIP lounge ping means a
// fortune teller consult, anything else is treated as a whitelist change.
func (d *Dispatcher) handleEvent(ctx context.Context, msg kol.Message) {
	if strings.Contains(msg.Text, "clan_viplounge.php?preaction") {
		d.admin.CheckFortuneTeller(ctx)

		return
	}

	if err := d.admin.ReconcileWhitelists(ctx); err != nil {
		log.Printf("[Dispatcher] Whitelist reconcile failed: %v", err)
	}
}

// suppressSpam drops messages arriving within the spam window of the
// sender's last processed message, warning at most once per cooldown.
func (d *Dispatcher) suppressSpam(ctx context.Context, sender kol.User) bool {
	state, ok := d.senders[sender.ID]

	if !ok {
		state = &senderState{}
		d.senders[sender.ID] = state
	}

	now := d.now()

	if !state.lastSeen.IsZero() && now.Sub(state.lastSeen) <= d.spamWindow {
		if state.lastWarned.IsZero() || now.Sub(state.lastWarned) >= d.warnCooldown {
			state.lastWarned = now
			d.session.SendMessage(ctx, sender, string(model.MsgSpamWarning))
		}

		return true
	}

	state.lastSeen = now

	return false
}

func (d *Dispatcher) commandHelp(ctx context.Context, sender kol.User, params string) {
	d.session.SendMessage(ctx, sender,
		"Hello and welcome to OnlyFax. My OnlyFaxs is free and features only the highest quality b/w pictures with every matrix dot in high definition.")
	d.session.SendMessage(ctx, sender,
		"Send me the name or ID of a monster and not only will I cosplay for you, I will take a selfie and deliver it to your clan for your personal perview.")
}

func (d *Dispatcher) commandRefresh(ctx context.Context, sender kol.User, params string) {
	if params != "" {
		if !strings.EqualFold(params, "all") {
			d.session.SendMessage(ctx, sender, "Unrecognized argument")

			return
		}

		d.session.SendMessage(ctx, sender, "Now refreshing all whitelisted clans..")

		if err := d.admin.RefreshAll(ctx); err != nil {
			log.Printf("[Dispatcher] Refresh failed: %v", err)
			d.session.SendMessage(ctx, sender, "Something went wrong during the refresh")

			return
		}

		d.session.SendMessage(ctx, sender, "All whitelisted clans have been refreshed")

		return
	}

	clan, err := d.session.PlayerClan(ctx, sender.ID)
	if err != nil || clan == nil {
		d.session.SendMessage(ctx, sender, "Unable to load your clan")

		return
	}

	d.session.SendMessage(ctx, sender, "Now refreshing the clan '"+clan.Name+"'")
	d.engine.CheckClanInfo(ctx, *clan)
	d.engine.JoinDefaultClan(ctx)
	d.session.SendMessage(ctx, sender, "The clan '"+clan.Name+"' has been refreshed")
}
