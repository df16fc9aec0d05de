package kol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://www.kingdomofloathing.com"

// Item and effect that protect a fight from being interrupted by rollover.
const (
	contactLensesItem = 5334
	abyssalSweatID    = 1377
)

// The photocopy item, inspected to learn the monster it depicts.
const photocopyItem = 835898159

var (
	playerPattern     = regexp.MustCompile(`<b>([^>]*?)</b> \(#(\d+)\)<br>`)
	playerClanPattern = regexp.MustCompile(`<b><a class=nounder href="showclan\.php\?whichclan=(\d+)">(.*?)</a></b>(?:<br>Title: <b>([^>]*)</b></td>)?`)
	whitelistPattern  = regexp.MustCompile(`<a href=showclan\.php\?whichclan=(\d+) class=nounder><b>([^>]*?)</b>`)
	memberPattern     = regexp.MustCompile(`href="showplayer\.php\?who=(\d+)">([^<]+?)</a>(?:<font color=gray><b> \((inactive)\)</b>)?`)
	photoPattern      = regexp.MustCompile(`likeness of (?:a|an) (.*?)<!-- monsterid: (\d+) --> on it`)
	monsterIDPattern  = regexp.MustCompile(`<!-- MONSTERID: (\d+) -->`)
)

// Client implements Session over the game's rendered pages. Page decoding is
// deliberately minimal: each action maps the handful of known response
// substrings onto the closed enumerations and everything else is Unknown.
type Client struct {
	http     *http.Client
	baseURL  string
	username string
	password string

	mu          sync.Mutex
	loggedOut   bool
	pwdhash     string
	player      User
	currentClan *Clan
	stuck       bool
	lastFetched string
}

// NewClient creates a logged-out client for the given account.
func NewClient(username, password string) *Client {
	jar, _ := cookiejar.New(nil)

	return &Client{
		http:        &http.Client{Timeout: 60 * time.Second, Jar: jar},
		baseURL:     defaultBaseURL,
		username:    username,
		password:    password,
		loggedOut:   true,
		lastFetched: "0",
	}
}

func (c *Client) visit(ctx context.Context, page string, params url.Values) (string, error) {
	c.mu.Lock()
	if c.pwdhash != "" {
		params.Set("pwd", c.pwdhash)
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/"+page, strings.NewReader(params.Encode()))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("visit %s: %w", page, err)
	}
	defer resp.Body.Close()

	if strings.HasPrefix(resp.Request.URL.Path, "/login.php") {
		log.Printf("[KoL] We appear to be logged out")
		c.SetLoggedOut()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("visit %s: %w", page, err)
	}

	return string(body), nil
}

// LogIn posts the login form and pulls the session password hash from the
// status api.
func (c *Client) LogIn(ctx context.Context) error {
	params := url.Values{
		"loggingin":    {"Yup."},
		"loginname":    {c.username},
		"password":     {c.password},
		"secure":       {"0"},
		"submitbutton": {"Log In"},
	}

	if _, err := c.visit(ctx, "login.php", params); err != nil {
		return err
	}

	page, err := c.visit(ctx, "api.php", url.Values{"what": {"status"}, "for": {"Faxbot"}})
	if err != nil {
		return err
	}

	var status struct {
		PlayerID string `json:"playerid"`
		Name     string `json:"name"`
		Pwd      string `json:"pwd"`
	}

	if err := json.Unmarshal([]byte(page), &status); err != nil {
		return fmt.Errorf("login status: %w", err)
	}

	id, err := strconv.ParseInt(status.PlayerID, 10, 64)
	if err != nil {
		return fmt.Errorf("login status: bad player id %q", status.PlayerID)
	}

	c.mu.Lock()
	c.loggedOut = false
	c.pwdhash = status.Pwd
	c.player = User{ID: id, Name: status.Name}
	c.mu.Unlock()

	log.Printf("[KoL] Logged in as %s (#%d)", status.Name, id)

	return nil
}

func (c *Client) IsLoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loggedOut
}

func (c *Client) SetLoggedOut() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loggedOut = true
	c.pwdhash = ""
	c.currentClan = nil
}

func (c *Client) Player() User {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.player
}

func (c *Client) JoinClan(ctx context.Context, clan Clan) JoinResult {
	page, err := c.visit(ctx, "showclan.php", url.Values{
		"whichclan": {strconv.FormatInt(clan.ID, 10)},
		"action":    {"joinclan"},
		"confirm":   {"1"},
		"ajax":      {"0"},
	})
	if err != nil {
		log.Printf("[KoL] Join clan %d failed: %v", clan.ID, err)

		return JoinUnknown
	}

	// Page content past the first block is clan decoration, not the result.
	if div := strings.Index(page, "</center></td>"); div > 0 {
		page = page[:div]
	}

	switch {
	case strings.Contains(page, "You can't apply to a new clan when you're the leader of an existing clan."):
		return JoinAmClanLeader
	case strings.Contains(page, "This clan is not accepting admissions right now."),
		strings.Contains(page, "You have submitted a request to join"):
		return JoinNotWhitelisted
	case strings.Contains(page, "You have now changed your allegiance."),
		strings.Contains(page, "You can't apply to a clan you're already in."):
		c.setCurrentClan(clan)

		return Joined
	}

	// The response didn't say; trust the profile instead.
	myClan, err := c.MyClan(ctx)
	if err == nil && myClan != nil && myClan.ID == clan.ID {
		return Joined
	}

	log.Printf("[KoL] Can't decode clan join response for clan %d", clan.ID)

	return JoinUnknown
}

func (c *Client) setCurrentClan(clan Clan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	clanCopy := clan
	c.currentClan = &clanCopy
}

func (c *Client) UseFaxMachine(ctx context.Context, action FaxAction) FaxResult {
	page, err := c.visit(ctx, "clan_viplounge.php", url.Values{
		"preaction":  {string(action)},
		"whichfloor": {"2"},
	})
	if err != nil {
		log.Printf("[KoL] Fax machine %s failed: %v", action, err)

		return FaxUnknown
	}

	switch {
	case strings.Contains(page, "You pop your photocopy into the tray, dial the number"):
		return FaxSent
	case strings.Contains(page, "You get the jam cleared and hit a bunch of buttons"):
		return FaxGrabbed
	case strings.Contains(page, "You sit for a while waiting for an important fax, but one doesn't show up"):
		return FaxAlreadyHave
	case strings.Contains(page, "It turns out to just be a blank sheet of paper, so you throw it away"),
		strings.Contains(page, "The stupid broken fax machine just spits out another blank sheet of paper."):
		return FaxNoneLoaded
	case strings.Contains(page, "That's not a thing."):
		return FaxNothingToSend
	case strings.Contains(page, ">Clan VIP Lounge (Attic)</b>") &&
		!strings.Contains(page, "<a href=clan_viplounge.php?action=faxmachine&whichfloor=2>"):
		return FaxNoMachine
	}

	log.Printf("[KoL] Can't decode fax machine response for %s", action)

	return FaxUnknown
}

func (c *Client) PhotoInfo(ctx context.Context) (*Photo, error) {
	page, err := c.visit(ctx, "desc_item.php", url.Values{
		"whichitem": {strconv.Itoa(photocopyItem)},
	})
	if err != nil {
		return nil, err
	}

	match := photoPattern.FindStringSubmatch(page)
	if match == nil {
		return nil, nil
	}

	id, _ := strconv.ParseInt(match[2], 10, 64)
	name := match[1]

	if name == "butt" {
		name = "somebody else's butt"
	}

	return &Photo{MonsterID: id, Name: name}, nil
}

func (c *Client) MyClan(ctx context.Context) (*Clan, error) {
	clan, err := c.PlayerClan(ctx, c.Player().ID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.currentClan = clan
	c.mu.Unlock()

	return clan, nil
}

func (c *Client) CurrentClan() *Clan {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.currentClan
}

func (c *Client) PlayerClan(ctx context.Context, playerID int64) (*Clan, error) {
	page, err := c.visit(ctx, "showplayer.php", url.Values{
		"who": {strconv.FormatInt(playerID, 10)},
	})
	if err != nil {
		return nil, err
	}

	if playerPattern.FindStringSubmatch(page) == nil {
		return nil, fmt.Errorf("player %d: profile not readable", playerID)
	}

	match := playerClanPattern.FindStringSubmatch(page)
	if match == nil {
		return nil, nil
	}

	id, _ := strconv.ParseInt(match[1], 10, 64)

	return &Clan{ID: id, Name: match[2], Title: match[3]}, nil
}

func (c *Client) Whitelists(ctx context.Context) ([]Clan, error) {
	page, err := c.visit(ctx, "clan_signup.php", url.Values{"place": {"managewhitelists"}})
	if err != nil {
		return nil, err
	}

	var clans []Clan

	for _, match := range whitelistPattern.FindAllStringSubmatch(page, -1) {
		id, _ := strconv.ParseInt(match[1], 10, 64)
		clans = append(clans, Clan{ID: id, Name: match[2]})
	}

	return clans, nil
}

func (c *Client) ClanMembers(ctx context.Context) ([]Member, error) {
	page, err := c.visit(ctx, "clan_members.php", url.Values{})
	if err != nil {
		return nil, err
	}

	self := c.Player().ID

	var members []Member

	for _, match := range memberPattern.FindAllStringSubmatch(page, -1) {
		id, _ := strconv.ParseInt(match[1], 10, 64)

		if id == self {
			continue
		}

		members = append(members, Member{
			User:     User{ID: id, Name: match[2]},
			Inactive: match[3] != "",
		})
	}

	return members, nil
}

func (c *Client) TransferLeadership(ctx context.Context, to User) error {
	page, err := c.visit(ctx, "clan_admin.php", url.Values{
		"action":    {"changeleader"},
		"newleader": {strconv.FormatInt(to.ID, 10)},
		"confirm":   {"on"},
	})
	if err != nil {
		return err
	}

	if !strings.Contains(page, "Leadership of clan transferred. A leader is no longer you.") {
		return fmt.Errorf("leadership transfer to %s (#%d) not confirmed", to.Name, to.ID)
	}

	log.Printf("[KoL] Transferred clan leadership to %s (#%d)", to.Name, to.ID)

	return nil
}

func (c *Client) SendChatMacro(ctx context.Context, macro string) error {
	_, err := c.visit(ctx, "submitnewchat.php", url.Values{
		"graf": {"/clan " + macro},
		"j":    {"1"},
	})

	return err
}

// The rough chat limit is 260; lowered since long words get spaces injected.
const messageLimit = 245

func (c *Client) SendMessage(ctx context.Context, to User, text string) {
	for len(text) > 0 {
		chunk := text

		if len(chunk) > messageLimit {
			chunk = chunk[:messageLimit]
		}

		text = text[len(chunk):]

		err := c.SendChatMacro(ctx, fmt.Sprintf("/w %d %s", to.ID, chunk))
		if err != nil {
			log.Printf("[KoL] Failed to message %s (#%d): %v", to.Name, to.ID, err)

			return
		}
	}
}

func (c *Client) FetchNewMessages(ctx context.Context) ([]Message, error) {
	c.mu.Lock()
	since := c.lastFetched
	c.mu.Unlock()

	page, err := c.visit(ctx, "newchatmessages.php", url.Values{
		"j":        {"1"},
		"lasttime": {since},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Last json.Number `json:"last"`
		Msgs []struct {
			Type string `json:"type"`
			Who  *struct {
				ID   json.Number `json:"id"`
				Name string      `json:"name"`
			} `json:"who"`
			Msg string `json:"msg"`
		} `json:"msgs"`
	}

	if err := json.Unmarshal([]byte(page), &payload); err != nil {
		return nil, fmt.Errorf("chat poll: %w", err)
	}

	c.mu.Lock()
	c.lastFetched = payload.Last.String()
	c.mu.Unlock()

	messages := make([]Message, 0, len(payload.Msgs))

	for _, m := range payload.Msgs {
		msg := Message{Type: MessageType(m.Type), Text: m.Msg}

		if m.Who != nil {
			id, _ := m.Who.ID.Int64()
			msg.Who = &User{ID: id, Name: m.Who.Name}
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

func (c *Client) IsStuckInFight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stuck
}

func isFightPage(page string) bool {
	return strings.Contains(page, " action=fight.php method=post>")
}

func (c *Client) TryEscapeFight(ctx context.Context, reason string) {
	log.Printf("[KoL] Trying to escape the current fight: %s", reason)

	page, err := c.visit(ctx, "fight.php", url.Values{"action": {"runaway"}})
	if err != nil {
		log.Printf("[KoL] Escape attempt failed: %v", err)

		return
	}

	c.mu.Lock()
	c.stuck = isFightPage(page)
	c.mu.Unlock()
}

func (c *Client) StartFaxFight(ctx context.Context) (int64, error) {
	page, err := c.visit(ctx, "inv_use.php", url.Values{
		"whichitem": {"4873"},
		"ajax":      {"1"},
	})
	if err != nil {
		return 0, err
	}

	stuck := isFightPage(page)

	if !stuck {
		page, err = c.visit(ctx, "fight.php", url.Values{})
		if err != nil {
			return 0, err
		}

		stuck = isFightPage(page)
	}

	c.mu.Lock()
	c.stuck = stuck
	c.mu.Unlock()

	match := monsterIDPattern.FindStringSubmatch(page)
	if match == nil {
		return 0, nil
	}

	id, _ := strconv.ParseInt(match[1], 10, 64)

	return id, nil
}

func (c *Client) HasRolloverProtection(ctx context.Context) bool {
	page, err := c.visit(ctx, "api.php", url.Values{"what": {"status"}, "for": {"Faxbot"}})
	if err != nil {
		log.Printf("[KoL] Status check failed: %v", err)

		return false
	}

	var status struct {
		Equipment map[string]json.Number `json:"equipment"`
		Effects   map[string][]any       `json:"effects"`
	}

	if err := json.Unmarshal([]byte(page), &status); err != nil {
		return false
	}

	for _, slot := range []string{"acc1", "acc2", "acc3"} {
		if item, ok := status.Equipment[slot]; ok {
			if id, _ := item.Int64(); id == contactLensesItem {
				return true
			}
		}
	}

	for _, effect := range status.Effects {
		// Effect rows are [name, duration, ..., "id"] tuples.
		if len(effect) < 2 {
			continue
		}

		id, ok := effect[len(effect)-1].(string)
		if ok && id == strconv.Itoa(abyssalSweatID) {
			return true
		}
	}

	return false
}

func (c *Client) CheckFortuneTeller(ctx context.Context) {
	page, err := c.visit(ctx, "clan_viplounge.php", url.Values{"preaction": {"lovetester"}})
	if err != nil || strings.Contains(page, "You attempt to sneak into the VIP Lounge") {
		return
	}

	page, err = c.visit(ctx, "choice.php", url.Values{"forceoption": {"0"}})
	if err != nil {
		return
	}

	consultPattern := regexp.MustCompile(`clan_viplounge\.php\?preaction=testlove&testlove=(\d+)`)

	for _, match := range consultPattern.FindAllStringSubmatch(page, -1) {
		_, err := c.visit(ctx, "clan_viplounge.php", url.Values{
			"q1":        {"beer"},
			"q2":        {"robin"},
			"q3":        {"thin"},
			"preaction": {"dotestlove"},
			"testlove":  {match[1]},
		})
		if err != nil {
			return
		}
	}
}

var _ Session = (*Client)(nil)
