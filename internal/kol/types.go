// Package kol is the session adapter for Kingdom of Loathing. It owns the
// login lifecycle and decodes page responses into the closed outcome
// enumerations the rest of the bot consumes; nothing outside this package
// looks at page content.
package kol

// User identifies a player.
type User struct {
	ID   int64
	Name string
}

// Clan identifies a clan. Title is the title the bot holds in it, when known.
type Clan struct {
	ID    int64
	Name  string
	Title string
}

// Member is one row of a clan member list.
type Member struct {
	User
	Inactive bool
}

// Photo is the monster identity read off the held photocopy.
type Photo struct {
	MonsterID int64
	Name      string
}

// MessageType distinguishes inbound chat message kinds.
type MessageType string

const (
	MessagePrivate MessageType = "private"
	MessagePublic  MessageType = "public"
	MessageEvent   MessageType = "event"
	MessageSystem  MessageType = "system"
)

// Message is one inbound chat message.
type Message struct {
	Type MessageType
	Who  *User
	Text string
}

// JoinResult is the outcome of a clan join attempt.
type JoinResult int

const (
	JoinUnknown JoinResult = iota
	Joined
	JoinNotWhitelisted
	JoinAmClanLeader
)

func (r JoinResult) String() string {
	switch r {
	case Joined:
		return "Joined"
	case JoinNotWhitelisted:
		return "Not Whitelisted"
	case JoinAmClanLeader:
		return "Am Clan Leader"
	default:
		return "Unknown"
	}
}

// FaxAction selects the fax machine mode.
type FaxAction string

const (
	ReceiveFax FaxAction = "receivefax"
	SendFax    FaxAction = "sendfax"
)

// FaxResult is the outcome of operating the fax machine.
type FaxResult int

const (
	FaxUnknown FaxResult = iota
	FaxSent
	FaxGrabbed
	FaxAlreadyHave
	FaxNoneLoaded
	FaxNoMachine
	FaxIllegalClan
	FaxNoClanInfo
	FaxNothingToSend
)

func (r FaxResult) String() string {
	switch r {
	case FaxSent:
		return "Sent Fax"
	case FaxGrabbed:
		return "Grabbed Fax"
	case FaxAlreadyHave:
		return "Already have fax"
	case FaxNoneLoaded:
		return "No Fax Loaded"
	case FaxNoMachine:
		return "No Fax Machine"
	case FaxIllegalClan:
		return "Illegal Clan"
	case FaxNoClanInfo:
		return "No Clan Info"
	case FaxNothingToSend:
		return "Have no fax to send"
	default:
		return "Unknown"
	}
}
