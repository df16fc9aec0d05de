package model

import "strings"

// Message is a user-facing reply. Placeholders are filled before sending and
// the raw text is what lands in the fax log as the outcome.
type Message string

const (
	MsgFaxReady Message = "Your fax is ready: {monster}"

	MsgMonsterUnknown          Message = "Error! I do not recognize that monster, try sending the monster ID"
	MsgMultipleMatchesNoneHeld Message = "Error! Multiple monsters matched that name but none of them are in my fax network"
	MsgMultipleMatches         Message = "Error! Multiple monsters in my fax network matched that name, clarify the monster name or use the monster ID"
	MsgMonsterNotInNetwork     Message = "Error! {monster} is not in my fax network"
	MsgMonsterLeftNetwork      Message = "Error! {monster} appears to have been removed from the fax network"

	MsgNotWhitelistedYourClan Message = "Error! I am not whitelisted to your clan {clan}"
	MsgCannotFindYourClan     Message = "Error! I cannot identify which clan you are in"
	MsgNoFaxMachine           Message = "Error! Your clan {clan} does not have a fax machine"

	MsgUnknownFaxMachineState Message = "Error! Encountered unknown problem while attempting to grab the fax from the source clan"
	MsgTrappedInClan          Message = "Error! I am trapped in a clan, please contact my bot operator {operator}"
	MsgUnableJoinSourceClan   Message = "Error! I am unable to join the fax source clan, please contact my bot operator {operator} if this continues to happen"
	MsgErrorJoiningYourClan   Message = "Error! Unknown issue while trying to join your clan, if this persists please contact {operator}"

	MsgIllegalClan      Message = "Error! Your clan is a fax source clan and I cannot dump a fax here"
	MsgTooCloseRollover Message = "Error! Rollover is near and I am sincere in my fear I must declare that I cannot share a fax for fear I will be in arrears when rollover interferes"
	MsgFailedDumpFax    Message = "Error! Failed to dump a fax in a sideclan, please report this to my bot operator if this continues to happen"

	MsgInternalError Message = "Error! The bot suffered an internal issue, if this persists please contact the bot operator {operator}"
	MsgUnknownClan   Message = "Error! I failed to load information for my current clan properly"

	MsgSpamWarning Message = "Please slow down, I can only handle one request at a time"
)

// Fill substitutes the {monster}, {clan} and {operator} placeholders.
func (m Message) Fill(monster, clan, operator string) string {
	text := string(m)
	text = strings.ReplaceAll(text, "{monster}", monster)
	text = strings.ReplaceAll(text, "{clan}", clan)
	text = strings.ReplaceAll(text, "{operator}", operator)

	return text
}
