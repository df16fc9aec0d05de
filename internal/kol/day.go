package kol

import "time"

// The first recorded rollover, unix seconds. Game days are counted from it
// and rollover happens every 24h on that boundary.
const originalRollover = 1044847800

const secondsInDay = 24 * 60 * 60

// SecondsElapsedInDay returns how far into the current game day t is.
func SecondsElapsedInDay(t time.Time) int {
	return int((t.Unix() - originalRollover) % secondsInDay)
}

// SecondsToRollover returns how long until the next rollover.
func SecondsToRollover(t time.Time) int {
	return secondsInDay - SecondsElapsedInDay(t)
}

// SecondsToNearestRollover returns the distance to the closest rollover,
// behind or ahead.
func SecondsToNearestRollover(t time.Time) int {
	elapsed := SecondsElapsedInDay(t)

	if elapsed < secondsInDay-elapsed {
		return elapsed
	}

	return secondsInDay - elapsed
}

// Day returns the game day number at t.
func Day(t time.Time) int {
	return int((t.Unix() - originalRollover) / secondsInDay)
}

// IsRolloverRisk reports whether t is within the given number of minutes of a
// rollover in either direction.
func IsRolloverRisk(t time.Time, minutes int) bool {
	return SecondsToNearestRollover(t) <= minutes*60
}

// IsRolloverFaxWindow reports whether t sits in the narrow pre-rollover
// window where an identification fax is worth attempting: more than 60s but
// less than 180s remaining.
func IsRolloverFaxWindow(t time.Time) bool {
	seconds := SecondsToRollover(t)

	return seconds > 60 && seconds < 180
}
