package game

// Round is one question with the two competing answers. A Round is stored by
// value, so a recorded round can't be changed through a copy handed out later.
type Round struct {
	Question    string
	HumanAnswer string
	BotAnswer   string

	// HumanTimedOut and AIFallback mark answers that are placeholders.
	HumanTimedOut bool
	AIFallback    bool
}
