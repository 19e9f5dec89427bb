package telephony

// Instructions are the provider-agnostic answer to an inbound voice webhook.
// The lifecycle services build a tree of these from a routing decision; the
// TwiML renderer is the only place that knows how Twilio spells them.

type Instruction interface {
	isInstruction()
}

// Say speaks text to the caller.
type Say struct {
	Text string
}

// Dial rings one or more targets simultaneously; the first to answer wins.
type Dial struct {
	Targets []DialTarget

	// TimeoutSeconds bounds ringing before the no-answer action fires.
	TimeoutSeconds int

	// CallerID presented to the dialed parties.
	CallerID string

	// ActionURL receives the dial outcome (answered, no-answer, busy).
	// Used to fall through to voicemail when nobody picks up.
	ActionURL string
}

// DialTarget is either a softphone client identity or a PSTN number.
type DialTarget struct {
	// ClientName is a registered softphone identity.
	ClientName string
	// Number is an E.164 destination.
	Number string
}

// Gather collects DTMF digits, speaking the nested instructions as a prompt.
type Gather struct {
	NumDigits      int
	TimeoutSeconds int

	// ActionURL receives the collected digits.
	ActionURL string

	Prompt []Instruction
}

// Record captures a voicemail message.
type Record struct {
	// ActionURL receives the recording reference when the caller hangs up.
	ActionURL string

	MaxLengthSeconds int
}

// Redirect hands control to another webhook URL.
type Redirect struct {
	URL string
}

// Hangup ends the call.
type Hangup struct{}

func (Say) isInstruction()      {}
func (Dial) isInstruction()     {}
func (Gather) isInstruction()   {}
func (Record) isInstruction()   {}
func (Redirect) isInstruction() {}
func (Hangup) isInstruction()   {}

// Apology is the safe fallback tree rendered when anything on the inbound
// voice path fails. The webhook must always answer with valid instructions.
func Apology() []Instruction {
	return []Instruction{
		Say{Text: "We are sorry, an application error has occurred. Please try again later."},
		Hangup{},
	}
}
