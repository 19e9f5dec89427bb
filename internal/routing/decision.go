package routing

// Decision is the provider-agnostic output of voice resolution.
//
// It must contain *only* information required for the gateway adapter boundary
// (e.g., the TwiML builder) to execute the decision.
//
// No provider identity and no provider-specific fields belong here.

type Decision struct {
	Kind Kind `json:"kind"`

	// TargetUserIDs is populated for KindUser (one element) and
	// KindTeamMembers (all active members, dialed simultaneously).
	TargetUserIDs []string `json:"target_user_ids,omitempty"`

	// IVRID identifies the menu to run for KindIVR.
	IVRID string `json:"ivr_id,omitempty"`

	// Prompt is the text to speak: the IVR welcome line, the voicemail
	// greeting, the after-hours message, or the rejection apology.
	Prompt string `json:"prompt,omitempty"`

	// Reason is for internal logs only.
	Reason string `json:"reason,omitempty"`
}

type Kind string

const (
	KindUser        Kind = "user"
	KindTeamMembers Kind = "team_members"
	KindIVR         Kind = "ivr"
	KindVoicemail   Kind = "voicemail"
	KindMessageOnly Kind = "message_only"
	KindReject      Kind = "reject"
)

// AssignmentDecision is the output of SMS resolution. Team routing assigns the
// team id only (shared queue semantics); there is no fan-out for messages.
type AssignmentDecision struct {
	Assigned       bool   `json:"assigned"`
	AssignedUserID string `json:"assigned_user_id,omitempty"`
	AssignedTeamID string `json:"assigned_team_id,omitempty"`

	Reason string `json:"reason,omitempty"`
}
