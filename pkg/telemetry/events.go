package telemetry

import (
	"runtime"
	"time"
)

// InteractionType names what the user asked the generator to do.
type InteractionType string

const (
	InteractionGenerateReadme InteractionType = "GENERATE_README"
	InteractionUpdateReadme   InteractionType = "UPDATE_README"
	InteractionEditReadme     InteractionType = "EDIT_README"
)

// UserDecision is the user's verdict on a generated change set.
type UserDecision string

const (
	DecisionAccept UserDecision = "ACCEPT"
	DecisionReject UserDecision = "REJECT"
)

// EventKind distinguishes the two payload shapes the backend accepts.
type EventKind string

const (
	KindDocGeneration EventKind = "docGenerationEvent"
	KindDocAcceptance EventKind = "docAcceptanceEvent"
)

// UserContext identifies the client that produced an event.
type UserContext struct {
	IDECategory     string `json:"ideCategory"`
	OperatingSystem string `json:"operatingSystem"`
	Product         string `json:"product"`
	ClientID        string `json:"clientId"`
	IDEVersion      string `json:"ideVersion"`
}

// ClientInfoProvider supplies the client context stamped on every event.
type ClientInfoProvider interface {
	UserContext() UserContext
}

// StaticClientInfo is a fixed ClientInfoProvider.
type StaticClientInfo UserContext

func (s StaticClientInfo) UserContext() UserContext {
	uc := UserContext(s)
	if uc.OperatingSystem == "" {
		uc.OperatingSystem = OperatingSystem()
	}
	return uc
}

// OperatingSystem maps GOOS onto the names the backend expects.
func OperatingSystem() string {
	switch runtime.GOOS {
	case "darwin":
		return "MAC"
	case "windows":
		return "WINDOWS"
	default:
		return "LINUX"
	}
}

// GenerationEvent reports content produced by one generation round.
type GenerationEvent struct {
	ConversationID      string          `json:"conversationId"`
	NumberOfAddedChars  int             `json:"numberOfAddedChars,omitempty"`
	NumberOfAddedLines  int             `json:"numberOfAddedLines,omitempty"`
	NumberOfAddedFiles  int             `json:"numberOfAddedFiles,omitempty"`
	Interaction         InteractionType `json:"interactionType,omitempty"`
	NumberOfNavigations int             `json:"numberOfNavigations,omitempty"`
	Folders             int             `json:"folderLevel,omitempty"`
}

// AcceptanceEvent reports what the user kept from a generation round.
type AcceptanceEvent struct {
	ConversationID     string          `json:"conversationId"`
	NumberOfAddedChars int             `json:"numberOfAddedChars,omitempty"`
	NumberOfAddedLines int             `json:"numberOfAddedLines,omitempty"`
	NumberOfAddedFiles int             `json:"numberOfAddedFiles,omitempty"`
	Decision           UserDecision    `json:"userDecision"`
	Interaction        InteractionType `json:"interactionType,omitempty"`
}

// Envelope is what a Sink receives: one payload plus the caller context.
type Envelope struct {
	Kind        EventKind        `json:"kind"`
	OptOut      bool             `json:"optOutPreference"`
	UserContext UserContext      `json:"userContext"`
	Generation  *GenerationEvent `json:"docGenerationEvent,omitempty"`
	Acceptance  *AcceptanceEvent `json:"docAcceptanceEvent,omitempty"`
	SentAt      time.Time        `json:"sentAt"`
}

// ConversationID returns the conversation the payload belongs to.
func (e Envelope) ConversationID() string {
	switch {
	case e.Generation != nil:
		return e.Generation.ConversationID
	case e.Acceptance != nil:
		return e.Acceptance.ConversationID
	default:
		return ""
	}
}
