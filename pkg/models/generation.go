package models

// Outcome names the active variant of a GenerationResult.
type Outcome string

const (
	OutcomeExecutable     Outcome = "executable"
	OutcomeClarification  Outcome = "clarification"
	OutcomeConversational Outcome = "conversational"
	OutcomeFailed         Outcome = "failed"
)

// ClarificationKind describes how a clarification question expects to be answered.
// Backends may send kinds outside this set; they are passed through unchanged.
type ClarificationKind string

const (
	ClarificationSingleSelect ClarificationKind = "single_select"
	ClarificationMultiSelect  ClarificationKind = "multi_select"
	ClarificationFreeText     ClarificationKind = "free_text"
)

// GenerationResult is the closed set of outcomes of routing and generation.
// Exactly one of Executable, NeedsClarification, Conversational or Failed.
// Only Executable carries SQL.
type GenerationResult interface {
	Outcome() Outcome
	isGenerationResult()
}

// Executable carries SQL that is ready to run against the dataset.
type Executable struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// Clarification is a structured follow-up question for the caller.
type Clarification struct {
	Question string            `json:"question"`
	ID       string            `json:"id"`
	Kind     ClarificationKind `json:"kind"`
	Options  []string          `json:"options"`
}

// NeedsClarification pauses the pipeline until the caller answers Clarification.
// The answer is sent back in the prior answers map under Clarification.ID.
type NeedsClarification struct {
	Clarification Clarification `json:"clarification"`
	Explanation   string        `json:"explanation"`
}

// Conversational is a reply to greetings or unparseable input. It never carries SQL.
type Conversational struct {
	Explanation string `json:"explanation"`
}

// Failed reports a backend failure or malformed backend output.
type Failed struct {
	Reason string `json:"reason"`
}

func (Executable) Outcome() Outcome         { return OutcomeExecutable }
func (NeedsClarification) Outcome() Outcome { return OutcomeClarification }
func (Conversational) Outcome() Outcome     { return OutcomeConversational }
func (Failed) Outcome() Outcome             { return OutcomeFailed }

func (Executable) isGenerationResult()         {}
func (NeedsClarification) isGenerationResult() {}
func (Conversational) isGenerationResult()     {}
func (Failed) isGenerationResult()             {}
