// Package session holds the per-user, in-memory conversation state: consent,
// demographic answers, the assigned prompt sequence, progress through it, and
// the pending (received but not yet saved) voice submission.
//
// Each session carries an explicit finite state machine; an action that is
// not legal in the current state fails the transition instead of corrupting
// the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/projectkasa/kasabot/internal/prompts"
	"github.com/projectkasa/kasabot/internal/storage"
)

// ErrInvalidEvent is returned by Fire when an action token is not legal in
// the session's current state. This is a user-flow error: the caller replies
// with guidance and leaves the session untouched.
var ErrInvalidEvent = errors.New("event not allowed in current state")

// Conversation states.
const (
	StateNew                  = "new"
	StateAwaitingConsent      = "awaiting_consent"
	StateAwaitingDemographics = "awaiting_demographics"
	StateAwaitingVoice        = "awaiting_voice"
	StateAwaitingReview       = "awaiting_review"
	StateComplete             = "complete"
	StateEnded                = "ended"
)

// Transition events.
const (
	EventStart      = "start"       // /start command, from any state
	EventConsentYes = "consent_yes" // consent granted
	EventConsentNo  = "consent_no"  // consent declined
	EventAnswer     = "answer"      // demographic answer, more questions remain
	EventBegin      = "begin"       // last demographic answered, prompts assigned
	EventVoice      = "voice"       // voice note received for the current prompt
	EventSave       = "save"        // pending recording saved, more prompts remain
	EventRerecord   = "rerecord"    // pending recording discarded, same prompt
	EventChange     = "change"      // pending recording discarded, prompt swapped
	EventFinish     = "finish"      // pending recording saved, sequence exhausted
	EventRestart    = "restart"     // new sequence after completion
	EventEnd        = "end"         // terminal goodbye
)

var allStates = []string{
	StateNew, StateAwaitingConsent, StateAwaitingDemographics,
	StateAwaitingVoice, StateAwaitingReview, StateComplete, StateEnded,
}

// AllStates lists every conversation state, in lifecycle order.
func AllStates() []string {
	out := make([]string, len(allStates))
	copy(out, allStates)
	return out
}

// PendingVoice references a received-but-unsaved recording awaiting the
// user's save / re-record / change decision.
type PendingVoice struct {
	FilePath string
	FileName string
	Prompt   prompts.Prompt
}

// Session is the per-user conversation record. All fields are guarded by the
// embedded mutex; the event dispatcher locks a session for the full handling
// of one inbound event, so events for the same user are serialized.
type Session struct {
	mu sync.Mutex

	UserID int64
	ChatID int64

	Consent        bool
	Demographics   map[string]string
	DemographicIdx int

	Prompts []prompts.Prompt
	Index   int
	Pending *PendingVoice

	// Saved holds every recording entry saved during this process
	// lifetime, in save order. It feeds the per-user snapshot document.
	Saved []storage.Entry

	machine *fsm.FSM
}

func newSession(userID, chatID int64) *Session {
	return &Session{
		UserID:       userID,
		ChatID:       chatID,
		Demographics: make(map[string]string),
		machine:      newMachine(),
	}
}

// newMachine builds the conversation state machine. The transition table is
// the single source of truth for which events are legal in which state.
func newMachine() *fsm.FSM {
	return fsm.NewFSM(
		StateNew,
		fsm.Events{
			{Name: EventStart, Src: allStates, Dst: StateAwaitingConsent},
			{Name: EventConsentYes, Src: []string{StateAwaitingConsent}, Dst: StateAwaitingDemographics},
			{Name: EventConsentNo, Src: []string{StateAwaitingConsent}, Dst: StateEnded},
			{Name: EventAnswer, Src: []string{StateAwaitingDemographics}, Dst: StateAwaitingDemographics},
			{Name: EventBegin, Src: []string{StateAwaitingDemographics}, Dst: StateAwaitingVoice},
			{Name: EventVoice, Src: []string{StateAwaitingVoice}, Dst: StateAwaitingReview},
			{Name: EventSave, Src: []string{StateAwaitingReview}, Dst: StateAwaitingVoice},
			{Name: EventRerecord, Src: []string{StateAwaitingReview}, Dst: StateAwaitingVoice},
			{Name: EventChange, Src: []string{StateAwaitingReview}, Dst: StateAwaitingVoice},
			{Name: EventFinish, Src: []string{StateAwaitingReview}, Dst: StateComplete},
			{Name: EventRestart, Src: []string{StateComplete}, Dst: StateAwaitingVoice},
			{Name: EventEnd, Src: []string{StateComplete}, Dst: StateEnded},
		},
		fsm.Callbacks{},
	)
}

// Lock takes the per-session lock for the duration of one inbound event.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the per-session lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// State returns the current conversation state.
func (s *Session) State() string {
	return s.machine.Current()
}

// Fire attempts the named transition. It returns ErrInvalidEvent when the
// event is not legal in the current state; self-transitions (demographic
// answers) are reported as success.
func (s *Session) Fire(ctx context.Context, event string) error {
	err := s.machine.Event(ctx, event)
	if err == nil {
		return nil
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}

	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return fmt.Errorf("%w: event %s in state %s", ErrInvalidEvent, invalid.Event, invalid.State)
	}
	return err
}

// Can reports whether the event is legal in the current state.
func (s *Session) Can(event string) bool {
	return s.machine.Can(event)
}

// Reset clears everything except the user/chat identity and returns the
// session to the consent gate. Used by the /start command.
func (s *Session) Reset() {
	s.Consent = false
	s.Demographics = make(map[string]string)
	s.DemographicIdx = 0
	s.Prompts = nil
	s.Index = 0
	s.Pending = nil
	s.Saved = nil
	s.machine.SetState(StateNew)
}

// AssignPrompts installs a freshly sampled sequence and rewinds progress.
func (s *Session) AssignPrompts(seq []prompts.Prompt) {
	s.Prompts = seq
	s.Index = 0
	s.Pending = nil
}

// StartRound puts a consented session straight into recording with a fresh
// sequence. The /restart command uses this to bypass the consent and
// demographic questions the user has already answered.
func (s *Session) StartRound(seq []prompts.Prompt) {
	s.AssignPrompts(seq)
	s.machine.SetState(StateAwaitingVoice)
}

// CurrentPrompt returns the prompt at the current index.
func (s *Session) CurrentPrompt() (prompts.Prompt, bool) {
	if s.Index < 0 || s.Index >= len(s.Prompts) {
		return prompts.Prompt{}, false
	}
	return s.Prompts[s.Index], true
}

// Exhausted reports whether every assigned prompt has been recorded.
func (s *Session) Exhausted() bool {
	return s.Index >= len(s.Prompts)
}
