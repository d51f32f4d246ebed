// Package bot implements the conversation state machine: given one inbound
// event (command, button press, voice note) it decides what to send back and
// how the user's session advances. One handler method per event kind; the
// per-session state machine in internal/session decides which events are
// legal, so an out-of-place button press is a guidance reply, never a crash.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/projectkasa/kasabot/internal/config"
	"github.com/projectkasa/kasabot/internal/database"
	"github.com/projectkasa/kasabot/internal/database/models"
	"github.com/projectkasa/kasabot/internal/prompts"
	"github.com/projectkasa/kasabot/internal/session"
	"github.com/projectkasa/kasabot/internal/storage"
	"github.com/projectkasa/kasabot/internal/telegram"
)

// Messenger is the engine's outbound capability: send a new message or edit
// an existing one. The two are explicit operations chosen by the handler,
// never inferred from the message object.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, kb *telegram.InlineKeyboard) (messageID int, err error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
}

// AudioFetcher retrieves the raw bytes of a voice note by its transport
// file handle.
type AudioFetcher interface {
	Fetch(ctx context.Context, fileID string) ([]byte, error)
}

// Engine drives all user conversations. It owns no goroutines; the front
// door calls exactly one handler per inbound event and each handler locks
// the affected session for its full duration.
type Engine struct {
	sessions   *session.Store
	bank       *prompts.Bank
	policy     prompts.SamplePolicy
	archive    *storage.Archive
	recordings database.RecordingRepository // nil disables the index
	msgr       Messenger
	fetcher    AudioFetcher
	logger     *slog.Logger

	variant   string
	questions []Question
}

// NewEngine wires the engine for the configured variant.
func NewEngine(
	cfg *config.Config,
	sessions *session.Store,
	bank *prompts.Bank,
	archive *storage.Archive,
	recordings database.RecordingRepository,
	msgr Messenger,
	fetcher AudioFetcher,
	logger *slog.Logger,
) *Engine {
	e := &Engine{
		sessions:   sessions,
		bank:       bank,
		archive:    archive,
		recordings: recordings,
		msgr:       msgr,
		fetcher:    fetcher,
		logger:     logger.With("subsystem", "bot"),
		variant:    cfg.Variant,
	}

	switch cfg.Variant {
	case config.VariantClinical:
		e.questions = clinicalQuestions
		e.policy = prompts.MixedPools(cfg.PlainCount, cfg.CodeSwitchedCount, cfg.LocalCount)
	default:
		e.questions = standardQuestions
		e.policy = prompts.SinglePool(cfg.PromptCount)
	}
	return e
}

// HandleCommand processes /start, /restart and /end.
func (e *Engine) HandleCommand(ctx context.Context, userID, chatID int64, cmd string) error {
	s := e.sessions.GetOrCreate(userID, chatID)
	s.Lock()
	defer s.Unlock()

	switch cmd {
	case "/start":
		return e.handleStart(ctx, s)
	case "/restart":
		return e.handleRestart(ctx, s)
	case "/end":
		return e.handleEnd(ctx, s)
	default:
		e.logger.Debug("unknown command ignored", "user_id", userID, "command", cmd)
		return nil
	}
}

func (e *Engine) handleStart(ctx context.Context, s *session.Session) error {
	// A fresh start always wins: discard any buffered recording first.
	if s.Pending != nil {
		if err := e.archive.DiscardPending(s.Pending.FilePath); err != nil {
			e.logger.Warn("discarding pending on start", "user_id", s.UserID, "error", err)
		}
	}
	s.Reset()
	if err := s.Fire(ctx, session.EventStart); err != nil {
		return err
	}

	_, err := e.msgr.Send(ctx, s.ChatID, consentText, consentKeyboard())
	return err
}

func (e *Engine) handleRestart(ctx context.Context, s *session.Session) error {
	if !s.Consent {
		_, err := e.msgr.Send(ctx, s.ChatID, textNeedStart, nil)
		return err
	}

	if s.Pending != nil {
		if err := e.archive.DiscardPending(s.Pending.FilePath); err != nil {
			e.logger.Warn("discarding pending on restart", "user_id", s.UserID, "error", err)
		}
	}
	s.StartRound(e.policy(e.bank))

	if _, err := e.msgr.Send(ctx, s.ChatID, textNewRound, nil); err != nil {
		return err
	}
	return e.sendPrompt(ctx, s)
}

func (e *Engine) handleEnd(ctx context.Context, s *session.Session) error {
	if s.Can(session.EventEnd) {
		if err := s.Fire(ctx, session.EventEnd); err != nil {
			return err
		}
	}
	_, err := e.msgr.Send(ctx, s.ChatID, textGoodbye, nil)
	return err
}

// HandleCallback processes an inline keyboard button press. messageID is the
// message the keyboard was attached to; acknowledgements edit it in place.
func (e *Engine) HandleCallback(ctx context.Context, userID, chatID int64, messageID int, token string) error {
	s := e.sessions.GetOrCreate(userID, chatID)
	s.Lock()
	defer s.Unlock()

	switch token {
	case tokenConsentYes:
		return e.handleConsent(ctx, s, messageID, true)
	case tokenConsentNo:
		return e.handleConsent(ctx, s, messageID, false)
	case tokenVoiceSave, tokenVoiceRerecord, tokenVoiceChange:
		return e.handleVoiceDecision(ctx, s, messageID, token)
	case tokenSessionRestart, tokenSessionEnd:
		return e.handleSessionChoice(ctx, s, messageID, token)
	}

	if prefix, value, ok := splitToken(token); ok {
		for _, q := range e.questions {
			if q.Prefix == prefix {
				return e.handleAnswer(ctx, s, messageID, q, value)
			}
		}
	}

	e.logger.Debug("unrecognized action token ignored", "user_id", userID, "token", token)
	return nil
}

func (e *Engine) handleConsent(ctx context.Context, s *session.Session, messageID int, granted bool) error {
	event := session.EventConsentNo
	if granted {
		event = session.EventConsentYes
	}
	if err := s.Fire(ctx, event); err != nil {
		return e.guidance(ctx, s, err)
	}

	if !granted {
		return e.msgr.Edit(ctx, s.ChatID, messageID, textConsentDeclined)
	}

	s.Consent = true
	if err := e.msgr.Edit(ctx, s.ChatID, messageID, textConsentThanks); err != nil {
		return err
	}
	return e.askQuestion(ctx, s)
}

func (e *Engine) handleAnswer(ctx context.Context, s *session.Session, messageID int, q Question, value string) error {
	if s.State() != session.StateAwaitingDemographics {
		return e.guidance(ctx, s, session.ErrInvalidEvent)
	}
	current := e.questions[s.DemographicIdx]
	if current.Prefix != q.Prefix || !validOption(q, value) {
		e.logger.Debug("answer token does not match current question",
			"user_id", s.UserID, "token_prefix", q.Prefix, "expected", current.Prefix)
		return nil
	}

	s.Demographics[q.Field] = value
	s.DemographicIdx++

	if err := e.msgr.Edit(ctx, s.ChatID, messageID, answerAckText(q, value)); err != nil {
		return err
	}

	if s.DemographicIdx < len(e.questions) {
		if err := s.Fire(ctx, session.EventAnswer); err != nil {
			return err
		}
		return e.askQuestion(ctx, s)
	}

	// Last question answered: assign the prompt sequence and begin.
	if err := s.Fire(ctx, session.EventBegin); err != nil {
		return err
	}
	s.AssignPrompts(e.policy(e.bank))
	return e.sendPrompt(ctx, s)
}

func (e *Engine) handleVoiceDecision(ctx context.Context, s *session.Session, messageID int, token string) error {
	if s.State() != session.StateAwaitingReview || s.Pending == nil {
		return e.msgr.Edit(ctx, s.ChatID, messageID, textNoPending)
	}
	pending := s.Pending

	switch token {
	case tokenVoiceSave:
		return e.savePending(ctx, s, messageID, pending)

	case tokenVoiceRerecord:
		if err := e.archive.DiscardPending(pending.FilePath); err != nil {
			return err
		}
		s.Pending = nil
		if err := s.Fire(ctx, session.EventRerecord); err != nil {
			return err
		}
		return e.msgr.Edit(ctx, s.ChatID, messageID, textRerecord)

	case tokenVoiceChange:
		if err := e.archive.DiscardPending(pending.FilePath); err != nil {
			return err
		}
		s.Pending = nil
		if err := s.Fire(ctx, session.EventChange); err != nil {
			return err
		}
		// Swap in a different prompt at the same position.
		s.Prompts[s.Index] = e.bank.Replacement(pending.Prompt, s.Prompts)
		if err := e.msgr.Edit(ctx, s.ChatID, messageID, "🔄 Prompt changed. Please record the new prompt now."); err != nil {
			return err
		}
		return e.sendPrompt(ctx, s)
	}
	return nil
}

// savePending turns the buffered voice note into a permanent recording
// entry: master CSV row, per-user snapshot, index row, then advance.
func (e *Engine) savePending(ctx context.Context, s *session.Session, messageID int, pending *session.PendingVoice) error {
	now := time.Now().UTC()
	entry := storage.Entry{
		UserID:         s.UserID,
		Timestamp:      now.Format(time.RFC3339),
		Consent:        s.Consent,
		AgeRange:       s.Demographics["age_range"],
		Severity:       s.Demographics["severity"],
		Origin:         s.Demographics["origin"],
		FileName:       pending.FileName,
		Prompt:         pending.Prompt.Text,
		PromptCategory: string(pending.Prompt.Category),
	}

	if err := e.archive.AppendMaster(entry); err != nil {
		return fmt.Errorf("appending master record: %w", err)
	}
	s.Saved = append(s.Saved, entry)

	if err := e.archive.WriteUserSnapshot(e.snapshot(s)); err != nil {
		return fmt.Errorf("writing user snapshot: %w", err)
	}

	// The index is a mirror; failure to update it must not lose the save.
	if e.recordings != nil {
		rec := &models.Recording{
			UserID:         s.UserID,
			RecordedAt:     now,
			AgeRange:       entry.AgeRange,
			Severity:       entry.Severity,
			Origin:         entry.Origin,
			FileName:       pending.FileName,
			FilePath:       pending.FilePath,
			Prompt:         entry.Prompt,
			PromptCategory: entry.PromptCategory,
			Variant:        e.variant,
		}
		if err := e.recordings.Create(ctx, rec); err != nil {
			e.logger.Error("indexing recording failed", "user_id", s.UserID, "error", err)
		}
	}

	s.Pending = nil
	s.Index++

	// Advance the state machine before any outbound send: the entry is
	// already persisted, so a transport failure from here on must not
	// leave the session stuck in review.
	event := session.EventSave
	if s.Exhausted() {
		event = session.EventFinish
	}
	if err := s.Fire(ctx, event); err != nil {
		return err
	}

	if err := e.msgr.Edit(ctx, s.ChatID, messageID, savedText(pending.FileName)); err != nil {
		return err
	}

	if event == session.EventFinish {
		return e.sendCompletion(ctx, s)
	}
	return e.sendPrompt(ctx, s)
}

func (e *Engine) handleSessionChoice(ctx context.Context, s *session.Session, messageID int, token string) error {
	switch token {
	case tokenSessionRestart:
		if err := s.Fire(ctx, session.EventRestart); err != nil {
			return e.guidance(ctx, s, err)
		}
		s.AssignPrompts(e.policy(e.bank))
		if err := e.msgr.Edit(ctx, s.ChatID, messageID, textNewRound); err != nil {
			return err
		}
		return e.sendPrompt(ctx, s)

	case tokenSessionEnd:
		if err := s.Fire(ctx, session.EventEnd); err != nil {
			return e.guidance(ctx, s, err)
		}
		return e.msgr.Edit(ctx, s.ChatID, messageID, textGoodbye)
	}
	return nil
}

// HandleVoice processes an inbound voice note: fetch the audio, buffer it on
// disk, and ask the user what to do with it.
func (e *Engine) HandleVoice(ctx context.Context, userID, chatID int64, fileID string) error {
	s := e.sessions.GetOrCreate(userID, chatID)
	s.Lock()
	defer s.Unlock()

	if !s.Consent {
		_, err := e.msgr.Send(ctx, s.ChatID, textNeedStart, nil)
		return err
	}
	if s.State() != session.StateAwaitingVoice {
		return e.guidance(ctx, s, session.ErrInvalidEvent)
	}
	prompt, ok := s.CurrentPrompt()
	if !ok {
		return e.guidance(ctx, s, session.ErrInvalidEvent)
	}

	data, err := e.fetcher.Fetch(ctx, fileID)
	if err != nil {
		return fmt.Errorf("fetching voice file: %w", err)
	}

	path, name, err := e.archive.WriteAudio(s.UserID, data, s.Index, time.Now())
	if err != nil {
		return fmt.Errorf("buffering voice file: %w", err)
	}

	if err := s.Fire(ctx, session.EventVoice); err != nil {
		return err
	}
	s.Pending = &session.PendingVoice{FilePath: path, FileName: name, Prompt: prompt}

	_, err = e.msgr.Send(ctx, s.ChatID, reviewText(prompt), reviewKeyboard())
	return err
}

// HandleNonVoice replies with guidance when a plain message arrives while a
// voice note was expected. Everything else is ignored.
func (e *Engine) HandleNonVoice(ctx context.Context, userID, chatID int64) error {
	s := e.sessions.Get(userID)
	if s == nil {
		return nil
	}
	s.Lock()
	defer s.Unlock()

	if s.State() == session.StateAwaitingVoice {
		_, err := e.msgr.Send(ctx, s.ChatID, textNeedVoice, nil)
		return err
	}
	return nil
}

// askQuestion sends the current demographic question with its choices.
func (e *Engine) askQuestion(ctx context.Context, s *session.Session) error {
	q := e.questions[s.DemographicIdx]
	_, err := e.msgr.Send(ctx, s.ChatID, q.Text, questionKeyboard(q))
	return err
}

// sendPrompt shows the prompt at the current index with the progress bar.
func (e *Engine) sendPrompt(ctx context.Context, s *session.Session) error {
	p, ok := s.CurrentPrompt()
	if !ok {
		return fmt.Errorf("no prompt at index %d of %d", s.Index, len(s.Prompts))
	}
	_, err := e.msgr.Send(ctx, s.ChatID, promptText(p, s.Index, len(s.Prompts)), nil)
	return err
}

// sendCompletion shows the end-of-sequence message with the restart/end
// choice and refreshes the user's snapshot.
func (e *Engine) sendCompletion(ctx context.Context, s *session.Session) error {
	if err := e.archive.WriteUserSnapshot(e.snapshot(s)); err != nil {
		e.logger.Error("writing completion snapshot", "user_id", s.UserID, "error", err)
	}
	_, err := e.msgr.Send(ctx, s.ChatID, textCompleted, completionKeyboard())
	return err
}

// guidance replies with an instructional message for a user-flow error and
// reports success: the event is handled, the session is untouched.
func (e *Engine) guidance(ctx context.Context, s *session.Session, cause error) error {
	if !errors.Is(cause, session.ErrInvalidEvent) {
		return cause
	}
	text := textNeedStart
	switch s.State() {
	case session.StateAwaitingVoice:
		text = textNeedVoice
	case session.StateAwaitingReview:
		text = "Please choose Save, Re-record or Change Prompt for your last recording."
	}
	_, err := e.msgr.Send(ctx, s.ChatID, text, nil)
	return err
}

func validOption(q Question, value string) bool {
	for _, opt := range q.Options {
		if opt == value {
			return true
		}
	}
	return false
}

// snapshot assembles the per-user document from session state and the
// entries recorded for that user this process lifetime.
func (e *Engine) snapshot(s *session.Session) storage.UserSnapshot {
	demographics := make(map[string]string, len(s.Demographics))
	for k, v := range s.Demographics {
		demographics[k] = v
	}
	return storage.UserSnapshot{
		UserID:       s.UserID,
		Consent:      s.Consent,
		Variant:      e.variant,
		Demographics: demographics,
		Recordings:   s.Saved,
	}
}
