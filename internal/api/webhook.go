package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/projectkasa/kasabot/internal/telegram"
)

// handleWebhook receives one Telegram update per request. The path token must
// match the bot token; anything else gets an indistinguishable 404. Handler
// errors are logged but never surfaced to Telegram — a non-200 would make it
// redeliver the same update in a loop.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "token") != s.cfg.BotToken {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	upd, err := telegram.ParseUpdate(r.Body)
	if err != nil {
		s.logger.Warn("undecodable webhook update", "error", err)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if err := s.dispatch(r.Context(), upd); err != nil {
		s.logger.Error("handling update failed", "update_id", upd.UpdateID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// dispatch routes one update to the matching engine handler.
func (s *Server) dispatch(ctx context.Context, upd *telegram.Update) error {
	switch {
	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery
		if s.answerer != nil {
			// Best effort; the press is handled either way.
			if err := s.answerer.AnswerCallback(ctx, cq.ID); err != nil {
				s.logger.Warn("answering callback query", "error", err)
			}
		}
		if cq.Message == nil {
			s.logger.Debug("callback query without message dropped", "user_id", cq.From.ID)
			return nil
		}
		return s.engine.HandleCallback(ctx, cq.From.ID, cq.Message.Chat.ID, cq.Message.MessageID, cq.Data)

	case upd.Message != nil:
		msg := upd.Message
		if msg.From == nil {
			return nil
		}
		switch {
		case strings.HasPrefix(msg.Text, "/"):
			return s.engine.HandleCommand(ctx, msg.From.ID, msg.Chat.ID, commandName(msg.Text))
		case msg.Voice != nil:
			return s.engine.HandleVoice(ctx, msg.From.ID, msg.Chat.ID, msg.Voice.FileID)
		default:
			return s.engine.HandleNonVoice(ctx, msg.From.ID, msg.Chat.ID)
		}
	}

	// Update kinds the bot does not subscribe to.
	return nil
}

// commandName extracts "/start" from inputs like "/start", "/start@KasaBot"
// or "/start extra args".
func commandName(text string) string {
	cmd := strings.Fields(text)[0]
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	return cmd
}
