package bot

import (
	"fmt"
	"strings"

	"github.com/projectkasa/kasabot/internal/prompts"
	"github.com/projectkasa/kasabot/internal/telegram"
)

const consentText = "📝 *Project Kasa — Consent to Participate*\n\n" +
	"This bot records short speech samples " +
	"(e.g., *“Mepɛ sɛ me kɔ town later”*) to improve speech recognition.\n\n" +
	"Your participation is voluntary and you may stop at any time.\n\n" +
	"You will:\n" +
	"1. Give consent and answer a few questions about yourself\n" +
	"2. Record a short set of spoken prompts\n\n" +
	"All recordings are anonymous and used only for research.\n\n" +
	"Do you agree to participate?"

const (
	textConsentThanks   = "Thank you for consenting! 👍"
	textConsentDeclined = "Thank you for your time☺."
	textGoodbye         = "We appreciate your time. See you soon for another session☺"
	textNeedStart       = "Please start with /start and provide consent."
	textNoPending       = "⚠️ No pending recording found. Send a voice note for the current prompt."
	textNeedVoice       = "Please send a voice note for the current prompt."
	textRerecord        = "♻️ Please re-record the prompt now."
	textNewRound        = "🔄 Starting a new recording session!"
	textCompleted       = "🎉 You have completed all recordings!\n\n" +
		"Would you like to record another set or end the session?"
)

func consentKeyboard() *telegram.InlineKeyboard {
	return telegram.Row(
		telegram.Btn("✅ Yes", tokenConsentYes),
		telegram.Btn("❌ No", tokenConsentNo),
	)
}

func questionKeyboard(q Question) *telegram.InlineKeyboard {
	buttons := make([]telegram.InlineKeyboardButton, len(q.Options))
	for i, opt := range q.Options {
		buttons[i] = telegram.Btn(opt, q.Prefix+"_"+opt)
	}
	return telegram.Row(buttons...)
}

func reviewKeyboard() *telegram.InlineKeyboard {
	return telegram.Row(
		telegram.Btn("💾 Save", tokenVoiceSave),
		telegram.Btn("♻️ Re-record", tokenVoiceRerecord),
		telegram.Btn("🔄 Change Prompt", tokenVoiceChange),
	)
}

func completionKeyboard() *telegram.InlineKeyboard {
	return telegram.Row(
		telegram.Btn("🎤 Record Again", tokenSessionRestart),
		telegram.Btn("👋 End Session", tokenSessionEnd),
	)
}

// promptText renders the prompt message: position, text, and a star progress
// bar with one filled marker per completed prompt.
func promptText(p prompts.Prompt, index, total int) string {
	stars := strings.Repeat("⭐", index) + strings.Repeat("☆", total-index)
	return fmt.Sprintf(
		"🎤 *Prompt %d/%d*\n\n%s\n\nProgress: %s\nSend your voice note now.",
		index+1, total, p.Text, stars,
	)
}

func reviewText(p prompts.Prompt) string {
	return fmt.Sprintf("🎤 You sent a recording for:\n%s\n\nChoose an action:", p.Text)
}

func savedText(fileName string) string {
	return fmt.Sprintf("✅ Recording saved: `%s`", fileName)
}

func answerAckText(q Question, value string) string {
	switch q.Prefix {
	case prefixAge:
		return fmt.Sprintf("Age selected: %s", value)
	case prefixSeverity:
		return fmt.Sprintf("Speech type selected: %s", value)
	case prefixRegion:
		return fmt.Sprintf("Region selected: %s", value)
	default:
		return fmt.Sprintf("Selected: %s", value)
	}
}
