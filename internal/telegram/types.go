package telegram

import (
	"encoding/json"
	"fmt"
	"io"
)

// Update is one inbound event pushed by Telegram to the webhook. Exactly one
// of Message / CallbackQuery is set for the events this bot handles.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is an inbound chat message (command, text or voice note).
type Message struct {
	MessageID int    `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
	Voice     *Voice `json:"voice,omitempty"`
}

// User identifies the sender of a message or button press.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// Voice is a voice note attachment; FileID is the handle used to fetch the
// audio bytes through the Bot API.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration,omitempty"`
}

// CallbackQuery is an inline keyboard button press. Data carries the action
// token the button was created with; Message is the message the keyboard was
// attached to, which the bot edits to acknowledge the press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

// InlineKeyboardButton is one button; CallbackData is returned verbatim in
// the CallbackQuery when pressed.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// InlineKeyboard is a grid of buttons attached to an outbound message.
type InlineKeyboard struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// Row builds a single-row keyboard from the given buttons.
func Row(buttons ...InlineKeyboardButton) *InlineKeyboard {
	return &InlineKeyboard{InlineKeyboard: [][]InlineKeyboardButton{buttons}}
}

// Btn builds one button.
func Btn(text, data string) InlineKeyboardButton {
	return InlineKeyboardButton{Text: text, CallbackData: data}
}

// ParseUpdate decodes an inbound webhook body into an Update.
func ParseUpdate(r io.Reader) (*Update, error) {
	var u Update
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return nil, fmt.Errorf("decoding update: %w", err)
	}
	return &u, nil
}
