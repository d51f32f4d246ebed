package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newTestServer returns a client pointed at a fake Bot API that records
// requests and serves canned responses per method.
func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithBaseURL("123:abc", srv.URL)
}

func TestSendReturnsMessageID(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true,"result":{"message_id":42}}`))
	})

	kb := Row(Btn("Yes", "consent_yes"), Btn("No", "consent_no"))
	id, err := c.Send(context.Background(), 99, "hello", kb)
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if id != 42 {
		t.Errorf("message id = %d, want 42", id)
	}
	if gotPath != "/bot123:abc/sendMessage" {
		t.Errorf("path = %q, want /bot123:abc/sendMessage", gotPath)
	}
	if gotBody.ChatID != 99 || gotBody.Text != "hello" {
		t.Errorf("request body = %+v", gotBody)
	}
	if gotBody.ReplyMarkup == nil || len(gotBody.ReplyMarkup.InlineKeyboard[0]) != 2 {
		t.Errorf("keyboard not forwarded: %+v", gotBody.ReplyMarkup)
	}
}

func TestAPIErrorSurfacesDescription(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	})

	_, err := c.Send(context.Background(), 99, "hello", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error %q does not carry API description", err)
	}
}

func TestFetchTwoStepDownload(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			w.Write([]byte(`{"ok":true,"result":{"file_id":"f1","file_path":"voice/note_1.oga"}}`))
		case strings.HasPrefix(r.URL.Path, "/file/bot123:abc/"):
			if r.URL.Path != "/file/bot123:abc/voice/note_1.oga" {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte("OGGDATA"))
		default:
			http.NotFound(w, r)
		}
	})

	data, err := c.Fetch(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if string(data) != "OGGDATA" {
		t.Errorf("Fetch() = %q, want OGGDATA", data)
	}
}

func TestSetWebhook(t *testing.T) {
	var gotURL string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotURL = body["url"]
		w.Write([]byte(`{"ok":true,"result":true}`))
	})

	if err := c.SetWebhook(context.Background(), "https://bot.example.com/webhook/123:abc"); err != nil {
		t.Fatalf("SetWebhook() error: %v", err)
	}
	if gotURL != "https://bot.example.com/webhook/123:abc" {
		t.Errorf("registered url = %q", gotURL)
	}
}

func TestParseUpdate(t *testing.T) {
	body := `{
		"update_id": 1001,
		"callback_query": {
			"id": "cb1",
			"from": {"id": 7, "first_name": "Ama"},
			"message": {"message_id": 5, "chat": {"id": 7}},
			"data": "voice_save"
		}
	}`
	u, err := ParseUpdate(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseUpdate() error: %v", err)
	}
	if u.CallbackQuery == nil {
		t.Fatal("CallbackQuery is nil")
	}
	if u.CallbackQuery.Data != "voice_save" {
		t.Errorf("Data = %q, want voice_save", u.CallbackQuery.Data)
	}
	if u.CallbackQuery.From.ID != 7 {
		t.Errorf("From.ID = %d, want 7", u.CallbackQuery.From.ID)
	}
	if u.Message != nil {
		t.Error("Message should be nil for a callback update")
	}
}
