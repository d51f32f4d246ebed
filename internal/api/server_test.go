package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/projectkasa/kasabot/internal/bot"
	"github.com/projectkasa/kasabot/internal/config"
	"github.com/projectkasa/kasabot/internal/database"
	"github.com/projectkasa/kasabot/internal/database/models"
	"github.com/projectkasa/kasabot/internal/prompts"
	"github.com/projectkasa/kasabot/internal/session"
	"github.com/projectkasa/kasabot/internal/storage"
	"github.com/projectkasa/kasabot/internal/telegram"
)

const testToken = "12345:test-token"

// nullMessenger counts outbound messages without sending anything.
type nullMessenger struct {
	sends int
	texts []string
}

func (m *nullMessenger) Send(_ context.Context, _ int64, text string, _ *telegram.InlineKeyboard) (int, error) {
	m.sends++
	m.texts = append(m.texts, text)
	return m.sends, nil
}

func (m *nullMessenger) Edit(_ context.Context, _ int64, _ int, text string) error {
	m.texts = append(m.texts, text)
	return nil
}

type nullFetcher struct{}

func (nullFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	return []byte("OGGDATA"), nil
}

// recordingAnswerer records acknowledged callback query IDs.
type recordingAnswerer struct {
	ids []string
}

func (a *recordingAnswerer) AnswerCallback(_ context.Context, id string) error {
	a.ids = append(a.ids, id)
	return nil
}

type testServer struct {
	srv      *Server
	msgr     *nullMessenger
	answerer *recordingAnswerer
	repo     database.RecordingRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		BotToken:    testToken,
		Variant:     config.VariantStandard,
		PromptCount: 2,
	}

	dataDir := t.TempDir()
	archive, err := storage.NewArchive(dataDir, "std")
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	bank, err := prompts.Load()
	if err != nil {
		t.Fatalf("prompts.Load: %v", err)
	}
	db, err := database.Open(dataDir)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := database.NewRecordingRepository(db)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	msgr := &nullMessenger{}
	engine := bot.NewEngine(cfg, session.NewStore(), bank, archive, repo, msgr, nullFetcher{}, logger)

	answerer := &recordingAnswerer{}
	srv := NewServer(cfg, engine, answerer, repo, nil, logger)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, msgr: msgr, answerer: answerer, repo: repo}
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return env
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	env := decodeEnvelope(t, w)
	data := env.Data.(map[string]any)
	if data["status"] != "ok" {
		t.Errorf("status field = %v", data["status"])
	}
	if data["variant"] != config.VariantStandard {
		t.Errorf("variant field = %v", data["variant"])
	}
}

func TestWebhookRejectsWrongToken(t *testing.T) {
	ts := newTestServer(t)

	body := strings.NewReader(`{"update_id":1}`)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/wrong-token", body))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if ts.msgr.sends != 0 {
		t.Error("update was dispatched despite bad token")
	}
}

func TestWebhookCommand(t *testing.T) {
	ts := newTestServer(t)

	body := strings.NewReader(`{
		"update_id": 1,
		"message": {"message_id": 5, "from": {"id": 42}, "chat": {"id": 42}, "text": "/start"}
	}`)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/"+testToken, body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ts.msgr.sends != 1 {
		t.Fatalf("sends = %d, want the consent message", ts.msgr.sends)
	}
	if !strings.Contains(ts.msgr.texts[0], "consent") {
		t.Errorf("first message = %q, want consent request", ts.msgr.texts[0])
	}
}

func TestWebhookCallbackAcknowledged(t *testing.T) {
	ts := newTestServer(t)

	// Start, then press the consent button.
	start := strings.NewReader(`{
		"update_id": 1,
		"message": {"message_id": 5, "from": {"id": 42}, "chat": {"id": 42}, "text": "/start"}
	}`)
	ts.srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook/"+testToken, start))

	press := strings.NewReader(`{
		"update_id": 2,
		"callback_query": {
			"id": "cbq-1",
			"from": {"id": 42},
			"data": "consent_yes",
			"message": {"message_id": 1, "chat": {"id": 42}}
		}
	}`)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/"+testToken, press))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(ts.answerer.ids) != 1 || ts.answerer.ids[0] != "cbq-1" {
		t.Errorf("acknowledged callbacks = %v", ts.answerer.ids)
	}
	// Consent thanks + first demographic question.
	joined := strings.Join(ts.msgr.texts, "\n")
	if !strings.Contains(joined, "Thank you for consenting") {
		t.Errorf("no consent acknowledgement in %q", joined)
	}
}

func TestWebhookBadBodyStillOK(t *testing.T) {
	ts := newTestServer(t)

	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/"+testToken, strings.NewReader("{bad")))

	// A non-200 would make Telegram redeliver the broken update forever.
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func seedRecording(t *testing.T, ts *testServer, userID int64, category, filePath string) *models.Recording {
	t.Helper()
	rec := &models.Recording{
		UserID:         userID,
		RecordedAt:     time.Now().UTC(),
		AgeRange:       "18-24",
		FileName:       filepath.Base(filePath),
		FilePath:       filePath,
		Prompt:         "Some prompt text",
		PromptCategory: category,
		Variant:        config.VariantStandard,
	}
	if err := ts.repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("seeding recording: %v", err)
	}
	return rec
}

func TestListRecordings(t *testing.T) {
	ts := newTestServer(t)
	seedRecording(t, ts, 42, "codeswitched", "/tmp/a.ogg")
	seedRecording(t, ts, 43, "plain", "/tmp/b.ogg")

	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/recordings", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	data := decodeEnvelope(t, w).Data.(map[string]any)
	if data["total"] != float64(2) {
		t.Errorf("total = %v, want 2", data["total"])
	}

	// Category filter narrows the result.
	w = httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/recordings?category=plain", nil))
	data = decodeEnvelope(t, w).Data.(map[string]any)
	if data["total"] != float64(1) {
		t.Errorf("filtered total = %v, want 1", data["total"])
	}
}

func TestListRecordingsBadPagination(t *testing.T) {
	ts := newTestServer(t)

	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/recordings?limit=-3", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRecordingStats(t *testing.T) {
	ts := newTestServer(t)
	seedRecording(t, ts, 42, "codeswitched", "/tmp/a.ogg")
	seedRecording(t, ts, 42, "local", "/tmp/b.ogg")

	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/recordings/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	data := decodeEnvelope(t, w).Data.(map[string]any)
	if data["total"] != float64(2) {
		t.Errorf("total = %v, want 2", data["total"])
	}
	if data["distinct_users"] != float64(1) {
		t.Errorf("distinct_users = %v, want 1", data["distinct_users"])
	}
}

func TestGetRecordingNotFound(t *testing.T) {
	ts := newTestServer(t)

	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/recordings/no-such-id", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestRecordingAudio(t *testing.T) {
	ts := newTestServer(t)

	audioPath := filepath.Join(t.TempDir(), "42_std_1_20250101T000000Z.ogg")
	if err := os.WriteFile(audioPath, []byte("OGGDATA"), 0o640); err != nil {
		t.Fatal(err)
	}
	rec := seedRecording(t, ts, 42, "codeswitched", audioPath)

	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/recordings/"+rec.ID+"/audio", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/ogg" {
		t.Errorf("content-type = %q", ct)
	}
	if w.Body.String() != "OGGDATA" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestUserRecordings(t *testing.T) {
	ts := newTestServer(t)
	seedRecording(t, ts, 42, "codeswitched", "/tmp/a.ogg")
	seedRecording(t, ts, 99, "plain", "/tmp/b.ogg")

	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/users/42/recordings", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	items, ok := decodeEnvelope(t, w).Data.([]any)
	if !ok {
		t.Fatalf("data is %T, want array", decodeEnvelope(t, w).Data)
	}
	if len(items) != 1 {
		t.Errorf("items = %d, want 1", len(items))
	}
}
