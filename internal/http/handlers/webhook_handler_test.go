package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
	"github.com/gramsetu/citizen-assist-backend/internal/localize"
	"github.com/gramsetu/citizen-assist-backend/internal/messaging"
	"github.com/gramsetu/citizen-assist-backend/internal/repo"
	"github.com/gramsetu/citizen-assist-backend/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fakeReg struct {
	calls   []services.Inbound
	result  *services.Result
	err     error
	history []domain.ChatMessage
	total   int64
	histErr error
	stats   *repo.RegistrationStats
	statErr error
}

func (f *fakeReg) HandleInboundMessage(_ context.Context, in services.Inbound) (*services.Result, error) {
	f.calls = append(f.calls, in)
	return f.result, f.err
}

func (f *fakeReg) History(context.Context, string, int, int) ([]domain.ChatMessage, int64, error) {
	return f.history, f.total, f.histErr
}

func (f *fakeReg) Stats(context.Context) (*repo.RegistrationStats, error) {
	return f.stats, f.statErr
}

type fakeQA struct {
	questions []string
	answer    string
	err       error
}

func (f *fakeQA) Answer(_ context.Context, _, _, question string) (string, error) {
	f.questions = append(f.questions, question)
	return f.answer, f.err
}

type fakeSender struct {
	sent        []string
	err         error
	profile     *messaging.Profile
	profileHits int
}

func (f *fakeSender) SendText(_ context.Context, _, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, text)
	return fmt.Sprintf("wamid.out.%d", len(f.sent)), nil
}

func (f *fakeSender) FetchProfile(context.Context, string) (*messaging.Profile, error) {
	f.profileHits++
	if f.profile == nil {
		return nil, errors.New("profile unavailable")
	}
	return f.profile, nil
}

func newWebhookRouter(t *testing.T, reg *fakeReg, qa *fakeQA, sender *fakeSender) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := New(newTestDB(t), reg, qa, sender, "verify-token", 24*time.Hour)
	r := gin.New()
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.ReceiveWebhook)
	return r
}

// inboundPayload builds a minimal Graph webhook batch with one text message.
func inboundPayload(msgID, from, body string) string {
	return fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{"id": "wba-1", "changes": [{"field": "messages", "value": {
			"contacts": [{"wa_id": %q, "profile": {"name": "Ramesh"}}],
			"messages": [{"from": %q, "id": %q, "timestamp": "1717221000", "type": "text", "text": {"body": %q}}]
		}}]}]
	}`, from, from, msgID, body)
}

func TestVerifyWebhook(t *testing.T) {
	r := newWebhookRouter(t, &fakeReg{}, &fakeQA{}, &fakeSender{})

	t.Run("echoes challenge on match", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=verify-token&hub.challenge=12345", nil))
		if w.Code != http.StatusOK || w.Body.String() != "12345" {
			t.Fatalf("status = %d body = %q", w.Code, w.Body.String())
		}
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil))
		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
	})

	t.Run("rejects wrong mode", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=unsubscribe&hub.verify_token=verify-token", nil))
		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
	})
}

func TestReceiveWebhook_DeliversReply(t *testing.T) {
	reg := &fakeReg{result: &services.Result{Reply: "Welcome! What is your name?", Audit: services.Audit{State: "initial", Outcome: "greeted"}}}
	sender := &fakeSender{}
	r := newWebhookRouter(t, reg, &fakeQA{}, sender)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(inboundPayload("wamid.1", "911234567890", "Namaste")))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if len(reg.calls) != 1 {
		t.Fatalf("registration calls = %d, want 1", len(reg.calls))
	}
	in := reg.calls[0]
	if in.From != "911234567890" || in.Text != "Namaste" || in.ProfileName != "Ramesh" {
		t.Errorf("inbound = %+v", in)
	}
	if in.MessageID != "wamid.1" || in.Timestamp.IsZero() {
		t.Errorf("transport metadata lost: %+v", in)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "Welcome! What is your name?" {
		t.Errorf("sent = %v", sender.sent)
	}
	if !strings.Contains(w.Body.String(), `"processed":1`) {
		t.Errorf("ack body = %s", w.Body.String())
	}
}

func TestReceiveWebhook_DeduplicatesRedelivery(t *testing.T) {
	reg := &fakeReg{result: &services.Result{Reply: "hi"}}
	r := newWebhookRouter(t, reg, &fakeQA{}, &fakeSender{})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook",
			strings.NewReader(inboundPayload("wamid.same", "911234567890", "Namaste")))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d", i, w.Code)
		}
	}

	if len(reg.calls) != 1 {
		t.Fatalf("registration calls = %d, redelivery must be dropped", len(reg.calls))
	}
}

func TestReceiveWebhook_RoutesRegisteredCitizenToQA(t *testing.T) {
	reg := &fakeReg{result: &services.Result{ShouldContinueToQA: true, Audit: services.Audit{State: "completed", Outcome: "question"}}}
	qa := &fakeQA{answer: "Ration cards are issued at the taluka office."}
	sender := &fakeSender{}
	r := newWebhookRouter(t, reg, qa, sender)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(inboundPayload("wamid.2", "911234567890", "How do I get a ration card?")))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(qa.questions) != 1 || qa.questions[0] != "How do I get a ration card?" {
		t.Errorf("qa questions = %v", qa.questions)
	}
	if len(sender.sent) != 1 || sender.sent[0] != qa.answer {
		t.Errorf("sent = %v", sender.sent)
	}
}

func TestReceiveWebhook_FetchesProfileWhenContactsMissing(t *testing.T) {
	reg := &fakeReg{result: &services.Result{Reply: "hi"}}
	sender := &fakeSender{profile: &messaging.Profile{DisplayName: "Sita"}}
	r := newWebhookRouter(t, reg, &fakeQA{}, sender)

	payload := `{"object": "whatsapp_business_account", "entry": [{"changes": [{"value": {
		"messages": [{"from": "911234567890", "id": "wamid.np", "timestamp": "1717221000", "type": "text", "text": {"body": "Namaste"}}]
	}}]}]}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if sender.profileHits != 1 {
		t.Errorf("profile fetches = %d, want 1", sender.profileHits)
	}
	if len(reg.calls) != 1 || reg.calls[0].ProfileName != "Sita" {
		t.Errorf("calls = %+v", reg.calls)
	}
}

func TestReceiveWebhook_IgnoresNonTextMessages(t *testing.T) {
	reg := &fakeReg{result: &services.Result{Reply: "hi"}}
	r := newWebhookRouter(t, reg, &fakeQA{}, &fakeSender{})

	payload := `{"object": "whatsapp_business_account", "entry": [{"changes": [{"value": {
		"messages": [{"from": "911234567890", "id": "wamid.3", "type": "image"}]
	}}]}]}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(reg.calls) != 0 {
		t.Errorf("non-text message reached the pipeline: %+v", reg.calls)
	}
	if !strings.Contains(w.Body.String(), `"processed":0`) {
		t.Errorf("ack body = %s", w.Body.String())
	}
}

func TestReceiveWebhook_MalformedPayload(t *testing.T) {
	r := newWebhookRouter(t, &fakeReg{}, &fakeQA{}, &fakeSender{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), ErrCodeBadRequest) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestReceiveWebhook_FailuresStillAckBatch(t *testing.T) {
	t.Run("pipeline error", func(t *testing.T) {
		reg := &fakeReg{err: context.DeadlineExceeded}
		r := newWebhookRouter(t, reg, &fakeQA{}, &fakeSender{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook",
			strings.NewReader(inboundPayload("wamid.4", "911234567890", "hi")))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, pipeline errors must not fail the batch", w.Code)
		}
	})

	t.Run("rejected input stays silent", func(t *testing.T) {
		reg := &fakeReg{err: services.ErrEmptyMessage}
		sender := &fakeSender{}
		r := newWebhookRouter(t, reg, &fakeQA{}, sender)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook",
			strings.NewReader(inboundPayload("wamid.4b", "911234567890", "   ")))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if len(sender.sent) != 0 {
			t.Errorf("rejected input produced a reply: %v", sender.sent)
		}
	})

	t.Run("send cap", func(t *testing.T) {
		reg := &fakeReg{result: &services.Result{Reply: "hi"}}
		sender := &fakeSender{err: messaging.ErrSendCapExceeded}
		r := newWebhookRouter(t, reg, &fakeQA{}, sender)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook",
			strings.NewReader(inboundPayload("wamid.5", "911234567890", "hi")))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, capped sends must not fail the batch", w.Code)
		}
	})
}

// A citizen who already sent a message must hear back even when the backend
// fails mid-turn: the handler degrades to the localized apology instead of
// dropping the conversation.
func TestReceiveWebhook_FailuresDegradeToApology(t *testing.T) {
	apology := localize.T("en", localize.MsgTechnicalIssue)

	t.Run("registration pipeline failure", func(t *testing.T) {
		reg := &fakeReg{err: errors.New("inference provider down")}
		sender := &fakeSender{}
		r := newWebhookRouter(t, reg, &fakeQA{}, sender)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook",
			strings.NewReader(inboundPayload("wamid.6", "911234567890", "Ramesh Patil")))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if len(sender.sent) != 1 || sender.sent[0] != apology {
			t.Errorf("sent = %v, want the apology", sender.sent)
		}
	})

	t.Run("answering failure", func(t *testing.T) {
		reg := &fakeReg{result: &services.Result{ShouldContinueToQA: true, Audit: services.Audit{State: "completed", Outcome: "question"}}}
		qa := &fakeQA{err: errors.New("knowledge lookup failed")}
		sender := &fakeSender{}
		r := newWebhookRouter(t, reg, qa, sender)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook",
			strings.NewReader(inboundPayload("wamid.7", "911234567890", "How do I get a ration card?")))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if len(qa.questions) != 1 {
			t.Fatalf("qa questions = %v", qa.questions)
		}
		if len(sender.sent) != 1 || sender.sent[0] != apology {
			t.Errorf("sent = %v, want the apology", sender.sent)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	if got := parseTimestamp("1717221000"); got.IsZero() || got.Year() != 2024 {
		t.Errorf("parseTimestamp = %v", got)
	}
	if got := parseTimestamp(""); !got.IsZero() {
		t.Errorf("empty timestamp = %v, want zero", got)
	}
	if got := parseTimestamp("not-a-number"); !got.IsZero() {
		t.Errorf("malformed timestamp = %v, want zero", got)
	}
}
