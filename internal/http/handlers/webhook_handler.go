// Webhook HTTP handlers.
//
// This file exposes the endpoints the WhatsApp Business platform talks to:
//   - GET  /webhook  (subscription verification handshake)
//   - POST /webhook  (inbound message delivery)
//
// Handlers are transport-thin: they validate and unpack the Graph webhook
// payload, deduplicate deliveries by transport message id, delegate each text
// message to the registration pipeline (or Q&A for registered citizens), and
// deliver the reply through the messaging client.
//
// Delivery semantics: the webhook always answers 2xx once the payload has
// been parsed, even when individual messages fail — Meta retries the whole
// batch on non-2xx, and retrying messages that were already processed would
// only produce duplicates. Per-message failures are logged, counted, and
// answered with a localized apology so the citizen is never left in silence.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
	"github.com/gramsetu/citizen-assist-backend/internal/http/middleware"
	"github.com/gramsetu/citizen-assist-backend/internal/localize"
	"github.com/gramsetu/citizen-assist-backend/internal/messaging"
	"github.com/gramsetu/citizen-assist-backend/internal/repo"
	"github.com/gramsetu/citizen-assist-backend/internal/services"
)

// RegistrationService is the registration pipeline contract the handlers
// depend on.
type RegistrationService interface {
	HandleInboundMessage(ctx context.Context, in services.Inbound) (*services.Result, error)
	History(ctx context.Context, citizenID string, page, pageSize int) ([]domain.ChatMessage, int64, error)
	Stats(ctx context.Context) (*repo.RegistrationStats, error)
}

// QAService answers questions from registered citizens.
type QAService interface {
	Answer(ctx context.Context, citizenID, lang, question string) (string, error)
}

// Sender delivers outbound texts over the messaging transport and can look up
// contact profiles.
type Sender interface {
	SendText(ctx context.Context, recipient, text string) (string, error)
	FetchProfile(ctx context.Context, waID string) (*messaging.Profile, error)
}

// Handlers aggregates the HTTP endpoints and their dependencies. It depends
// on abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	DB     *gorm.DB
	Reg    RegistrationService
	QA     QAService
	Sender Sender

	// VerifyToken is the shared secret echoed during the GET handshake.
	VerifyToken string
	// DedupTTL bounds how long transport message ids are remembered.
	DedupTTL time.Duration
}

// New constructs the handler set.
func New(db *gorm.DB, reg RegistrationService, qa QAService, sender Sender, verifyToken string, dedupTTL time.Duration) *Handlers {
	return &Handlers{
		DB:          db,
		Reg:         reg,
		QA:          qa,
		Sender:      sender,
		VerifyToken: verifyToken,
		DedupTTL:    dedupTTL,
	}
}

//
// DTOs — Graph webhook wire format (the subset this service consumes)
//

type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	Contacts []webhookContact `json:"contacts"`
	Messages []webhookMessage `json:"messages"`
}

type webhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
}

// ReceiveResponse acknowledges a processed webhook batch.
type ReceiveResponse struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
}

//
// Handlers
//

// VerifyWebhook implements the GET subscription handshake: when hub.mode is
// "subscribe" and hub.verify_token matches, the hub.challenge value is echoed
// back as plain text; anything else is rejected with 403.
func (h *Handlers) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || token == "" || token != h.VerifyToken {
		fail(c, http.StatusForbidden, ErrCodeVerifyFailed, "verification token mismatch")
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook accepts an inbound webhook batch, processes every text
// message it contains, and acknowledges the batch.
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed webhook payload")
		return
	}

	processed := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := contactNames(change.Value.Contacts)
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.From == "" {
					continue
				}
				h.processMessage(c, msg, names[msg.From])
				processed++
			}
		}
	}

	ok(c, http.StatusOK, ReceiveResponse{Status: "processed", Processed: processed})
}

// processMessage runs one inbound message through dedup, the registration
// pipeline or Q&A, and reply delivery. Failures are logged and counted but
// never fail the batch.
func (h *Handlers) processMessage(c *gin.Context, msg webhookMessage, profileName string) {
	ctx := c.Request.Context()
	lg := middleware.LoggerFrom(c)
	c.Set(middleware.CitizenIDKey, msg.From)

	// Batches occasionally arrive without the contacts block; the profile
	// lookup is best-effort and the pipeline works with an empty name.
	if profileName == "" {
		if p, err := h.Sender.FetchProfile(ctx, msg.From); err == nil {
			profileName = p.DisplayName
		}
	}

	if err := repo.MarkProcessed(ctx, h.DB, msg.ID, msg.From, h.DedupTTL); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			middleware.ObserveTurn("duplicate")
			return
		}
		lg.Error().Err(err).Str("message_id", msg.ID).Msg("dedup mark failed")
		middleware.ObserveTurn("error")
		return
	}

	res, err := h.Reg.HandleInboundMessage(ctx, services.Inbound{
		MessageID:   msg.ID,
		From:        msg.From,
		ProfileName: profileName,
		Text:        msg.Text.Body,
		Timestamp:   parseTimestamp(msg.Timestamp),
	})
	if err != nil {
		if errors.Is(err, services.ErrEmptyMessage) || errors.Is(err, services.ErrTooLong) {
			middleware.ObserveTurn("rejected")
			return
		}
		lg.Error().Err(err).Str("message_id", msg.ID).Msg("registration turn failed")
		middleware.ObserveTurn("error")
		// Never leave the citizen in silence: degrade to the apology.
		h.deliver(c, msg, localize.T(h.citizenLanguage(ctx, msg.From), localize.MsgTechnicalIssue))
		return
	}

	reply := res.Reply
	outcome := res.Audit.Outcome
	if res.ShouldContinueToQA {
		lang := h.citizenLanguage(ctx, msg.From)
		reply, err = h.QA.Answer(ctx, msg.From, lang, msg.Text.Body)
		if err != nil {
			lg.Error().Err(err).Str("message_id", msg.ID).Msg("answering question failed")
			middleware.ObserveTurn("error")
			h.deliver(c, msg, localize.T(lang, localize.MsgTechnicalIssue))
			return
		}
	}
	middleware.ObserveTurn(outcome)

	if reply != "" {
		h.deliver(c, msg, reply)
	}
}

// deliver sends one outbound reply, recording the delivery status metric.
func (h *Handlers) deliver(c *gin.Context, msg webhookMessage, reply string) {
	if _, err := h.Sender.SendText(c.Request.Context(), msg.From, reply); err != nil {
		status := "failed"
		if errors.Is(err, messaging.ErrSendCapExceeded) {
			status = "capped"
		}
		middleware.LoggerFrom(c).Warn().Err(err).Str("message_id", msg.ID).Msg("reply delivery failed")
		middleware.ObserveOutbound(status)
		return
	}
	middleware.ObserveOutbound("sent")
}

// citizenLanguage returns the stored language for a citizen, defaulting to
// English when the row cannot be read.
func (h *Handlers) citizenLanguage(ctx context.Context, citizenID string) string {
	citizen, err := repo.GetCitizen(ctx, h.DB, citizenID)
	if err != nil {
		return "en"
	}
	return citizen.Language
}

func contactNames(contacts []webhookContact) map[string]string {
	if len(contacts) == 0 {
		return nil
	}
	m := make(map[string]string, len(contacts))
	for _, ct := range contacts {
		if ct.WaID != "" && ct.Profile.Name != "" {
			m[ct.WaID] = ct.Profile.Name
		}
	}
	return m
}

// parseTimestamp converts the transport's Unix-seconds string; zero time when
// absent or malformed.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
