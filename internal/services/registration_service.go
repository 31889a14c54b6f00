// Package services – RegistrationService
//
// This file implements RegistrationService, the application-level component
// that owns the registration conversation. It serializes processing per
// citizen, classifies each inbound message against the current registration
// state, extracts the state's required field, validates village names against
// the configured district boundary, and commits state transitions atomically.
// Every turn (inbound and outbound) is appended to the chat log with the
// state observed at the time.
//
// Classification and extraction are confidence-gated: the conversation only
// advances when both judgments clear the configured threshold, and for
// villages the geocoder must additionally agree. Everything below the gate is
// a retry, and retries are capped before the citizen is pointed at a human.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// citizen identifiers and per-turn outcomes.

package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
	"github.com/gramsetu/citizen-assist-backend/internal/geocode"
	"github.com/gramsetu/citizen-assist-backend/internal/inference"
	"github.com/gramsetu/citizen-assist-backend/internal/localize"
	"github.com/gramsetu/citizen-assist-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// Per-turn outcome codes recorded on registration states and in audits.
const (
	OutcomeGreeted         = "greeted"
	OutcomeAdvanced        = "advanced"
	OutcomeCompleted       = "completed"
	OutcomeNoRequiredData  = "no_required_data"
	OutcomeLowConfidence   = "low_confidence"
	OutcomeVillageNotFound = "village_not_found"
	OutcomeOutOfBoundary   = "out_of_boundary"
	OutcomeGeocodeError    = "geocode_error"
	OutcomeProviderError   = "provider_error"
	OutcomeEscalated       = "escalated"
	OutcomeQuestion        = "question"
)

// Classifier judges one message against the current registration state.
type Classifier interface {
	Classify(ctx context.Context, message, currentState string, snapshot inference.CitizenSnapshot) (*inference.Classification, error)
}

// Extractor parses the current state's required field from a message.
type Extractor interface {
	Extract(ctx context.Context, message, currentState string) (*inference.Extraction, error)
}

// ReplyGenerator produces a short free-text reply tailored to the message.
// Used for clarifications; optional, templates are the fallback.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, message, instruction, lang string) (string, error)
}

// VillageResolver validates a village name and returns canonical labels,
// coordinates, and a 0-100 confidence.
type VillageResolver interface {
	Resolve(ctx context.Context, placeName, lang string) geocode.Outcome
}

// Inbound is one citizen message as delivered by the transport.
type Inbound struct {
	// MessageID is the transport message id (wamid), used upstream for
	// deduplication.
	MessageID string
	// From is the citizen's WhatsApp id (phone number), our citizen key.
	From string
	// ProfileName is the transport-observed display name, if any.
	ProfileName string
	// Text is the message body.
	Text string
	// Timestamp is the transport send time.
	Timestamp time.Time
}

// Audit summarizes how a turn was judged, for handlers and logs.
type Audit struct {
	State      string  `json:"state"`
	NextState  string  `json:"next_state,omitempty"`
	Intent     string  `json:"intent,omitempty"`
	Confidence float64 `json:"confidence"`
	Outcome    string  `json:"outcome"`
}

// Result is the registration pipeline's verdict on one inbound message.
type Result struct {
	// Reply is the outbound text, empty when the message belongs to Q&A.
	Reply string
	// ShouldContinueToQA is true when the citizen is registered and the
	// message should be answered from the knowledge base instead.
	ShouldContinueToQA bool
	// Audit carries the per-turn judgment.
	Audit Audit
}

// RegistrationService drives the registration state machine for all citizens.
type RegistrationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	Classifier Classifier
	Extractor  Extractor
	Resolver   VillageResolver
	// Replier is optional; when set, clarification replies are generated
	// from the citizen's actual message instead of a fixed template.
	Replier ReplyGenerator

	// ConfidenceThreshold gates both classification and extraction; a turn
	// advances the state machine only when strictly above it.
	ConfidenceThreshold float64
	// MaxAttempts caps failed turns per state before the citizen is
	// redirected to the district office.
	MaxAttempts int
	// DefaultLanguage is assigned to newly observed citizens.
	DefaultLanguage string
	// MaxMessageRunes bounds inbound message length; 0 disables the check.
	MaxMessageRunes int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRegistrationService constructs a RegistrationService with the given
// collaborators and gating parameters.
func NewRegistrationService(db *gorm.DB, cls Classifier, ext Extractor, res VillageResolver, rep ReplyGenerator, threshold float64, maxAttempts int, defaultLang string) *RegistrationService {
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.7
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if defaultLang == "" {
		defaultLang = "en"
	}
	return &RegistrationService{
		DB:                  db,
		Classifier:          cls,
		Extractor:           ext,
		Resolver:            res,
		Replier:             rep,
		ConfidenceThreshold: threshold,
		MaxAttempts:         maxAttempts,
		DefaultLanguage:     defaultLang,
		locks:               make(map[string]*sync.Mutex),
	}
}

// HandleInboundMessage runs one citizen message through the registration
// pipeline and returns the reply to deliver. Messages from the same citizen
// are processed strictly one at a time; messages from different citizens run
// concurrently.
//
// For registered citizens it returns ShouldContinueToQA without a reply; the
// caller routes the message to the Q&A service.
func (s *RegistrationService) HandleInboundMessage(ctx context.Context, in Inbound) (*Result, error) {
	tr := otel.Tracer("services/RegistrationService")
	ctx, span := tr.Start(ctx, "HandleInboundMessage",
		trace.WithAttributes(attribute.String("citizen.id", in.From)),
	)
	defer span.End()

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}

	unlock := s.lock(in.From)
	defer unlock()

	citizen, err := s.ensureCitizen(ctx, in)
	if err != nil {
		return nil, err
	}
	state, err := s.ensureState(ctx, citizen.ID)
	if err != nil {
		return nil, err
	}

	if err := s.logTurn(ctx, citizen, roleUser, text, state.State, ""); err != nil {
		return nil, err
	}

	res, err := s.step(ctx, citizen, state, text)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("turn.outcome", res.Audit.Outcome),
		attribute.Float64("turn.confidence", res.Audit.Confidence),
	)
	if res.Reply != "" {
		snapshot := ""
		if b, merr := json.Marshal(res.Audit); merr == nil {
			snapshot = string(b)
		}
		if err := s.logTurn(ctx, citizen, roleAssistant, res.Reply, res.Audit.State, snapshot); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// step applies the state machine to one trimmed message. The caller holds the
// citizen's lock.
func (s *RegistrationService) step(ctx context.Context, citizen *domain.Citizen, state *domain.RegistrationState, text string) (*Result, error) {
	lang := citizen.Language

	switch state.State {
	case domain.StateCompleted:
		return &Result{
			ShouldContinueToQA: true,
			Audit:              Audit{State: state.State, Outcome: OutcomeQuestion},
		}, nil

	case domain.StateInitial:
		// First contact: greet and ask for the name without consulting
		// the classifier.
		if _, err := s.commit(ctx, s.DB, state, domain.StateAwaitingName, nil, nil, OutcomeGreeted); err != nil {
			return nil, err
		}
		return &Result{
			Reply: localize.T(lang, localize.MsgWelcome),
			Audit: Audit{State: state.State, NextState: domain.StateAwaitingName, Outcome: OutcomeGreeted},
		}, nil
	}

	cls, err := s.Classifier.Classify(ctx, text, state.State, inference.CitizenSnapshot{
		DisplayName:      citizen.DisplayName,
		UserProvidedName: citizen.UserProvidedName,
		Village:          citizen.Village,
		Language:         lang,
	})
	if err != nil {
		return s.technicalIssue(state, OutcomeProviderError, lang), nil
	}

	audit := Audit{State: state.State, Intent: cls.Intent, Confidence: cls.Confidence}

	if !cls.HasRequiredData {
		audit.Outcome = OutcomeNoRequiredData
		return s.retry(ctx, citizen, state, text, audit)
	}
	if cls.Confidence <= s.ConfidenceThreshold {
		audit.Outcome = OutcomeLowConfidence
		return s.retry(ctx, citizen, state, text, audit)
	}

	ext, err := s.Extractor.Extract(ctx, text, state.State)
	if err != nil {
		return s.technicalIssue(state, OutcomeProviderError, lang), nil
	}

	switch state.State {
	case domain.StateAwaitingName:
		return s.acceptName(ctx, citizen, state, text, ext, audit)
	case domain.StateAwaitingVillage:
		return s.acceptVillage(ctx, citizen, state, text, ext, audit)
	}
	return nil, ErrStateConflict
}

// acceptName stores the extracted name and advances to the village state.
func (s *RegistrationService) acceptName(ctx context.Context, citizen *domain.Citizen, state *domain.RegistrationState, text string, ext *inference.Extraction, audit Audit) (*Result, error) {
	if ext == nil || ext.FullName == "" || ext.Confidence <= s.ConfidenceThreshold {
		audit.Outcome = OutcomeLowConfidence
		if ext != nil {
			audit.Confidence = math.Min(audit.Confidence, ext.Confidence)
		}
		return s.retry(ctx, citizen, state, text, audit)
	}

	// Name merge and state flip commit together or not at all.
	fields := map[string]any{"user_provided_name": ext.FullName}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateCitizenFields(ctx, tx, citizen.ID, fields); err != nil {
			return err
		}
		_, err := s.commit(ctx, tx, state, domain.StateAwaitingVillage, ext, nil, OutcomeAdvanced)
		return err
	})
	if err != nil {
		return nil, err
	}

	audit.NextState = domain.StateAwaitingVillage
	audit.Confidence = math.Min(audit.Confidence, ext.Confidence)
	audit.Outcome = OutcomeAdvanced
	return &Result{
		Reply: localize.Tf(citizen.Language, localize.MsgAskVillage, ext.FullName),
		Audit: audit,
	}, nil
}

// acceptVillage validates the extracted village with the geocoder, stores the
// canonical labels and coordinates, and completes the registration.
func (s *RegistrationService) acceptVillage(ctx context.Context, citizen *domain.Citizen, state *domain.RegistrationState, text string, ext *inference.Extraction, audit Audit) (*Result, error) {
	lang := citizen.Language

	if ext == nil || ext.VillageName == "" || ext.Confidence <= s.ConfidenceThreshold {
		audit.Outcome = OutcomeLowConfidence
		if ext != nil {
			audit.Confidence = math.Min(audit.Confidence, ext.Confidence)
		}
		return s.retry(ctx, citizen, state, text, audit)
	}

	out := s.Resolver.Resolve(ctx, ext.VillageName, lang)
	if !out.Success {
		switch out.Reason {
		case geocode.ReasonServiceError:
			// Transient: no attempt is consumed.
			return s.technicalIssue(state, OutcomeGeocodeError, lang), nil
		case geocode.ReasonOutOfBoundary:
			audit.Outcome = OutcomeOutOfBoundary
			// The validator's Message already names the served district;
			// the template is only a fallback for resolvers that omit it.
			reply := out.Message
			if reply == "" {
				reply = localize.Tf(lang, localize.MsgOutOfBoundary, ext.VillageName, out.District)
			}
			return s.retryWith(ctx, state, audit, reply, lang)
		default:
			audit.Outcome = OutcomeVillageNotFound
			reply := out.Message
			if reply == "" {
				reply = localize.Tf(lang, localize.MsgVillageNotFound, ext.VillageName)
			}
			return s.retryWith(ctx, state, audit, reply, lang)
		}
	}

	// The conversation advances only when extraction and geocoding agree:
	// the weaker of the two judgments is the one that has to clear the gate.
	combined := math.Min(ext.Confidence, float64(out.Confidence)/100)
	audit.Confidence = math.Min(audit.Confidence, combined)
	if combined <= s.ConfidenceThreshold {
		audit.Outcome = OutcomeLowConfidence
		return s.retry(ctx, citizen, state, text, audit)
	}

	// The registered flag, the merged village fields, and the state flip
	// commit together or not at all: a failed transition must not leave a
	// half-registered citizen behind.
	now := time.Now().UTC()
	fields := map[string]any{
		"village":       out.Village,
		"taluka":        out.Taluka,
		"latitude":      out.Lat,
		"longitude":     out.Lng,
		"is_registered": true,
		"registered_at": now,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateCitizenFields(ctx, tx, citizen.ID, fields); err != nil {
			return err
		}
		_, err := s.commit(ctx, tx, state, domain.StateCompleted, ext, &out, OutcomeCompleted)
		return err
	})
	if err != nil {
		return nil, err
	}

	name := citizen.UserProvidedName
	if name == "" {
		name = citizen.DisplayName
	}
	audit.NextState = domain.StateCompleted
	audit.Outcome = OutcomeCompleted
	return &Result{
		Reply: localize.Tf(lang, localize.MsgCompleted, name, out.Village, out.Taluka),
		Audit: audit,
	}, nil
}

// retry consumes one attempt and replies with a clarification for the current
// state, generated from the citizen's message when a Replier is configured.
func (s *RegistrationService) retry(ctx context.Context, citizen *domain.Citizen, state *domain.RegistrationState, text string, audit Audit) (*Result, error) {
	lang := citizen.Language

	key := localize.MsgClarifyName
	instruction := "asks the citizen again for their full name"
	if state.State == domain.StateAwaitingVillage {
		key = localize.MsgClarifyVillage
		instruction = "asks the citizen again for just the name of their village"
	}

	reply := localize.T(lang, key)
	if s.Replier != nil {
		if gen, err := s.Replier.GenerateReply(ctx, text, instruction, lang); err == nil && gen != "" {
			reply = gen
		}
	}
	return s.retryWith(ctx, state, audit, reply, lang)
}

// retryWith consumes one attempt with a prebuilt reply, escalating once the
// attempt cap is reached.
func (s *RegistrationService) retryWith(ctx context.Context, state *domain.RegistrationState, audit Audit, reply, lang string) (*Result, error) {
	outcome := audit.Outcome
	if state.Attempts+1 >= s.MaxAttempts {
		outcome = OutcomeEscalated
		audit.Outcome = OutcomeEscalated
		reply = localize.T(lang, localize.MsgEscalation)
	}
	if err := repo.IncrementAttempt(ctx, s.DB, state.ID, outcome); err != nil {
		if errors.Is(err, repo.ErrActiveStateConflict) {
			return nil, ErrStateConflict
		}
		return nil, err
	}
	return &Result{Reply: reply, Audit: audit}, nil
}

// technicalIssue builds the reply for transient provider failures. The state
// machine is left untouched so the citizen can simply resend.
func (s *RegistrationService) technicalIssue(state *domain.RegistrationState, outcome, lang string) *Result {
	key := localize.MsgTechnicalIssue
	if outcome == OutcomeGeocodeError {
		key = localize.MsgGeocodeError
	}
	return &Result{
		Reply: localize.T(lang, key),
		Audit: Audit{State: state.State, Outcome: outcome},
	}
}

// commit records the transition from the current active state to nextState,
// snapshotting what was extracted and resolved. db is the handle to commit
// on, so callers can fold the transition into a wider transaction.
func (s *RegistrationService) commit(ctx context.Context, db *gorm.DB, state *domain.RegistrationState, nextState string, ext *inference.Extraction, out *geocode.Outcome, outcome string) (*domain.RegistrationState, error) {
	snapshot := ""
	if ext != nil || out != nil {
		b, err := json.Marshal(struct {
			Extraction *inference.Extraction `json:"extraction,omitempty"`
			Geocode    *geocode.Outcome      `json:"geocode,omitempty"`
		}{ext, out})
		if err == nil {
			snapshot = string(b)
		}
	}
	next, err := repo.CommitTransition(ctx, db, state, nextState, snapshot, outcome)
	if err != nil {
		if errors.Is(err, repo.ErrActiveStateConflict) {
			return nil, ErrStateConflict
		}
		return nil, err
	}
	return next, nil
}

// ensureCitizen loads the citizen row, creating it on first contact.
func (s *RegistrationService) ensureCitizen(ctx context.Context, in Inbound) (*domain.Citizen, error) {
	citizen, err := repo.GetCitizen(ctx, s.DB, in.From)
	if err == nil {
		return citizen, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return repo.CreateCitizen(ctx, s.DB, in.From, in.ProfileName, s.DefaultLanguage)
}

// ensureState loads the citizen's active registration state, creating the
// initial one on first contact.
func (s *RegistrationService) ensureState(ctx context.Context, citizenID string) (*domain.RegistrationState, error) {
	state, err := repo.ActiveState(ctx, s.DB, citizenID)
	if err == nil {
		return state, nil
	}
	if errors.Is(err, repo.ErrActiveStateConflict) {
		return nil, ErrStateConflict
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return repo.CreateInitialState(ctx, s.DB, citizenID)
}

// logTurn appends one turn to the citizen's chat log.
func (s *RegistrationService) logTurn(ctx context.Context, citizen *domain.Citizen, role, content, stateSnapshot, extractionSnapshot string) error {
	_, err := repo.AppendChatMessage(s.DB.WithContext(ctx), domain.ChatMessage{
		CitizenID:          citizen.ID,
		Role:               role,
		Content:            content,
		Language:           citizen.Language,
		StateSnapshot:      stateSnapshot,
		ExtractionSnapshot: extractionSnapshot,
	})
	return err
}

// History returns a page of the citizen's chat log in chronological order.
func (s *RegistrationService) History(ctx context.Context, citizenID string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	tr := otel.Tracer("services/RegistrationService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("citizen.id", citizenID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := repo.GetCitizen(ctx, s.DB, citizenID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrCitizenNotFound
		}
		return nil, 0, err
	}

	total, err := repo.CountChatMessages(s.DB.WithContext(ctx), citizenID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatMessage{}, 0, nil
	}

	items, err := repo.ListChatMessagesPage(s.DB.WithContext(ctx), citizenID, offset, pageSize)
	return items, total, err
}

// Stats reports registration totals for the operational endpoint.
func (s *RegistrationService) Stats(ctx context.Context) (*repo.RegistrationStats, error) {
	return repo.GetRegistrationStats(ctx, s.DB)
}

// lock acquires the citizen's mutex, creating it on first use. The returned
// function releases it.
func (s *RegistrationService) lock(citizenID string) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	m, ok := s.locks[citizenID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[citizenID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
