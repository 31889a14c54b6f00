// Package services – QAService
//
// This file implements QAService, which answers questions from registered
// citizens by retrieval over the knowledge-base index. Answers below the
// similarity threshold fall back to a localized "not found" reply rather
// than a low-quality snippet. When a ReplyGenerator is configured, the top
// snippets are rephrased into a short conversational answer; the raw snippet
// is the fallback when generation fails.

package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
	"github.com/gramsetu/citizen-assist-backend/internal/localize"
	"github.com/gramsetu/citizen-assist-backend/internal/repo"
	"github.com/gramsetu/citizen-assist-backend/internal/search"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// QAService answers free-form questions for registered citizens.
type QAService struct {
	// DB is the GORM handle used to append answered turns to the chat log.
	DB *gorm.DB
	// Index is the knowledge-base retrieval index.
	Index search.Index
	// Threshold is the minimum similarity score for a snippet to count as
	// an answer.
	Threshold float64
	// Replier is optional; when set, the retrieved snippet is rephrased
	// into a conversational reply in the citizen's language.
	Replier ReplyGenerator
}

// NewQAService constructs a QAService over the given index.
func NewQAService(db *gorm.DB, idx search.Index, threshold float64, rep ReplyGenerator) *QAService {
	return &QAService{DB: db, Index: idx, Threshold: threshold, Replier: rep}
}

// Answer retrieves an answer to the citizen's question and appends the
// assistant turn to the chat log. It never returns an empty reply: misses
// produce the localized not-found message.
func (s *QAService) Answer(ctx context.Context, citizenID, lang, question string) (string, error) {
	tr := otel.Tracer("services/QAService")
	ctx, span := tr.Start(ctx, "Answer",
		trace.WithAttributes(attribute.String("citizen.id", citizenID)),
	)
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyMessage
	}

	reply, score := s.retrieve(ctx, question, lang)
	span.SetAttributes(attribute.Float64("answer.score", score))

	if _, err := repo.AppendChatMessage(s.DB.WithContext(ctx), domain.ChatMessage{
		CitizenID:     citizenID,
		Role:          roleAssistant,
		Content:       reply,
		Language:      lang,
		StateSnapshot: domain.StateCompleted,
	}); err != nil {
		return "", err
	}
	return reply, nil
}

// retrieve pulls the best snippets above the threshold and optionally
// rephrases them. Returns the not-found message and a zero score on a miss.
func (s *QAService) retrieve(ctx context.Context, question, lang string) (string, float64) {
	if s.Index == nil {
		return localize.T(lang, localize.MsgAnswerNotFound), 0
	}

	const k = 3
	results := s.Index.TopK(question, k)
	if len(results) == 0 || results[0].Score < s.Threshold {
		return localize.T(lang, localize.MsgAnswerNotFound), 0
	}

	top := results[0]
	answer := top.Snippet
	// A close runner-up usually holds a complementary fact; include it.
	if len(results) > 1 && results[1].Score >= s.Threshold {
		answer += "\n\n" + results[1].Snippet
	}

	if s.Replier != nil {
		instruction := "answers the question using only these facts: " + answer
		if gen, err := s.Replier.GenerateReply(ctx, question, instruction, lang); err == nil && gen != "" {
			return gen, top.Score
		}
	}
	return answer, top.Score
}
