// Package service orchestrates notification submission: validate, resolve
// the recipient, render content, and enqueue a single envelope for the
// router to fan out.
package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/nlxp/notify-pipeline/internal/domain"
	"github.com/nlxp/notify-pipeline/internal/idempotency"
	"github.com/nlxp/notify-pipeline/internal/messaging/rabbitmq"
	"github.com/nlxp/notify-pipeline/internal/metrics"
)

var validate = validator.New()

// SubmitRequest is the decoded body of POST /v1/notifications.
type SubmitRequest struct {
	RecipientID string         `json:"recipient_id" validate:"required"`
	TemplateKey string         `json:"template_key" validate:"required"`
	Data        map[string]any `json:"data"`
	Language    string         `json:"language"`
}

// SubmitResult is the accepted-submission payload. Replayed submissions
// return the exact bytes cached for the idempotency key.
type SubmitResult struct {
	SubmissionID string `json:"submission_id"`
	RecipientID  string `json:"recipient_id"`
	TemplateKey  string `json:"template_key"`
	Status       string `json:"status"`
}

// ProfileFetcher resolves a recipient's delivery targets.
type ProfileFetcher interface {
	GetProfile(ctx context.Context, recipientID string) (*domain.Profile, error)
}

// TemplateRenderer renders notification content from a template key.
type TemplateRenderer interface {
	Render(ctx context.Context, templateKey string, data map[string]any) (*domain.Rendered, error)
}

// Publisher enqueues the envelope. Satisfied by *rabbitmq.Publisher.
type Publisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error
}

type Submitter struct {
	profiles  ProfileFetcher
	templates TemplateRenderer
	pub       Publisher
	idem      idempotency.Store
	idemTTL   time.Duration
	lg        zerolog.Logger
}

func NewSubmitter(profiles ProfileFetcher, templates TemplateRenderer, pub Publisher, idem idempotency.Store, idemTTL time.Duration, lg zerolog.Logger) *Submitter {
	if idem == nil {
		idem = idempotency.Noop{}
	}
	if idemTTL <= 0 {
		idemTTL = idempotency.DefaultTTL
	}
	return &Submitter{
		profiles:  profiles,
		templates: templates,
		pub:       pub,
		idem:      idem,
		idemTTL:   idemTTL,
		lg:        lg.With().Str("component", "submitter").Logger(),
	}
}

// Submit runs the submission pipeline. The returned bytes are the response
// payload; replayed reports whether they came from the idempotency cache.
// The cache fails open: a broken Redis never blocks a submission.
func (s *Submitter) Submit(ctx context.Context, idemKey string, req *SubmitRequest) (json.RawMessage, bool, error) {
	if err := validate.Struct(req); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, false, domain.Wrap(domain.KindValidation, "invalid submission", err)
	}

	idemKey = strings.TrimSpace(idemKey)
	if idemKey != "" {
		rec, err := s.idem.Get(ctx, idemKey)
		if err != nil {
			s.lg.Warn().Err(err).Msg("idempotency lookup failed; proceeding without replay")
		} else if rec != nil {
			s.lg.Info().Str("idempotency_key", idemKey).Msg("replaying cached submission response")
			metrics.SubmissionsTotal.WithLabelValues("replayed").Inc()
			return rec.Response, true, nil
		}
	}

	profile, err := s.profiles.GetProfile(ctx, req.RecipientID)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		return nil, false, err
	}

	rendered, err := s.templates.Render(ctx, req.TemplateKey, req.Data)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		return nil, false, err
	}

	targets := domain.DeliveryTargets{
		Email:     profile.Email,
		Phone:     profile.Phone,
		PushToken: profile.PushToken,
	}
	if !targets.HasAny() {
		// Enqueue anyway; the router records the no-op with context the
		// API layer doesn't have.
		s.lg.Warn().Str("recipient_id", req.RecipientID).Msg("recipient has no delivery targets")
	}

	language := req.Language
	if language == "" {
		language = profile.Language
	}

	env := domain.Envelope{
		RecipientID:     profile.RecipientID,
		DeliveryTargets: targets,
		Preferences:     profile.Preferences,
		Rendered:        *rendered,
		Metadata: domain.EnvelopeMetadata{
			TemplateKey:    req.TemplateKey,
			Language:       language,
			SubmissionID:   uuid.NewString(),
			IdempotencyKey: idemKey,
		},
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, false, domain.Wrap(domain.KindInternal, "marshal envelope", err)
	}
	if err := s.pub.PublishJSON(ctx, "", rabbitmq.QueueIngress, body, nil); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		return nil, false, err
	}

	resp, err := json.Marshal(SubmitResult{
		SubmissionID: env.Metadata.SubmissionID,
		RecipientID:  profile.RecipientID,
		TemplateKey:  req.TemplateKey,
		Status:       "queued",
	})
	if err != nil {
		return nil, false, domain.Wrap(domain.KindInternal, "marshal submit result", err)
	}

	if idemKey != "" {
		rec := &idempotency.Record{Status: "queued", Response: resp, StoredAt: time.Now().Unix()}
		if err := s.idem.Put(ctx, idemKey, rec, s.idemTTL); err != nil {
			// Absorbed: the enqueue already happened and workers
			// tolerate duplicates.
			s.lg.Warn().Err(err).Msg("idempotency store failed")
		}
	}

	metrics.SubmissionsTotal.WithLabelValues("queued").Inc()
	s.lg.Info().
		Str("submission_id", env.Metadata.SubmissionID).
		Str("recipient_id", profile.RecipientID).
		Str("template_key", req.TemplateKey).
		Msg("submission queued")
	return resp, false, nil
}
