package domain

import "encoding/json"

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// DeliveryTargets carries the per-channel addresses resolved from the
// recipient profile. A target is absent when empty.
type DeliveryTargets struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	PushToken string `json:"push_token,omitempty"`
}

// HasAny reports whether at least one target is set.
func (t DeliveryTargets) HasAny() bool {
	return t.Email != "" || t.Phone != "" || t.PushToken != ""
}

// Rendered is the normalized template output. Older producers emitted
// `html`, `html_body` or `content` for the HTML part and `body` for the
// text part; UnmarshalJSON tolerates those for the migration window.
type Rendered struct {
	Subject  string `json:"subject"`
	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html"`
}

func (r *Rendered) UnmarshalJSON(data []byte) error {
	var raw struct {
		Subject  string `json:"subject"`
		BodyText string `json:"body_text"`
		BodyHTML string `json:"body_html"`
		HTMLBody string `json:"html_body"`
		HTML     string `json:"html"`
		Content  string `json:"content"`
		Body     string `json:"body"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Subject = raw.Subject
	r.BodyText = firstNonEmpty(raw.BodyText, raw.Body)
	r.BodyHTML = firstNonEmpty(raw.BodyHTML, raw.HTMLBody, raw.HTML, raw.Content)
	return nil
}

// EnvelopeMetadata travels with the envelope for tracing and audit.
type EnvelopeMetadata struct {
	TemplateKey    string `json:"template_key"`
	Language       string `json:"language"`
	SubmissionID   string `json:"submission_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Envelope is the single ingress-queue message produced by the submission
// API. It contains everything needed to deliver on any channel.
type Envelope struct {
	RecipientID     string           `json:"recipient_id"`
	DeliveryTargets DeliveryTargets  `json:"delivery_targets"`
	Preferences     map[string]any   `json:"preferences,omitempty"`
	Rendered        Rendered         `json:"rendered"`
	Metadata        EnvelopeMetadata `json:"metadata"`
}

// EmailMessage is the email channel payload published by the router.
type EmailMessage struct {
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	To             string         `json:"to"`
	Subject        string         `json:"subject"`
	Content        string         `json:"content"`
	TemplateID     string         `json:"template_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// PushMessage is the push channel payload published by the router.
type PushMessage struct {
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	Target         string         `json:"target"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	Data           map[string]any `json:"data,omitempty"`
}

// Profile is the recipient record returned by the profile service.
type Profile struct {
	RecipientID string         `json:"user_id"`
	Email       string         `json:"email_address"`
	Phone       string         `json:"phone_number"`
	PushToken   string         `json:"push_token"`
	Language    string         `json:"preferred_language"`
	Preferences map[string]any `json:"preferences"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
