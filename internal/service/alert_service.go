package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// alertRetryIntervals is the wait before each redelivery attempt.
var alertRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type alertService struct {
	webhookURL string
	secret     string
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	retries    []time.Duration
	log        zerolog.Logger
}

// NewAlertService creates the ops alert notifier. With an empty webhookURL
// alerts are only logged.
func NewAlertService(
	webhookURL string,
	secret string,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) ports.AlertService {
	return &alertService{
		webhookURL: webhookURL,
		secret:     secret,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		retries:    alertRetryIntervals,
		log:        log,
	}
}

// Raise logs the alert and delivers it asynchronously.
func (s *alertService) Raise(ctx context.Context, alert *domain.Alert) {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	ev := s.log.Warn()
	if alert.Severity == domain.AlertSeverityCritical {
		ev = s.log.Error()
	}
	ev.Str("alert_id", alert.ID.String()).
		Str("severity", string(alert.Severity)).
		Str("kind", alert.Kind).
		Str("checkout_id", alert.CheckoutRequestID).
		Msg(alert.Message)

	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(alert)
	if err != nil {
		s.log.Error().Err(err).Str("alert_id", alert.ID.String()).Msg("alert: failed to marshal payload")
		return
	}
	signature := s.sigSvc.Sign(s.secret, string(body))

	go s.deliverWithRetries(body, signature, alert.ID.String())
}

func (s *alertService) deliverWithRetries(body []byte, signature string, alertID string) {
	for attempt := 0; attempt <= len(s.retries); attempt++ {
		if attempt > 0 {
			time.Sleep(s.retries[attempt-1])
		}

		req, err := http.NewRequest(http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			s.log.Error().Err(err).Str("alert_id", alertID).Msg("alert: failed to create request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Signature", signature)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.log.Warn().Err(err).Str("alert_id", alertID).Int("attempt", attempt+1).Msg("alert: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.log.Debug().Str("alert_id", alertID).Int("attempt", attempt+1).Msg("alert: delivered")
			return
		}

		s.log.Warn().Str("alert_id", alertID).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("alert: non-2xx response, retrying")
	}

	s.log.Error().Str("alert_id", alertID).Msg("alert: all retry attempts exhausted")
}
