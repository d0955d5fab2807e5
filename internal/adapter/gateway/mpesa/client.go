// Package mpesa is the HTTP adapter for the M-Pesa Express (STK push) API.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"settlement-engine/internal/core/domain"
	"settlement-engine/pkg/apperror"
	"settlement-engine/pkg/phone"

	"github.com/rs/zerolog"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	timestampLayout     = "20060102150405"
	maxAccountReference = 12
	maxTransactionDesc  = 13
	maxErrorBody        = 4 << 10
)

// The gateway validates timestamps against East Africa Time.
var gatewayZone = time.FixedZone("EAT", 3*60*60)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.GatewayClient.
type Client struct {
	httpClient HTTPClient
	timeout    time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// NewClient creates a gateway client. timeout bounds every outbound call.
func NewClient(httpClient HTTPClient, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		timeout:    timeout,
		now:        time.Now,
		log:        log,
	}
}

// Timestamp formats t the way the gateway expects (YYYYMMDDHHMMSS, EAT).
func Timestamp(t time.Time) string {
	return t.In(gatewayZone).Format(timestampLayout)
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// errorResponse is the gateway's error envelope.
type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// AccessToken obtains a client-credentials bearer token.
func (c *Client) AccessToken(ctx context.Context, cfg *domain.GatewayConfig) (string, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(cfg.BaseURL, "/")+tokenPath, nil)
	if err != nil {
		return "", 0, apperror.ErrGatewayAuth(err)
	}
	req.SetBasicAuth(cfg.ConsumerKey, cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, apperror.ErrGatewayAuth(fmt.Errorf("token request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Error().Int("status", resp.StatusCode).Str("short_code", cfg.ShortCode).Msg("gateway: token request rejected")
		return "", 0, apperror.ErrGatewayAuth(fmt.Errorf("token request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, apperror.ErrGatewayAuth(fmt.Errorf("decoding token response: %w", err))
	}
	if tr.AccessToken == "" {
		return "", 0, apperror.ErrGatewayAuth(errors.New("empty access token"))
	}

	expiresIn, err := tr.ExpiresIn.Int64()
	if err != nil || expiresIn <= 0 {
		expiresIn = 3599
	}
	return tr.AccessToken, time.Duration(expiresIn) * time.Second, nil
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	errorResponse
}

// STKPush submits a payment prompt to the payer's handset. A deadline
// exceeded while waiting means the outcome is unknown and is reported as
// GW_TIMEOUT, never as a rejection.
func (c *Client) STKPush(ctx context.Context, cfg *domain.GatewayConfig, token string, pr domain.PushRequest) (*domain.PushAck, error) {
	ts := Timestamp(c.now())
	body := stkPushBody{
		BusinessShortCode: cfg.ShortCode,
		Password:          Password(cfg.ShortCode, cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   cfg.TransactionType,
		Amount:            pr.Amount,
		PartyA:            pr.Phone,
		PartyB:            cfg.PartyB(),
		PhoneNumber:       pr.Phone,
		CallBackURL:       cfg.CallbackURL,
		AccountReference:  truncate(pr.AccountReference, maxAccountReference),
		TransactionDesc:   truncate(pr.Description, maxTransactionDesc),
	}

	var out stkPushResponse
	status, err := c.postJSON(ctx, cfg, token, stkPushPath, body, &out)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		return nil, apperror.ErrGatewayAuth(fmt.Errorf("stk push: %s", out.ErrorMessage))
	}
	if status != http.StatusOK {
		return nil, apperror.ErrGatewaySubmission(out.ErrorMessage, fmt.Errorf("stk push: status %d code %s", status, out.ErrorCode))
	}
	if out.ResponseCode != "0" {
		return nil, apperror.ErrGatewaySubmission(out.ResponseDescription, fmt.Errorf("stk push: response code %s", out.ResponseCode))
	}
	if out.CheckoutRequestID == "" {
		return nil, apperror.ErrGatewaySubmission("", errors.New("stk push: acknowledgment without CheckoutRequestID"))
	}

	c.log.Info().
		Str("checkout_request_id", out.CheckoutRequestID).
		Str("phone", phone.Mask(pr.Phone)).
		Int64("amount", pr.Amount).
		Msg("gateway: stk push acknowledged")

	return &domain.PushAck{
		CheckoutRequestID:   out.CheckoutRequestID,
		MerchantRequestID:   out.MerchantRequestID,
		ResponseCode:        out.ResponseCode,
		ResponseDescription: out.ResponseDescription,
		CustomerMessage:     out.CustomerMessage,
	}, nil
}

type stkQueryBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string      `json:"ResponseCode"`
	ResponseDescription string      `json:"ResponseDescription"`
	MerchantRequestID   string      `json:"MerchantRequestID"`
	CheckoutRequestID   string      `json:"CheckoutRequestID"`
	ResultCode          json.Number `json:"ResultCode"`
	ResultDesc          string      `json:"ResultDesc"`
	errorResponse
}

// QueryStatus asks the gateway for the final result of a push. The answer is
// shaped as a Callback so it can take the same reconciliation path.
func (c *Client) QueryStatus(ctx context.Context, cfg *domain.GatewayConfig, token string, checkoutID string) (*domain.Callback, error) {
	ts := Timestamp(c.now())
	body := stkQueryBody{
		BusinessShortCode: cfg.ShortCode,
		Password:          Password(cfg.ShortCode, cfg.Passkey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutID,
	}

	var out stkQueryResponse
	status, err := c.postJSON(ctx, cfg, token, stkQueryPath, body, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, apperror.ErrGatewayAuth(fmt.Errorf("stk query: %s", out.ErrorMessage))
	}
	if status != http.StatusOK || out.ResponseCode != "0" {
		msg := out.ErrorMessage
		if msg == "" {
			msg = out.ResponseDescription
		}
		return nil, apperror.ErrGatewaySubmission(msg, fmt.Errorf("stk query: status %d code %s", status, out.ErrorCode))
	}

	code, err := strconv.Atoi(out.ResultCode.String())
	if err != nil {
		return nil, apperror.ErrMalformedCallback("stk query: non-numeric ResultCode " + out.ResultCode.String())
	}

	return &domain.Callback{
		MerchantRequestID: out.MerchantRequestID,
		CheckoutRequestID: checkoutID,
		ResultCode:        code,
		ResultDesc:        out.ResultDesc,
	}, nil
}

// postJSON sends body and decodes the response (success or error envelope)
// into out, returning the HTTP status.
func (c *Client) postJSON(ctx context.Context, cfg *domain.GatewayConfig, token, path string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("marshal %s: %w", path, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(cfg.BaseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("build %s: %w", path, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.log.Warn().Err(err).Str("path", path).Msg("gateway: request timed out, outcome unknown")
			return 0, apperror.ErrGatewayTimeout(err)
		}
		return 0, apperror.ErrGatewaySubmission("", fmt.Errorf("%s: %w", path, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return 0, apperror.ErrGatewayTimeout(err)
		}
		return 0, apperror.ErrGatewaySubmission("", fmt.Errorf("%s: reading body: %w", path, err))
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode == http.StatusOK {
			return 0, apperror.ErrGatewaySubmission("", fmt.Errorf("%s: decoding response: %w", path, err))
		}
	}
	return resp.StatusCode, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
