package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Gateway transaction types.
const (
	TransactionTypePayBill  = "CustomerPayBillOnline"
	TransactionTypeBuyGoods = "CustomerBuyGoodsOnline"
)

// GatewayConfig is the credential set used to talk to the mobile-money
// gateway. Secret fields are held decrypted only in memory.
type GatewayConfig struct {
	ID              uuid.UUID `json:"id"`
	BaseURL         string    `json:"base_url"`
	ShortCode       string    `json:"short_code"`
	TillNumber      string    `json:"till_number,omitempty"`
	TransactionType string    `json:"transaction_type"`
	ConsumerKey     string    `json:"-"`
	ConsumerSecret  string    `json:"-"`
	Passkey         string    `json:"-"`
	CallbackURL     string    `json:"callback_url"`
	Active          bool      `json:"active"`
}

// PartyB is the receiving party: the till for buy goods, else the short code.
func (c *GatewayConfig) PartyB() string {
	if c.TransactionType == TransactionTypeBuyGoods && c.TillNumber != "" {
		return c.TillNumber
	}
	return c.ShortCode
}

// GatewayConfigRecord is the stored form with secrets still encrypted.
type GatewayConfigRecord struct {
	ID                uuid.UUID
	BaseURL           string
	ShortCode         string
	TillNumber        string
	TransactionType   string
	ConsumerKey       string
	ConsumerSecretEnc string
	PasskeyEnc        string
	CallbackURL       string
	Active            bool
	CreatedAt         time.Time
}

// PushRequest is an outbound STK push.
type PushRequest struct {
	Phone            string
	Amount           int64
	AccountReference string
	Description      string
}

// PushAck is the gateway's synchronous acknowledgment of a push.
type PushAck struct {
	CheckoutRequestID   string
	MerchantRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
}

// Callback is a parsed asynchronous STK result notification.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Metadata          []CallbackItem
}

// CallbackItem is one Name/Value pair of callback metadata.
type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// Succeeded is true for result code zero.
func (c *Callback) Succeeded() bool {
	return c.ResultCode == 0
}

// Item returns the named metadata value as a string. Missing items are
// reported with ok=false rather than an error; gateways omit fields freely.
func (c *Callback) Item(name string) (string, bool) {
	for _, it := range c.Metadata {
		if !strings.EqualFold(it.Name, name) || it.Value == nil {
			continue
		}
		switch v := it.Value.(type) {
		case string:
			return v, true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case int:
			return strconv.Itoa(v), true
		case int64:
			return strconv.FormatInt(v, 10), true
		default:
			return "", false
		}
	}
	return "", false
}

// ReceiptNumber is the gateway's receipt id, empty when absent.
func (c *Callback) ReceiptNumber() string {
	v, _ := c.Item("MpesaReceiptNumber")
	return v
}

// ReconcileOutcome is the result of processing one callback.
type ReconcileOutcome string

const (
	OutcomeCompleted ReconcileOutcome = "completed"
	OutcomeFailed    ReconcileOutcome = "failed"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
)

// ReconcileResult describes what a callback did. SettlementErr is set when the
// payment was completed but value could not be released.
type ReconcileResult struct {
	Outcome       ReconcileOutcome
	Payment       *PaymentRequest
	SettlementErr error
}
