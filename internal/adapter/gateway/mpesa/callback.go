package mpesa

import (
	"bytes"
	"encoding/json"
	"strconv"

	"settlement-engine/internal/core/domain"
	"settlement-engine/pkg/apperror"
)

type callbackEnvelope struct {
	Body struct {
		StkCallback *struct {
			MerchantRequestID string      `json:"MerchantRequestID"`
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []domain.CallbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback decodes an STK result notification. Metadata is optional:
// failed results carry none and successful ones may omit fields.
func ParseCallback(body []byte) (*domain.Callback, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env callbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, apperror.ErrMalformedCallback("callback body is not valid JSON")
	}
	stk := env.Body.StkCallback
	if stk == nil {
		return nil, apperror.ErrMalformedCallback("callback is missing Body.stkCallback")
	}
	if stk.CheckoutRequestID == "" {
		return nil, apperror.ErrMalformedCallback("callback is missing CheckoutRequestID")
	}

	code, err := strconv.Atoi(stk.ResultCode.String())
	if err != nil {
		return nil, apperror.ErrMalformedCallback("callback ResultCode is not an integer")
	}

	cb := &domain.Callback{
		MerchantRequestID: stk.MerchantRequestID,
		CheckoutRequestID: stk.CheckoutRequestID,
		ResultCode:        code,
		ResultDesc:        stk.ResultDesc,
	}
	if stk.CallbackMetadata != nil {
		cb.Metadata = normalizeItems(stk.CallbackMetadata.Item)
	}
	return cb, nil
}

// With UseNumber, numeric values decode as json.Number; convert them to
// strings so Callback.Item can read them.
func normalizeItems(items []domain.CallbackItem) []domain.CallbackItem {
	out := make([]domain.CallbackItem, 0, len(items))
	for _, it := range items {
		if n, ok := it.Value.(json.Number); ok {
			it.Value = n.String()
		}
		out = append(out, it)
	}
	return out
}
