package esewa

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Provider statuses returned in callbacks and by the status API.
const (
	StatusComplete      = "COMPLETE"
	StatusPending       = "PENDING"
	StatusAmbient       = "AMBIENT"
	StatusFullRefund    = "FULL_REFUND"
	StatusPartialRefund = "PARTIAL_REFUND"
	StatusCanceled      = "CANCELED"
	StatusNotFound      = "NOT_FOUND"
)

var ErrMalformedCallback = errors.New("malformed callback payload")

// Text accepts either a JSON string or a bare JSON number; eSewa has sent
// amounts both ways.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = Text(n.String())
	return nil
}

type Callback struct {
	TransactionCode  string `json:"transaction_code"`
	Status           string `json:"status"`
	TotalAmount      Text   `json:"total_amount"`
	TransactionUUID  string `json:"transaction_uuid"`
	ProductCode      string `json:"product_code"`
	SignedFieldNames string `json:"signed_field_names"`
	Signature        string `json:"signature"`
}

// DecodeCallback parses the base64 JSON carried in the callback's data
// parameter. Standard and URL-safe alphabets are both accepted.
func DecodeCallback(data string) (Callback, error) {
	var cb Callback
	data = strings.TrimSpace(data)
	if data == "" {
		return cb, fmt.Errorf("%w: empty data", ErrMalformedCallback)
	}
	raw, err := decodeBase64(data)
	if err != nil {
		return cb, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if err := json.Unmarshal(raw, &cb); err != nil {
		return cb, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if cb.TransactionUUID == "" {
		return cb, fmt.Errorf("%w: missing transaction_uuid", ErrMalformedCallback)
	}
	return cb, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding,
		base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("invalid base64")
}

// Field returns a callback field by its wire name.
func (c Callback) Field(name string) (string, bool) {
	switch name {
	case "transaction_code":
		return c.TransactionCode, true
	case "status":
		return c.Status, true
	case "total_amount":
		return string(c.TotalAmount), true
	case "transaction_uuid":
		return c.TransactionUUID, true
	case "product_code":
		return c.ProductCode, true
	case "signed_field_names":
		return c.SignedFieldNames, true
	}
	return "", false
}
