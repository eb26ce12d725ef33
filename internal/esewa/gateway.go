// Package esewa talks to the eSewa ePay v2 hosted checkout: it builds signed
// form sessions, decodes and verifies callbacks, and queries transaction status.
package esewa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SignedFieldNames is the field list signed on outgoing forms.
const SignedFieldNames = "total_amount,transaction_uuid,product_code"

type Gateway struct {
	FormURL      string
	MerchantCode string
	ProductCode  string
	SecretKey    string
	SuccessURL   string
	FailureURL   string
	TaxRate      decimal.Decimal

	// NewID generates transaction UUIDs; defaults to uuid.NewString.
	NewID func() string
}

// FormData is posted by the browser to FormURL.
type FormData struct {
	URL                   string      `json:"url"`
	Amount                json.Number `json:"amount"`
	TaxAmount             json.Number `json:"tax_amount"`
	TotalAmount           json.Number `json:"total_amount"`
	TransactionUUID       string      `json:"transaction_uuid"`
	ProductCode           string      `json:"product_code"`
	ProductServiceCharge  json.Number `json:"product_service_charge"`
	ProductDeliveryCharge json.Number `json:"product_delivery_charge"`
	SuccessURL            string      `json:"success_url"`
	FailureURL            string      `json:"failure_url"`
	SignedFieldNames      string      `json:"signed_field_names"`
	Signature             string      `json:"signature"`
}

type Session struct {
	TransactionUUID string
	Amount          decimal.Decimal
	Tax             decimal.Decimal
	Total           decimal.Decimal
	Form            FormData
}

// Tax is ceil(amount * rate).
func Tax(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Ceil()
}

// NewSession prices and signs a checkout for amount. No network call is made.
func (g *Gateway) NewSession(amount decimal.Decimal) Session {
	newID := g.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	tax := Tax(amount, g.TaxRate)
	total := amount.Add(tax)
	txUUID := newID()

	return Session{
		TransactionUUID: txUUID,
		Amount:          amount,
		Tax:             tax,
		Total:           total,
		Form: FormData{
			URL:                   g.FormURL,
			Amount:                json.Number(amount.String()),
			TaxAmount:             json.Number(tax.String()),
			TotalAmount:           json.Number(total.String()),
			TransactionUUID:       txUUID,
			ProductCode:           g.ProductCode,
			ProductServiceCharge:  "0",
			ProductDeliveryCharge: "0",
			SuccessURL:            g.SuccessURL,
			FailureURL:            g.FailureURL,
			SignedFieldNames:      SignedFieldNames,
			Signature:             g.Sign(SigningString(total.String(), txUUID, g.ProductCode)),
		},
	}
}

// SigningString is the canonical message for an outgoing form.
func SigningString(totalAmount, transactionUUID, productCode string) string {
	return "total_amount=" + totalAmount +
		",transaction_uuid=" + transactionUUID +
		",product_code=" + productCode
}

// Sign returns base64(HMAC-SHA256(secret, message)).
func (g *Gateway) Sign(message string) string {
	mac := hmac.New(sha256.New, []byte(g.SecretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyCallback recomputes the signature over the callback's own
// signed_field_names. A callback without a signature does not verify.
func (g *Gateway) VerifyCallback(cb Callback) bool {
	if cb.Signature == "" || cb.SignedFieldNames == "" {
		return false
	}
	names := strings.Split(cb.SignedFieldNames, ",")
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		v, ok := cb.Field(name)
		if !ok {
			return false
		}
		pairs = append(pairs, name+"="+v)
	}
	want := g.Sign(strings.Join(pairs, ","))
	return hmac.Equal([]byte(want), []byte(cb.Signature))
}
