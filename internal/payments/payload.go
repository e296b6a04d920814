package payments

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"lodging/internal/shared/config"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ShopperInfo is the cardholder blob the gateway uses for 3-D Secure.
type ShopperInfo struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"billAddrLine1,omitempty"`
	City       string `json:"billAddrCity,omitempty"`
	PostalCode string `json:"billAddrPostCode,omitempty"`
	Country    string `json:"billAddrCountry,omitempty"`
}

// Encode strips diacritics from the free-text fields and returns the
// base64 JSON blob.
func (s ShopperInfo) Encode() (string, error) {
	s.Name = StripDiacritics(s.Name)
	s.Address = StripDiacritics(s.Address)
	s.City = StripDiacritics(s.City)
	s.PostalCode = StripDiacritics(s.PostalCode)

	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode shopper info: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// StripDiacritics decomposes s and drops combining marks, so "Conceição"
// becomes "Conceicao".
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// PaymentRequest carries the per-attempt values of a gateway request.
type PaymentRequest struct {
	MerchantRef     string
	MerchantSession string
	ReferenceNumber string
	Amount          int64
	Timestamp       time.Time
	Shopper         ShopperInfo
}

// RedirectPayload is the signed form the browser posts to the gateway.
type RedirectPayload struct {
	ActionURL    string            `json:"action_url"`
	Method       string            `json:"method"`
	Fields       map[string]string `json:"fields"`
	SessionToken string            `json:"session_token"`
	MerchantRef  string            `json:"merchant_ref"`
}

// BuildPayload signs req and lays out the gateway form. It performs no I/O.
func BuildPayload(cfg *config.PaymentConfig, req PaymentRequest) (*RedirectPayload, error) {
	txType := strings.TrimSpace(cfg.TransactionType)
	entity, reference := "", ""
	if txType != TransactionPurchase {
		entity, reference = cfg.EntityCode, req.ReferenceNumber
	}

	fingerprint, err := Fingerprint(FingerprintInput{
		PosAuthCode:     cfg.PosAuthCode,
		Timestamp:       req.Timestamp,
		Amount:          req.Amount,
		MerchantRef:     req.MerchantRef,
		MerchantSession: req.MerchantSession,
		TerminalID:      cfg.TerminalID,
		CurrencyCode:    cfg.CurrencyCode,
		TransactionType: txType,
		EntityCode:      entity,
		ReferenceNumber: reference,
	})
	if err != nil {
		return nil, err
	}

	callback, err := url.Parse(cfg.CallbackURL)
	if err != nil || !callback.IsAbs() || callback.Host == "" || callback.RawQuery != "" || callback.ForceQuery {
		return nil, protocolError("callback_url", "must be absolute without query")
	}

	action, err := url.Parse(cfg.GatewayURL)
	if err != nil || !action.IsAbs() {
		return nil, protocolError("gateway_url", "must be absolute")
	}
	timestamp := req.Timestamp.Format(TimestampLayout)
	q := action.Query()
	q.Set("FingerPrint", fingerprint)
	q.Set("TimeStamp", timestamp)
	q.Set("FingerPrintVersion", FingerprintVersion)
	action.RawQuery = q.Encode()

	shopper, err := req.Shopper.Encode()
	if err != nil {
		return nil, err
	}

	is3DSec := "0"
	if cfg.ThreeDSecure {
		is3DSec = "1"
	}

	return &RedirectPayload{
		ActionURL: action.String(),
		Method:    "POST",
		Fields: map[string]string{
			"TransactionCode":     txType,
			"TerminalID":          strings.TrimSpace(cfg.TerminalID),
			"MerchantRef":         strings.TrimSpace(req.MerchantRef),
			"MerchantSession":     strings.TrimSpace(req.MerchantSession),
			"Amount":              FormatAmount(req.Amount),
			"Currency":            strings.TrimSpace(cfg.CurrencyCode),
			"Is3DSec":             is3DSec,
			"UrlMerchantResponse": cfg.CallbackURL,
			"Language":            cfg.Language,
			"TimeStamp":           timestamp,
			"FingerPrintVersion":  FingerprintVersion,
			"EntityCode":          entity,
			"ReferenceNumber":     reference,
			"FingerPrint":         fingerprint,
			"ShopperInfo":         shopper,
		},
		SessionToken: req.MerchantSession,
		MerchantRef:  req.MerchantRef,
	}, nil
}
