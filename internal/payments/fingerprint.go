package payments

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// TimestampLayout is the gateway's YYYY-MM-DD HH:mm:ss format.
	TimestampLayout    = "2006-01-02 15:04:05"
	FingerprintVersion = "1"

	TransactionPurchase = "1"
)

// FingerprintInput holds every value the gateway hashes. Amount is in minor
// units of a two-decimal currency.
type FingerprintInput struct {
	PosAuthCode     string
	Timestamp       time.Time
	Amount          int64
	MerchantRef     string
	MerchantSession string
	TerminalID      string
	CurrencyCode    string
	TransactionType string
	EntityCode      string
	ReferenceNumber string
}

// Fingerprint signs a gateway request:
//
//	base64(sha512(secretHash + timestamp + amount*1000 + ref + session +
//	    terminal + currency + type [+ entity + reference]))
//
// where secretHash is base64(sha512(posAuthCode)) and the amount is in major
// units. Entity and reference are appended for transaction types 2 and 3
// only, as integers without leading zeros. The result is deterministic.
func Fingerprint(in FingerprintInput) (string, error) {
	if strings.TrimSpace(in.PosAuthCode) == "" {
		return "", protocolError("pos_auth_code", "missing")
	}
	if in.Timestamp.IsZero() {
		return "", protocolError("timestamp", "missing")
	}
	if in.Amount <= 0 {
		return "", protocolError("amount", "must be positive")
	}

	fields := []struct{ name, value string }{
		{"merchant_ref", in.MerchantRef},
		{"merchant_session", in.MerchantSession},
		{"terminal_id", in.TerminalID},
		{"currency_code", in.CurrencyCode},
		{"transaction_type", in.TransactionType},
	}
	for i := range fields {
		fields[i].value = strings.TrimSpace(fields[i].value)
		if fields[i].value == "" {
			return "", protocolError(fields[i].name, "missing")
		}
	}

	var b strings.Builder
	b.WriteString(SecretHash(in.PosAuthCode))
	b.WriteString(in.Timestamp.Format(TimestampLayout))
	// amount_in_major_units * 1000 == minor units * 10
	b.WriteString(strconv.FormatInt(in.Amount*10, 10))
	for _, f := range fields {
		b.WriteString(f.value)
	}

	switch txType := fields[4].value; txType {
	case TransactionPurchase:
	case "2", "3":
		entity, err := stripLeadingZeros(in.EntityCode)
		if err != nil {
			return "", protocolError("entity_code", err.Error())
		}
		reference, err := stripLeadingZeros(in.ReferenceNumber)
		if err != nil {
			return "", protocolError("reference_number", err.Error())
		}
		b.WriteString(entity)
		b.WriteString(reference)
	default:
		return "", protocolError("transaction_type", "unknown type "+strconv.Quote(txType))
	}

	sum := sha512.Sum512([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

// SecretHash is base64(sha512(posAuthCode)).
func SecretHash(posAuthCode string) string {
	sum := sha512.Sum512([]byte(posAuthCode))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyFingerprint recomputes the fingerprint for in and compares it with
// got in constant time.
func VerifyFingerprint(in FingerprintInput, got string) (bool, error) {
	want, err := Fingerprint(in)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.TrimSpace(got))) == 1, nil
}

// FormatAmount renders minor units as major units with two decimals, the
// form the visible Amount field uses.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// ParseAmount is the inverse of FormatAmount. It accepts a dot or comma
// separator and at most two decimals.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimals", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || cents < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return units*100 + cents, nil
}

func stripLeadingZeros(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("missing")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("must be numeric")
		}
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0", nil
	}
	return s, nil
}

func protocolError(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrProtocol, field, reason)
}
