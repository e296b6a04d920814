package payments

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func baseInput() FingerprintInput {
	return FingerprintInput{
		PosAuthCode:     "SECRET",
		Timestamp:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Amount:          690000, // 6900.00
		MerchantRef:     "ABC123",
		MerchantSession: "sess-1",
		TerminalID:      "123456",
		CurrencyCode:    "978",
		TransactionType: "1",
	}
}

func TestSecretHash(t *testing.T) {
	want := "/rZUHUkqHVA5TMRI6cTQisOBxckKZWsZIBus/flGK4eopVeaR4EGCcIwfeyS9SyI8hj9MHWv4CYpvF/QHOc0/Q=="
	if got := SecretHash("SECRET"); got != want {
		t.Errorf("SecretHash() = %s, want %s", got, want)
	}
}

func TestFingerprintKnownVectors(t *testing.T) {
	purchase := baseInput()

	serviceBill := baseInput()
	serviceBill.TransactionType = "3"
	serviceBill.EntityCode = "01234"
	serviceBill.ReferenceNumber = "000987"

	padded := baseInput()
	padded.MerchantRef = "  ABC123 "
	padded.TerminalID = "123456\t"

	tests := []struct {
		name string
		in   FingerprintInput
		want string
	}{
		{"purchase", purchase, "eoF+OG/Aui9DlCoZHDgBLTdjPDcAK7mjEi4AavvrKAxZGNmziMRE8hK99Lkbz4qVxuF4/4i5GDVbu7IL329d+g=="},
		{"service bill strips leading zeros", serviceBill, "bKYEIS0aBvA1m7pVXNpRi2btXilDyCc3o5w7LP6TlZH+B4gqgpb3aMn/fW0G5ZpNVst0GpWkge0ILHlercBFQA=="},
		{"fields are trimmed", padded, "eoF+OG/Aui9DlCoZHDgBLTdjPDcAK7mjEi4AavvrKAxZGNmziMRE8hK99Lkbz4qVxuF4/4i5GDVbu7IL329d+g=="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fingerprint(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Fingerprint() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a, _ := Fingerprint(baseInput())
	b, _ := Fingerprint(baseInput())
	if a != b {
		t.Fatal("identical inputs produced different fingerprints")
	}
}

func TestFingerprintSensitiveToEveryField(t *testing.T) {
	base, _ := Fingerprint(baseInput())
	mutations := map[string]func(*FingerprintInput){
		"amount":      func(in *FingerprintInput) { in.Amount = 690100 },
		"timestamp":   func(in *FingerprintInput) { in.Timestamp = in.Timestamp.Add(time.Second) },
		"reference":   func(in *FingerprintInput) { in.MerchantRef = "ABC124" },
		"session":     func(in *FingerprintInput) { in.MerchantSession = "sess-2" },
		"terminal":    func(in *FingerprintInput) { in.TerminalID = "123457" },
		"currency":    func(in *FingerprintInput) { in.CurrencyCode = "840" },
		"secret":      func(in *FingerprintInput) { in.PosAuthCode = "SECRET2" },
		"transaction": func(in *FingerprintInput) { in.TransactionType = "2"; in.EntityCode = "1"; in.ReferenceNumber = "1" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := baseInput()
			mutate(&in)
			got, err := Fingerprint(in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == base {
				t.Errorf("changing %s did not change the fingerprint", name)
			}
		})
	}
}

func TestFingerprintPurchaseIgnoresEntityFields(t *testing.T) {
	base, _ := Fingerprint(baseInput())
	in := baseInput()
	in.EntityCode = "999"
	in.ReferenceNumber = "123"
	got, err := Fingerprint(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != base {
		t.Error("entity and reference must be omitted for purchases")
	}
}

func TestFingerprintErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FingerprintInput)
		field  string
	}{
		{"empty secret", func(in *FingerprintInput) { in.PosAuthCode = " " }, "pos_auth_code"},
		{"zero amount", func(in *FingerprintInput) { in.Amount = 0 }, "amount"},
		{"negative amount", func(in *FingerprintInput) { in.Amount = -100 }, "amount"},
		{"no timestamp", func(in *FingerprintInput) { in.Timestamp = time.Time{} }, "timestamp"},
		{"no session", func(in *FingerprintInput) { in.MerchantSession = "" }, "merchant_session"},
		{"no terminal", func(in *FingerprintInput) { in.TerminalID = "" }, "terminal_id"},
		{"unknown type", func(in *FingerprintInput) { in.TransactionType = "7" }, "transaction_type"},
		{"non numeric entity", func(in *FingerprintInput) {
			in.TransactionType = "2"
			in.EntityCode = "12A"
			in.ReferenceNumber = "1"
		}, "entity_code"},
		{"missing reference", func(in *FingerprintInput) {
			in.TransactionType = "2"
			in.EntityCode = "123"
		}, "reference_number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			_, err := Fingerprint(in)
			if !errors.Is(err, ErrProtocol) {
				t.Fatalf("error = %v, want ErrProtocol", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name field %s", err, tt.field)
			}
			if strings.Contains(err.Error(), "SECRET") {
				t.Errorf("error leaks the secret: %q", err)
			}
		})
	}
}

func TestVerifyFingerprint(t *testing.T) {
	sig, _ := Fingerprint(baseInput())
	if ok, err := VerifyFingerprint(baseInput(), " "+sig+" "); err != nil || !ok {
		t.Errorf("valid signature rejected: ok=%v err=%v", ok, err)
	}
	if ok, _ := VerifyFingerprint(baseInput(), "A"+sig[1:]); ok {
		t.Error("tampered signature accepted")
	}
	if ok, _ := VerifyFingerprint(baseInput(), ""); ok {
		t.Error("empty signature accepted")
	}
}

func TestAmountFormatting(t *testing.T) {
	tests := []struct {
		minor int64
		text  string
	}{
		{690000, "6900.00"},
		{5, "0.05"},
		{12350, "123.50"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.minor); got != tt.text {
			t.Errorf("FormatAmount(%d) = %s, want %s", tt.minor, got, tt.text)
		}
		if got, err := ParseAmount(tt.text); err != nil || got != tt.minor {
			t.Errorf("ParseAmount(%s) = %d, %v", tt.text, got, err)
		}
	}

	accepted := map[string]int64{"6900": 690000, "69,5": 6950, " 0.5 ": 50}
	for in, want := range accepted {
		if got, err := ParseAmount(in); err != nil || got != want {
			t.Errorf("ParseAmount(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "abc", "1.234", "-5"} {
		if _, err := ParseAmount(bad); err == nil {
			t.Errorf("ParseAmount(%q) accepted", bad)
		}
	}
}
