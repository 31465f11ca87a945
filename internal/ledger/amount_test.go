package ledger

import (
	"math/big"
	"testing"

	xerrors "OpenMCP-Wallet/internal/errors"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"100.5", 18, "100500000000000000000"},
		{"0.000000000000000001", 18, "1"},
		{"0", 18, "0"},
		{".5", 2, "50"},
		{"42", 0, "42"},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.amount, tc.decimals)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.amount, err)
		}
		if got.String() != tc.want {
			t.Fatalf("parse %q: expected %s, got %s", tc.amount, tc.want, got)
		}
	}
}

func TestParseAmountRejectsInvalid(t *testing.T) {
	invalid := []struct {
		amount   string
		decimals int
	}{
		{"", 18},
		{"-1", 18},
		{"+1", 18},
		{"+.5", 18},
		{"1.2.3", 18},
		{"abc", 18},
		{"0.001", 2},
	}
	for _, tc := range invalid {
		if _, err := ParseAmount(tc.amount, tc.decimals); xerrors.CodeOf(err) != xerrors.CodeInvalidParams {
			t.Fatalf("expected INVALID_PARAMS for %q, got %v", tc.amount, err)
		}
	}
}

func TestFormatAmountRoundTrip(t *testing.T) {
	for _, amount := range []string{"1", "100.5", "0.25", "0.000000000000000001"} {
		parsed, err := ParseAmount(amount, 18)
		if err != nil {
			t.Fatalf("parse %q: %v", amount, err)
		}
		if got := FormatAmount(parsed, 18); got != amount {
			t.Fatalf("round trip %q: got %q", amount, got)
		}
	}
}

func TestFormatAmountTrimsZeros(t *testing.T) {
	if got := FormatAmount(big.NewInt(100500), 3); got != "100.5" {
		t.Fatalf("expected 100.5, got %s", got)
	}
	if got := FormatAmount(big.NewInt(0), 18); got != "0" {
		t.Fatalf("expected 0, got %s", got)
	}
}
