package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"spendsnap/internal/gateway"
	"spendsnap/internal/session"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no session", session.ErrNoSession, "Not signed in. Run `spendsnap login` first."},
		{"wrapped resolve failure", fmt.Errorf("load: %w", session.ErrResolveFailed), "Not signed in. Run `spendsnap login` first."},
		{"expired", &gateway.Error{Kind: gateway.KindAuthExpired, Status: 401}, "Session expired. Please sign in again."},
		{"backend message", &gateway.Error{Kind: gateway.KindValidation, Status: 400, Message: "Insufficient funds"}, "Insufficient funds"},
		{"plain", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describe(tt.err); got != tt.want {
				t.Errorf("describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCurrenciesSorted(t *testing.T) {
	totals := map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"CHF": decimal.NewFromInt(2),
		"EUR": decimal.NewFromInt(3),
		"GBP": decimal.NewFromInt(4),
	}
	for range 5 {
		if got := fmt.Sprint(currencies(totals)); got != "[CHF EUR GBP USD]" {
			t.Fatalf("currencies() = %s, want [CHF EUR GBP USD]", got)
		}
	}
	if got := currencies(nil); len(got) != 0 {
		t.Errorf("currencies(nil) = %v, want empty", got)
	}
}
