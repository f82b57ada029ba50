package core

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive   AccountStatus = "ACTIVE"
	StatusInactive AccountStatus = "INACTIVE"

	CompoundingDaily   Compounding = "DAILY"
	CompoundingMonthly Compounding = "MONTHLY"

	DayCountACT365F DayCountConversion = "ACT_365F"
)

type (
	AccountStatus      string
	Compounding        string
	DayCountConversion string

	// SavingAccount mirrors the backend's saving account representation.
	// Balance arithmetic and interest accrual happen server-side.
	SavingAccount struct {
		ID                   int64              `json:"id"`
		UserID               int64              `json:"userId,omitempty"`
		Name                 string             `json:"name"`
		Currency             string             `json:"currency"`
		Status               AccountStatus      `json:"status"`
		OpeningBalance       decimal.Decimal    `json:"opening_balance"`
		InterestAPR          decimal.Decimal    `json:"interestApr"`
		Compounding          Compounding        `json:"compounding"`
		DayCountConversion   DayCountConversion `json:"day_count_conversion"`
		LastInterestPostedAt *time.Time         `json:"last_interest_posted_at,omitempty"`
		Notes                string             `json:"notes,omitempty"`
		CreatedAt            *time.Time         `json:"created_at,omitempty"`
		UpdatedAt            *time.Time         `json:"updated_at,omitempty"`
		Version              int64              `json:"version,omitempty"`
	}

	// AccountFilter is the status selector of the accounts list. The zero
	// value selects every status.
	AccountFilter struct {
		Status AccountStatus
		Search string
	}
)

var (
	ErrInvalidCurrency = errors.New("currency must be 3-letter ISO code (e.g. USD)")
	ErrInvalidAPR      = errors.New("interest APR must be between 0 and 1")
	ErrEmptyName       = errors.New("empty account name")
	ErrInvalidStatus   = errors.New("invalid account status")

	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// ParseAccountStatus accepts ACTIVE, INACTIVE or ALL (empty status).
func ParseAccountStatus(s string) (AccountStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ALL":
		return "", nil
	case string(StatusActive):
		return StatusActive, nil
	case string(StatusInactive):
		return StatusInactive, nil
	default:
		return "", ErrInvalidStatus
	}
}

// NewSavingAccount returns an account draft with the backend defaults.
func NewSavingAccount(name, currency string) SavingAccount {
	return SavingAccount{
		Name:               strings.TrimSpace(name),
		Currency:           strings.ToUpper(strings.TrimSpace(currency)),
		Status:             StatusActive,
		Compounding:        CompoundingMonthly,
		DayCountConversion: DayCountACT365F,
	}
}

func (a SavingAccount) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > 120 {
		return errors.New("account name too long (max 120 characters)")
	}
	if !currencyPattern.MatchString(a.Currency) {
		return ErrInvalidCurrency
	}
	if a.InterestAPR.IsNegative() || a.InterestAPR.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidAPR
	}
	if len(a.Notes) > 2000 {
		return errors.New("notes too long (max 2000 characters)")
	}
	return nil
}

// Match reports whether the account passes the local filter. Status is
// normally applied server-side; it is checked again so a stale list never
// shows accounts of the wrong status.
func (f AccountFilter) Match(a SavingAccount) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	return q == "" || strings.Contains(strings.ToLower(a.Name), q)
}

// TotalsByCurrency sums opening balances per currency code.
func TotalsByCurrency(accounts []SavingAccount) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, a := range accounts {
		cur := strings.ToUpper(a.Currency)
		if cur == "" {
			cur = "???"
		}
		out[cur] = out[cur].Add(a.OpeningBalance)
	}
	return out
}
