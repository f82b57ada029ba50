package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// MaxDescriptionLength bounds the optional free-text description of a record.
const MaxDescriptionLength = 200

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

type (
	// Kind distinguishes the two record collections fetched per period.
	Kind string

	Date struct {
		time.Time
	}

	// Record is an expense or income entry as returned by the backend.
	// Identity is the server-assigned ID.
	Record struct {
		ID          int64           `json:"id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description,omitempty"`
		Date        Date            `json:"date"`
		Category    string          `json:"category"`
	}

	// Period selects a calendar month.
	Period struct {
		Year  int
		Month int // 1-12
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidYear      = errors.New("invalid year")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrDescriptionLimit = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
)

// ExpenseCategories is the closed set of categories accepted for expenses.
var ExpenseCategories = []string{
	"Food", "Groceries", "Dining", "Coffee",
	"Shopping", "Clothing", "Beauty",
	"Entertainment", "Gaming", "Movies", "Books", "Software", "Electronics", "Subscriptions",
	"Utilities", "Internet", "Phone", "Bills", "Rent", "Mortgage",
	"Transport", "Fuel", "Taxi", "Travel", "Vacation",
	"Health", "Medical", "Insurance", "Education", "Childcare", "Pets",
	"Gifts", "Charity", "Home", "Maintenance", "Tools", "Office",
	"Taxes", "Savings", "Investment", "Debt", "Personal", "Other",
}

// IncomeCategories is the closed set of categories accepted for income.
var IncomeCategories = []string{"Salary", "Bonus", "Freelance", "Investment", "Gift", "Other"}

// Categories returns the closed category set for the kind.
func (k Kind) Categories() []string {
	if k == KindIncome {
		return IncomeCategories
	}
	return ExpenseCategories
}

// ValidCategory reports whether name belongs to the kind's category set.
func (k Kind) ValidCategory(name string) bool {
	for _, c := range k.Categories() {
		if c == name {
			return true
		}
	}
	return false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Period returns the month the date falls in.
func (d Date) Period() Period {
	return Period{Year: d.Year(), Month: int(d.Month())}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	// Backends occasionally send full timestamps; keep the calendar day.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// Validate checks a record before it is submitted for creation.
func (r Record) Validate(kind Kind) error {
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if utf8.RuneCountInString(r.Description) > MaxDescriptionLength {
		return ErrDescriptionLimit
	}
	if !kind.ValidCategory(r.Category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, r.Category)
	}
	return nil
}

// Label is a short human description used in confirmations.
func (r Record) Label() string {
	name := strings.TrimSpace(r.Description)
	if name == "" {
		name = r.Category
	}
	if name == "" {
		name = "Transaction"
	}
	return fmt.Sprintf("%s · %s · %s", name, r.Amount.StringFixed(2), r.Date)
}

// CurrentPeriod returns the period containing t.
func CurrentPeriod(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	if p.Year < 1900 || p.Year > 9999 {
		return ErrInvalidYear
	}
	return nil
}

// Previous returns the month before p.
func (p Period) Previous() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Next returns the month after p.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// LastN returns the n periods ending at p, oldest first.
func (p Period) LastN(n int) []Period {
	if n <= 0 {
		return nil
	}
	out := make([]Period, n)
	cur := p
	for i := n - 1; i >= 0; i-- {
		out[i] = cur
		cur = cur.Previous()
	}
	return out
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
