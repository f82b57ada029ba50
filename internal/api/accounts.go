package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"spendsnap/internal/core"
	"spendsnap/internal/gateway"
)

const accountsPath = "/savingAccount"

// AccountPatch holds the editable fields of a saving account. Nil fields
// are left unchanged. Currency changes are only accepted by the backend
// while the balance is zero.
type AccountPatch struct {
	Name               *string                  `json:"name,omitempty"`
	Currency           *string                  `json:"currency,omitempty"`
	Status             *core.AccountStatus      `json:"status,omitempty"`
	InterestAPR        *decimal.Decimal         `json:"interestApr,omitempty"`
	Compounding        *core.Compounding        `json:"compounding,omitempty"`
	DayCountConversion *core.DayCountConversion `json:"day_count_conversion,omitempty"`
	Notes              *string                  `json:"notes,omitempty"`
}

type (
	moneyRequest struct {
		Amount json.Number `json:"amount"`
		Memo   string      `json:"memo,omitempty"`
	}

	transferRequest struct {
		FromID int64       `json:"fromId"`
		ToID   int64       `json:"toId"`
		Amount json.Number `json:"amount"`
		Memo   string      `json:"memo,omitempty"`
	}

	accountPayload struct {
		Name               string                  `json:"name"`
		Currency           string                  `json:"currency"`
		Status             core.AccountStatus      `json:"status,omitempty"`
		OpeningBalance     json.Number             `json:"opening_balance"`
		InterestAPR        json.Number             `json:"interestApr"`
		Compounding        core.Compounding        `json:"compounding,omitempty"`
		DayCountConversion core.DayCountConversion `json:"day_count_conversion,omitempty"`
		Notes              string                  `json:"notes,omitempty"`
	}
)

// Transfer moves Amount between two accounts of the same user.
type Transfer struct {
	FromID int64
	ToID   int64
	Amount decimal.Decimal
	Memo   string
}

// TransferResult carries both balances after a transfer.
type TransferResult struct {
	FromID      int64           `json:"fromId"`
	ToID        int64           `json:"toId"`
	FromBalance decimal.Decimal `json:"fromBalance"`
	ToBalance   decimal.Decimal `json:"toBalance"`
}

func accountPath(id int64, action string) string {
	if action == "" {
		return fmt.Sprintf("%s/%d", accountsPath, id)
	}
	return fmt.Sprintf("%s/%d/%s", accountsPath, id, action)
}

// ListAccounts lists the user's accounts; an empty status lists all.
func (c *Client) ListAccounts(ctx context.Context, status core.AccountStatus) ([]core.SavingAccount, error) {
	req := gateway.Request{Path: accountsPath}
	if status != "" {
		req.Query = url.Values{"status": {string(status)}}
	}
	var out []core.SavingAccount
	if err := c.gw.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Account(ctx context.Context, id int64) (core.SavingAccount, error) {
	var out core.SavingAccount
	err := c.gw.Do(ctx, gateway.Request{Path: accountPath(id, "")}, &out)
	return out, err
}

// Snapshot returns the account as of now, including posted interest.
func (c *Client) Snapshot(ctx context.Context, id int64) (core.SavingAccount, error) {
	var out core.SavingAccount
	err := c.gw.Do(ctx, gateway.Request{Path: accountPath(id, "snapshot")}, &out)
	return out, err
}

func (c *Client) CreateAccount(ctx context.Context, a core.SavingAccount) (core.SavingAccount, error) {
	if err := a.Validate(); err != nil {
		return core.SavingAccount{}, err
	}
	var out core.SavingAccount
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   accountsPath,
		Body: accountPayload{
			Name:               a.Name,
			Currency:           a.Currency,
			Status:             a.Status,
			OpeningBalance:     number(a.OpeningBalance),
			InterestAPR:        number(a.InterestAPR),
			Compounding:        a.Compounding,
			DayCountConversion: a.DayCountConversion,
			Notes:              a.Notes,
		},
	}, &out)
	return out, err
}

func (c *Client) PatchAccount(ctx context.Context, id int64, patch AccountPatch) (core.SavingAccount, error) {
	var out core.SavingAccount
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPatch,
		Path:   accountPath(id, ""),
		Body:   patch,
	}, &out)
	return out, err
}

func (c *Client) ArchiveAccount(ctx context.Context, id int64) (core.SavingAccount, error) {
	var out core.SavingAccount
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPost, Path: accountPath(id, "archive")}, &out)
	return out, err
}

// DeleteAccount removes an account; the backend refuses a non-zero balance.
func (c *Client) DeleteAccount(ctx context.Context, id int64) error {
	return c.gw.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: accountPath(id, "")}, nil)
}

func (c *Client) Deposit(ctx context.Context, id int64, amount decimal.Decimal, memo string) (core.SavingAccount, error) {
	return c.move(ctx, id, "deposit", amount, memo)
}

func (c *Client) Withdraw(ctx context.Context, id int64, amount decimal.Decimal, memo string) (core.SavingAccount, error) {
	return c.move(ctx, id, "withdraw", amount, memo)
}

func (c *Client) move(ctx context.Context, id int64, action string, amount decimal.Decimal, memo string) (core.SavingAccount, error) {
	if !amount.IsPositive() {
		return core.SavingAccount{}, core.ErrInvalidAmount
	}
	var out core.SavingAccount
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   accountPath(id, action),
		Body:   moneyRequest{Amount: number(amount), Memo: memo},
	}, &out)
	return out, err
}

func (c *Client) Transfer(ctx context.Context, t Transfer) (TransferResult, error) {
	if !t.Amount.IsPositive() {
		return TransferResult{}, core.ErrInvalidAmount
	}
	var out TransferResult
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   accountsPath + "/transfer",
		Body: transferRequest{
			FromID: t.FromID,
			ToID:   t.ToID,
			Amount: number(t.Amount),
			Memo:   t.Memo,
		},
	}, &out)
	return out, err
}

func (c *Client) Balance(ctx context.Context, id int64) (decimal.Decimal, error) {
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	err := c.gw.Do(ctx, gateway.Request{Path: accountPath(id, "balance")}, &out)
	return out.Balance, err
}

// AccrueInterest posts interest up to asOf, or up to now when asOf is zero.
func (c *Client) AccrueInterest(ctx context.Context, id int64, asOf time.Time) (decimal.Decimal, error) {
	req := gateway.Request{Method: http.MethodPost, Path: accountPath(id, "accrue-interest")}
	if !asOf.IsZero() {
		req.Query = url.Values{"asOf": {asOf.Format(time.RFC3339)}}
	}
	var out struct {
		InterestPosted decimal.Decimal `json:"interestPosted"`
	}
	err := c.gw.Do(ctx, req, &out)
	return out.InterestPosted, err
}

// PreviewInterest computes the interest between from and to without
// posting it.
func (c *Client) PreviewInterest(ctx context.Context, id int64, from, to time.Time) (decimal.Decimal, error) {
	var out struct {
		Interest decimal.Decimal `json:"interest"`
	}
	err := c.gw.Do(ctx, gateway.Request{
		Path: accountPath(id, "preview-interest"),
		Query: url.Values{
			"from": {from.Format(time.RFC3339)},
			"to":   {to.Format(time.RFC3339)},
		},
	}, &out)
	return out.Interest, err
}
