package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"spendsnap/internal/core"
	"spendsnap/internal/gateway"
)

type recordPayload struct {
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	Date        core.Date   `json:"date"`
	Category    string      `json:"category"`
	UserID      any         `json:"userId"`
}

func monthlyPath(kind core.Kind, userID string, p core.Period) string {
	switch kind {
	case core.KindIncome:
		return fmt.Sprintf("/income/getMonthlyIncomeByUser/%s/%d/%d", userID, p.Month, p.Year)
	default:
		return fmt.Sprintf("/expenses/getMonthlyExpensesByUser/%s/%d/%d", userID, p.Month, p.Year)
	}
}

// MonthlyRecords fetches the expenses or income of userID in p, in the
// backend's order.
func (c *Client) MonthlyRecords(ctx context.Context, kind core.Kind, userID string, p core.Period) ([]core.Record, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var out []core.Record
	if err := c.gw.Do(ctx, gateway.Request{Path: monthlyPath(kind, userID, p)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MonthlyExpenses(ctx context.Context, userID string, p core.Period) ([]core.Record, error) {
	return c.MonthlyRecords(ctx, core.KindExpense, userID, p)
}

func (c *Client) MonthlyIncome(ctx context.Context, userID string, p core.Period) ([]core.Record, error) {
	return c.MonthlyRecords(ctx, core.KindIncome, userID, p)
}

// AddRecord validates r and creates it for userID.
func (c *Client) AddRecord(ctx context.Context, kind core.Kind, userID string, r core.Record) (core.Record, error) {
	if err := r.Validate(kind); err != nil {
		return core.Record{}, err
	}
	path := "/expenses/addExpenses"
	if kind == core.KindIncome {
		path = "/income/addIncome"
	}

	var out core.Record
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   path,
		Body: recordPayload{
			Amount:      number(r.Amount),
			Description: r.Description,
			Date:        r.Date,
			Category:    r.Category,
			UserID:      numericID(userID),
		},
	}, &out)
	return out, err
}

func (c *Client) DeleteRecord(ctx context.Context, kind core.Kind, id int64) error {
	path := fmt.Sprintf("/expenses/delete/%d", id)
	if kind == core.KindIncome {
		path = fmt.Sprintf("/income/%d", id)
	}
	return c.gw.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: path}, nil)
}
