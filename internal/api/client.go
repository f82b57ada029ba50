// Package api binds the SpendSnap backend endpoints to typed calls. Every
// call goes through the gateway.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"spendsnap/internal/gateway"
)

// Doer performs gateway requests.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}

type Client struct {
	gw Doer
}

var _ Doer = (*gateway.Gateway)(nil)

func New(gw Doer) *Client {
	return &Client{gw: gw}
}

// ID decodes an identifier sent either as a JSON number or a JSON string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*id = ID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("id must be a number or a string: %w", err)
	}
	*id = ID(s)
	return nil
}

// number renders an amount as a bare JSON number.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// numericID renders a string id as a JSON number when it is one.
func numericID(id string) any {
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}
