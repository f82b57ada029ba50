package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// MonthOverview is a compact summary of one period's expenses and income.
type MonthOverview struct {
	Period      Period
	TotalSpent  decimal.Decimal
	TotalIncome decimal.Decimal
	Balance     decimal.Decimal
	ByCategory  []CategoryAmount // expenses only, largest first
}

// Summarize aggregates fetched collections into totals for charts.
func Summarize(p Period, expenses, incomes []Record) MonthOverview {
	out := MonthOverview{Period: p}
	byCat := map[string]decimal.Decimal{}
	for _, e := range expenses {
		out.TotalSpent = out.TotalSpent.Add(e.Amount)
		byCat[e.Category] = byCat[e.Category].Add(e.Amount)
	}
	for _, i := range incomes {
		out.TotalIncome = out.TotalIncome.Add(i.Amount)
	}
	out.Balance = out.TotalIncome.Sub(out.TotalSpent)

	for name, amt := range byCat {
		out.ByCategory = append(out.ByCategory, CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(out.ByCategory, func(i, j int) bool {
		if c := out.ByCategory[i].Amount.Cmp(out.ByCategory[j].Amount); c != 0 {
			return c > 0
		}
		return out.ByCategory[i].Name < out.ByCategory[j].Name
	})
	return out
}
