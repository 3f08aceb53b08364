package core

import (
	"sort"
)

// UncategorizedLabel groups transactions recorded without a category.
const UncategorizedLabel = "Uncategorized"

// Summary is the aggregate of all stored transactions.
type Summary struct {
	TotalIncome   Money `json:"total_income"`
	TotalExpenses Money `json:"total_expenses"`
	Balance       Money `json:"balance"`
}

// CategoryTotal represents an amount aggregated by category name.
type CategoryTotal struct {
	Category string `json:"category"`
	Amount   Money  `json:"amount"`
}

// Breakdown holds per-category totals split by transaction type.
type Breakdown struct {
	Income  []CategoryTotal `json:"income"`
	Expense []CategoryTotal `json:"expense"`
}

// TrendPoint is the net movement of a single day plus the running balance.
type TrendPoint struct {
	Date    Date  `json:"date"`
	Net     Money `json:"net"`
	Balance Money `json:"balance"`
}

// Summarize sums amounts per type. Transactions whose type is neither income
// nor expense contribute to neither total.
func Summarize(ts []Transaction) Summary {
	var s Summary
	for _, t := range ts {
		switch t.Type {
		case Income:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case Expense:
			s.TotalExpenses = s.TotalExpenses.Add(t.Amount)
		}
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpenses)
	return s
}

// BreakdownByCategory totals each category per type, largest first.
func BreakdownByCategory(ts []Transaction) Breakdown {
	income := map[string]int64{}
	expense := map[string]int64{}
	for _, t := range ts {
		name := t.Category
		if name == "" {
			name = UncategorizedLabel
		}
		switch t.Type {
		case Income:
			income[name] += t.Amount.Cents
		case Expense:
			expense[name] += t.Amount.Cents
		}
	}
	return Breakdown{
		Income:  sortedTotals(income),
		Expense: sortedTotals(expense),
	}
}

func sortedTotals(m map[string]int64) []CategoryTotal {
	out := make([]CategoryTotal, 0, len(m))
	for name, cents := range m {
		out = append(out, CategoryTotal{Category: name, Amount: Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Trend returns one point per distinct date, oldest first. Undated
// transactions are skipped.
func Trend(ts []Transaction) []TrendPoint {
	byDay := map[string]int64{}
	days := map[string]Date{}
	for _, t := range ts {
		if t.Date.IsZero() {
			continue
		}
		key := t.Date.String()
		days[key] = t.Date
		switch t.Type {
		case Income:
			byDay[key] += t.Amount.Cents
		case Expense:
			byDay[key] -= t.Amount.Cents
		}
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	points := make([]TrendPoint, 0, len(keys))
	var running int64
	for _, k := range keys {
		running += byDay[k]
		points = append(points, TrendPoint{
			Date:    days[k],
			Net:     Money{Cents: byDay[k]},
			Balance: Money{Cents: running},
		})
	}
	return points
}
