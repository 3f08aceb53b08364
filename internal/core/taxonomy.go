package core

// Taxonomy lists the suggested categories for each transaction type.
type Taxonomy struct {
	Income  []string `json:"income"`
	Expense []string `json:"expense"`
}

// DefaultTaxonomy returns the built-in category lists.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Income: []string{"Salary", "Freelance", "Investment", "Business", "Other Income"},
		Expense: []string{
			"Groceries", "Rent", "Utilities", "Transportation", "Entertainment",
			"Healthcare", "Shopping", "Dining", "Other Expense",
		},
	}
}

// For returns the categories of the given type.
func (t Taxonomy) For(tt TransactionType) []string {
	switch tt {
	case Income:
		return t.Income
	case Expense:
		return t.Expense
	default:
		return nil
	}
}
