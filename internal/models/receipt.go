package models

import (
	"math"
	"time"
)

// ItemCategory classifies a single line item on a receipt.
type ItemCategory string

const (
	ItemCategoryGroceries     ItemCategory = "Groceries"
	ItemCategoryFood          ItemCategory = "Food"
	ItemCategoryTransport     ItemCategory = "Transportation"
	ItemCategoryTravel        ItemCategory = "Travel"
	ItemCategoryUtilities     ItemCategory = "Utilities"
	ItemCategorySubscriptions ItemCategory = "Subscriptions"
	ItemCategoryHealthcare    ItemCategory = "Healthcare"
	ItemCategoryShopping      ItemCategory = "Shopping"
	ItemCategoryEntertainment ItemCategory = "Entertainment"
	ItemCategoryEducation     ItemCategory = "Education"
	ItemCategoryMaintenance   ItemCategory = "Maintenance"
	ItemCategoryFinancial     ItemCategory = "Financial"
	ItemCategoryOthers        ItemCategory = "Others"
)

// ExpenseCategories is the fixed set of categories used for line items,
// receipt classification and the dashboard breakdown.
var ExpenseCategories = []ItemCategory{
	ItemCategoryGroceries, ItemCategoryFood, ItemCategoryTransport,
	ItemCategoryTravel, ItemCategoryUtilities, ItemCategorySubscriptions,
	ItemCategoryHealthcare, ItemCategoryShopping, ItemCategoryEntertainment,
	ItemCategoryEducation, ItemCategoryMaintenance, ItemCategoryFinancial,
	ItemCategoryOthers,
}

// LineItem is a single purchased item on a receipt.
type LineItem struct {
	Name       string       `json:"item_name" db:"item_name"`
	Quantity   float64      `json:"quantity" db:"quantity"`
	UnitPrice  float64      `json:"unit_price" db:"unit_price"`
	TotalPrice float64      `json:"total_price" db:"total_price"`
	Category   ItemCategory `json:"category" db:"category"`
}

// TaxBreakdownEntry is one named tax line (e.g. CGST 9%).
type TaxBreakdownEntry struct {
	Name   string  `json:"tax_name"`
	Rate   string  `json:"tax_rate"`
	Amount float64 `json:"tax_amount"`
}

// Receipt is a fully extracted receipt document.
type Receipt struct {
	ID            string              `json:"receipt_id"`
	StoreName     string              `json:"store_name"`
	StoreAddress  string              `json:"store_address,omitempty"`
	StorePhone    string              `json:"store_phone,omitempty"`
	Date          string              `json:"date"`
	Time          string              `json:"time,omitempty"`
	BillNo        string              `json:"bill_no,omitempty"`
	Category      ItemCategory        `json:"receipt_category"`
	Summary       string              `json:"summary,omitempty"`
	PaymentMethod string              `json:"payment_method,omitempty"`
	Currency      string              `json:"currency"`
	Subtotal      float64             `json:"subtotal_amount"`
	Tax           float64             `json:"tax_amount,omitempty"`
	Tip           float64             `json:"tip_amount,omitempty"`
	Total         float64             `json:"total_amount"`
	Items         []LineItem          `json:"items"`
	TaxBreakdown  []TaxBreakdownEntry `json:"tax_breakdown,omitempty"`
	FooterNotes   string              `json:"footer_notes,omitempty"`
	SourceFile    string              `json:"source_file,omitempty"`
	ProcessedAt   time.Time           `json:"processed_at"`
}

// amountTolerance absorbs rounding noise in extracted amounts.
const amountTolerance = 0.05

// CheckAmounts verifies the arithmetic invariants of an extracted
// receipt: total matches subtotal+tax+tip and each line item's total
// matches quantity*unit_price, all within rounding tolerance. It
// returns a list of human-readable discrepancies; the caller decides
// whether to log or reject.
func (r *Receipt) CheckAmounts() []string {
	var issues []string

	expected := r.Subtotal + r.Tax + r.Tip
	if r.Total > 0 && math.Abs(expected-r.Total) > amountTolerance {
		issues = append(issues, amountMismatch("total_amount", r.Total, expected))
	}

	for _, item := range r.Items {
		if item.Quantity < 0 {
			issues = append(issues, "negative quantity for item "+item.Name)
			continue
		}
		want := item.Quantity * item.UnitPrice
		if item.TotalPrice > 0 && want > 0 && math.Abs(want-item.TotalPrice) > amountTolerance {
			issues = append(issues, amountMismatch("item "+item.Name, item.TotalPrice, want))
		}
	}

	return issues
}

func amountMismatch(field string, got, want float64) string {
	return field + " is off: got " + formatAmount(got) + ", computed " + formatAmount(want)
}
