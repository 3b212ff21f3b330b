package extraction

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReceiptJSON(t *testing.T) {
	data, err := parseReceiptJSON(`{
		"vendor_name": "Office Depot",
		"purchase_date": "2023-01-20",
		"county": "Wake",
		"subtotal_amount": "100.00",
		"tax_amount": "7.25",
		"total_amount": "107.25",
		"expense_category": "supplies",
		"tax_breakdowns": [
			{"tax_type": "state", "amount": "4.75"},
			{"tax_type": "county", "amount": "2.50"}
		]
	}`)
	require.NoError(t, err)

	assert.Equal(t, "Office Depot", data.VendorName)
	assert.Equal(t, "2023-01-20", data.PurchaseDate)
	assert.True(t, data.TotalAmount.Equal(decimal.RequireFromString("107.25")))
	require.Len(t, data.TaxBreakdowns, 2)
	assert.Equal(t, "state", data.TaxBreakdowns[0].TaxType)
}

func TestParseReceiptJSONStripsCodeFence(t *testing.T) {
	data, err := parseReceiptJSON("```json\n{\"vendor_name\": \"Target\", \"total_amount\": \"12.00\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Target", data.VendorName)
}

func TestParseReceiptJSONIgnoresSurroundingProse(t *testing.T) {
	data, err := parseReceiptJSON(`Here is the extracted data: {"vendor_name": "Lowes", "total_amount": "50.00"} Let me know if you need anything else.`)
	require.NoError(t, err)
	assert.Equal(t, "Lowes", data.VendorName)
}

func TestParseReceiptJSONNoObject(t *testing.T) {
	_, err := parseReceiptJSON("I could not read this receipt.")
	assert.Error(t, err)
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2023-01-20", normalizeDate("2023-01-20"))
	assert.Equal(t, "2023-01-20", normalizeDate("2023/01/20"))
	assert.Equal(t, "2023-01-20", normalizeDate("01/20/2023"))
	assert.Equal(t, "", normalizeDate("January twentieth"))
}
