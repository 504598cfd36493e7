package assistant

import (
	"fmt"
	"strings"

	"kasiran/backend/internal/domain"
)

const extractSalePrompt = `You are a data entry assistant for a point-of-sale application.
Analyse the attached PDF, which is a sales receipt or invoice, and extract the transaction.

Rules:
1. List every line item with its name, SKU when printed, quantity and unit price.
2. Prices are whole currency units without separators or symbols.
3. When a quantity is missing use 1.
4. Give the transaction date in ISO 8601 format, or an empty string when it is not printed.
5. If the document is not a receipt return an empty item list.`

func suggestExpensesPrompt(existing []string, query string) string {
	var b strings.Builder
	b.WriteString(`You are an accountant for a small business in Indonesia.
Suggest 5 new, relevant and common expense descriptions that a similar business would record.
Do not repeat any expense from the existing list. Write the suggestions in Indonesian and keep them short.

Existing expenses:
`)
	if len(existing) == 0 {
		b.WriteString("- (none yet)\n")
	}
	for _, e := range existing {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	if q := strings.TrimSpace(query); q != "" {
		fmt.Fprintf(&b, "\nThe user has started typing %q. Keep the suggestions relevant to it.\n", q)
	}
	return b.String()
}

func summarizePurchasePrompt(items []domain.SaleItem) string {
	var b strings.Builder
	b.WriteString("Summarise the following purchase for a customer receipt. Mention the name and quantity of each item. Be concise and clear.\n\nItems:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- %d x %s\n", item.Quantity, item.Name)
	}
	return b.String()
}
