// Package assistant wraps the language-model features of the POS: reading
// receipts into carts, suggesting expense descriptions and summarising a
// purchase for the receipt.
package assistant

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"kasiran/backend/internal/domain"
)

var (
	ErrDisabled       = errors.New("assistant is not configured")
	ErrInvalidPDF     = errors.New("pdf must be a base64 data URI with MIME type application/pdf")
	ErrEmptyResponse  = errors.New("assistant returned an empty response")
	ErrNoItemsToBrief = errors.New("purchase has no items")
)

const pdfDataURIPrefix = "data:application/pdf;base64,"

// maxSuggestions is how many expense descriptions a suggestion call returns.
const maxSuggestions = 5

type Assistant interface {
	Ready() bool
	ExtractSale(ctx context.Context, pdfDataURI string) (*domain.ExtractedSale, error)
	SuggestExpenses(ctx context.Context, existing []string, query string) ([]string, error)
	SummarizePurchase(ctx context.Context, items []domain.SaleItem) (string, error)
}

// Disabled is used when no API key is configured. Every call fails with ErrDisabled.
type Disabled struct{}

func (Disabled) Ready() bool { return false }

func (Disabled) ExtractSale(context.Context, string) (*domain.ExtractedSale, error) {
	return nil, ErrDisabled
}

func (Disabled) SuggestExpenses(context.Context, []string, string) ([]string, error) {
	return nil, ErrDisabled
}

func (Disabled) SummarizePurchase(context.Context, []domain.SaleItem) (string, error) {
	return "", ErrDisabled
}

// ValidatePDFDataURI checks the data URI header and that the payload decodes.
func ValidatePDFDataURI(uri string) error {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(strings.ToLower(uri), pdfDataURIPrefix) {
		return ErrInvalidPDF
	}
	payload := uri[len(pdfDataURIPrefix):]
	if payload == "" {
		return ErrInvalidPDF
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	return nil
}

// FilterSuggestions drops blanks, entries already in existing and repeats,
// comparing case-insensitively, and keeps at most limit results.
func FilterSuggestions(existing []string, suggestions []string, limit int) []string {
	seen := make(map[string]struct{}, len(existing)+len(suggestions))
	for _, e := range existing {
		seen[normalizeText(e)] = struct{}{}
	}
	out := make([]string, 0, limit)
	for _, s := range suggestions {
		s = strings.TrimSpace(s)
		key := normalizeText(s)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
