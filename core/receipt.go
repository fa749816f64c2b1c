package core

import (
	"context"
	"fmt"
)

// Receipt number prefixes
const (
	ReceiptPayment        = "PAY"
	ReceiptDocumentaryFee = "DOC"
)

// ReceiptCounter hands out gap-free receipt sequences per (kind, year).
// Next must run in the caller's transaction so that a rolled back operation does not consume a number.
type ReceiptCounter interface {
	Next(ctx context.Context, kind string, year int, exec ...DBExecutor) (int64, error)
}

// FormatReceiptNumber returns eg. PAY-2025-000042.
func FormatReceiptNumber(kind string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", kind, year, seq)
}
