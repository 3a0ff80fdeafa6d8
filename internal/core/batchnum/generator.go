// Package batchnum provides batch number generation for receipt lots.
// Numbers are content-derived (receipt date + product), not DB sequences;
// uniqueness is resolved by the caller retrying on collision.
package batchnum

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"lotledger/internal/core/id"
)

// Generator produces candidate batch numbers for auto-assigned lots.
// Candidates are not guaranteed unique; the batch registry probes the
// repository and retries a bounded number of times.
type Generator interface {
	// Next returns a candidate number for a lot of productID received on
	// receiptDate. Pattern: AUTO-YYYYMMDD-XXXXXXXX-NNNN.
	Next(receiptDate time.Time, productID id.ID) string
}

// AutoGenerator is the default Generator. Safe for concurrent use
// (rand/v2 top-level functions are goroutine-safe).
type AutoGenerator struct{}

// New creates the default batch number generator.
func New() *AutoGenerator {
	return &AutoGenerator{}
}

// Next implements Generator.
// The product segment is the first 8 hex digits of the product UUID —
// enough to keep numbers readable on labels while staying product-scoped.
func (g *AutoGenerator) Next(receiptDate time.Time, productID id.ID) string {
	short := strings.ReplaceAll(productID.String(), "-", "")[:8]
	return fmt.Sprintf("AUTO-%s-%s-%04d",
		receiptDate.UTC().Format("20060102"),
		strings.ToUpper(short),
		rand.IntN(10_000),
	)
}
