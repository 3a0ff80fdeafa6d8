package batchnum

import (
	"fmt"
	"sync"
	"time"

	"lotledger/internal/core/id"
)

// MockGenerator returns a fixed sequence of numbers for testing.
// If the sequence is exhausted it falls back to a counter, so collision
// retry paths can be exercised deterministically.
type MockGenerator struct {
	mu       sync.Mutex
	Sequence []string
	pos      int
	counter  int
}

// Next implements Generator.
func (m *MockGenerator) Next(receiptDate time.Time, productID id.ID) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pos < len(m.Sequence) {
		n := m.Sequence[m.pos]
		m.pos++
		return n
	}

	m.counter++
	return fmt.Sprintf("AUTO-%s-TEST-%04d", receiptDate.UTC().Format("20060102"), m.counter)
}
