package inmemory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/cache"
)

// PendingIndex потокобезопасный in-memory индекс ожидающих платежей
type PendingIndex struct {
	mu    sync.RWMutex
	items map[uuid.UUID]cache.PendingPayment
}

// NewPendingIndex создаёт пустой индекс ожидающих платежей
func NewPendingIndex() cache.IPendingIndex {
	return &PendingIndex{
		items: make(map[uuid.UUID]cache.PendingPayment),
	}
}

func (c *PendingIndex) Put(p cache.PendingPayment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[p.PaymentID] = p
}

func (c *PendingIndex) Remove(paymentID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, paymentID)
}

// IncrementChecks увеличивает счётчик опросов и возвращает новое значение.
// Для неизвестного платежа возвращает 0
func (c *PendingIndex) IncrementChecks(paymentID uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[paymentID]
	if !ok {
		return 0
	}
	p.Checks++
	c.items[paymentID] = p
	return p.Checks
}

func (c *PendingIndex) List() []cache.PendingPayment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]cache.PendingPayment, 0, len(c.items))
	for _, p := range c.items {
		result = append(result, p)
	}
	return result
}

func (c *PendingIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
