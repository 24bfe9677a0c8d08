package storage

import (
	"context"
	"sync"

	"github.com/xaenox/aiva/internal/models"
)

// MemoryStorage keeps everything in process memory. It is meant for tests and
// local runs; data is lost on restart.
type MemoryStorage struct {
	mu           sync.RWMutex
	nextID       int64
	transactions map[int64]models.Transaction
	threads      map[string][]models.Message
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		transactions: make(map[int64]models.Transaction),
		threads:      make(map[string][]models.Message),
	}
}

// Transaction methods
func (s *MemoryStorage) Insert(ctx context.Context, tx models.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	tx.ID = s.nextID
	s.transactions[tx.ID] = tx
	return tx.ID, nil
}

func (s *MemoryStorage) GetByID(ctx context.Context, id int64) (models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tx, exists := s.transactions[id]; exists {
		return tx, nil
	}
	return models.Transaction{}, models.NotFoundf("no transaction with id %d", id)
}

func (s *MemoryStorage) GetByCategory(ctx context.Context, category string, rng models.DateRange) ([]models.Transaction, error) {
	return s.filter(func(tx models.Transaction) bool {
		return sameCategory(tx.Category, category) && rng.Contains(tx.Date)
	}), nil
}

func (s *MemoryStorage) GetByDateRange(ctx context.Context, start, end string) ([]models.Transaction, error) {
	rng := models.DateRange{Start: start, End: end}
	return s.filter(func(tx models.Transaction) bool {
		return rng.Contains(tx.Date)
	}), nil
}

func (s *MemoryStorage) GroupByCategory(ctx context.Context, filter models.SummaryFilter) ([]models.CategorySummary, error) {
	all := s.filter(func(models.Transaction) bool { return true })
	return summarize(all, filter), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[id]; !exists {
		return models.NotFoundf("no transaction with id %d", id)
	}
	delete(s.transactions, id)
	return nil
}

func (s *MemoryStorage) Update(ctx context.Context, id int64, patch models.TransactionPatch) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactions[id]
	if !exists {
		return models.Transaction{}, models.NotFoundf("no transaction with id %d", id)
	}
	tx = patch.Apply(tx)
	s.transactions[id] = tx
	return tx, nil
}

func (s *MemoryStorage) GetByDescription(ctx context.Context, substring string) ([]models.Transaction, error) {
	return s.filter(func(tx models.Transaction) bool {
		return containsFold(tx.Description, substring)
	}), nil
}

func (s *MemoryStorage) GetAll(ctx context.Context) ([]models.Transaction, error) {
	return s.filter(func(models.Transaction) bool { return true }), nil
}

func (s *MemoryStorage) filter(keep func(models.Transaction) bool) []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Transaction, 0)
	for _, tx := range s.transactions {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	sortByDate(out)
	return out
}

// Thread methods
func (s *MemoryStorage) LoadThread(ctx context.Context, threadID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.threads[threadID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStorage) AppendThread(ctx context.Context, threadID string, msgs ...models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[threadID] = append(s.threads[threadID], msgs...)
	return nil
}

func (s *MemoryStorage) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, threadID)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
