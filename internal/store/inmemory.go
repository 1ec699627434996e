package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

// InMemoryStore is a Store held in process memory, used in tests and when
// no database is configured.
type InMemoryStore struct {
	mu         sync.RWMutex
	users      map[int64]models.User
	nextUserID int64
	spending   []models.SpendingLog
	nextLogID  int64
	nudges     []models.NudgeRecord
	memories   []models.MemoryDocument
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: map[int64]models.User{}}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) CreateUser(ctx context.Context, u models.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID <= 0 {
		s.nextUserID++
		u.ID = s.nextUserID
	} else if u.ID > s.nextUserID {
		s.nextUserID = u.ID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Plan = plan.Sanitize(string(u.Plan))
	s.users[u.ID] = u
	return u.ID, nil
}

func (s *InMemoryStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

func (s *InMemoryStore) UserPlan(ctx context.Context, userID int64) (plan.Tier, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Plan, nil
}

func (s *InMemoryStore) SetUserPlan(ctx context.Context, userID int64, tier plan.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	u.Plan = plan.Sanitize(string(tier))
	s.users[userID] = u
	return nil
}

func (s *InMemoryStore) AddSpending(ctx context.Context, l models.SpendingLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	l.ID = s.nextLogID
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	l.Timestamp = l.Timestamp.UTC()
	s.spending = append(s.spending, l)
	return l.ID, nil
}

func (s *InMemoryStore) ListSpending(ctx context.Context, userID int64) ([]models.SpendingLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SpendingLog
	for _, l := range s.spending {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) CountRegrets(ctx context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.spending {
		if l.UserID == userID && l.IsRegret() {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) SumSpending(ctx context.Context, userID int64, since, until time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, l := range s.spending {
		if l.UserID == userID && !l.Timestamp.Before(since) && !l.Timestamp.After(until) {
			total = total.Add(l.Amount)
		}
	}
	return total, nil
}

func (s *InMemoryStore) MostRecentPurchase(ctx context.Context, userID int64) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *time.Time
	for _, l := range s.spending {
		if l.UserID != userID {
			continue
		}
		if latest == nil || l.Timestamp.After(*latest) {
			ts := l.Timestamp
			latest = &ts
		}
	}
	return latest, nil
}

func (s *InMemoryStore) AddNudge(ctx context.Context, rec models.NudgeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Source == "" {
		rec.Source = models.SourceText
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.Script != nil {
		script := *rec.Script
		rec.Script = &script
	}
	s.nudges = append(s.nudges, rec)
	return nil
}

func (s *InMemoryStore) CountNudges(ctx context.Context, userID int64, tier plan.Tier, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.nudges {
		if r.UserID == userID && r.Plan == tier && !r.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) ListNudges(ctx context.Context, userID int64, limit int) ([]models.NudgeRecord, error) {
	return s.listNudges(userID, limit, func(models.NudgeRecord) bool { return true }), nil
}

func (s *InMemoryStore) ListEARNSessions(ctx context.Context, userID int64, limit int) ([]models.NudgeRecord, error) {
	return s.listNudges(userID, limit, func(r models.NudgeRecord) bool { return r.Script != nil }), nil
}

func (s *InMemoryStore) listNudges(userID int64, limit int, keep func(models.NudgeRecord) bool) []models.NudgeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.NudgeRecord
	for i := len(s.nudges) - 1; i >= 0; i-- {
		if r := s.nudges[i]; r.UserID == userID && keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *InMemoryStore) AddMemory(ctx context.Context, doc models.MemoryDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.Embedding = append([]float32(nil), doc.Embedding...)
	doc.Timestamp = doc.Timestamp.UTC()
	s.memories = append(s.memories, doc)
	return nil
}

func (s *InMemoryStore) ListMemories(ctx context.Context, userID int64) ([]models.MemoryDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MemoryDocument
	for i := len(s.memories) - 1; i >= 0; i-- {
		if d := s.memories[i]; d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *InMemoryStore) HasMemory(ctx context.Context, userID int64, content string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.memories {
		if d.UserID == userID && d.Content == content {
			return true, nil
		}
	}
	return false, nil
}
