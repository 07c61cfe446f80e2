package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

// memDisputeStore повторяет выдачу seq хранилищем: инкремент счётчика и
// вставка сообщения атомарны.
type memDisputeStore struct {
	mu       sync.Mutex
	disputes map[uuid.UUID]*models.Dispute
	messages map[uuid.UUID][]models.DisputeMessage
}

func newMemDisputeStore() *memDisputeStore {
	return &memDisputeStore{
		disputes: make(map[uuid.UUID]*models.Dispute),
		messages: make(map[uuid.UUID][]models.DisputeMessage),
	}
}

func (f *memDisputeStore) Create(ctx context.Context, d *models.Dispute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	cp.CreatedAt = time.Now()
	f.disputes[d.ID] = &cp
	return nil
}

func (f *memDisputeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.disputes[id]
	if !ok {
		return nil, apperror.ErrDisputeNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *memDisputeStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Dispute
	for _, d := range f.disputes {
		if d.LodgedBy == userID || d.LodgedAgainst == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *memDisputeStore) ListOpen(ctx context.Context) ([]models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Dispute
	for _, d := range f.disputes {
		if !d.IsResolved {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *memDisputeStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.disputes[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = to
	return true, nil
}

func (f *memDisputeStore) Resolve(ctx context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.disputes[id]
	if !ok {
		return apperror.ErrDisputeNotFound
	}
	if d.IsResolved {
		return apperror.ErrInvalidStateTransition
	}
	now := time.Now()
	d.Status = status
	d.IsResolved = true
	d.ResolvedAt = &now
	d.AwaitingUser = nil
	return nil
}

func (f *memDisputeStore) SetHandledBy(ctx context.Context, id, adminID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.disputes[id]
	if !ok {
		return apperror.ErrDisputeNotFound
	}
	if d.HandledBy == nil {
		d.HandledBy = &adminID
	}
	return nil
}

func (f *memDisputeStore) PostMessage(ctx context.Context, m *models.DisputeMessage, awaitingUser *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.disputes[m.DisputeID]
	if !ok {
		return apperror.ErrDisputeNotFound
	}
	d.LastSeq++
	m.Seq = d.LastSeq
	m.SentAt = time.Now()
	f.messages[m.DisputeID] = append(f.messages[m.DisputeID], *m)
	if d.Status == models.DisputeStatusOpen {
		d.Status = models.DisputeStatusInProgress
	}
	d.AwaitingUser = awaitingUser
	return nil
}

func (f *memDisputeStore) ListMessages(ctx context.Context, disputeID uuid.UUID, includeNotes bool) ([]models.DisputeMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DisputeMessage
	for _, m := range f.messages[disputeID] {
		if !includeNotes && m.Kind == models.MessageKindAdminNote {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *memDisputeStore) MarkMessagesRead(ctx context.Context, disputeID, readerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[disputeID]
	for i := range msgs {
		if msgs[i].SentBy != readerID {
			msgs[i].IsRead = true
		}
	}
	return nil
}

func (f *memDisputeStore) CountUnread(ctx context.Context, disputeID, readerID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages[disputeID] {
		if !m.IsRead && m.SentBy != readerID {
			n++
		}
	}
	return n, nil
}

func openDispute(t *testing.T, repo *memDisputeStore, lodgedBy, lodgedAgainst uuid.UUID) *models.Dispute {
	t.Helper()
	d := &models.Dispute{
		ID:            uuid.New(),
		Title:         "спор о доставке",
		LodgedBy:      lodgedBy,
		LodgedAgainst: lodgedAgainst,
		Priority:      models.PriorityMedium,
		Status:        models.DisputeStatusOpen,
	}
	require.NoError(t, repo.Create(context.Background(), d))
	return d
}

func TestDisputeService_Create(t *testing.T) {
	repo := newMemDisputeStore()
	svc := NewDisputeService(repo, nil)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()

	d, err := svc.Create(ctx, buyer, seller, "товар не пришёл", "жду вторую неделю", "")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, d.Status)
	assert.Equal(t, models.PriorityMedium, d.Priority)

	_, err = svc.Create(ctx, buyer, buyer, "спор с собой", "", "")
	assert.Error(t, err)

	_, err = svc.Create(ctx, buyer, seller, "", "", "")
	assert.Error(t, err)

	_, err = svc.Create(ctx, buyer, seller, "заголовок", "", "Catastrophic")
	assert.Error(t, err)
}

func TestDisputeService_PostMessage(t *testing.T) {
	repo := newMemDisputeStore()
	svc := NewDisputeService(repo, nil)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	d := openDispute(t, repo, buyer, seller)

	m, err := svc.PostMessage(ctx, buyer, d.ID, "где мой заказ?", "", false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.Seq)

	// Первое сообщение двигает спор в InProgress, очередь ответа у продавца.
	fresh, _ := repo.GetByID(ctx, d.ID)
	assert.Equal(t, models.DisputeStatusInProgress, fresh.Status)
	require.NotNil(t, fresh.AwaitingUser)
	assert.Equal(t, seller, *fresh.AwaitingUser)

	m2, err := svc.PostMessage(ctx, seller, d.ID, "отправил вчера", "", false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, m2.Seq)

	fresh, _ = repo.GetByID(ctx, d.ID)
	require.NotNil(t, fresh.AwaitingUser)
	assert.Equal(t, buyer, *fresh.AwaitingUser)
}

func TestDisputeService_PostMessage_SeqStrictlyIncreasing(t *testing.T) {
	repo := newMemDisputeStore()
	svc := NewDisputeService(repo, nil)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	d := openDispute(t, repo, buyer, seller)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sender := buyer
		if i%2 == 1 {
			sender = seller
		}
		go func(sender uuid.UUID) {
			defer wg.Done()
			_, err := svc.PostMessage(ctx, sender, d.ID, "сообщение", "", false)
			assert.NoError(t, err)
		}(sender)
	}
	wg.Wait()

	msgs, err := svc.ListMessages(ctx, buyer, d.ID, false)
	require.NoError(t, err)
	require.Len(t, msgs, n)

	seen := make(map[int64]struct{}, n)
	for _, m := range msgs {
		_, dup := seen[m.Seq]
		assert.False(t, dup, "seq %d выдан дважды", m.Seq)
		seen[m.Seq] = struct{}{}
		assert.GreaterOrEqual(t, m.Seq, int64(1))
		assert.LessOrEqual(t, m.Seq, int64(n))
	}
}

func TestDisputeService_PostMessage_Permissions(t *testing.T) {
	repo := newMemDisputeStore()
	svc := NewDisputeService(repo, nil)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	d := openDispute(t, repo, buyer, seller)

	// Посторонний не пишет в чужой спор.
	_, err := svc.PostMessage(ctx, uuid.New(), d.ID, "привет", "", false)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	// Служебная заметка доступна только админу.
	_, err = svc.PostMessage(ctx, buyer, d.ID, "заметка", models.MessageKindAdminNote, false)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	admin := uuid.New()
	_, err = svc.PostMessage(ctx, admin, d.ID, "наблюдение по спору", models.MessageKindAdminNote, true)
	assert.NoError(t, err)

	// Заметка не двигает очередь ответа.
	fresh, _ := repo.GetByID(ctx, d.ID)
	assert.Nil(t, fresh.AwaitingUser)
}

func TestDisputeService_PostMessage_ResolvedDispute(t *testing.T) {
	repo := newMemDisputeStore()
	svc := NewDisputeService(repo, nil)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	d := openDispute(t, repo, buyer, seller)
	require.NoError(t, repo.Resolve(ctx, d.ID, models.DisputeStatusResolved))

	_, err := svc.PostMessage(ctx, buyer, d.ID, "ещё вопрос", "", false)
	assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
}

func TestDisputeService_ListMessages_HidesAdminNotes(t *testing.T) {
	repo := newMemDisputeStore()
	svc := NewDisputeService(repo, nil)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	admin := uuid.New()
	d := openDispute(t, repo, buyer, seller)
	require.NoError(t, repo.SetHandledBy(ctx, d.ID, admin))

	_, err := svc.PostMessage(ctx, buyer, d.ID, "обычное сообщение", "", false)
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, admin, d.ID, "скрытая заметка", models.MessageKindAdminNote, true)
	require.NoError(t, err)

	// Сторона спора заметку не видит.
	msgs, err := svc.ListMessages(ctx, buyer, d.ID, false)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	// Ведущий администратор видит всё.
	msgs, err = svc.ListMessages(ctx, admin, d.ID, true)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestDisputeService_SetStatus_Resolve(t *testing.T) {
	repo := newMemDisputeStore()
	svc := NewDisputeService(repo, nil)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	admin := uuid.New()
	d := openDispute(t, repo, buyer, seller)
	require.NoError(t, repo.SetHandledBy(ctx, d.ID, admin))

	// Сторона спора закрыть его не может.
	_, err := svc.SetStatus(ctx, buyer, d.ID, models.DisputeStatusResolved, false)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	fresh, err := svc.SetStatus(ctx, admin, d.ID, models.DisputeStatusResolved, true)
	require.NoError(t, err)
	assert.True(t, fresh.IsResolved)
	assert.Equal(t, models.DisputeStatusResolved, fresh.Status)
	assert.NotNil(t, fresh.ResolvedAt)

	// Из терминального статуса переходов нет.
	_, err = svc.SetStatus(ctx, admin, d.ID, models.DisputeStatusInProgress, true)
	assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
}

func TestDisputeService_CountUnread(t *testing.T) {
	repo := newMemDisputeStore()
	svc := NewDisputeService(repo, nil)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	d := openDispute(t, repo, buyer, seller)

	_, err := svc.PostMessage(ctx, buyer, d.ID, "раз", "", false)
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, buyer, d.ID, "два", "", false)
	require.NoError(t, err)

	n, err := svc.CountUnread(ctx, seller, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Свои сообщения непрочитанными не считаются.
	n, err = svc.CountUnread(ctx, buyer, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, svc.MarkRead(ctx, seller, d.ID, false))
	n, err = svc.CountUnread(ctx, seller, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
