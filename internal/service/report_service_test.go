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

// memReportStore повторяет условную привязку admin_conversation_id: CAS по
// NULL выигрывает ровно один вызывающий.
type memReportStore struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*models.Report
}

func newMemReportStore() *memReportStore {
	return &memReportStore{reports: make(map[uuid.UUID]*models.Report)}
}

func (f *memReportStore) Create(ctx context.Context, r *models.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	cp.CreatedAt = time.Now()
	f.reports[r.ID] = &cp
	return nil
}

func (f *memReportStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, apperror.ErrReportNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *memReportStore) ExistsOpenByReporter(ctx context.Context, disputeID, reporterID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reports {
		if r.ReportedDisputeID == disputeID && r.ReportedBy == reporterID && r.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (f *memReportStore) IsAdminConversation(ctx context.Context, disputeID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reports {
		if r.AdminConversationID != nil && *r.AdminConversationID == disputeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *memReportStore) SetAdminConversation(ctx context.Context, reportID, conversationID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[reportID]
	if !ok || r.AdminConversationID != nil {
		return false, nil
	}
	r.AdminConversationID = &conversationID
	return true, nil
}

func (f *memReportStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (f *memReportStore) Close(ctx context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return apperror.ErrReportNotFound
	}
	if !r.IsOpen() {
		return apperror.ErrInvalidStateTransition
	}
	now := time.Now()
	r.Status = status
	r.ResolvedAt = &now
	return nil
}

func (f *memReportStore) ListByReporter(ctx context.Context, reporterID uuid.UUID) ([]models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Report
	for _, r := range f.reports {
		if r.ReportedBy == reporterID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *memReportStore) ListAssigned(ctx context.Context, adminID uuid.UUID) ([]models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Report
	for _, r := range f.reports {
		if r.AssignedAdminID == adminID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fixedAdminDirectory struct {
	admin *models.User
}

func (f fixedAdminDirectory) LeastLoadedAdmin(ctx context.Context) (*models.User, error) {
	return f.admin, nil
}

type reportFixture struct {
	reports  *memReportStore
	disputes *memDisputeStore
	admin    *models.User
	svc      *ReportService
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	reports := newMemReportStore()
	disputes := newMemDisputeStore()
	admin := &models.User{ID: uuid.New(), Username: "admin", Role: models.RoleAdmin}
	svc := NewReportService(reports, disputes, fixedAdminDirectory{admin: admin}, nil)
	return &reportFixture{reports: reports, disputes: disputes, admin: admin, svc: svc}
}

func TestReportService_File(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	d := openDispute(t, f.disputes, buyer, seller)

	r, err := f.svc.File(ctx, buyer, d.ID, "продавец игнорирует спор", "нет ответа неделю", "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusPending, r.Status)
	assert.Equal(t, f.admin.ID, r.AssignedAdminID)
	assert.Equal(t, d.ID, r.ReportedDisputeID)
	assert.Nil(t, r.AdminConversationID)
}

func TestReportService_File_ThirdParty(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()
	d := openDispute(t, f.disputes, uuid.New(), uuid.New())

	// Пожаловаться на спор может и пользователь, не являющийся его стороной.
	outsider := uuid.New()
	r, err := f.svc.File(ctx, outsider, d.ID, "стороны оскорбляют друг друга", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, outsider, r.ReportedBy)
	assert.Equal(t, models.ReportStatusPending, r.Status)
	assert.Equal(t, f.admin.ID, r.AssignedAdminID)
}

func TestReportService_File_Duplicate(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	d := openDispute(t, f.disputes, buyer, seller)

	_, err := f.svc.File(ctx, buyer, d.ID, "первая жалоба", "", "", nil)
	require.NoError(t, err)

	_, err = f.svc.File(ctx, buyer, d.ID, "вторая жалоба", "", "", nil)
	assert.ErrorIs(t, err, apperror.ErrDuplicateReport)

	// Вторая сторона подать свою жалобу может.
	_, err = f.svc.File(ctx, seller, d.ID, "встречная жалоба", "", "", nil)
	assert.NoError(t, err)
}

func TestReportService_File_OnAdminConversation(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	d := openDispute(t, f.disputes, buyer, seller)

	r, err := f.svc.File(ctx, buyer, d.ID, "жалоба", "", "", nil)
	require.NoError(t, err)

	r, err = f.svc.OpenConversation(ctx, f.admin.ID, r.ID)
	require.NoError(t, err)
	require.NotNil(t, r.AdminConversationID)

	// На служебную переписку жаловаться нельзя.
	_, err = f.svc.File(ctx, buyer, *r.AdminConversationID, "жалоба на переписку", "", "", nil)
	require.Error(t, err)
	code, ok := apperror.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ErrCodeValidation, code)
}

func TestReportService_OpenConversation(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	d := openDispute(t, f.disputes, buyer, seller)

	r, err := f.svc.File(ctx, buyer, d.ID, "эскалация", "", models.PriorityHigh, nil)
	require.NoError(t, err)

	r, err = f.svc.OpenConversation(ctx, f.admin.ID, r.ID)
	require.NoError(t, err)
	require.NotNil(t, r.AdminConversationID)
	assert.Equal(t, models.ReportStatusUnderReview, r.Status)

	// Переписка — новый независимый спор с теми же сторонами и админом.
	conv, err := f.disputes.GetByID(ctx, *r.AdminConversationID)
	require.NoError(t, err)
	assert.NotEqual(t, d.ID, conv.ID)
	assert.Equal(t, buyer, conv.LodgedBy)
	assert.Equal(t, seller, conv.LodgedAgainst)
	require.NotNil(t, conv.HandledBy)
	assert.Equal(t, f.admin.ID, *conv.HandledBy)
	assert.Equal(t, models.PriorityHigh, conv.Priority)

	// Засеяна системным сообщением со ссылкой на исходный спор.
	msgs, err := f.disputes.ListMessages(ctx, conv.ID, true)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageKindSystem, msgs[0].Kind)
	assert.Contains(t, msgs[0].Body, d.ID.String())

	// Исходный спор не изменился.
	original, err := f.disputes.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, original.Status)
	assert.Nil(t, original.HandledBy)
	origMsgs, _ := f.disputes.ListMessages(ctx, d.ID, true)
	assert.Empty(t, origMsgs)

	// Повторное открытие отклоняется.
	_, err = f.svc.OpenConversation(ctx, f.admin.ID, r.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
}

func TestReportService_OpenConversation_ForeignAdmin(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	buyer := uuid.New()
	d := openDispute(t, f.disputes, buyer, uuid.New())
	r, err := f.svc.File(ctx, buyer, d.ID, "жалоба", "", "", nil)
	require.NoError(t, err)

	_, err = f.svc.OpenConversation(ctx, uuid.New(), r.ID)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
}

func TestReportService_Resolve(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	buyer := uuid.New()
	d := openDispute(t, f.disputes, buyer, uuid.New())
	r, err := f.svc.File(ctx, buyer, d.ID, "жалоба", "", "", nil)
	require.NoError(t, err)

	// Решение без явного открытия переписки создаёт её само.
	resolved, err := f.svc.Resolve(ctx, f.admin.ID, r.ID, models.ReportStatusResolved)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.AdminConversationID)

	// Исходный спор заморожен и решением жалобы не затронут.
	original, err := f.disputes.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, original.Status)
	assert.False(t, original.IsResolved)

	// Повторное решение не создаёт вторую переписку.
	_, err = f.svc.Resolve(ctx, f.admin.ID, r.ID, models.ReportStatusClosed)
	assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
	fresh, _ := f.reports.GetByID(ctx, r.ID)
	assert.Equal(t, resolved.AdminConversationID, fresh.AdminConversationID)
}

func TestReportService_Resolve_InvalidDecision(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	buyer := uuid.New()
	d := openDispute(t, f.disputes, buyer, uuid.New())
	r, err := f.svc.File(ctx, buyer, d.ID, "жалоба", "", "", nil)
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, f.admin.ID, r.ID, models.ReportStatusUnderReview)
	assert.Error(t, err)
}

func TestReportService_OpenConversation_Concurrent(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	buyer := uuid.New()
	d := openDispute(t, f.disputes, buyer, uuid.New())
	r, err := f.svc.File(ctx, buyer, d.ID, "жалоба", "", "", nil)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.OpenConversation(ctx, f.admin.ID, r.ID)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
		}
	}
	assert.Equal(t, 1, won, "переписку создаёт ровно один вызов")

	// Привязана ровно одна переписка, сироты конкурентов закрыты.
	fresh, err := f.reports.GetByID(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.AdminConversationID)
	conv, err := f.disputes.GetByID(ctx, *fresh.AdminConversationID)
	require.NoError(t, err)
	assert.False(t, conv.IsResolved)
}
