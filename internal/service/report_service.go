package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/metrics"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/ws"
)

// ReportStore — операции хранилища жалоб.
type ReportStore interface {
	Create(ctx context.Context, r *models.Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ExistsOpenByReporter(ctx context.Context, disputeID, reporterID uuid.UUID) (bool, error)
	IsAdminConversation(ctx context.Context, disputeID uuid.UUID) (bool, error)
	SetAdminConversation(ctx context.Context, reportID, conversationID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	Close(ctx context.Context, id uuid.UUID, status string) error
	ListByReporter(ctx context.Context, reporterID uuid.UUID) ([]models.Report, error)
	ListAssigned(ctx context.Context, adminID uuid.UUID) ([]models.Report, error)
}

// AdminDirectory выбирает администратора для назначения жалобы.
type AdminDirectory interface {
	LeastLoadedAdmin(ctx context.Context) (*models.User, error)
}

// ReportService обрабатывает жалобы на споры. Исходный спор этим потоком не
// изменяется: он заморожен как доказательство, вся дальнейшая работа идёт в
// отдельной служебной переписке.
type ReportService struct {
	repo     ReportStore
	disputes DisputeStore
	admins   AdminDirectory
	hub      *ws.Hub
}

func NewReportService(repo ReportStore, disputes DisputeStore, admins AdminDirectory, hub *ws.Hub) *ReportService {
	return &ReportService{repo: repo, disputes: disputes, admins: admins, hub: hub}
}

// File подаёт жалобу на спор. Заявителем может быть любой пользователь,
// участие в споре не требуется. Повторная жалоба того же заявителя на тот же
// спор отклоняется, пока предыдущая не закрыта. Жаловаться на служебные
// переписки нельзя: это замкнуло бы эскалацию саму на себя.
func (s *ReportService) File(ctx context.Context, reporterID uuid.UUID, disputeID uuid.UUID, title, description, priority string, attachments *string) (*models.Report, error) {
	if title == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "заголовок жалобы обязателен")
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	if _, ok := models.ValidPriorities[priority]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимый приоритет")
	}

	if _, err := s.disputes.GetByID(ctx, disputeID); err != nil {
		return nil, err
	}

	isConversation, err := s.repo.IsAdminConversation(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if isConversation {
		return nil, apperror.New(apperror.ErrCodeValidation, "на служебную переписку нельзя подать жалобу")
	}

	duplicate, err := s.repo.ExistsOpenByReporter(ctx, disputeID, reporterID)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, apperror.ErrDuplicateReport
	}

	admin, err := s.admins.LeastLoadedAdmin(ctx)
	if err != nil {
		return nil, err
	}

	r := &models.Report{
		ID:                uuid.New(),
		ReportedDisputeID: disputeID,
		ReportedBy:        reporterID,
		AssignedAdminID:   admin.ID,
		Title:             title,
		Description:       description,
		Attachments:       attachments,
		Priority:          priority,
		Status:            models.ReportStatusPending,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	metrics.ReportsFiledTotal.Inc()

	if s.hub != nil {
		if err := s.hub.NotifyUser(admin.ID, ws.EventReportAssigned, r); err != nil {
			logger.Log.WithError(err).Debug("report: не удалось отправить ws-уведомление")
		}
	}
	return r, nil
}

// Get возвращает жалобу. Видят её заявитель и назначенный администратор.
func (s *ReportService) Get(ctx context.Context, requesterID uuid.UUID, reportID uuid.UUID, isAdmin bool) (*models.Report, error) {
	r, err := s.repo.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if r.ReportedBy != requesterID && r.AssignedAdminID != requesterID && !isAdmin {
		return nil, apperror.ErrPermissionDenied
	}
	return r, nil
}

// ListMine возвращает жалобы заявителя.
func (s *ReportService) ListMine(ctx context.Context, reporterID uuid.UUID) ([]models.Report, error) {
	return s.repo.ListByReporter(ctx, reporterID)
}

// ListAssigned возвращает жалобы, закреплённые за администратором.
func (s *ReportService) ListAssigned(ctx context.Context, adminID uuid.UUID) ([]models.Report, error) {
	return s.repo.ListAssigned(ctx, adminID)
}

// OpenConversation создаёт служебную переписку по жалобе: новый независимый
// спор с участием обеих исходных сторон и администратора, засеянный системным
// сообщением со ссылкой на исходный спор. Переписка создаётся не более
// одного раза даже при конкурентных вызовах: побеждает тот, кто первым
// выполнит условную привязку adminConversationId.
func (s *ReportService) OpenConversation(ctx context.Context, adminID uuid.UUID, reportID uuid.UUID) (*models.Report, error) {
	r, err := s.repo.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if r.AssignedAdminID != adminID {
		return nil, apperror.ErrPermissionDenied
	}
	if !r.IsOpen() {
		return nil, apperror.ErrInvalidStateTransition
	}
	if r.AdminConversationID != nil {
		return nil, apperror.ErrInvalidStateTransition
	}

	if err := s.ensureConversation(ctx, adminID, r); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, reportID)
}

// ensureConversation создаёт служебную переписку и переводит жалобу в
// UnderReview. При конкурентной привязке проигравший получает
// ErrInvalidStateTransition, его переписка-сирота закрывается.
func (s *ReportService) ensureConversation(ctx context.Context, adminID uuid.UUID, r *models.Report) error {
	original, err := s.disputes.GetByID(ctx, r.ReportedDisputeID)
	if err != nil {
		return err
	}

	conversation := &models.Dispute{
		ID:            uuid.New(),
		Title:         fmt.Sprintf("Рассмотрение жалобы: %s", r.Title),
		Description:   r.Description,
		LodgedBy:      original.LodgedBy,
		LodgedAgainst: original.LodgedAgainst,
		HandledBy:     &adminID,
		Priority:      r.Priority,
		Status:        models.DisputeStatusOpen,
	}
	if err := s.disputes.Create(ctx, conversation); err != nil {
		return err
	}

	won, err := s.repo.SetAdminConversation(ctx, r.ID, conversation.ID)
	if err != nil {
		return err
	}
	if !won {
		// Конкурент успел привязать свою переписку, наша остаётся пустой
		// сиротой и закрывается.
		if resolveErr := s.disputes.Resolve(ctx, conversation.ID, models.DisputeStatusClosed); resolveErr != nil {
			logger.Log.WithError(resolveErr).WithField("dispute_id", conversation.ID).
				Warn("report: не удалось закрыть переписку-дубликат")
		}
		return apperror.ErrInvalidStateTransition
	}

	seed := &models.DisputeMessage{
		ID:        uuid.New(),
		DisputeID: conversation.ID,
		SentBy:    adminID,
		Body:      fmt.Sprintf("Служебная переписка по жалобе на спор %s", r.ReportedDisputeID),
		Kind:      models.MessageKindSystem,
	}
	if err := s.disputes.PostMessage(ctx, seed, nil); err != nil {
		return err
	}

	if _, err := s.repo.UpdateStatus(ctx, r.ID, models.ReportStatusPending, models.ReportStatusUnderReview); err != nil {
		return err
	}
	return nil
}

// Resolve закрывает жалобу решением Resolved или Closed. Закрыть жалобу может
// только назначенный администратор; повторное закрытие отклоняется.
// Исходный спор при этом не изменяется.
func (s *ReportService) Resolve(ctx context.Context, adminID uuid.UUID, reportID uuid.UUID, decision string) (*models.Report, error) {
	if decision != models.ReportStatusResolved && decision != models.ReportStatusClosed {
		return nil, apperror.New(apperror.ErrCodeValidation, "решение должно быть Resolved или Closed")
	}

	r, err := s.repo.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if r.AssignedAdminID != adminID {
		return nil, apperror.ErrPermissionDenied
	}
	if !r.IsOpen() {
		return nil, apperror.ErrInvalidStateTransition
	}

	// Первое решение по жалобе открывает служебную переписку, если её ещё
	// нет: стороны должны видеть, в рамках чего принято решение.
	if r.AdminConversationID == nil {
		if err := s.ensureConversation(ctx, adminID, r); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Close(ctx, reportID, decision); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, reportID)
}
