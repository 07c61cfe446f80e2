package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/metrics"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/ws"
)

// DisputeStore — операции хранилища споров.
type DisputeStore interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Dispute, error)
	ListOpen(ctx context.Context) ([]models.Dispute, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	Resolve(ctx context.Context, id uuid.UUID, status string) error
	SetHandledBy(ctx context.Context, id, adminID uuid.UUID) error
	PostMessage(ctx context.Context, m *models.DisputeMessage, awaitingUser *uuid.UUID) error
	ListMessages(ctx context.Context, disputeID uuid.UUID, includeNotes bool) ([]models.DisputeMessage, error)
	MarkMessagesRead(ctx context.Context, disputeID, readerID uuid.UUID) error
	CountUnread(ctx context.Context, disputeID, readerID uuid.UUID) (int, error)
}

// DisputeService ведёт переписку-спор между двумя пользователями. Порядок
// сообщений в пределах спора задаёт строго возрастающий seq, который выдаёт
// хранилище; споры между собой полностью независимы.
type DisputeService struct {
	repo DisputeStore
	hub  *ws.Hub
}

func NewDisputeService(repo DisputeStore, hub *ws.Hub) *DisputeService {
	return &DisputeService{repo: repo, hub: hub}
}

// Create открывает спор между двумя пользователями.
func (s *DisputeService) Create(ctx context.Context, lodgedBy, lodgedAgainst uuid.UUID, title, description, priority string) (*models.Dispute, error) {
	if lodgedBy == lodgedAgainst {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя открыть спор с самим собой")
	}
	if title == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "заголовок спора обязателен")
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	if _, ok := models.ValidPriorities[priority]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимый приоритет")
	}

	d := &models.Dispute{
		ID:            uuid.New(),
		Title:         title,
		Description:   description,
		LodgedBy:      lodgedBy,
		LodgedAgainst: lodgedAgainst,
		Priority:      priority,
		Status:        models.DisputeStatusOpen,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Get возвращает спор с проверкой, что запрашивающий — участник или админ.
func (s *DisputeService) Get(ctx context.Context, requesterID uuid.UUID, disputeID uuid.UUID, isAdmin bool) (*models.Dispute, error) {
	d, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.IsParticipant(requesterID) && !isAdmin {
		return nil, apperror.ErrPermissionDenied
	}
	return d, nil
}

// ListMine возвращает споры пользователя.
func (s *DisputeService) ListMine(ctx context.Context, userID uuid.UUID) ([]models.Dispute, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListOpen возвращает незакрытые споры, срочные первыми. Только для админов.
func (s *DisputeService) ListOpen(ctx context.Context) ([]models.Dispute, error) {
	return s.repo.ListOpen(ctx)
}

// PostMessage добавляет сообщение в журнал спора. Отправлять могут только
// участники; заметки admin_note — только ведущий или админ. Первое сообщение
// переводит спор из Open в InProgress, очередь ответа переходит к другой
// стороне.
func (s *DisputeService) PostMessage(ctx context.Context, senderID uuid.UUID, disputeID uuid.UUID, body, kind string, isAdmin bool) (*models.DisputeMessage, error) {
	if body == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "текст сообщения обязателен")
	}
	if kind == "" {
		kind = models.MessageKindMessage
	}
	if _, ok := models.ValidMessageKinds[kind]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимый тип сообщения")
	}

	d, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.IsParticipant(senderID) && !isAdmin {
		return nil, apperror.ErrPermissionDenied
	}
	if d.IsResolved || d.Status == models.DisputeStatusResolved || d.Status == models.DisputeStatusClosed {
		return nil, apperror.ErrInvalidStateTransition
	}
	if kind == models.MessageKindAdminNote && !isAdmin {
		return nil, apperror.ErrPermissionDenied
	}

	m := &models.DisputeMessage{
		ID:        uuid.New(),
		DisputeID: disputeID,
		SentBy:    senderID,
		Body:      body,
		Kind:      kind,
	}

	// Ответ ожидается от противоположной стороны. Служебные заметки очередь
	// не двигают.
	awaiting := d.AwaitingUser
	if kind == models.MessageKindMessage {
		other := d.LodgedBy
		if senderID == d.LodgedBy {
			other = d.LodgedAgainst
		}
		awaiting = &other
	}

	if err := s.repo.PostMessage(ctx, m, awaiting); err != nil {
		return nil, err
	}
	metrics.DisputeMessagesTotal.Inc()

	s.notifyParticipants(d, senderID, kind, m)
	return m, nil
}

// ListMessages возвращает журнал спора. Заметки admin_note видят только
// админы и ведущий: фильтрация выполняется на пути чтения.
func (s *DisputeService) ListMessages(ctx context.Context, requesterID uuid.UUID, disputeID uuid.UUID, isAdmin bool) ([]models.DisputeMessage, error) {
	d, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.IsParticipant(requesterID) && !isAdmin {
		return nil, apperror.ErrPermissionDenied
	}

	includeNotes := isAdmin || (d.HandledBy != nil && *d.HandledBy == requesterID)
	return s.repo.ListMessages(ctx, disputeID, includeNotes)
}

// MarkRead помечает чужие сообщения спора прочитанными.
func (s *DisputeService) MarkRead(ctx context.Context, requesterID uuid.UUID, disputeID uuid.UUID, isAdmin bool) error {
	d, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return err
	}
	if !d.IsParticipant(requesterID) && !isAdmin {
		return apperror.ErrPermissionDenied
	}
	return s.repo.MarkMessagesRead(ctx, disputeID, requesterID)
}

// CountUnread возвращает число непрочитанных сообщений спора для пользователя.
func (s *DisputeService) CountUnread(ctx context.Context, requesterID uuid.UUID, disputeID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, disputeID, requesterID)
}

// SetStatus выполняет явный переход статуса. В Resolved и Closed спор может
// перевести только ведущий администратор; переходы из терминальных статусов
// запрещены.
func (s *DisputeService) SetStatus(ctx context.Context, requesterID uuid.UUID, disputeID uuid.UUID, status string, isAdmin bool) (*models.Dispute, error) {
	if _, ok := models.ValidDisputeStatuses[status]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимый статус спора")
	}

	d, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.IsParticipant(requesterID) && !isAdmin {
		return nil, apperror.ErrPermissionDenied
	}
	if d.IsResolved {
		return nil, apperror.ErrInvalidStateTransition
	}

	switch status {
	case models.DisputeStatusResolved, models.DisputeStatusClosed:
		// Закрыть спор может только его ведущий.
		handler := d.HandledBy != nil && *d.HandledBy == requesterID
		if !handler && !isAdmin {
			return nil, apperror.ErrPermissionDenied
		}
		if err := s.repo.Resolve(ctx, disputeID, status); err != nil {
			return nil, err
		}
		s.notifyResolved(d, status)
	case models.DisputeStatusInProgress, models.DisputeStatusWaitingResponse:
		ok, err := s.repo.UpdateStatus(ctx, disputeID, d.Status, status)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperror.ErrInvalidStateTransition
		}
		if isAdmin && d.HandledBy == nil {
			if err := s.repo.SetHandledBy(ctx, disputeID, requesterID); err != nil {
				return nil, err
			}
		}
	default:
		// Вернуть спор в Open нельзя.
		return nil, apperror.ErrInvalidStateTransition
	}

	return s.repo.GetByID(ctx, disputeID)
}

func (s *DisputeService) notifyParticipants(d *models.Dispute, senderID uuid.UUID, kind string, m *models.DisputeMessage) {
	if s.hub == nil {
		return
	}

	recipients := []uuid.UUID{d.LodgedBy, d.LodgedAgainst}
	if d.HandledBy != nil {
		recipients = append(recipients, *d.HandledBy)
	}
	for _, userID := range recipients {
		if userID == senderID {
			continue
		}
		// Служебные заметки сторонам спора не рассылаются.
		if kind == models.MessageKindAdminNote && (userID == d.LodgedBy || userID == d.LodgedAgainst) {
			continue
		}
		if err := s.hub.NotifyUser(userID, ws.EventDisputeMessage, m); err != nil {
			logger.Log.WithError(err).Debug("dispute: не удалось отправить ws-уведомление")
		}
	}
}

func (s *DisputeService) notifyResolved(d *models.Dispute, status string) {
	if s.hub == nil {
		return
	}
	payload := map[string]any{"dispute_id": d.ID, "status": status}
	for _, userID := range []uuid.UUID{d.LodgedBy, d.LodgedAgainst} {
		if err := s.hub.NotifyUser(userID, ws.EventDisputeResolved, payload); err != nil {
			logger.Log.WithError(err).Debug("dispute: не удалось отправить ws-уведомление")
		}
	}
}
