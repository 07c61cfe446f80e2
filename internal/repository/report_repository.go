package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

// ReportRepository хранит жалобы на споры.
type ReportRepository struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, rep *models.Report) error {
	query := `
		INSERT INTO reports (id, reported_dispute_id, reported_by, assigned_admin_id, title, description, attachments, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		rep.ID, rep.ReportedDisputeID, rep.ReportedBy, rep.AssignedAdminID,
		rep.Title, rep.Description, rep.Attachments, rep.Priority, rep.Status).
		Scan(&rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("report repository: create: %w", err)
	}
	return nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	return common.GetByID[models.Report](ctx, r.db, "reports", id, apperror.ErrReportNotFound)
}

// ExistsOpenByReporter проверяет, есть ли у заявителя незакрытая жалоба на
// этот спор. Используется для отклонения дубликатов.
func (r *ReportRepository) ExistsOpenByReporter(ctx context.Context, disputeID, reporterID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM reports
			WHERE reported_dispute_id = $1 AND reported_by = $2 AND status IN ($3, $4)
		)
	`, disputeID, reporterID, models.ReportStatusPending, models.ReportStatusUnderReview)
	if err != nil {
		return false, fmt.Errorf("report repository: exists open by reporter: %w", err)
	}
	return exists, nil
}

// IsAdminConversation сообщает, является ли спор служебной перепиской,
// созданной при рассмотрении какой-то жалобы.
func (r *ReportRepository) IsAdminConversation(ctx context.Context, disputeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM reports WHERE admin_conversation_id = $1)
	`, disputeID)
	if err != nil {
		return false, fmt.Errorf("report repository: is admin conversation: %w", err)
	}
	return exists, nil
}

// SetAdminConversation привязывает служебную переписку к жалобе. Привязка
// выполняется не более одного раза: второй вызов получает ноль затронутых
// строк и false.
func (r *ReportRepository) SetAdminConversation(ctx context.Context, reportID, conversationID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reports
		SET admin_conversation_id = $2
		WHERE id = $1 AND admin_conversation_id IS NULL
	`, reportID, conversationID)
	if err != nil {
		return false, fmt.Errorf("report repository: set admin conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("report repository: set admin conversation rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateStatus переводит жалобу из from в to.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reports SET status = $3 WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("report repository: update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("report repository: update status rows: %w", err)
	}
	return affected == 1, nil
}

// Close закрывает жалобу с итоговым статусом Resolved или Closed.
func (r *ReportRepository) Close(ctx context.Context, id uuid.UUID, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reports
		SET status = $2, resolved_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`, id, status, models.ReportStatusPending, models.ReportStatusUnderReview)
	if err != nil {
		return fmt.Errorf("report repository: close: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("report repository: close rows: %w", err)
	}
	if affected == 0 {
		return apperror.ErrInvalidStateTransition
	}
	return nil
}

// ListByReporter возвращает жалобы заявителя, новые первыми.
func (r *ReportRepository) ListByReporter(ctx context.Context, reporterID uuid.UUID) ([]models.Report, error) {
	var items []models.Report
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM reports
		WHERE reported_by = $1
		ORDER BY created_at DESC
	`, reporterID)
	if err != nil {
		return nil, fmt.Errorf("report repository: list by reporter: %w", err)
	}
	return items, nil
}

// ListAssigned возвращает жалобы, закреплённые за администратором.
func (r *ReportRepository) ListAssigned(ctx context.Context, adminID uuid.UUID) ([]models.Report, error) {
	var items []models.Report
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM reports
		WHERE assigned_admin_id = $1
		ORDER BY
			CASE priority
				WHEN 'Urgent' THEN 0
				WHEN 'High' THEN 1
				WHEN 'Medium' THEN 2
				ELSE 3
			END,
			created_at ASC
	`, adminID)
	if err != nil {
		return nil, fmt.Errorf("report repository: list assigned: %w", err)
	}
	return items, nil
}
