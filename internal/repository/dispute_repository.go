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

// DisputeRepository хранит споры и их журналы сообщений. Нумерацию сообщений
// сериализует счётчик last_seq в строке спора: UPDATE ... RETURNING берёт
// блокировку строки, поэтому два конкурентных сообщения никогда не получат
// одинаковый seq.
type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (id, title, description, lodged_by, lodged_against, handled_by, awaiting_user, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		d.ID, d.Title, d.Description, d.LodgedBy, d.LodgedAgainst, d.HandledBy, d.AwaitingUser, d.Priority, d.Status).
		Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("dispute repository: create: %w", err)
	}
	return nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, apperror.ErrDisputeNotFound)
}

// ListByUser возвращает споры, в которых пользователь участвует как сторона
// или как ведущий администратор.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Dispute, error) {
	var items []models.Dispute
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM disputes
		WHERE lodged_by = $1 OR lodged_against = $1 OR handled_by = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list by user: %w", err)
	}
	return items, nil
}

// ListOpen возвращает незакрытые споры для административного обзора.
func (r *DisputeRepository) ListOpen(ctx context.Context) ([]models.Dispute, error) {
	var items []models.Dispute
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM disputes
		WHERE status NOT IN ($1, $2)
		ORDER BY
			CASE priority
				WHEN 'Urgent' THEN 0
				WHEN 'High' THEN 1
				WHEN 'Medium' THEN 2
				ELSE 3
			END,
			created_at ASC
	`, models.DisputeStatusResolved, models.DisputeStatusClosed)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list open: %w", err)
	}
	return items, nil
}

// UpdateStatus переводит спор из from в to. Ноль затронутых строк означает,
// что статус уже изменился параллельным действием.
func (r *DisputeRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes SET status = $3 WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("dispute repository: update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dispute repository: update status rows: %w", err)
	}
	return affected == 1, nil
}

// Resolve закрывает спор с итоговым статусом Resolved или Closed.
func (r *DisputeRepository) Resolve(ctx context.Context, id uuid.UUID, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2, is_resolved = TRUE, resolved_at = NOW(), awaiting_user = NULL
		WHERE id = $1 AND status NOT IN ($3, $4)
	`, id, status, models.DisputeStatusResolved, models.DisputeStatusClosed)
	if err != nil {
		return fmt.Errorf("dispute repository: resolve: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dispute repository: resolve rows: %w", err)
	}
	if affected == 0 {
		return apperror.ErrInvalidStateTransition
	}
	return nil
}

// SetHandledBy закрепляет администратора за спором, если он ещё не закреплён.
func (r *DisputeRepository) SetHandledBy(ctx context.Context, id, adminID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE disputes SET handled_by = $2 WHERE id = $1 AND handled_by IS NULL
	`, id, adminID)
	if err != nil {
		return fmt.Errorf("dispute repository: set handled by: %w", err)
	}
	return nil
}

// PostMessage записывает сообщение, выдавая ему следующий seq спора.
// Инкремент last_seq, вставка сообщения и сопутствующие изменения статуса
// выполняются в одной транзакции БД.
func (r *DisputeRepository) PostMessage(ctx context.Context, m *models.DisputeMessage, awaitingUser *uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE disputes SET last_seq = last_seq + 1 WHERE id = $1 RETURNING last_seq
		`, m.DisputeID).Scan(&m.Seq)
		if err != nil {
			return fmt.Errorf("dispute repository: next seq: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO dispute_messages (id, dispute_id, seq, sent_by, body, kind, is_read)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING sent_at
		`, m.ID, m.DisputeID, m.Seq, m.SentBy, m.Body, m.Kind, m.IsRead).Scan(&m.SentAt)
		if err != nil {
			return fmt.Errorf("dispute repository: insert message: %w", err)
		}

		// Первое сообщение переводит спор из Open в InProgress; очередь
		// ответа переходит к другой стороне.
		_, err = tx.ExecContext(ctx, `
			UPDATE disputes
			SET status = CASE WHEN status = $2 THEN $3 ELSE status END,
			    awaiting_user = $4
			WHERE id = $1
		`, m.DisputeID, models.DisputeStatusOpen, models.DisputeStatusInProgress, awaitingUser)
		if err != nil {
			return fmt.Errorf("dispute repository: advance status: %w", err)
		}
		return nil
	})
}

// ListMessages возвращает журнал спора в порядке возрастания seq.
// Заметки администратора (admin_note) видны только при includeNotes.
func (r *DisputeRepository) ListMessages(ctx context.Context, disputeID uuid.UUID, includeNotes bool) ([]models.DisputeMessage, error) {
	query := `
		SELECT * FROM dispute_messages
		WHERE dispute_id = $1
		ORDER BY seq ASC
	`
	args := []interface{}{disputeID}
	if !includeNotes {
		query = `
			SELECT * FROM dispute_messages
			WHERE dispute_id = $1 AND kind <> $2
			ORDER BY seq ASC
		`
		args = append(args, models.MessageKindAdminNote)
	}

	var items []models.DisputeMessage
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("dispute repository: list messages: %w", err)
	}
	return items, nil
}

// MarkMessagesRead помечает прочитанными все чужие сообщения спора.
func (r *DisputeRepository) MarkMessagesRead(ctx context.Context, disputeID, readerID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispute_messages
		SET is_read = TRUE
		WHERE dispute_id = $1 AND sent_by <> $2 AND is_read = FALSE
	`, disputeID, readerID)
	if err != nil {
		return fmt.Errorf("dispute repository: mark messages read: %w", err)
	}
	return nil
}

// CountUnread возвращает число непрочитанных чужих сообщений спора.
func (r *DisputeRepository) CountUnread(ctx context.Context, disputeID, readerID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM dispute_messages
		WHERE dispute_id = $1 AND sent_by <> $2 AND is_read = FALSE
	`, disputeID, readerID)
	if err != nil {
		return 0, fmt.Errorf("dispute repository: count unread: %w", err)
	}
	return count, nil
}
