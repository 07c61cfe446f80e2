package service

import (
	"context"
	"time"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
)

// Sweeper — фоновый процесс, который периодически проваливает Pending
// транзакции, пережившие TTL, и возвращает их резервирования на склад.
// Он ходит тем же путём терминализации, что явная отмена, поэтому гонка с
// ней безопасна: побеждает ровно один.
type Sweeper struct {
	svc      *TransactionService
	interval time.Duration
}

func NewSweeper(svc *TransactionService, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval}
}

// Run крутит цикл свипера до отмены контекста.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Log.WithField("interval", s.interval).Info("sweeper: запущен")

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("sweeper: остановлен")
			return
		case <-ticker.C:
			swept, err := s.svc.SweepExpired(ctx)
			if err != nil {
				logger.Log.WithError(err).Error("sweeper: проход завершился ошибкой")
				continue
			}
			if swept > 0 {
				logger.Log.WithField("count", swept).Info("sweeper: просроченные транзакции провалены")
			}
		}
	}
}
