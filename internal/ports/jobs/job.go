package jobs

import (
	"context"
	"time"
)

// Job представляет периодическую задачу, которую можно запланировать
type Job interface {
	Name() string
	NextRun(now time.Time) time.Time

	// RetrySchedule паузы между повторными попытками после ошибки Run.
	// Частые джобы возвращают nil — следующий тик и так скоро
	RetrySchedule() []time.Duration

	Run(ctx context.Context) error
}
