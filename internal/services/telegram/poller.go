package telegram

import (
	"context"
	"time"
)

// pollErrorPause пауза после ошибки getUpdates, чтобы не крутить
// горячий цикл при недоступном API
const pollErrorPause = 5 * time.Second

// RunPolling цикл long polling. Каждый апдейт обрабатывается в своей
// горутине: медленный платёжный чекаут не должен блокировать ленту.
// Возвращается после отмены контекста
func (s *Service) RunPolling(ctx context.Context, timeoutSec int) error {
	if timeoutSec <= 0 {
		timeoutSec = 30
	}

	s.Log.Info("telegram polling started", "timeout_sec", timeoutSec)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			s.Log.Info("telegram polling stopped")
			return nil
		default:
		}

		updates, err := s.Client.GetUpdates(ctx, offset, timeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.Log.Error("failed to get updates", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollErrorPause):
			}
			continue
		}

		for i := range updates {
			update := updates[i]
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			go func() {
				if err := s.HandleUpdate(ctx, &update); err != nil {
					s.Log.Error("failed to handle update",
						"error", err,
						"update_id", update.UpdateID,
					)
				}
			}()
		}
	}
}
