// Package sweep は放置されたフォーカスセッションの自動中止ジョブを提供する。
// 開始から一定時間が経過してもactive/pausedのままのセッションを
// 定期的に検出し、cancelledへ遷移させる。
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/focustrack/internal/model"
	"github.com/hitoshi/focustrack/internal/repository"
)

// デフォルト値
const (
	DefaultMaxSessionAge  = 12 * time.Hour
	DefaultBatchSize      = 100
	DefaultMaxConcurrency = 4
)

// Recorder は掃除ジョブのメトリクス記録先。metrics.Collectorが満たす。
type Recorder interface {
	RecordSessionsSwept(count int)
	RecordSweepFailure()
}

// Config はSweeperの設定。0以下の値はデフォルト値を使用する。
type Config struct {
	MaxSessionAge  time.Duration
	BatchSize      int
	MaxConcurrency int
}

// Sweeper は放置セッションを中止するジョブ。
// 中止はSessionRepository.Updateの状態遷移として行うため、
// どのバックエンドでも同じ規則で処理される。
type Sweeper struct {
	sessions repository.SessionRepository
	logger   *slog.Logger
	recorder Recorder
	config   Config
	now      func() time.Time
}

// NewSweeper はSweeperを生成する。recorderはnil可。
func NewSweeper(sessions repository.SessionRepository, logger *slog.Logger, recorder Recorder, config Config) *Sweeper {
	if config.MaxSessionAge <= 0 {
		config.MaxSessionAge = DefaultMaxSessionAge
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BatchSize > model.MaxPageLimit {
		config.BatchSize = model.MaxPageLimit
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Sweeper{
		sessions: sessions,
		logger:   logger,
		recorder: recorder,
		config:   config,
		now:      model.Now,
	}
}

// Start はintervalごとに掃除を実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("放置セッションの掃除ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("max_session_age", s.config.MaxSessionAge),
	)

	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("放置セッションの掃除ジョブを停止しました")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Sweeper) runAndLog(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("放置セッションの掃除に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は閾値より前に開始した未終了セッションを中止し、中止した件数を返す。
// バッチが全件成功した場合は次のバッチを続けて処理する。
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	cutoff := s.now().Add(-s.config.MaxSessionAge)

	total := 0
	failed := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := s.sessions.ListOpenStartedBefore(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			s.recordFailure()
			return total, err
		}
		if len(batch) == 0 {
			break
		}

		cancelled, errCount := s.cancelAll(ctx, batch)
		total += cancelled
		failed += errCount

		// 失敗したセッションは次回の実行で再試行する
		if errCount > 0 || len(batch) < s.config.BatchSize {
			break
		}
	}

	if s.recorder != nil && total > 0 {
		s.recorder.RecordSessionsSwept(total)
	}
	if failed > 0 {
		s.recordFailure()
	}

	s.logger.Info("放置セッションの掃除が完了しました",
		slog.Int("cancelled_count", total),
		slog.Int("failed_count", failed),
		slog.String("cutoff", model.FormatTime(cutoff)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return total, nil
}

// cancelAll はsemaphoreパターンで並列数を制御しながらセッションを中止する。
// 中止した件数と失敗した件数を返す。
func (s *Sweeper) cancelAll(ctx context.Context, batch []*model.Session) (int, int) {
	status := model.SessionStatusCancelled
	sem := make(chan struct{}, s.config.MaxConcurrency)
	var wg sync.WaitGroup
	var cancelled, failed atomic.Int64

	for _, session := range batch {
		wg.Add(1)
		sem <- struct{}{}

		go func(sess *model.Session) {
			defer wg.Done()
			defer func() { <-sem }()

			updated, err := s.sessions.Update(ctx, sess.ID, model.SessionUpdate{Status: &status})
			if err != nil {
				s.logger.Error("セッションの中止に失敗しました",
					slog.String("session_id", sess.ID),
					slog.String("user_id", sess.UserID),
					slog.String("error", err.Error()),
				)
				failed.Add(1)
				return
			}
			// 掃除中に削除された場合
			if updated == nil {
				return
			}
			cancelled.Add(1)
		}(session)
	}

	wg.Wait()
	return int(cancelled.Load()), int(failed.Load())
}

func (s *Sweeper) recordFailure() {
	if s.recorder != nil {
		s.recorder.RecordSweepFailure()
	}
}
