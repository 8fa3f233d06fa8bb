package handler

// DomainRecorder はハンドラーが記録するドメインメトリクスのインターフェース。
// metrics.Collectorが満たす。
type DomainRecorder interface {
	RecordSessionTransition(status string)
	RecordAuthAttempt(success bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordSessionTransition(string) {}
func (noopRecorder) RecordAuthAttempt(bool)         {}
