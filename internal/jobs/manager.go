// Package jobs は一括翻訳の非同期ジョブ管理機能を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yourusername/caption-forge/internal/caption"
	"github.com/yourusername/caption-forge/internal/config"
)

const (
	taskTypeTranslate = "caption:translate"
	queueName         = "captions"
)

// BatchRunner は一括翻訳を実行します。
type BatchRunner interface {
	TranslateAll(ctx context.Context, opts caption.BatchOptions, reporter caption.ProgressReporter) (*caption.BatchResult, error)
}

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  RecordStore
	runner BatchRunner
	logger *log.Logger
}

// TaskPayload は一括翻訳ジョブのペイロードです。
type TaskPayload struct {
	JobID   string               `json:"jobId"`
	Options caption.BatchOptions `json:"options"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, runner BatchRunner, store RecordStore, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			// 同じディレクトリへ書き出すため一度に1件だけ処理する
			Concurrency: 1,
			Queues: map[string]int{
				queueName: 1,
			},
			Logger: asynqLogger{logger},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: client,
		server: server,
		mux:    mux,
		store:  store,
		runner: runner,
		logger: logger,
	}
	mux.HandleFunc(taskTypeTranslate, manager.handleTranslateTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Printf("asynq server stopped with error: %v", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
// 実行中のタスクを待ちますが、ctx が先に終わった場合は待たずに ctx.Err() を返します。
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.server.Shutdown()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("asynq server shutdown: %w", ctx.Err())
	}
	return errors.Join(waitErr, m.client.Close())
}

// ScheduleTranslateAll は新しいジョブIDで一括翻訳を投入し、そのIDを返します。
func (m *Manager) ScheduleTranslateAll(ctx context.Context, opts caption.BatchOptions) (string, error) {
	payload := &TaskPayload{
		JobID:   uuid.NewString(),
		Options: opts,
	}
	if _, err := m.Enqueue(ctx, payload); err != nil {
		return "", err
	}
	return payload.JobID, nil
}

// Enqueue はジョブをキューに投入します。戻り値は asynq のタスクIDです。
func (m *Manager) Enqueue(ctx context.Context, payload *TaskPayload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("payload is nil")
	}
	if payload.JobID == "" {
		return "", fmt.Errorf("payload.JobID is required")
	}

	record := &Record{
		JobID:     payload.JobID,
		Operation: OperationTranslate,
		Status:    StatusQueued,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   "queued",
		},
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeTranslate, body, asynq.Queue(queueName))
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(1))
	if err != nil {
		if failErr := m.failJob(ctx, payload.JobID, caption.CodeInternal, err.Error()); failErr != nil {
			m.logger.Printf("failed to record enqueue failure job=%s: %v", payload.JobID, failErr)
		}
		return "", err
	}
	return info.ID, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleTranslateTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}

	if err := m.markRunning(ctx, payload.JobID); err != nil {
		return err
	}

	result, err := m.runner.TranslateAll(ctx, payload.Options, func(stage string, percent int) {
		m.updateProgress(ctx, payload.JobID, percent, stage)
	})
	if err != nil {
		return m.failJobWithError(ctx, payload.JobID, err)
	}
	if result == nil {
		return m.failJob(ctx, payload.JobID, caption.CodeInternal, "result is nil")
	}
	m.logger.Printf("job %s finished: translated=%d skipped=%d failed=%d",
		payload.JobID, result.Translated, result.Skipped, len(result.Failed))
	return m.store.MarkDone(ctx, payload.JobID, result)
}

// markRunning は投入時のレコードを引き継いで実行中にします。CreatedAt と ExpiresAt は変えません。
func (m *Manager) markRunning(ctx context.Context, jobID string) error {
	record, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record == nil {
		// 期限切れなどで消えている場合は作り直す
		record = &Record{JobID: jobID, Operation: OperationTranslate}
	}
	record.Status = StatusRunning
	record.Progress = ProgressInfo{
		Percent: 0,
		Stage:   "load",
	}
	record.Error = nil
	return m.store.Upsert(ctx, record)
}

func (m *Manager) updateProgress(ctx context.Context, jobID string, percent int, stage string) {
	if err := m.store.UpdateProgress(ctx, jobID, ProgressInfo{
		Percent: percent,
		Stage:   stage,
	}); err != nil {
		m.logger.Printf("failed to update progress job=%s: %v", jobID, err)
	}
}

func (m *Manager) failJob(ctx context.Context, jobID, code, message string) error {
	return m.store.MarkFailed(ctx, jobID, &ErrorInfo{
		Code:    code,
		Message: message,
	})
}

// failJobWithError は失敗を記録します。記録できた場合はリトライさせません。
func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	code := caption.CodeInternal
	message := err.Error()
	var apiErr *caption.Error
	if errors.As(err, &apiErr) {
		code = apiErr.Code
		if apiErr.Message != "" {
			message = apiErr.Message
		}
	}
	if markErr := m.failJob(ctx, jobID, code, message); markErr != nil {
		return errors.Join(err, markErr)
	}
	return fmt.Errorf("job %s failed: %v: %w", jobID, err, asynq.SkipRetry)
}

// asynqLogger は asynq のログを標準 log.Logger に流します。
type asynqLogger struct {
	l *log.Logger
}

func (a asynqLogger) Debug(args ...any) {}
func (a asynqLogger) Info(args ...any)  { a.l.Print(append([]any{"asynq: "}, args...)...) }
func (a asynqLogger) Warn(args ...any)  { a.l.Print(append([]any{"asynq warn: "}, args...)...) }
func (a asynqLogger) Error(args ...any) { a.l.Print(append([]any{"asynq error: "}, args...)...) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal(append([]any{"asynq fatal: "}, args...)...) }
