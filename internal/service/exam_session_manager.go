package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"online_exam_backend/internal/config"
	"online_exam_backend/internal/model"
	"online_exam_backend/pkg/logger"
	"online_exam_backend/pkg/monitoring"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound  = errors.New("exam session not found")
	ErrSessionForbidden = errors.New("exam session belongs to another user")
)

// ResultRecorder 持久化已完成的考试
type ResultRecorder interface {
	SaveSessionResult(ctx context.Context, userID uint, paper *model.ExamPaper, result model.ExamResult) (uint, error)
}

// PaperGenerator 组卷
type PaperGenerator interface {
	GenerateExamPaper(ctx context.Context, opts GenerateOptions) (*model.ExamPaper, error)
}

type ExamSessionManager struct {
	Papers   PaperGenerator
	Recorder ResultRecorder
	Settings *config.ExamSettings

	SaveTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*ExamSession
	active   map[uint]string
}

func NewExamSessionManager(papers PaperGenerator, recorder ResultRecorder, settings *config.ExamSettings) *ExamSessionManager {
	return &ExamSessionManager{
		Papers:      papers,
		Recorder:    recorder,
		Settings:    settings,
		SaveTimeout: 10 * time.Second,
		sessions:    map[string]*ExamSession{},
		active:      map[uint]string{},
	}
}

// StartExam 组卷并开考，同一用户未完成的上一场考试被放弃
func (m *ExamSessionManager) StartExam(ctx context.Context, userID uint, opts GenerateOptions) (*ExamSession, error) {
	paper, err := m.Papers.GenerateExamPaper(ctx, opts)
	if err != nil {
		return nil, err
	}

	session := NewExamSession(uuid.NewString(), userID, paper, SessionConfigFrom(m.Settings.Get()))
	session.Difficulty = opts.Difficulty
	session.OnComplete(m.handleCompletion)

	m.mu.Lock()
	if prevID, ok := m.active[userID]; ok {
		if prev := m.sessions[prevID]; prev != nil && prev.abandon() {
			delete(m.sessions, prevID)
			monitoring.ActiveSessions.Dec()
			logger.Log.Info("previous exam abandoned",
				zap.Uint("userID", userID),
				zap.String("sessionID", prevID),
			)
		}
	}
	m.sessions[session.ID] = session
	m.active[userID] = session.ID
	m.mu.Unlock()

	monitoring.ActiveSessions.Inc()
	if err := session.Start(); err != nil {
		monitoring.ActiveSessions.Dec()
		return nil, err
	}

	logger.Log.Info("exam started",
		zap.Uint("userID", userID),
		zap.String("sessionID", session.ID),
		zap.String("paperID", paper.ID),
		zap.Int("questions", len(paper.Questions)),
	)
	return session, nil
}

// Get 按ID查找考试并校验归属
func (m *ExamSessionManager) Get(userID uint, sessionID string) (*ExamSession, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	m.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.UserID != userID {
		return nil, ErrSessionForbidden
	}
	return session, nil
}

// handleCompletion 手动交卷和超时交卷都经此落库；失败只记录日志，成绩照常返回
func (m *ExamSessionManager) handleCompletion(s *ExamSession, result model.ExamResult, trigger CompletionTrigger) error {
	monitoring.ActiveSessions.Dec()
	monitoring.ExamsCompleted.WithLabelValues(string(trigger), strconv.FormatBool(result.Passed)).Inc()

	m.mu.Lock()
	if m.active[s.UserID] == s.ID {
		delete(m.active, s.UserID)
	}
	m.mu.Unlock()

	if m.Recorder == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.SaveTimeout)
	defer cancel()

	recordID, err := m.Recorder.SaveSessionResult(ctx, s.UserID, s.Paper(), result)
	if err != nil {
		monitoring.PersistFailures.Inc()
		logger.Log.Error("failed to persist exam result",
			zap.Uint("userID", s.UserID),
			zap.String("sessionID", s.ID),
			zap.String("trigger", string(trigger)),
			zap.Error(err),
		)
		return err
	}

	logger.Log.Info("exam completed",
		zap.Uint("userID", s.UserID),
		zap.String("sessionID", s.ID),
		zap.String("trigger", string(trigger)),
		zap.Uint("examRecordID", recordID),
		zap.Float64("score", result.ExamState.Score.Total),
		zap.Float64("percentage", result.Percentage),
	)
	return nil
}

// PurgeFinished 清理结束时间早于保留期的考试，返回清理数量
func (m *ExamSessionManager) PurgeFinished(now time.Time) int {
	retention := m.Settings.Get().SessionRetention()

	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, s := range m.sessions {
		state := s.State()
		if state.Status != model.ExamCompleted || state.EndTime == nil {
			continue
		}
		if now.Sub(*state.EndTime) < retention {
			continue
		}
		delete(m.sessions, id)
		purged++
	}
	return purged
}

// Shutdown 停止所有进行中的考试计时
func (m *ExamSessionManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.abandon() {
			monitoring.ActiveSessions.Dec()
		}
		delete(m.sessions, id)
	}
	m.active = map[uint]string{}
}

func (m *ExamSessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
