package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"online_exam_backend/internal/config"
	"online_exam_backend/internal/model"
)

var (
	ErrExamNotInProgress    = errors.New("exam is not in progress")
	ErrExamAlreadyStarted   = errors.New("exam has already been started")
	ErrQuestionNotFound     = errors.New("question not found in exam paper")
	ErrInvalidQuestionIndex = errors.New("question index out of range")
)

// CompletionTrigger 交卷来源
type CompletionTrigger string

const (
	TriggerManual  CompletionTrigger = "manual"
	TriggerTimeout CompletionTrigger = "timeout"
)

// SessionConfig 单场考试的计时与计分参数，开考时从 ExamConfig 固化
type SessionConfig struct {
	TimeLimit      time.Duration
	TickInterval   time.Duration
	PassPercentage float64
	PercentageBase string
}

func SessionConfigFrom(cfg config.ExamConfig) SessionConfig {
	return SessionConfig{
		TimeLimit:      cfg.TimeLimit(),
		TickInterval:   cfg.TickInterval(),
		PassPercentage: cfg.PassPercentage,
		PercentageBase: cfg.PercentageBase,
	}
}

type Progress struct {
	Answered   int     `json:"answered"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// CompletionHook 完成后（锁外）回调，返回持久化错误
type CompletionHook func(s *ExamSession, result model.ExamResult, trigger CompletionTrigger) error

// ExamSession 一次考试：一份试卷、一个状态、一个计时器，所有修改经同一把锁串行化
type ExamSession struct {
	ID         string
	UserID     uint
	Difficulty Difficulty

	paper *model.ExamPaper
	cfg   SessionConfig
	now   func() time.Time

	mu         sync.Mutex
	state      model.ExamState
	result     *model.ExamResult
	trigger    CompletionTrigger
	persisted  bool
	persistErr error
	cancel     context.CancelFunc
	done       chan struct{}
	subs       map[int]chan model.ExamState
	nextSub    int
	abandoned  bool

	onComplete CompletionHook
}

func NewExamSession(id string, userID uint, paper *model.ExamPaper, cfg SessionConfig) *ExamSession {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &ExamSession{
		ID:     id,
		UserID: userID,
		paper:  paper,
		cfg:    cfg,
		now:    time.Now,
		state: model.ExamState{
			Status:          model.ExamNotStarted,
			TimeLimitMs:     cfg.TimeLimit.Milliseconds(),
			TimeRemainingMs: cfg.TimeLimit.Milliseconds(),
			Answers:         map[string]model.Answer{},
			WrongQuestions:  []string{},
		},
		done: make(chan struct{}),
		subs: map[int]chan model.ExamState{},
	}
}

// OnComplete 需在 Start 之前设置
func (s *ExamSession) OnComplete(hook CompletionHook) {
	s.mu.Lock()
	s.onComplete = hook
	s.mu.Unlock()
}

func (s *ExamSession) Paper() *model.ExamPaper {
	return s.paper
}

// Done 考试结束（交卷、超时或被放弃）后关闭
func (s *ExamSession) Done() <-chan struct{} {
	return s.done
}

func (s *ExamSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != model.ExamNotStarted {
		return ErrExamAlreadyStarted
	}
	now := s.now()
	s.state.Status = model.ExamInProgress
	s.state.StartTime = &now
	s.state.TimeRemainingMs = s.cfg.TimeLimit.Milliseconds()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.countdown(ctx)

	s.publishLocked()
	return nil
}

func (s *ExamSession) countdown(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.tick() {
				return
			}
		}
	}
}

// tick 返回 true 表示考试已结束
func (s *ExamSession) tick() bool {
	s.mu.Lock()
	if s.state.Status != model.ExamInProgress || s.abandoned {
		s.mu.Unlock()
		return true
	}
	s.state.TimeRemainingMs -= s.cfg.TickInterval.Milliseconds()
	if s.state.TimeRemainingMs > 0 {
		s.publishLocked()
		s.mu.Unlock()
		return false
	}

	s.state.TimeRemainingMs = 0
	result := s.completeLocked(TriggerTimeout)
	hook := s.onComplete
	s.mu.Unlock()

	s.afterComplete(hook, result, TriggerTimeout)
	return true
}

// SubmitAnswer 记录作答，同一题以最后一次为准
func (s *ExamSession) SubmitAnswer(questionID string, value model.AnswerValue) (model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInProgressLocked(); err != nil {
		return model.Answer{}, err
	}
	q, ok := s.paper.FindQuestion(questionID)
	if !ok {
		return model.Answer{}, fmt.Errorf("%w: %s", ErrQuestionNotFound, questionID)
	}

	answer := model.Answer{
		QuestionID: questionID,
		UserAnswer: value,
		IsCorrect:  CheckAnswer(*q, value),
		Timestamp:  s.now(),
	}
	s.state.Answers[questionID] = answer
	s.publishLocked()
	return answer, nil
}

func (s *ExamSession) Navigate(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInProgressLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.paper.Questions) {
		return fmt.Errorf("%w: %d", ErrInvalidQuestionIndex, index)
	}
	s.state.CurrentQuestion = index
	s.publishLocked()
	return nil
}

func (s *ExamSession) checkInProgressLocked() error {
	if s.abandoned || s.state.Status != model.ExamInProgress {
		return ErrExamNotInProgress
	}
	return nil
}

// Complete 手动交卷；已完成时直接返回已有结果
func (s *ExamSession) Complete() (model.ExamResult, error) {
	s.mu.Lock()
	if s.result != nil {
		result := *s.result
		s.mu.Unlock()
		return result, nil
	}
	if err := s.checkInProgressLocked(); err != nil {
		s.mu.Unlock()
		return model.ExamResult{}, err
	}
	result := s.completeLocked(TriggerManual)
	hook := s.onComplete
	s.mu.Unlock()

	s.afterComplete(hook, result, TriggerManual)
	return result, nil
}

func (s *ExamSession) completeLocked(trigger CompletionTrigger) model.ExamResult {
	if s.cancel != nil {
		s.cancel()
	}

	report := GradeExam(s.paper, s.state.Answers)
	for id, a := range s.state.Answers {
		a.IsCorrect = report.Correctness[id]
		s.state.Answers[id] = a
	}

	end := s.now()
	s.state.Status = model.ExamCompleted
	s.state.EndTime = &end
	s.state.Score = report.Score
	s.state.WrongQuestions = report.WrongQuestionIDs

	percentage := Percentage(report.Score, s.paper, s.cfg.PercentageBase)
	passed := Passed(percentage, s.cfg.PassPercentage)
	result := model.ExamResult{
		ExamState:  s.state.Clone(),
		Percentage: percentage,
		Passed:     passed,
		Message:    ResultMessage(percentage, passed),
	}
	s.result = &result
	s.trigger = trigger
	return result
}

// afterComplete 锁外执行持久化回调，然后推送最终状态并关闭订阅
func (s *ExamSession) afterComplete(hook CompletionHook, result model.ExamResult, trigger CompletionTrigger) {
	var err error
	if hook != nil {
		err = hook(s, result, trigger)
	}

	s.mu.Lock()
	s.persisted = hook != nil && err == nil
	s.persistErr = err
	s.publishLocked()
	s.closeSubsLocked()
	close(s.done)
	s.mu.Unlock()
}

// abandon 放弃未完成的考试，不评分不落库
func (s *ExamSession) abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.abandoned || s.state.Status != model.ExamInProgress {
		return false
	}
	s.abandoned = true
	if s.cancel != nil {
		s.cancel()
	}
	s.closeSubsLocked()
	close(s.done)
	return true
}

func (s *ExamSession) State() model.ExamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Result 未完成时返回 false
func (s *ExamSession) Result() (model.ExamResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return model.ExamResult{}, false
	}
	return *s.result, true
}

// Persistence 成绩是否已保存及保存失败原因
func (s *ExamSession) Persistence() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted, s.persistErr
}

func (s *ExamSession) Trigger() CompletionTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trigger
}

func (s *ExamSession) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Progress{Total: len(s.paper.Questions)}
	for _, a := range s.state.Answers {
		if !a.UserAnswer.IsEmpty() {
			p.Answered++
		}
	}
	if p.Total > 0 {
		p.Percentage = roundTo(float64(p.Answered)/float64(p.Total)*100, 2)
	}
	return p
}

// FormatRemaining 剩余时间 mm:ss
func (s *ExamSession) FormatRemaining() string {
	s.mu.Lock()
	ms := s.state.TimeRemainingMs
	s.mu.Unlock()
	return FormatDuration(ms)
}

func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Subscribe 返回状态快照通道，只保留最新快照；考试结束后通道关闭
func (s *ExamSession) Subscribe() (<-chan model.ExamState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan model.ExamState, 1)
	ch <- s.state.Clone()

	if s.isClosedLocked() {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *ExamSession) isClosedLocked() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *ExamSession) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	for _, ch := range s.subs {
		// 每个订阅者独立一份快照，互不共享 map
		snap := s.state.Clone()
		select {
		case ch <- snap:
		default:
			// 丢弃未读的旧快照
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *ExamSession) closeSubsLocked() {
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
