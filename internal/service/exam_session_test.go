package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"online_exam_backend/internal/config"
	"online_exam_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoQuestionPaper() *model.ExamPaper {
	return &model.ExamPaper{
		ID: "exam_test",
		Questions: []model.Question{
			{ID: "q_1", Type: model.QuestionSingle, Question: "题一", Options: []string{"甲", "乙"}, CorrectAnswer: "A", Score: 1},
			{ID: "q_2", Type: model.QuestionSingle, Question: "题二", Options: []string{"甲", "乙"}, CorrectAnswer: "B", Score: 1},
		},
		TotalScore: 2,
	}
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		TimeLimit:      time.Hour,
		TickInterval:   time.Second,
		PassPercentage: 60,
		PercentageBase: config.PercentageBaseFixed,
	}
}

func waitDone(t *testing.T, s *ExamSession) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("exam session did not finish")
	}
}

func TestExamSession_EndToEnd(t *testing.T) {
	s := NewExamSession("sess-1", 7, twoQuestionPaper(), testSessionConfig())

	var calls int32
	s.OnComplete(func(_ *ExamSession, _ model.ExamResult, trigger CompletionTrigger) error {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, TriggerManual, trigger)
		return nil
	})

	assert.Equal(t, model.ExamNotStarted, s.State().Status)
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrExamAlreadyStarted)

	_, err := s.SubmitAnswer("q_1", model.StringAnswer("A"))
	require.NoError(t, err)
	answer, err := s.SubmitAnswer("q_2", model.StringAnswer("B"))
	require.NoError(t, err)
	assert.True(t, answer.IsCorrect)
	require.NoError(t, s.Navigate(1))

	progress := s.Progress()
	assert.Equal(t, Progress{Answered: 2, Total: 2, Percentage: 100}, progress)

	result, err := s.Complete()
	require.NoError(t, err)
	assert.Equal(t, model.ExamCompleted, result.ExamState.Status)
	assert.Equal(t, 2.0, result.ExamState.Score.Total)
	assert.Equal(t, 2.0, result.Percentage)
	assert.False(t, result.Passed)
	assert.Empty(t, result.ExamState.WrongQuestions)
	assert.Equal(t, 1, result.ExamState.CurrentQuestion)
	require.NotNil(t, result.ExamState.EndTime)

	waitDone(t, s)

	again, err := s.Complete()
	require.NoError(t, err)
	assert.Equal(t, result, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	persisted, persistErr := s.Persistence()
	assert.True(t, persisted)
	assert.NoError(t, persistErr)
	assert.Equal(t, TriggerManual, s.Trigger())
}

func TestExamSession_UnansweredAreWrong(t *testing.T) {
	s := NewExamSession("sess-2", 1, twoQuestionPaper(), testSessionConfig())
	require.NoError(t, s.Start())

	_, err := s.SubmitAnswer("q_1", model.StringAnswer("B"))
	require.NoError(t, err)

	result, err := s.Complete()
	require.NoError(t, err)
	assert.Zero(t, result.ExamState.Score.Total)
	assert.Equal(t, []string{"q_1", "q_2"}, result.ExamState.WrongQuestions)
	assert.False(t, result.ExamState.Answers["q_1"].IsCorrect)
}

func TestExamSession_LastAnswerWins(t *testing.T) {
	s := NewExamSession("sess-3", 1, twoQuestionPaper(), testSessionConfig())
	require.NoError(t, s.Start())

	_, err := s.SubmitAnswer("q_1", model.StringAnswer("B"))
	require.NoError(t, err)
	_, err = s.SubmitAnswer("q_1", model.StringAnswer("A"))
	require.NoError(t, err)

	result, err := s.Complete()
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.ExamState.Score.Total)
}

func TestExamSession_RejectsOperationsOutsideProgress(t *testing.T) {
	s := NewExamSession("sess-4", 1, twoQuestionPaper(), testSessionConfig())

	_, err := s.SubmitAnswer("q_1", model.StringAnswer("A"))
	assert.ErrorIs(t, err, ErrExamNotInProgress)
	assert.ErrorIs(t, s.Navigate(0), ErrExamNotInProgress)
	_, err = s.Complete()
	assert.ErrorIs(t, err, ErrExamNotInProgress)

	require.NoError(t, s.Start())
	_, err = s.SubmitAnswer("missing", model.StringAnswer("A"))
	assert.ErrorIs(t, err, ErrQuestionNotFound)
	assert.ErrorIs(t, s.Navigate(2), ErrInvalidQuestionIndex)
	assert.ErrorIs(t, s.Navigate(-1), ErrInvalidQuestionIndex)

	_, err = s.Complete()
	require.NoError(t, err)

	_, err = s.SubmitAnswer("q_1", model.StringAnswer("A"))
	assert.ErrorIs(t, err, ErrExamNotInProgress)
	assert.ErrorIs(t, s.Navigate(0), ErrExamNotInProgress)
	assert.ErrorIs(t, s.Start(), ErrExamAlreadyStarted)
}

func TestExamSession_TimeoutCompletesOnce(t *testing.T) {
	cfg := testSessionConfig()
	cfg.TimeLimit = 50 * time.Millisecond
	cfg.TickInterval = 10 * time.Millisecond
	s := NewExamSession("sess-5", 1, twoQuestionPaper(), cfg)

	var calls int32
	triggers := make(chan CompletionTrigger, 4)
	s.OnComplete(func(_ *ExamSession, _ model.ExamResult, trigger CompletionTrigger) error {
		atomic.AddInt32(&calls, 1)
		triggers <- trigger
		return nil
	})

	require.NoError(t, s.Start())
	_, err := s.SubmitAnswer("q_2", model.StringAnswer("B"))
	require.NoError(t, err)

	waitDone(t, s)

	result, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, model.ExamCompleted, result.ExamState.Status)
	assert.Zero(t, result.ExamState.TimeRemainingMs)
	assert.Equal(t, 1.0, result.ExamState.Score.Total)
	assert.Equal(t, TriggerTimeout, s.Trigger())

	// 超时后手动交卷返回同一结果，不会再次触发回调
	again, err := s.Complete()
	require.NoError(t, err)
	assert.Equal(t, result, again)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, TriggerTimeout, <-triggers)
}

func TestExamSession_ConcurrentCompleteRunsHookOnce(t *testing.T) {
	s := NewExamSession("sess-6", 1, twoQuestionPaper(), testSessionConfig())
	var calls int32
	s.OnComplete(func(*ExamSession, model.ExamResult, CompletionTrigger) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, s.Start())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.SubmitAnswer("q_1", model.StringAnswer("A"))
			_, _ = s.Complete()
		}()
	}
	wg.Wait()
	waitDone(t, s)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExamSession_PersistFailureStillReturnsResult(t *testing.T) {
	s := NewExamSession("sess-7", 1, twoQuestionPaper(), testSessionConfig())
	s.OnComplete(func(*ExamSession, model.ExamResult, CompletionTrigger) error {
		return errors.New("database is down")
	})
	require.NoError(t, s.Start())

	result, err := s.Complete()
	require.NoError(t, err)
	assert.Equal(t, model.ExamCompleted, result.ExamState.Status)

	persisted, persistErr := s.Persistence()
	assert.False(t, persisted)
	assert.EqualError(t, persistErr, "database is down")
}

func TestExamSession_Subscribe(t *testing.T) {
	s := NewExamSession("sess-8", 1, twoQuestionPaper(), testSessionConfig())
	require.NoError(t, s.Start())

	states, unsubscribe := s.Subscribe()
	defer unsubscribe()

	initial := <-states
	assert.Equal(t, model.ExamInProgress, initial.Status)

	_, err := s.SubmitAnswer("q_1", model.StringAnswer("A"))
	require.NoError(t, err)
	_, err = s.SubmitAnswer("q_2", model.StringAnswer("A"))
	require.NoError(t, err)

	latest := <-states
	assert.Len(t, latest.Answers, 2, "only the newest snapshot is kept")

	_, err = s.Complete()
	require.NoError(t, err)
	waitDone(t, s)

	final, ok := <-states
	require.True(t, ok)
	assert.Equal(t, model.ExamCompleted, final.Status)
	_, ok = <-states
	assert.False(t, ok)

	late, _ := s.Subscribe()
	snap, ok := <-late
	require.True(t, ok)
	assert.Equal(t, model.ExamCompleted, snap.Status)
	_, ok = <-late
	assert.False(t, ok)
}

func TestExamSession_Abandon(t *testing.T) {
	s := NewExamSession("sess-9", 1, twoQuestionPaper(), testSessionConfig())
	var calls int32
	s.OnComplete(func(*ExamSession, model.ExamResult, CompletionTrigger) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, s.Start())

	assert.True(t, s.abandon())
	assert.False(t, s.abandon())
	waitDone(t, s)

	_, err := s.SubmitAnswer("q_1", model.StringAnswer("A"))
	assert.ErrorIs(t, err, ErrExamNotInProgress)
	_, ok := s.Result()
	assert.False(t, ok)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestExamSession_TimerTicksDown(t *testing.T) {
	cfg := testSessionConfig()
	cfg.TimeLimit = time.Minute
	cfg.TickInterval = 10 * time.Millisecond
	s := NewExamSession("sess-10", 1, twoQuestionPaper(), cfg)
	require.NoError(t, s.Start())
	defer s.abandon()

	assert.Eventually(t, func() bool {
		return s.State().TimeRemainingMs < time.Minute.Milliseconds()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "01:00", FormatDuration(cfg.TimeLimit.Milliseconds()))
}

func TestSessionConfigFrom(t *testing.T) {
	cfg := SessionConfigFrom(config.ExamConfig{
		TimeLimitMinutes: 90,
		TickMillis:       0,
		PassPercentage:   60,
		PercentageBase:   config.PercentageBasePaper,
	})
	assert.Equal(t, 90*time.Minute, cfg.TimeLimit)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, 60.0, cfg.PassPercentage)
	assert.Equal(t, config.PercentageBasePaper, cfg.PercentageBase)
}

func TestExamSession_SubscribersGetIndependentSnapshots(t *testing.T) {
	s := NewExamSession("sess-subs", 7, twoQuestionPaper(), testSessionConfig())
	require.NoError(t, s.Start())
	defer s.abandon()

	first, unsubFirst := s.Subscribe()
	defer unsubFirst()
	second, unsubSecond := s.Subscribe()
	defer unsubSecond()

	_, err := s.SubmitAnswer("q_1", model.StringAnswer("A"))
	require.NoError(t, err)

	latest := func(ch <-chan model.ExamState) model.ExamState {
		var state model.ExamState
		for {
			select {
			case state = <-ch:
				if _, ok := state.Answers["q_1"]; ok {
					return state
				}
			case <-time.After(time.Second):
				t.Fatal("no snapshot with answer received")
				return state
			}
		}
	}
	a, b := latest(first), latest(second)

	var wg sync.WaitGroup
	for _, state := range []model.ExamState{a, b} {
		wg.Add(1)
		go func(state model.ExamState) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				RedactState(state)
			}
		}(state)
	}
	wg.Wait()

	delete(a.Answers, "q_1")
	assert.Contains(t, b.Answers, "q_1")
}

func TestRedactState_DoesNotModifyInput(t *testing.T) {
	state := model.ExamState{
		Status:  model.ExamInProgress,
		Answers: map[string]model.Answer{"q_1": {QuestionID: "q_1", IsCorrect: true}},
	}
	redacted := RedactState(state)
	assert.False(t, redacted.Answers["q_1"].IsCorrect)
	assert.True(t, state.Answers["q_1"].IsCorrect)

	state.Status = model.ExamCompleted
	assert.True(t, RedactState(state).Answers["q_1"].IsCorrect)
}
