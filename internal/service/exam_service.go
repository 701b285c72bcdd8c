package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"online_exam_backend/internal/config"
	"online_exam_backend/internal/model"
	"online_exam_backend/internal/repository"
	"online_exam_backend/pkg/logger"

	"go.uber.org/zap"
)

var ErrInvalidSubmission = errors.New("invalid exam submission")

// WrongQuestionPayload 客户端提交的错题快照
type WrongQuestionPayload struct {
	ID            string             `json:"id" binding:"required"`
	Type          model.QuestionType `json:"type" binding:"required"`
	Category      string             `json:"category"`
	Question      string             `json:"question" binding:"required"`
	Options       []string           `json:"options"`
	CorrectAnswer string             `json:"correctAnswer"`
	UserAnswer    model.AnswerValue  `json:"userAnswer" swaggertype:"string"`
	Score         float64            `json:"score"`
}

// SubmitExamRequest 客户端自行评分后的提交格式
type SubmitExamRequest struct {
	ExamID         string                 `json:"examId" binding:"required"`
	Score          *float64               `json:"score" binding:"required"`
	TotalScore     *float64               `json:"totalScore" binding:"required"`
	StartTime      time.Time              `json:"startTime" binding:"required"`
	EndTime        time.Time              `json:"endTime" binding:"required"`
	WrongQuestions []WrongQuestionPayload `json:"wrongQuestions"`
	QuestionCount  int                    `json:"questionCount"`
}

type SubmitExamResponse struct {
	ExamRecordID uint    `json:"examRecordId"`
	Score        float64 `json:"score"`
	Percentage   float64 `json:"percentage"`
	Passed       bool    `json:"passed"`
}

type ExamService struct {
	Repo     *repository.ExamRepository
	Settings *config.ExamSettings
}

func NewExamService(repo *repository.ExamRepository, settings *config.ExamSettings) *ExamService {
	return &ExamService{Repo: repo, Settings: settings}
}

// SubmitExamResult 保存客户端计算好的成绩，百分比按 score/totalScore 计算
func (s *ExamService) SubmitExamResult(ctx context.Context, userID uint, req SubmitExamRequest) (*SubmitExamResponse, error) {
	if req.TotalScore == nil || *req.TotalScore <= 0 {
		return nil, fmt.Errorf("%w: totalScore must be positive", ErrInvalidSubmission)
	}
	if req.Score == nil || *req.Score < 0 {
		return nil, fmt.Errorf("%w: score must not be negative", ErrInvalidSubmission)
	}
	if req.EndTime.Before(req.StartTime) {
		return nil, fmt.Errorf("%w: endTime before startTime", ErrInvalidSubmission)
	}

	percentage := roundTo(*req.Score / *req.TotalScore * 100, 2)
	passed := Passed(percentage, s.Settings.Get().PassPercentage)

	record := &model.ExamRecord{
		UserID:     userID,
		ExamID:     req.ExamID,
		Score:      *req.Score,
		TotalScore: *req.TotalScore,
		Percentage: percentage,
		Passed:     passed,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		TimeUsed:   int64(req.EndTime.Sub(req.StartTime) / time.Second),
	}

	wrongs := make([]model.WrongQuestion, 0, len(req.WrongQuestions))
	for _, w := range req.WrongQuestions {
		wrongs = append(wrongs, model.WrongQuestion{
			QuestionID:      w.ID,
			QuestionType:    w.Type,
			Category:        w.Category,
			QuestionText:    w.Question,
			QuestionOptions: model.EncodeOptions(w.Options),
			CorrectAnswer:   w.CorrectAnswer,
			UserAnswer:      w.UserAnswer.String(),
			QuestionScore:   w.Score,
		})
	}

	// 未提供题目数时沿用总分取整
	questionCount := req.QuestionCount
	if questionCount <= 0 {
		questionCount = int(*req.TotalScore + 0.5)
	}

	if err := s.Repo.SaveSubmission(ctx, record, wrongs, questionCount); err != nil {
		return nil, fmt.Errorf("save exam submission: %w", err)
	}

	logger.Log.Info("exam result submitted",
		zap.Uint("userID", userID),
		zap.String("examID", req.ExamID),
		zap.Float64("percentage", percentage),
	)
	return &SubmitExamResponse{
		ExamRecordID: record.ID,
		Score:        *req.Score,
		Percentage:   percentage,
		Passed:       passed,
	}, nil
}

// SaveSessionResult 服务端考试完成后的持久化
func (s *ExamService) SaveSessionResult(ctx context.Context, userID uint, paper *model.ExamPaper, result model.ExamResult) (uint, error) {
	state := result.ExamState
	if state.StartTime == nil || state.EndTime == nil {
		return 0, fmt.Errorf("%w: exam state has no start or end time", ErrInvalidSubmission)
	}

	record := &model.ExamRecord{
		UserID:     userID,
		ExamID:     paper.ID,
		Score:      state.Score.Total,
		TotalScore: paper.TotalScore,
		Percentage: result.Percentage,
		Passed:     result.Passed,
		StartTime:  *state.StartTime,
		EndTime:    *state.EndTime,
		TimeUsed:   int64(state.EndTime.Sub(*state.StartTime) / time.Second),
	}

	wrongs := make([]model.WrongQuestion, 0, len(state.WrongQuestions))
	for _, id := range state.WrongQuestions {
		q, ok := paper.FindQuestion(id)
		if !ok {
			continue
		}
		wrongs = append(wrongs, model.WrongQuestion{
			QuestionID:      baseQuestionID(q.ID),
			QuestionType:    q.Type,
			Category:        q.Category,
			QuestionText:    q.Question,
			QuestionOptions: model.EncodeOptions(q.Options),
			CorrectAnswer:   q.CorrectAnswer,
			UserAnswer:      state.Answers[id].UserAnswer.String(),
			QuestionScore:   q.Score,
		})
	}

	if err := s.Repo.SaveSubmission(ctx, record, wrongs, len(paper.Questions)); err != nil {
		return 0, fmt.Errorf("save exam session %s: %w", paper.ID, err)
	}
	return record.ID, nil
}

func (s *ExamService) ListWrongQuestions(ctx context.Context, userID uint, page, limit int, qtype model.QuestionType) ([]model.WrongQuestionView, int64, error) {
	if qtype != "" && !qtype.Valid() {
		qtype = ""
	}
	return s.Repo.ListWrongQuestions(ctx, repository.WrongQuestionFilter{
		UserID: userID,
		Type:   qtype,
		Page:   page,
		Limit:  limit,
	})
}

func (s *ExamService) GetUserStats(ctx context.Context, userID uint) (*repository.UserStatsView, error) {
	return s.Repo.GetUserStats(ctx, userID)
}

func (s *ExamService) ListHistory(ctx context.Context, userID uint, page, limit int) ([]model.ExamRecord, int64, error) {
	return s.Repo.ListHistory(ctx, userID, page, limit)
}
