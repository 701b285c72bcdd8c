package repository

import (
	"context"
	"errors"
	"time"

	"online_exam_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

// SaveSubmission 一次提交的考试记录、错题、统计在同一事务内写入
func (r *ExamRepository) SaveSubmission(ctx context.Context, record *model.ExamRecord, wrongs []model.WrongQuestion, questionCount int) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		if len(wrongs) > 0 {
			for i := range wrongs {
				wrongs[i].UserID = record.UserID
				wrongs[i].ExamRecordID = record.ID
			}
			if err := tx.CreateInBatches(wrongs, 100).Error; err != nil {
				return err
			}
		}

		return upsertUserStats(tx, record, len(wrongs), questionCount)
	})
}

func upsertUserStats(tx *gorm.DB, record *model.ExamRecord, wrongCount, questionCount int) error {
	var agg struct {
		Avg  float64
		Best float64
	}
	if err := tx.Model(&model.ExamRecord{}).
		Select("COALESCE(AVG(score), 0) AS avg, COALESCE(MAX(score), 0) AS best").
		Where("user_id = ?", record.UserID).
		Scan(&agg).Error; err != nil {
		return err
	}

	// 首次提交时并发插入统计行，冲突即跳过，随后原子累加
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&model.UserStats{UserID: record.UserID}).Error; err != nil {
		return err
	}

	return tx.Model(&model.UserStats{}).
		Where("user_id = ?", record.UserID).
		Updates(map[string]interface{}{
			"total_exams":     gorm.Expr("total_exams + ?", 1),
			"total_questions": gorm.Expr("total_questions + ?", questionCount),
			"total_wrong":     gorm.Expr("total_wrong + ?", wrongCount),
			"avg_score":       agg.Avg,
			"best_score":      agg.Best,
			"last_exam_date":  record.EndTime,
		}).Error
}

type WrongQuestionFilter struct {
	UserID uint
	Type   model.QuestionType
	Page   int
	Limit  int
}

// ListWrongQuestions 错题联表考试记录，按错题时间倒序
func (r *ExamRepository) ListWrongQuestions(ctx context.Context, f WrongQuestionFilter) ([]model.WrongQuestionView, int64, error) {
	base := r.DB.WithContext(ctx).Table("wrong_questions wq").
		Where("wq.user_id = ? AND wq.deleted_at IS NULL", f.UserID)
	if f.Type != "" {
		base = base.Where("wq.question_type = ?", f.Type)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := base.Session(&gorm.Session{}).
		Select("wq.id, wq.question_id, wq.question_type AS type, wq.category, " +
			"wq.question_text AS question, wq.question_options AS options, wq.correct_answer, " +
			"wq.user_answer, wq.question_score AS score, er.score AS exam_score, " +
			"er.percentage AS exam_percentage, er.created_at AS exam_date, wq.created_at").
		Joins("JOIN exam_records er ON wq.exam_record_id = er.id").
		Order("wq.created_at DESC, wq.id DESC")
	if f.Limit > 0 {
		query = query.Offset((f.Page - 1) * f.Limit).Limit(f.Limit)
	}

	var rows []model.WrongQuestionView
	if err := query.Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	for i := range rows {
		rows[i].Options = model.DecodeOptions(rows[i].OptionsJSON)
	}
	return rows, total, nil
}

// UserStatsView 统计行加上错题总数
type UserStatsView struct {
	TotalExams           int        `json:"total_exams"`
	TotalQuestions       int        `json:"total_questions"`
	TotalWrong           int        `json:"total_wrong"`
	AvgScore             float64    `json:"avg_score"`
	BestScore            float64    `json:"best_score"`
	LastExamDate         *time.Time `json:"last_exam_date,omitempty"`
	UniqueWrongQuestions int64      `json:"unique_wrong_questions"`
}

func (r *ExamRepository) GetUserStats(ctx context.Context, userID uint) (*UserStatsView, error) {
	view := &UserStatsView{}
	db := r.DB.WithContext(ctx)

	var stats model.UserStats
	err := db.Where("user_id = ?", userID).First(&stats).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		view.TotalExams = stats.TotalExams
		view.TotalQuestions = stats.TotalQuestions
		view.TotalWrong = stats.TotalWrong
		view.AvgScore = stats.AvgScore
		view.BestScore = stats.BestScore
		view.LastExamDate = stats.LastExamDate
	}

	if err := db.Model(&model.WrongQuestion{}).
		Where("user_id = ?", userID).
		Distinct("question_id").
		Count(&view.UniqueWrongQuestions).Error; err != nil {
		return nil, err
	}
	return view, nil
}

func (r *ExamRepository) ListHistory(ctx context.Context, userID uint, page, limit int) ([]model.ExamRecord, int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.ExamRecord{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []model.ExamRecord
	err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error
	return records, total, err
}
