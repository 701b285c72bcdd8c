package model

import (
	"encoding/json"
	"time"
)

// swagger:model ExamRecord
type ExamRecord struct {
	BaseModel
	UserID     uint      `gorm:"index;not null" json:"userId"`
	ExamID     string    `gorm:"size:64;index;not null" json:"examId"`
	Score      float64   `gorm:"not null" json:"score"`
	TotalScore float64   `gorm:"not null" json:"totalScore"`
	Percentage float64   `gorm:"not null" json:"percentage"`
	Passed     bool      `gorm:"not null" json:"passed"`
	StartTime  time.Time `gorm:"not null" json:"startTime"`
	EndTime    time.Time `gorm:"not null" json:"endTime"`
	TimeUsed   int64     `gorm:"not null" json:"timeUsed"` // 秒
}

func (ExamRecord) TableName() string {
	return "exam_records"
}

// WrongQuestion 错题快照，题目内容冗余存储，题库更新后仍可回看
type WrongQuestion struct {
	BaseModel
	UserID          uint         `gorm:"index:idx_wrong_user_record,priority:1;not null" json:"userId"`
	ExamRecordID    uint         `gorm:"index:idx_wrong_user_record,priority:2;index;not null" json:"examRecordId"`
	QuestionID      string       `gorm:"size:100;not null" json:"questionId"`
	QuestionType    QuestionType `gorm:"size:20;index;not null" json:"type"`
	Category        string       `gorm:"size:100" json:"category"`
	QuestionText    string       `gorm:"type:text;not null" json:"question"`
	QuestionOptions string       `gorm:"type:text;not null" json:"options"` // JSON 数组
	CorrectAnswer   string       `gorm:"size:100;not null" json:"correctAnswer"`
	UserAnswer      string       `gorm:"size:255" json:"userAnswer"`
	QuestionScore   float64      `gorm:"not null" json:"score"`
}

func (WrongQuestion) TableName() string {
	return "wrong_questions"
}

// UserStats 每位用户一行的累计统计
type UserStats struct {
	BaseModel
	UserID         uint       `gorm:"uniqueIndex;not null" json:"userId"`
	TotalExams     int        `gorm:"default:0" json:"total_exams"`
	TotalQuestions int        `gorm:"default:0" json:"total_questions"`
	TotalWrong     int        `gorm:"default:0" json:"total_wrong"`
	AvgScore       float64    `gorm:"default:0" json:"avg_score"`
	BestScore      float64    `gorm:"default:0" json:"best_score"`
	LastExamDate   *time.Time `json:"last_exam_date,omitempty"`
}

func (UserStats) TableName() string {
	return "user_stats"
}

// WrongQuestionView 错题与考试上下文联表查询结果
type WrongQuestionView struct {
	ID             uint         `json:"id"`
	QuestionID     string       `json:"questionId"`
	Type           QuestionType `json:"type"`
	Category       string       `json:"category"`
	Question       string       `json:"question"`
	OptionsJSON    string       `gorm:"column:options" json:"-"`
	Options        []string     `gorm:"-" json:"options"`
	CorrectAnswer  string       `json:"correctAnswer"`
	UserAnswer     string       `json:"userAnswer"`
	Score          float64      `json:"score"`
	ExamScore      float64      `json:"examScore"`
	ExamPercentage float64      `json:"examPercentage"`
	ExamDate       time.Time    `json:"examDate"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// EncodeOptions 选项序列化为 JSON 文本存库
func EncodeOptions(options []string) string {
	if options == nil {
		options = []string{}
	}
	data, _ := json.Marshal(options)
	return string(data)
}

// DecodeOptions 解析失败时返回空列表
func DecodeOptions(raw string) []string {
	opts := []string{}
	if raw == "" {
		return opts
	}
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return []string{}
	}
	return opts
}
