package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type QuestionType string

const (
	QuestionSingle    QuestionType = "single"
	QuestionTrueFalse QuestionType = "trueFalse"
	QuestionMultiple  QuestionType = "multiple"
)

// 判断题的规范选项
const (
	TrueToken  = "对"
	FalseToken = "错"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingle, QuestionTrueFalse, QuestionMultiple:
		return true
	}
	return false
}

// Label 题型中文名称
func (t QuestionType) Label() string {
	switch t {
	case QuestionSingle:
		return "单选题"
	case QuestionTrueFalse:
		return "判断题"
	case QuestionMultiple:
		return "多选题"
	default:
		return "未知类型"
	}
}

// Priority 试卷中的题型顺序：单选 → 判断 → 多选
func (t QuestionType) Priority() int {
	switch t {
	case QuestionSingle:
		return 0
	case QuestionTrueFalse:
		return 1
	case QuestionMultiple:
		return 2
	default:
		return 99
	}
}

// ScoreFor 多选题 1.5 分，其余 1 分
func ScoreFor(t QuestionType) float64 {
	if t == QuestionMultiple {
		return 1.5
	}
	return 1
}

// swagger:model Question
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Category      string       `json:"category"`
	Question      string       `json:"question"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correctAnswer"`
	Score         float64      `json:"score"`
}

type QuestionBank struct {
	Questions []Question `json:"questions"`
}

// swagger:model ExamPaper
type ExamPaper struct {
	ID          string     `json:"id"`
	Questions   []Question `json:"questions"`
	TotalScore  float64    `json:"totalScore"`
	GeneratedAt time.Time  `json:"generatedAt"`
}

// FindQuestion 按题目ID查找试卷中的题目
func (p *ExamPaper) FindQuestion(id string) (*Question, bool) {
	for i := range p.Questions {
		if p.Questions[i].ID == id {
			return &p.Questions[i], true
		}
	}
	return nil, false
}

// Redacted 去掉正确答案的副本，用于考试进行中下发给前端
func (p *ExamPaper) Redacted() ExamPaper {
	out := *p
	out.Questions = make([]Question, len(p.Questions))
	for i, q := range p.Questions {
		q.CorrectAnswer = ""
		out.Questions[i] = q
	}
	return out
}

// AnswerValue 用户作答，既可以是单个字符串也可以是字符串数组
type AnswerValue struct {
	Text   string
	List   []string
	IsList bool
}

func StringAnswer(s string) AnswerValue {
	return AnswerValue{Text: s}
}

func ListAnswer(values ...string) AnswerValue {
	return AnswerValue{List: values, IsList: true}
}

func (v AnswerValue) IsEmpty() bool {
	if v.IsList {
		for _, s := range v.List {
			if strings.TrimSpace(s) != "" {
				return false
			}
		}
		return true
	}
	return strings.TrimSpace(v.Text) == ""
}

// String 存库时使用的扁平表示
func (v AnswerValue) String() string {
	if v.IsList {
		return strings.Join(v.List, ",")
	}
	return v.Text
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.IsList {
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	}
	return json.Marshal(v.Text)
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*v = AnswerValue{}
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*v = ListAnswer(list...)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("answer must be a string or an array of strings")
	}
	*v = StringAnswer(s)
	return nil
}

type Answer struct {
	QuestionID string      `json:"questionId"`
	UserAnswer AnswerValue `json:"userAnswer"`
	IsCorrect  bool        `json:"isCorrect"`
	Timestamp  time.Time   `json:"timestamp"`
}

type ExamScore struct {
	Total          float64 `json:"total"`
	SingleChoice   float64 `json:"singleChoice"`
	TrueFalse      float64 `json:"trueFalse"`
	MultipleChoice float64 `json:"multipleChoice"`
}

// Add 将得分计入总分及对应题型
func (s *ExamScore) Add(t QuestionType, score float64) {
	s.Total += score
	switch t {
	case QuestionSingle:
		s.SingleChoice += score
	case QuestionTrueFalse:
		s.TrueFalse += score
	case QuestionMultiple:
		s.MultipleChoice += score
	}
}

type ExamStatus string

const (
	ExamNotStarted ExamStatus = "notStarted"
	ExamInProgress ExamStatus = "inProgress"
	ExamCompleted  ExamStatus = "completed"
)

// swagger:model ExamState
type ExamState struct {
	Status          ExamStatus        `json:"status"`
	StartTime       *time.Time        `json:"startTime,omitempty"`
	EndTime         *time.Time        `json:"endTime,omitempty"`
	TimeLimitMs     int64             `json:"timeLimit"`
	TimeRemainingMs int64             `json:"timeRemaining"`
	CurrentQuestion int               `json:"currentQuestion"`
	Answers         map[string]Answer `json:"answers"`
	Score           ExamScore         `json:"score"`
	WrongQuestions  []string          `json:"wrongQuestions"`
}

// Clone 深拷贝，用于向订阅者发布快照
func (s ExamState) Clone() ExamState {
	out := s
	if s.StartTime != nil {
		t := *s.StartTime
		out.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	out.Answers = make(map[string]Answer, len(s.Answers))
	for k, a := range s.Answers {
		if a.UserAnswer.IsList {
			a.UserAnswer.List = append([]string(nil), a.UserAnswer.List...)
		}
		out.Answers[k] = a
	}
	out.WrongQuestions = append([]string(nil), s.WrongQuestions...)
	return out
}

// swagger:model ExamResult
type ExamResult struct {
	ExamState  ExamState `json:"examState"`
	Percentage float64   `json:"percentage"`
	Passed     bool      `json:"passed"`
	Message    string    `json:"message"`
}
