package service

import (
	"math"
	"strings"
	"unicode"

	"online_exam_backend/internal/config"
	"online_exam_backend/internal/model"
)

// FixedScoreBase 固定百分制：单选 50 + 判断 20 + 多选 30
const FixedScoreBase = 100.0

// GradeReport 阅卷结果
type GradeReport struct {
	Correctness      map[string]bool `json:"correctness"`
	Score            model.ExamScore `json:"score"`
	WrongQuestionIDs []string        `json:"wrongQuestions"`
}

// splitAnswerTokens 只含选项字母与分隔符时（"A C"、"A；C"、"AC。"）逐个取字母，
// 与解析器判定多选的方式一致；否则按中英文逗号、顿号拆分
func splitAnswerTokens(s string) []string {
	if letters, ok := optionLetters(s); ok {
		return letters
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '，' || r == '、'
	})
	var tokens []string
	for _, f := range fields {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// optionLetters 提取 A-H 字母，遇到字母、空白、标点以外的字符返回 false
func optionLetters(s string) ([]string, bool) {
	var letters []string
	for _, r := range strings.ToUpper(s) {
		switch {
		case r >= 'A' && r <= 'H':
			letters = append(letters, string(r))
		case unicode.IsSpace(r) || unicode.IsPunct(r):
		default:
			return nil, false
		}
	}
	return letters, len(letters) > 0
}

func answerTokens(v model.AnswerValue) []string {
	if !v.IsList {
		return splitAnswerTokens(v.Text)
	}
	var tokens []string
	for _, item := range v.List {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item != "" {
			tokens = append(tokens, item)
		}
	}
	return tokens
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// CheckAnswer 判断单题作答是否正确
func CheckAnswer(q model.Question, answer model.AnswerValue) bool {
	if answer.IsEmpty() {
		return false
	}

	if q.Type == model.QuestionMultiple {
		submitted := tokenSet(answerTokens(answer))
		correct := tokenSet(splitAnswerTokens(q.CorrectAnswer))
		if len(submitted) == 0 || len(submitted) != len(correct) {
			return false
		}
		for t := range submitted {
			if _, ok := correct[t]; !ok {
				return false
			}
		}
		return true
	}

	var first string
	if answer.IsList {
		first = answer.List[0]
	} else {
		first = answer.Text
	}
	return strings.TrimSpace(first) == q.CorrectAnswer
}

// GradeExam 计算总分、分题型得分和错题（含未作答）
func GradeExam(paper *model.ExamPaper, answers map[string]model.Answer) GradeReport {
	report := GradeReport{
		Correctness:      make(map[string]bool, len(paper.Questions)),
		WrongQuestionIDs: []string{},
	}
	for _, q := range paper.Questions {
		a, answered := answers[q.ID]
		correct := answered && CheckAnswer(q, a.UserAnswer)
		report.Correctness[q.ID] = correct
		if correct {
			report.Score.Add(q.Type, q.Score)
		} else {
			report.WrongQuestionIDs = append(report.WrongQuestionIDs, q.ID)
		}
	}
	return report
}

// Percentage 根据配置选择固定百分制或按试卷总分计算
func Percentage(score model.ExamScore, paper *model.ExamPaper, base string) float64 {
	denominator := FixedScoreBase
	if base == config.PercentageBasePaper && paper != nil && paper.TotalScore > 0 {
		denominator = paper.TotalScore
	}
	return roundTo(score.Total/denominator*100, 2)
}

func Passed(percentage, passPercentage float64) bool {
	return percentage >= passPercentage
}

// ResultMessage 成绩提示语
func ResultMessage(percentage float64, passed bool) string {
	switch {
	case percentage >= 90:
		return "优秀！继续保持"
	case passed:
		return "恭喜通过考试"
	default:
		return "未通过，请继续努力"
	}
}

func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
