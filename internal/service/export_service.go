package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"online_exam_backend/internal/model"
	"online_exam_backend/internal/util"
)

var ErrNoWrongQuestions = errors.New("no wrong questions to export")

const exportContentType = "text/markdown; charset=utf-8"

// ExportDocument 导出的错题文档
type ExportDocument struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"-"`
	URL         string `json:"url,omitempty"`
}

// ExportService 错题集导出
type ExportService struct {
	Exams   *ExamService
	Storage *StorageService
	Title   string
	now     func() time.Time
}

func NewExportService(exams *ExamService, storage *StorageService) *ExportService {
	return &ExportService{
		Exams:   exams,
		Storage: storage,
		Title:   "网络安全与信息化知识测试题 - 错题集",
		now:     time.Now,
	}
}

// RenderWrongQuestions 按段落生成 markdown 错题集
func (s *ExportService) RenderWrongQuestions(questions []model.WrongQuestionView, generatedAt time.Time) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", s.Title)
	fmt.Fprintf(&b, "生成时间: %s\n\n", generatedAt.Format(util.TimeFormat))
	fmt.Fprintf(&b, "共 %d 道错题\n\n", len(questions))

	for i, q := range questions {
		fmt.Fprintf(&b, "## 题目 %d\n\n", i+1)
		fmt.Fprintf(&b, "题目类型: %s\n\n", q.Type.Label())
		fmt.Fprintf(&b, "题目分类: %s\n\n", q.Category)
		fmt.Fprintf(&b, "题目内容: %s\n\n", q.Question)

		if q.Type != model.QuestionTrueFalse && len(q.Options) > 0 {
			b.WriteString("选项:\n\n")
			for j, opt := range q.Options {
				fmt.Fprintf(&b, "- %c. %s\n", rune('A'+j), opt)
			}
			b.WriteString("\n")
		}

		fmt.Fprintf(&b, "正确答案: %s\n\n", q.CorrectAnswer)
		userAnswer := q.UserAnswer
		if userAnswer == "" {
			userAnswer = "未作答"
		}
		fmt.Fprintf(&b, "你的答案: %s\n\n", userAnswer)
		fmt.Fprintf(&b, "题目分值: %s分\n\n", formatScore(model.ScoreFor(q.Type)))
	}
	return []byte(b.String())
}

func formatScore(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}

// ExportWrongQuestions 生成当前用户的错题集
func (s *ExportService) ExportWrongQuestions(ctx context.Context, userID uint, qtype model.QuestionType) (*ExportDocument, error) {
	questions, _, err := s.Exams.ListWrongQuestions(ctx, userID, 1, 0, qtype)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNoWrongQuestions
	}

	now := s.now()
	return &ExportDocument{
		Filename:    fmt.Sprintf("网络安全错题集_%s.md", now.Format(util.DateFormat)),
		ContentType: exportContentType,
		Content:     s.RenderWrongQuestions(questions, now),
	}, nil
}

// PublishWrongQuestions 生成错题集并上传到存储，返回访问地址
func (s *ExportService) PublishWrongQuestions(ctx context.Context, userID uint, qtype model.QuestionType) (*ExportDocument, error) {
	doc, err := s.ExportWrongQuestions(ctx, userID, qtype)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%d/wrong_questions_%d.md", util.ExportsPrefix, userID, s.now().UnixMilli())
	url, err := s.Storage.PutBytes(ctx, key, doc.Content, doc.ContentType)
	if err != nil {
		return nil, fmt.Errorf("upload export: %w", err)
	}
	doc.URL = url
	return doc, nil
}
