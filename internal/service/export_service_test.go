package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"online_exam_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, 5, 4, 9, 30, 0, 0, time.Local)
}

func TestRenderWrongQuestions(t *testing.T) {
	svc := NewExportService(nil, nil)
	views := []model.WrongQuestionView{
		{Type: model.QuestionSingle, Category: "单选题", Question: "单选题干", Options: []string{"甲", "乙"}, CorrectAnswer: "A", UserAnswer: "B"},
		{Type: model.QuestionTrueFalse, Category: "判断题", Question: "判断题干", Options: []string{"对", "错"}, CorrectAnswer: "对"},
		{Type: model.QuestionMultiple, Category: "多选题", Question: "多选题干", Options: []string{"甲", "乙", "丙"}, CorrectAnswer: "AC", UserAnswer: "A"},
	}

	doc := string(svc.RenderWrongQuestions(views, fixedNow()))

	assert.True(t, strings.HasPrefix(doc, "# 网络安全与信息化知识测试题 - 错题集\n"))
	assert.Contains(t, doc, "生成时间: 2026-05-04 09:30:00")
	assert.Contains(t, doc, "共 3 道错题")
	assert.Contains(t, doc, "## 题目 1\n\n题目类型: 单选题")
	assert.Contains(t, doc, "- A. 甲\n- B. 乙\n")
	assert.Contains(t, doc, "你的答案: 未作答")
	assert.Contains(t, doc, "题目分值: 1.5分")
	assert.Contains(t, doc, "- C. 丙")

	// 判断题不输出选项
	tfSection := doc[strings.Index(doc, "## 题目 2"):strings.Index(doc, "## 题目 3")]
	assert.NotContains(t, tfSection, "选项:")
}

func TestExportWrongQuestions(t *testing.T) {
	exams := newTestExamService(t)
	storage := &StorageService{Store: &LocalStore{Root: t.TempDir()}}
	svc := NewExportService(exams, storage)
	svc.now = fixedNow

	_, err := svc.ExportWrongQuestions(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrNoWrongQuestions)

	now := time.Now()
	_, err = exams.SubmitExamResult(context.Background(), 1, SubmitExamRequest{
		ExamID: "e", Score: floatPtr(0), TotalScore: floatPtr(1), StartTime: now, EndTime: now,
		WrongQuestions: []WrongQuestionPayload{
			{ID: "q_1", Type: model.QuestionSingle, Question: "导出题干", Options: []string{"甲", "乙"}, CorrectAnswer: "A", UserAnswer: model.StringAnswer("B")},
		},
	})
	require.NoError(t, err)

	doc, err := svc.ExportWrongQuestions(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Equal(t, "网络安全错题集_2026-05-04.md", doc.Filename)
	assert.Equal(t, "text/markdown; charset=utf-8", doc.ContentType)
	assert.Contains(t, string(doc.Content), "导出题干")

	published, err := svc.PublishWrongQuestions(context.Background(), 1, "")
	require.NoError(t, err)
	key := "exports/1/wrong_questions_" + strings.TrimPrefix(published.URL, "/uploads/exports/1/wrong_questions_")
	assert.True(t, strings.HasPrefix(published.URL, "/uploads/exports/1/wrong_questions_"))

	stored, err := storage.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, doc.Content, stored)
}

func TestLocalStore(t *testing.T) {
	root := t.TempDir()
	store := &LocalStore{Root: root}
	ctx := context.Background()

	url, err := store.Put(ctx, "banks/basic.md", strings.NewReader("1. 题干"), 9, "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/banks/basic.md", url)

	data, err := os.ReadFile(filepath.Join(root, "banks", "basic.md"))
	require.NoError(t, err)
	assert.Equal(t, "1. 题干", string(data))

	got, err := store.Get(ctx, "banks/basic.md")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = store.Get(ctx, "banks/missing.md")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// 路径穿越被限制在根目录内
	_, err = store.Put(ctx, "../escape.md", strings.NewReader("x"), 1, "text/plain")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "escape.md"))
	assert.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "banks/basic.md"))
	_, err = store.Get(ctx, "banks/basic.md")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
