package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"online_exam_backend/internal/config"
	"online_exam_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]string

func (m mapSource) Get(ctx context.Context, key string) ([]byte, error) {
	raw, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return []byte(raw), nil
}

func bankText(category string, n int, answer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", category)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d. %s 第%d题\nA. 甲\nB. 乙\nC. 丙\n答案：%s\n", i, category, i, answer)
	}
	return b.String()
}

func newBankService(source mapSource, quotas Quotas) *QuestionBankService {
	settings := config.NewExamSettings(config.ExamConfig{
		SingleCount:      quotas.Single,
		TrueFalseCount:   quotas.TrueFalse,
		MultipleCount:    quotas.Multiple,
		TimeLimitMinutes: 90,
		PassPercentage:   60,
		PercentageBase:   config.PercentageBaseFixed,
		BasicBank:        "basic.md",
		AppliedBank:      "applied.md",
	})
	svc := NewQuestionBankService(source, nil, settings, 0)
	svc.NewRand = func() *rand.Rand { return rand.New(rand.NewSource(1)) }
	return svc
}

func TestQuestionBankService_GenerateUsesDefaultQuotas(t *testing.T) {
	source := mapSource{
		"basic.md": bankText("单选题", 6, "A") + bankText("判断题", 4, "对") + bankText("多选题", 5, "AB"),
	}
	svc := newBankService(source, Quotas{Single: 4, TrueFalse: 2, Multiple: 3})

	paper, err := svc.GenerateExamPaper(context.Background(), GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, paper.Questions, 9)
	assert.Equal(t, 4+2+3*1.5, paper.TotalScore)
	for _, q := range paper.Questions {
		assert.True(t, strings.HasPrefix(q.ID, "basic_"), q.ID)
	}
}

func TestQuestionBankService_FallbackToAppliedBank(t *testing.T) {
	source := mapSource{
		"basic.md":   bankText("单选题", 2, "A"),
		"applied.md": bankText("应用单选题", 1, "B") + bankText("判断题", 3, "错"),
	}
	svc := newBankService(source, Quotas{})

	paper, err := svc.GenerateExamPaper(context.Background(), GenerateOptions{
		Difficulty: DifficultyBasic,
		Quotas:     Quotas{Single: 3, TrueFalse: 2},
	})
	require.NoError(t, err)
	require.Len(t, paper.Questions, 5)

	var fromApplied int
	for _, q := range paper.Questions {
		if strings.HasPrefix(q.ID, "applied_") {
			fromApplied++
		}
	}
	assert.Equal(t, 3, fromApplied)
	assert.Equal(t, model.QuestionTrueFalse, paper.Questions[4].Type)
}

func TestQuestionBankService_AppliedDoesNotFallBack(t *testing.T) {
	source := mapSource{
		"basic.md":   bankText("判断题", 5, "对"),
		"applied.md": bankText("单选题", 2, "A"),
	}
	svc := newBankService(source, Quotas{})

	paper, err := svc.GenerateExamPaper(context.Background(), GenerateOptions{
		Difficulty: DifficultyApplied,
		Quotas:     Quotas{Single: 2, TrueFalse: 1},
	})
	require.NoError(t, err)
	assert.Len(t, paper.Questions, 2)
}

func TestQuestionBankService_Errors(t *testing.T) {
	svc := newBankService(mapSource{"basic.md": "没有任何题目", "applied.md": ""}, Quotas{Single: 1})
	_, err := svc.GenerateExamPaper(context.Background(), GenerateOptions{})
	assert.ErrorIs(t, err, ErrEmptyQuestionBank)

	svc = newBankService(mapSource{}, Quotas{Single: 1})
	_, err = svc.GenerateExamPaper(context.Background(), GenerateOptions{Difficulty: DifficultyApplied})
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestQuestionBankService_SeededPapersMatch(t *testing.T) {
	source := mapSource{"basic.md": bankText("单选题", 20, "A")}
	svc := newBankService(source, Quotas{Single: 10})

	a, err := svc.GenerateExamPaper(context.Background(), GenerateOptions{})
	require.NoError(t, err)
	b, err := svc.GenerateExamPaper(context.Background(), GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, questionIDs(a), questionIDs(b))
}

func TestParseDifficulty(t *testing.T) {
	d, err := ParseDifficulty("")
	require.NoError(t, err)
	assert.Equal(t, DifficultyBasic, d)

	d, err = ParseDifficulty("applied")
	require.NoError(t, err)
	assert.Equal(t, DifficultyApplied, d)

	_, err = ParseDifficulty("expert")
	assert.ErrorIs(t, err, ErrUnknownDifficulty)
}

func TestQuestionBankService_InvalidateWithoutCache(t *testing.T) {
	svc := newBankService(mapSource{}, Quotas{Single: 1})
	assert.NoError(t, svc.InvalidateCache(context.Background()))
}
