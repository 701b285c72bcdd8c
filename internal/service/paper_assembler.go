package service

import (
	"math/rand"
	"sort"
	"strconv"
	"time"

	"online_exam_backend/internal/model"
	"online_exam_backend/pkg/logger"
	"online_exam_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// Quotas 各题型需要抽取的题量
type Quotas struct {
	Single    int `json:"singleCount" binding:"min=0"`
	TrueFalse int `json:"trueFalseCount" binding:"min=0"`
	Multiple  int `json:"multipleCount" binding:"min=0"`
}

func (q Quotas) For(t model.QuestionType) int {
	switch t {
	case model.QuestionSingle:
		return q.Single
	case model.QuestionTrueFalse:
		return q.TrueFalse
	case model.QuestionMultiple:
		return q.Multiple
	}
	return 0
}

func (q Quotas) Total() int {
	return q.Single + q.TrueFalse + q.Multiple
}

var paperTypeOrder = []model.QuestionType{
	model.QuestionSingle,
	model.QuestionTrueFalse,
	model.QuestionMultiple,
}

// PaperAssembler 组卷器，持有独立的随机源，不可跨 goroutine 共享
type PaperAssembler struct {
	rnd *rand.Rand
	now func() time.Time
}

func NewPaperAssembler(rnd *rand.Rand) *PaperAssembler {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &PaperAssembler{rnd: rnd, now: time.Now}
}

// AssemblePaper 按配额抽题：主题库无放回抽样 → 备用题库按题干去重补齐 → 有放回补齐
func (a *PaperAssembler) AssemblePaper(pools QuestionPools, quotas Quotas, fallback *QuestionPools) *model.ExamPaper {
	selected := make(map[model.QuestionType][]model.Question, len(paperTypeOrder))
	for _, t := range paperTypeOrder {
		selected[t] = a.sample(pools.Pool(t), quotas.For(t))
	}

	if fallback != nil {
		// 题干集合覆盖所有题型，已选中的题目不会以另一种题型再次出现
		seen := make(map[string]struct{})
		for _, t := range paperTypeOrder {
			for _, q := range selected[t] {
				seen[q.Question] = struct{}{}
			}
		}
		for _, t := range paperTypeOrder {
			need := quotas.For(t) - len(selected[t])
			if need <= 0 {
				continue
			}
			var candidates []model.Question
			for _, q := range fallback.Pool(t) {
				if _, dup := seen[q.Question]; !dup {
					candidates = append(candidates, q)
				}
			}
			extra := a.sample(candidates, need)
			for _, q := range extra {
				seen[q.Question] = struct{}{}
			}
			selected[t] = append(selected[t], extra...)
		}
	}

	for _, t := range paperTypeOrder {
		need := quotas.For(t) - len(selected[t])
		if need <= 0 {
			continue
		}
		source := pools.Pool(t)
		if len(source) == 0 && fallback != nil {
			source = fallback.Pool(t)
		}
		if len(source) == 0 {
			logger.Log.Warn("no questions available for type, paper will be short",
				zap.String("type", string(t)),
				zap.Int("quota", quotas.For(t)),
				zap.Int("selected", len(selected[t])),
			)
			continue
		}
		selected[t] = a.topUp(selected[t], source, need)
		monitoring.QuestionTopUps.WithLabelValues(string(t)).Add(float64(need))
	}

	questions := make([]model.Question, 0, quotas.Total())
	for _, t := range paperTypeOrder {
		block := selected[t]
		a.shuffle(block)
		questions = append(questions, block...)
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Type.Priority() < questions[j].Type.Priority()
	})

	var total float64
	for _, q := range questions {
		total += q.Score
	}

	now := a.now()
	return &model.ExamPaper{
		ID:          model.NewPaperID(now),
		Questions:   questions,
		TotalScore:  total,
		GeneratedAt: now,
	}
}

// sample 无放回抽取 min(n, len(pool)) 道题，不修改原题池
func (a *PaperAssembler) sample(pool []model.Question, n int) []model.Question {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	shuffled := make([]model.Question, len(pool))
	copy(shuffled, pool)
	a.shuffle(shuffled)
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n:n]
}

// shuffle Fisher–Yates
func (a *PaperAssembler) shuffle(qs []model.Question) {
	for i := len(qs) - 1; i > 0; i-- {
		j := a.rnd.Intn(i + 1)
		qs[i], qs[j] = qs[j], qs[i]
	}
}

// topUp 有放回抽样补足，重复出现的题目ID追加 #n 以便分别记录作答
func (a *PaperAssembler) topUp(selected, source []model.Question, need int) []model.Question {
	counts := make(map[string]int, len(selected))
	for _, q := range selected {
		counts[baseQuestionID(q.ID)]++
	}
	for i := 0; i < need; i++ {
		q := source[a.rnd.Intn(len(source))]
		base := baseQuestionID(q.ID)
		counts[base]++
		if n := counts[base]; n > 1 {
			q.ID = base + "#" + strconv.Itoa(n)
		}
		selected = append(selected, q)
	}
	return selected
}

func baseQuestionID(id string) string {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '#' {
			return id[:i]
		}
	}
	return id
}
