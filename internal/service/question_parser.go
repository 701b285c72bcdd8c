package service

import (
	"fmt"
	"regexp"
	"strings"

	"online_exam_backend/internal/model"
)

var (
	headingPattern  = regexp.MustCompile(`^#{2,}\s*(.*)$`)
	numberedPattern = regexp.MustCompile(`^\d+[.、．)）]\s*(.*)$`)
	optionPattern   = regexp.MustCompile(`^[A-Ha-h][.、．)）\s]+(.*)$`)
	answerPattern   = regexp.MustCompile(`^[（(【\[]?\s*(?:答案|正确答案|参考答案)\s*[)）】\]]?\s*[:：]?\s*(.*)$`)
	answerLetters   = regexp.MustCompile(`[A-H]`)
)

type lineKind int

const (
	lineBlank lineKind = iota
	lineHeading
	lineNumbered
	lineOption
	lineAnswer
	lineText
)

// classifyLine 返回行类型及去掉标记后的内容
func classifyLine(raw string) (lineKind, string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return lineBlank, ""
	}
	if m := headingPattern.FindStringSubmatch(line); m != nil {
		return lineHeading, strings.TrimSpace(m[1])
	}
	if m := numberedPattern.FindStringSubmatch(line); m != nil {
		return lineNumbered, strings.TrimSpace(m[1])
	}
	if m := optionPattern.FindStringSubmatch(line); m != nil {
		return lineOption, strings.TrimSpace(m[1])
	}
	if m := answerPattern.FindStringSubmatch(line); m != nil {
		return lineAnswer, strings.ToUpper(strings.TrimSpace(m[1]))
	}
	return lineText, line
}

// CanonicalTrueFalse 将判断题选项/答案的各种写法归一为 对/错
func CanonicalTrueFalse(s string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "对", "正确", "√", "TRUE", "T":
		return model.TrueToken, true
	case "错", "错误", "×", "FALSE", "F":
		return model.FalseToken, true
	}
	return s, false
}

func canonicalPair() []string {
	return []string{model.TrueToken, model.FalseToken}
}

// inferType 每道新题开始时根据分类和题干推断题型
func inferType(category, text string) model.QuestionType {
	switch {
	case strings.Contains(category, "判断") || strings.Contains(category, "是非") ||
		strings.Contains(text, "判断题") || strings.Contains(text, "对错"):
		return model.QuestionTrueFalse
	case strings.Contains(category, "多选") || strings.Contains(text, "多选"):
		return model.QuestionMultiple
	default:
		return model.QuestionSingle
	}
}

type parseState int

const (
	stateIdle parseState = iota
	stateInQuestion
)

type pendingQuestion struct {
	category string
	text     []string
	options  []string
	answer   string
	qtype    model.QuestionType
}

type questionParser struct {
	prefix   string
	state    parseState
	category string
	pending  pendingQuestion
	out      []model.Question
}

// ParseQuestionBank 解析题库文本，格式不规范的题目直接丢弃，不返回错误
func ParseQuestionBank(raw string) *model.QuestionBank {
	return ParseQuestionBankWithPrefix(raw, "q")
}

// ParseQuestionBankWithPrefix 同 ParseQuestionBank，题目ID使用指定前缀
func ParseQuestionBankWithPrefix(raw, prefix string) *model.QuestionBank {
	p := &questionParser{prefix: prefix}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	for _, line := range strings.Split(raw, "\n") {
		p.feed(classifyLine(line))
	}
	p.finalize()
	return &model.QuestionBank{Questions: p.out}
}

func (p *questionParser) feed(kind lineKind, content string) {
	switch kind {
	case lineBlank:
		return
	case lineHeading:
		// 标题只更新分类，不结束当前题目
		p.category = content
		return
	case lineNumbered:
		p.finalize()
		p.state = stateInQuestion
		p.pending = pendingQuestion{
			category: p.category,
			qtype:    inferType(p.category, content),
		}
		if content != "" {
			p.pending.text = append(p.pending.text, content)
		}
		return
	}

	// 第一道题之前的内容（标题说明等）忽略
	if p.state != stateInQuestion {
		return
	}

	switch kind {
	case lineOption:
		p.pending.options = append(p.pending.options, content)
	case lineAnswer:
		p.pending.answer = content
	case lineText:
		p.pending.text = append(p.pending.text, content)
	}
}

func (p *questionParser) finalize() {
	if p.state != stateInQuestion {
		return
	}
	q := p.pending
	p.pending = pendingQuestion{}
	p.state = stateIdle

	if q.qtype == model.QuestionTrueFalse {
		q.options, q.answer = normalizeTrueFalse(q.options, q.answer)
	}

	if q.qtype == model.QuestionSingle && countDistinctLetters(q.answer) > 1 {
		q.qtype = model.QuestionMultiple
	}

	if token, ok := CanonicalTrueFalse(q.answer); ok {
		q.qtype = model.QuestionTrueFalse
		q.answer = token
		q.options = canonicalPair()
	}

	text := strings.TrimSpace(strings.Join(q.text, " "))
	if text == "" || len(q.options) == 0 || q.answer == "" {
		return
	}

	p.out = append(p.out, model.Question{
		ID:            fmt.Sprintf("%s_%d", p.prefix, len(p.out)+1),
		Type:          q.qtype,
		Category:      q.category,
		Question:      text,
		Options:       q.options,
		CorrectAnswer: q.answer,
		Score:         model.ScoreFor(q.qtype),
	})
}

// normalizeTrueFalse 判断题选项统一为 对/错 两项，字母答案按原选项位置换算为规范答案
func normalizeTrueFalse(options []string, answer string) ([]string, string) {
	if len(answer) == 1 && answer[0] >= 'A' && answer[0] <= 'B' {
		idx := int(answer[0] - 'A')
		token := canonicalPair()[idx]
		if idx < len(options) {
			// 题库自带 A.错/B.对 时以原选项为准
			if t, ok := CanonicalTrueFalse(options[idx]); ok {
				token = t
			}
		}
		answer = token
	}
	return canonicalPair(), answer
}

func countDistinctLetters(answer string) int {
	seen := map[string]struct{}{}
	for _, l := range answerLetters.FindAllString(strings.ToUpper(answer), -1) {
		seen[l] = struct{}{}
	}
	return len(seen)
}

// QuestionPools 按题型划分的题目池
type QuestionPools struct {
	Single    []model.Question
	TrueFalse []model.Question
	Multiple  []model.Question
}

// PartitionQuestions 按题型拆分题库
func PartitionQuestions(bank *model.QuestionBank) QuestionPools {
	var pools QuestionPools
	if bank == nil {
		return pools
	}
	for _, q := range bank.Questions {
		switch q.Type {
		case model.QuestionSingle:
			pools.Single = append(pools.Single, q)
		case model.QuestionTrueFalse:
			pools.TrueFalse = append(pools.TrueFalse, q)
		case model.QuestionMultiple:
			pools.Multiple = append(pools.Multiple, q)
		}
	}
	return pools
}

// Pool 取指定题型的题目池
func (p QuestionPools) Pool(t model.QuestionType) []model.Question {
	switch t {
	case model.QuestionSingle:
		return p.Single
	case model.QuestionTrueFalse:
		return p.TrueFalse
	case model.QuestionMultiple:
		return p.Multiple
	}
	return nil
}

func (p QuestionPools) Total() int {
	return len(p.Single) + len(p.TrueFalse) + len(p.Multiple)
}
