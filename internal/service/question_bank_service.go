package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"online_exam_backend/internal/config"
	"online_exam_backend/internal/model"
	"online_exam_backend/pkg/logger"
	"online_exam_backend/pkg/monitoring"
	"online_exam_backend/pkg/tracing"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type Difficulty string

const (
	DifficultyBasic   Difficulty = "basic"
	DifficultyApplied Difficulty = "applied"
)

var (
	ErrUnknownDifficulty = errors.New("unknown difficulty")
	ErrEmptyQuestionBank = errors.New("question bank contains no usable questions")
)

func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(s) {
	case "", DifficultyBasic:
		return DifficultyBasic, nil
	case DifficultyApplied:
		return DifficultyApplied, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
}

type GenerateOptions struct {
	Quotas     Quotas
	Difficulty Difficulty
}

// BankSource 读取题库原文
type BankSource interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type QuestionBankService struct {
	Source   BankSource
	Cache    *redis.Client // 可为空
	Settings *config.ExamSettings
	CacheTTL time.Duration
	// NewRand 每次组卷创建独立随机源，测试中可注入固定种子
	NewRand func() *rand.Rand
}

func NewQuestionBankService(source BankSource, cache *redis.Client, settings *config.ExamSettings, cacheTTL time.Duration) *QuestionBankService {
	return &QuestionBankService{
		Source:   source,
		Cache:    cache,
		Settings: settings,
		CacheTTL: cacheTTL,
		NewRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

func (s *QuestionBankService) bankKey(d Difficulty) string {
	cfg := s.Settings.Get()
	if d == DifficultyApplied {
		return cfg.AppliedBank
	}
	return cfg.BasicBank
}

func bankCacheKey(key string) string {
	return "exam:bank:" + key
}

// loadRaw 优先读缓存，未命中时读存储并回填
func (s *QuestionBankService) loadRaw(ctx context.Context, d Difficulty) (string, error) {
	key := s.bankKey(d)

	if s.Cache != nil {
		cached, err := s.Cache.Get(ctx, bankCacheKey(key)).Result()
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redis.Nil) {
			logger.Log.Warn("question bank cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	data, err := s.Source.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load question bank %s: %w", key, err)
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, bankCacheKey(key), string(data), s.CacheTTL).Err(); err != nil {
			logger.Log.Warn("question bank cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return string(data), nil
}

// LoadBank 读取并解析指定难度的题库
func (s *QuestionBankService) LoadBank(ctx context.Context, d Difficulty) (*model.QuestionBank, error) {
	raw, err := s.loadRaw(ctx, d)
	if err != nil {
		return nil, err
	}
	bank := ParseQuestionBankWithPrefix(raw, string(d))
	logger.Log.Debug("question bank parsed",
		zap.String("difficulty", string(d)),
		zap.Int("questions", len(bank.Questions)),
	)
	return bank, nil
}

// InvalidateCache 题库更新或配置变更后清除缓存
func (s *QuestionBankService) InvalidateCache(ctx context.Context) error {
	if s.Cache == nil {
		return nil
	}
	cfg := s.Settings.Get()
	return s.Cache.Del(ctx, bankCacheKey(cfg.BasicBank), bankCacheKey(cfg.AppliedBank)).Err()
}

// DefaultQuotas 配置中的默认题量
func (s *QuestionBankService) DefaultQuotas() Quotas {
	cfg := s.Settings.Get()
	return Quotas{Single: cfg.SingleCount, TrueFalse: cfg.TrueFalseCount, Multiple: cfg.MultipleCount}
}

func (s *QuestionBankService) GenerateExamPaper(ctx context.Context, opts GenerateOptions) (*model.ExamPaper, error) {
	ctx, span := tracing.Tracer().Start(ctx, "QuestionBankService.GenerateExamPaper")
	defer span.End()

	if opts.Difficulty == "" {
		opts.Difficulty = DifficultyBasic
	}
	if opts.Quotas.Total() == 0 {
		opts.Quotas = s.DefaultQuotas()
	}
	span.SetAttributes(
		attribute.String("exam.difficulty", string(opts.Difficulty)),
		attribute.Int("exam.quota.single", opts.Quotas.Single),
		attribute.Int("exam.quota.true_false", opts.Quotas.TrueFalse),
		attribute.Int("exam.quota.multiple", opts.Quotas.Multiple),
	)

	bank, err := s.LoadBank(ctx, opts.Difficulty)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	pools := PartitionQuestions(bank)

	logger.Log.Info("parsed questions by type",
		zap.Int("singles", len(pools.Single)),
		zap.Int("trueFalse", len(pools.TrueFalse)),
		zap.Int("multiples", len(pools.Multiple)),
		zap.String("difficulty", string(opts.Difficulty)),
	)

	// 基础题库某题型不足时，用应用题库补齐
	var fallback *QuestionPools
	if opts.Difficulty == DifficultyBasic && isShort(pools, opts.Quotas) {
		fbBank, err := s.LoadBank(ctx, DifficultyApplied)
		if err != nil {
			logger.Log.Warn("fallback question bank unavailable", zap.Error(err))
		} else {
			fb := PartitionQuestions(fbBank)
			fallback = &fb
		}
	}

	if pools.Total() == 0 && (fallback == nil || fallback.Total() == 0) {
		span.SetStatus(codes.Error, ErrEmptyQuestionBank.Error())
		return nil, ErrEmptyQuestionBank
	}

	paper := NewPaperAssembler(s.NewRand()).AssemblePaper(pools, opts.Quotas, fallback)
	monitoring.PapersGenerated.WithLabelValues(string(opts.Difficulty)).Inc()
	span.SetAttributes(
		attribute.String("exam.paper_id", paper.ID),
		attribute.Int("exam.questions", len(paper.Questions)),
	)
	return paper, nil
}

func isShort(pools QuestionPools, quotas Quotas) bool {
	for _, t := range paperTypeOrder {
		if len(pools.Pool(t)) < quotas.For(t) {
			return true
		}
	}
	return false
}
