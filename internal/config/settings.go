package config

import "sync"

// ExamSettings 考试参数的并发安全容器，配置热更新时整体替换
type ExamSettings struct {
	mu  sync.RWMutex
	cfg ExamConfig
}

func NewExamSettings(cfg ExamConfig) *ExamSettings {
	return &ExamSettings{cfg: cfg}
}

func (s *ExamSettings) Get() ExamConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update 校验失败时保留旧配置
func (s *ExamSettings) Update(cfg ExamConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}
