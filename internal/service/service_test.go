package service

import (
	"fmt"
	"strings"
	"testing"

	"online_exam_backend/internal/model"
	"online_exam_backend/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.User{}, &model.ExamRecord{}, &model.WrongQuestion{}, &model.UserStats{}))
	return db
}

func newTestExamService(t *testing.T) *ExamService {
	return NewExamService(repository.NewExamRepository(setupTestDB(t)), testExamSettings())
}
