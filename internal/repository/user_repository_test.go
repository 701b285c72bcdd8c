package repository

import (
	"errors"
	"testing"
	"time"

	"online_exam_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	user := &model.User{Phone: "13800138000", PasswordHash: "hash", LastLogin: time.Now()}
	require.NoError(t, repo.Create(user))
	require.NotZero(t, user.ID)

	var stats model.UserStats
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stats).Error)
	assert.Zero(t, stats.TotalExams)

	exists, err := repo.ExistsByPhone("13800138000")
	require.NoError(t, err)
	assert.True(t, exists)

	found, err := repo.FindByPhone("13800138000")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = repo.FindByPhone("13900000000")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	later := time.Now().Add(time.Hour)
	require.NoError(t, repo.UpdateLastLogin(user.ID, later))
	byID, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, later, byID.LastLogin, time.Second)

	assert.Error(t, repo.Create(&model.User{Phone: "13800138000", PasswordHash: "x"}))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
