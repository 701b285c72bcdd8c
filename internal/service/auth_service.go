package service

import (
	"crypto/subtle"
	"errors"
	"regexp"
	"time"

	"online_exam_backend/internal/config"
	"online_exam_backend/internal/model"
	"online_exam_backend/internal/repository"
	"online_exam_backend/internal/util"
	"online_exam_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var phonePattern = regexp.MustCompile(`^\d{11}$`)

const passwordCost = 12

// AuthUser 返回给前端的用户信息
type AuthUser struct {
	ID      uint   `json:"id"`
	Phone   string `json:"phone"`
	IsAdmin bool   `json:"isAdmin"`
}

type AuthResult struct {
	User  AuthUser `json:"user"`
	Token string   `json:"token"`
}

type AuthService struct {
	UserRepo *repository.UserRepository
	JWT      config.JWTConfig
	Admin    config.AuthConfig
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		JWT:      cfg.JWT,
		Admin:    cfg.Auth,
	}
}

func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return util.ErrInvalidPhone
	}
	return nil
}

func (s *AuthService) issue(user AuthUser) (*AuthResult, error) {
	token, err := util.GenerateJWT(user.ID, user.Phone, user.IsAdmin, s.JWT.Secret, s.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) Register(phone, password string) (*AuthResult, error) {
	if err := ValidatePhone(phone); err != nil {
		return nil, err
	}

	exists, err := s.UserRepo.ExistsByPhone(phone)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, util.ErrPhoneRegistered
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{Phone: phone, PasswordHash: string(hashed), LastLogin: time.Now()}
	if err := s.UserRepo.Create(user); err != nil {
		return nil, err
	}

	logger.Log.Info("user registered", zap.Uint("userID", user.ID))
	return s.issue(AuthUser{ID: user.ID, Phone: user.Phone})
}

func (s *AuthService) isAdminLogin(phone, password string) bool {
	if s.Admin.AdminPhone == "" || s.Admin.AdminPassword == "" {
		return false
	}
	return phone == s.Admin.AdminPhone &&
		subtle.ConstantTimeCompare([]byte(password), []byte(s.Admin.AdminPassword)) == 1
}

// Login 配置的管理员账号直接登录，不查库
func (s *AuthService) Login(phone, password string) (*AuthResult, error) {
	if err := ValidatePhone(phone); err != nil {
		return nil, err
	}

	if s.isAdminLogin(phone, password) {
		return s.issue(AuthUser{ID: 0, Phone: phone, IsAdmin: true})
	}

	user, err := s.UserRepo.FindByPhone(phone)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}

	if err := s.UserRepo.UpdateLastLogin(user.ID, time.Now()); err != nil {
		logger.Log.Warn("failed to update last login", zap.Uint("userID", user.ID), zap.Error(err))
	}
	return s.issue(AuthUser{ID: user.ID, Phone: user.Phone})
}

// Verify 校验 token 并返回其中的用户信息
func (s *AuthService) Verify(token string) (*AuthUser, error) {
	claims, err := util.ParseJWT(token, s.JWT.Secret)
	if err != nil {
		return nil, err
	}
	return &AuthUser{ID: claims.UserID, Phone: claims.Phone, IsAdmin: claims.IsAdmin}, nil
}

func (s *AuthService) CountUsers() (int64, error) {
	return s.UserRepo.Count()
}
