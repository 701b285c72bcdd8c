package controller

import (
	"errors"
	"net/http"

	"online_exam_backend/internal/middleware"
	"online_exam_backend/internal/service"
	"online_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{AuthService: authService}
}

// CredentialsRequest 手机号 + 密码
// swagger:model CredentialsRequest
type CredentialsRequest struct {
	Phone    string `json:"phone" binding:"required,len=11,numeric"`
	Password string `json:"password" binding:"required"`
}

// Register godoc
// @Summary 注册新用户
// @Description 使用手机号和密码注册，成功后直接返回登录 token
// @Tags 认证
// @Accept  json
// @Produce  json
// @Param   body body CredentialsRequest true "注册信息"
// @Success 201 {object} util.Response{data=service.AuthResult} "注册成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 409 {object} util.Response "手机号已注册"
// @Router /api/auth/register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req CredentialsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "手机号必须为11位数字，密码不能为空")
		return
	}

	result, err := c.AuthService.Register(req.Phone, req.Password)
	switch {
	case err == nil:
		util.Created(ctx, result)
	case errors.Is(err, util.ErrPhoneRegistered):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrInvalidPhone):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// Login godoc
// @Summary 用户登录
// @Tags 认证
// @Accept  json
// @Produce  json
// @Param   body body CredentialsRequest true "登录信息"
// @Success 200 {object} util.Response{data=service.AuthResult}
// @Failure 401 {object} util.Response "手机号或密码错误"
// @Router /api/auth/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req CredentialsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "手机号必须为11位数字，密码不能为空")
		return
	}

	result, err := c.AuthService.Login(req.Phone, req.Password)
	switch {
	case err == nil:
		util.Success(ctx, result)
	case errors.Is(err, util.ErrInvalidCredentials):
		util.Error(ctx, http.StatusUnauthorized, err.Error())
	case errors.Is(err, util.ErrInvalidPhone):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// Verify godoc
// @Summary 校验 token
// @Tags 认证
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.AuthUser}
// @Failure 401 {object} util.Response
// @Router /api/auth/verify [get]
func (c *AuthController) Verify(ctx *gin.Context) {
	token := middleware.BearerToken(ctx)
	if token == "" {
		util.Error(ctx, http.StatusUnauthorized, "未提供认证token")
		return
	}
	user, err := c.AuthService.Verify(token)
	if err != nil {
		util.Error(ctx, http.StatusUnauthorized, "token无效或已过期")
		return
	}
	util.Success(ctx, gin.H{"user": user})
}

// CountUsers godoc
// @Summary 注册用户总数（管理员）
// @Tags 认证
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=object}
// @Failure 403 {object} util.Response
// @Router /api/auth/admin/users/count [get]
func (c *AuthController) CountUsers(ctx *gin.Context) {
	count, err := c.AuthService.CountUsers()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"count": count})
}
