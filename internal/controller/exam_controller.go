package controller

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"online_exam_backend/internal/model"
	"online_exam_backend/internal/service"
	"online_exam_backend/internal/util"
	"online_exam_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ExamController struct {
	QuestionBank *service.QuestionBankService
	Sessions     *service.ExamSessionManager
	ExamService  *service.ExamService
	Export       *service.ExportService
}

func NewExamController(bank *service.QuestionBankService, sessions *service.ExamSessionManager, exams *service.ExamService, export *service.ExportService) *ExamController {
	return &ExamController{
		QuestionBank: bank,
		Sessions:     sessions,
		ExamService:  exams,
		Export:       export,
	}
}

// GeneratePaperRequest 题量为 0 时使用配置默认值
// swagger:model GeneratePaperRequest
type GeneratePaperRequest struct {
	Difficulty     string `json:"difficulty" example:"basic"`
	SingleCount    int    `json:"singleCount" binding:"min=0,max=500"`
	TrueFalseCount int    `json:"trueFalseCount" binding:"min=0,max=500"`
	MultipleCount  int    `json:"multipleCount" binding:"min=0,max=500"`
}

func (r GeneratePaperRequest) options() (service.GenerateOptions, error) {
	d, err := service.ParseDifficulty(r.Difficulty)
	if err != nil {
		return service.GenerateOptions{}, err
	}
	return service.GenerateOptions{
		Difficulty: d,
		Quotas: service.Quotas{
			Single:    r.SingleCount,
			TrueFalse: r.TrueFalseCount,
			Multiple:  r.MultipleCount,
		},
	}, nil
}

func bindGenerateOptions(ctx *gin.Context) (service.GenerateOptions, bool) {
	var req GeneratePaperRequest
	// 允许空请求体
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		util.BadRequest(ctx, err.Error())
		return service.GenerateOptions{}, false
	}
	opts, err := req.options()
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return service.GenerateOptions{}, false
	}
	return opts, true
}

func (c *ExamController) paperError(ctx *gin.Context, err error) {
	if errors.Is(err, service.ErrEmptyQuestionBank) || errors.Is(err, service.ErrObjectNotFound) {
		util.Error(ctx, http.StatusServiceUnavailable, "题库不可用")
		return
	}
	util.LogInternalError(ctx, err)
}

// GeneratePaper godoc
// @Summary 生成试卷
// @Description 仅组卷，返回含正确答案的完整试卷，由客户端自行计时评分后调用 /api/exam/submit
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body GeneratePaperRequest false "组卷参数"
// @Success 200 {object} util.Response{data=model.ExamPaper}
// @Failure 400 {object} util.Response
// @Failure 503 {object} util.Response "题库不可用"
// @Router /api/exam/papers [post]
func (c *ExamController) GeneratePaper(ctx *gin.Context) {
	opts, ok := bindGenerateOptions(ctx)
	if !ok {
		return
	}
	paper, err := c.QuestionBank.GenerateExamPaper(ctx.Request.Context(), opts)
	if err != nil {
		c.paperError(ctx, err)
		return
	}
	util.Success(ctx, paper)
}

// SessionView 考试会话的对外视图
type SessionView struct {
	SessionID  string            `json:"sessionId"`
	Difficulty string            `json:"difficulty"`
	Paper      model.ExamPaper   `json:"paper"`
	State      model.ExamState   `json:"state"`
	Remaining  string            `json:"remaining"`
	Progress   service.Progress  `json:"progress"`
	Result     *model.ExamResult `json:"result,omitempty"`
	Persisted  *bool             `json:"persisted,omitempty"`
}

func buildSessionView(s *service.ExamSession) SessionView {
	state := s.State()
	view := SessionView{
		SessionID:  s.ID,
		Difficulty: string(s.Difficulty),
		State:      service.RedactState(state),
		Remaining:  service.FormatDuration(state.TimeRemainingMs),
		Progress:   s.Progress(),
	}
	if result, ok := s.Result(); ok {
		persisted, _ := s.Persistence()
		view.Paper = *s.Paper()
		view.Result = &result
		view.Persisted = &persisted
	} else {
		view.Paper = s.Paper().Redacted()
	}
	return view
}

// StartSession godoc
// @Summary 开始考试
// @Description 服务端组卷并开始计时，同一用户未完成的考试会被放弃
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body GeneratePaperRequest false "组卷参数"
// @Success 201 {object} util.Response{data=SessionView}
// @Router /api/exam/sessions [post]
func (c *ExamController) StartSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	opts, ok := bindGenerateOptions(ctx)
	if !ok {
		return
	}

	session, err := c.Sessions.StartExam(ctx.Request.Context(), claims.UserID, opts)
	if err != nil {
		c.paperError(ctx, err)
		return
	}
	util.Created(ctx, buildSessionView(session))
}

// loadSession 读取路径中的会话并校验归属
func (c *ExamController) loadSession(ctx *gin.Context) (*service.ExamSession, bool) {
	claims := util.GetUserFromContext(ctx)
	session, err := c.Sessions.Get(claims.UserID, ctx.Param("id"))
	switch {
	case err == nil:
		return session, true
	case errors.Is(err, service.ErrSessionForbidden):
		util.Forbidden(ctx)
	case errors.Is(err, service.ErrSessionNotFound):
		util.NotFound(ctx)
	default:
		util.LogInternalError(ctx, err)
	}
	return nil, false
}

func sessionError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotInProgress):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, service.ErrQuestionNotFound), errors.Is(err, service.ErrInvalidQuestionIndex):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// GetSession godoc
// @Summary 查询考试状态
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=SessionView}
// @Failure 404 {object} util.Response
// @Router /api/exam/sessions/{id} [get]
func (c *ExamController) GetSession(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	util.Success(ctx, buildSessionView(session))
}

// SubmitAnswerRequest userAnswer 可以是字符串或字符串数组
// swagger:model SubmitAnswerRequest
type SubmitAnswerRequest struct {
	QuestionID string            `json:"questionId" binding:"required"`
	UserAnswer model.AnswerValue `json:"userAnswer" swaggertype:"string"`
}

// SubmitAnswer godoc
// @Summary 作答
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Param body body SubmitAnswerRequest true "作答"
// @Success 200 {object} util.Response{data=service.Progress}
// @Failure 409 {object} util.Response "考试未在进行中"
// @Router /api/exam/sessions/{id}/answers [post]
func (c *ExamController) SubmitAnswer(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	var req SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if _, err := session.SubmitAnswer(req.QuestionID, req.UserAnswer); err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, session.Progress())
}

// NavigateRequest 跳转到第 index 题（从 0 开始）
// swagger:model NavigateRequest
type NavigateRequest struct {
	Index *int `json:"index" binding:"required"`
}

// Navigate godoc
// @Summary 切换当前题目
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Param body body NavigateRequest true "题目序号"
// @Success 200 {object} util.Response
// @Router /api/exam/sessions/{id}/navigate [post]
func (c *ExamController) Navigate(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	var req NavigateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := session.Navigate(*req.Index); err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"currentQuestion": *req.Index})
}

// CompleteSession godoc
// @Summary 交卷
// @Description 重复交卷返回同一成绩；成绩保存失败时 persisted 为 false
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=SessionView}
// @Router /api/exam/sessions/{id}/complete [post]
func (c *ExamController) CompleteSession(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	if _, err := session.Complete(); err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, buildSessionView(session))
}

// StreamSession godoc
// @Summary 考试状态推送（WebSocket）
// @Description 推送 STATE/RESULT 帧，可发送 ANSWER/NAVIGATE/COMPLETE 消息；浏览器可用 token 查询参数鉴权
// @Tags 考试
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Router /api/exam/sessions/{id}/ws [get]
func (c *ExamController) StreamSession(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	if err := service.ServeExamStream(ctx.Writer, ctx.Request, session); err != nil {
		logger.Log.Warn("exam stream upgrade failed", zap.String("sessionID", session.ID), zap.Error(err))
	}
}

// SubmitResult godoc
// @Summary 提交考试结果
// @Description 客户端评分模式：保存成绩、错题并更新统计
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.SubmitExamRequest true "考试结果"
// @Success 200 {object} util.Response{data=service.SubmitExamResponse}
// @Failure 400 {object} util.Response
// @Router /api/exam/submit [post]
func (c *ExamController) SubmitResult(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	var req service.SubmitExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.ExamService.SubmitExamResult(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSubmission) {
			util.BadRequest(ctx, err.Error())
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, resp)
}

// ListWrongQuestions godoc
// @Summary 错题列表
// @Tags 错题
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Param type query string false "题型 single/trueFalse/multiple"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/exam/wrong-questions [get]
func (c *ExamController) ListWrongQuestions(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page, limit := util.Pagination(ctx, 20, 100)

	rows, total, err := c.ExamService.ListWrongQuestions(ctx.Request.Context(), claims.UserID, page, limit, model.QuestionType(ctx.Query("type")))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.NewPage(rows, total, page, limit))
}

// DownloadWrongQuestions godoc
// @Summary 下载错题集
// @Tags 错题
// @Produce text/markdown
// @Security ApiKeyAuth
// @Param type query string false "题型"
// @Success 200 {file} file
// @Failure 404 {object} util.Response "没有错题"
// @Router /api/exam/wrong-questions/export [get]
func (c *ExamController) DownloadWrongQuestions(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	doc, err := c.Export.ExportWrongQuestions(ctx.Request.Context(), claims.UserID, model.QuestionType(ctx.Query("type")))
	if err != nil {
		exportError(ctx, err)
		return
	}
	ctx.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(doc.Filename))
	ctx.Data(http.StatusOK, doc.ContentType, doc.Content)
}

// PublishWrongQuestions godoc
// @Summary 导出错题集到存储
// @Tags 错题
// @Produce json
// @Security ApiKeyAuth
// @Param type query string false "题型"
// @Success 201 {object} util.Response{data=service.ExportDocument}
// @Router /api/exam/wrong-questions/export [post]
func (c *ExamController) PublishWrongQuestions(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	doc, err := c.Export.PublishWrongQuestions(ctx.Request.Context(), claims.UserID, model.QuestionType(ctx.Query("type")))
	if err != nil {
		exportError(ctx, err)
		return
	}
	util.Created(ctx, doc)
}

func exportError(ctx *gin.Context, err error) {
	if errors.Is(err, service.ErrNoWrongQuestions) {
		util.Error(ctx, http.StatusNotFound, "没有错题需要导出")
		return
	}
	util.LogInternalError(ctx, err)
}

// GetStats godoc
// @Summary 用户统计
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=repository.UserStatsView}
// @Router /api/exam/stats [get]
func (c *ExamController) GetStats(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	stats, err := c.ExamService.GetUserStats(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// ListHistory godoc
// @Summary 考试历史
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/exam/history [get]
func (c *ExamController) ListHistory(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page, limit := util.Pagination(ctx, 10, 100)

	records, total, err := c.ExamService.ListHistory(ctx.Request.Context(), claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.NewPage(records, total, page, limit))
}
