package controller

import (
	"context"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

// AttemptService 控制器依赖的测验尝试服务
type AttemptService interface {
	GetQuiz(ctx context.Context, quizID uint) (*model.Quiz, error)
	StartAttempt(ctx context.Context, studentID, quizID, chapterItemID uint) (*model.Attempt, error)
	GetCurrentAttempt(ctx context.Context, studentID, chapterItemID uint) (*model.Attempt, error)
	SaveAnswer(ctx context.Context, studentID, attemptID, questionID uint, payload model.AnswerPayload) (*model.AttemptAnswer, error)
	SubmitAttempt(ctx context.Context, studentID, attemptID uint) (*model.GradedAttempt, error)
	GetAttemptDetail(ctx context.Context, studentID, attemptID uint) (*model.GradedAttempt, error)
	GetAttemptsHistory(ctx context.Context, studentID, chapterItemID uint) ([]model.GradedAttempt, error)
}

type AttemptController struct {
	Service AttemptService
}

func NewAttemptController(svc AttemptService) *AttemptController {
	return &AttemptController{Service: svc}
}

func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// @Summary 获取测验（学生视图）
// @Tags 测验模块
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "测验ID"
// @Success 200 {object} util.Response{data=model.Quiz}
// @Router /api/quizzes/{quizId} [get]
func (c *AttemptController) GetQuiz(ctx *gin.Context) {
	quizID, ok := pathID(ctx, "quizId")
	if !ok {
		return
	}

	quiz, err := c.Service.GetQuiz(ctx.Request.Context(), quizID)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, quiz)
}

// @Summary 开始测验尝试
// @Description 已有进行中的尝试时返回该尝试
// @Tags 测验模块
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "测验ID"
// @Param chapterItemId path int true "章节项ID"
// @Success 201 {object} util.Response{data=model.Attempt}
// @Failure 409 {object} util.Response "attempts_exhausted"
// @Failure 403 {object} util.Response "quiz_not_yet_available / quiz_no_longer_available"
// @Router /api/quizzes/{quizId}/chapter-items/{chapterItemId}/attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	quizID, ok := pathID(ctx, "quizId")
	if !ok {
		return
	}
	chapterItemID, ok := pathID(ctx, "chapterItemId")
	if !ok {
		return
	}

	attempt, err := c.Service.StartAttempt(ctx.Request.Context(), user.UserID, quizID, chapterItemID)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

// @Summary 获取进行中的尝试
// @Description 没有进行中的尝试时 data 为空
// @Tags 测验模块
// @Produce json
// @Security BearerAuth
// @Param chapterItemId path int true "章节项ID"
// @Success 200 {object} util.Response{data=model.Attempt}
// @Router /api/chapter-items/{chapterItemId}/attempts/current [get]
func (c *AttemptController) GetCurrentAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	chapterItemID, ok := pathID(ctx, "chapterItemId")
	if !ok {
		return
	}

	attempt, err := c.Service.GetCurrentAttempt(ctx.Request.Context(), user.UserID, chapterItemID)
	if errors.Is(err, util.ErrNoOpenAttempt) {
		util.Success(ctx, nil)
		return
	}
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 保存单题答案
// @Description 整体覆盖该题答案；seq 不大于已保存序号的请求不会生效
// @Tags 测验模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "尝试ID"
// @Param questionId path int true "题目ID"
// @Param body body model.AnswerPayload true "答案"
// @Success 200 {object} util.Response{data=model.AttemptAnswer}
// @Failure 409 {object} util.Response "attempt_not_in_progress / deadline_passed"
// @Router /api/attempts/{id}/answers/{questionId} [put]
func (c *AttemptController) SaveAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}

	var payload model.AnswerPayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	stored, err := c.Service.SaveAnswer(ctx.Request.Context(), user.UserID, attemptID, questionID, payload)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, stored)
}

// @Summary 提交测验尝试
// @Description 幂等：已提交的尝试直接返回成绩
// @Tags 测验模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "尝试ID"
// @Success 200 {object} util.Response{data=model.GradedAttempt}
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) SubmitAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	graded, err := c.Service.SubmitAttempt(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, graded)
}

// @Summary 获取尝试成绩详情
// @Tags 测验模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "尝试ID"
// @Success 200 {object} util.Response{data=model.GradedAttempt}
// @Router /api/attempts/{id} [get]
func (c *AttemptController) GetAttemptDetail(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	graded, err := c.Service.GetAttemptDetail(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, graded)
}

// @Summary 获取章节项下的历史成绩
// @Tags 测验模块
// @Produce json
// @Security BearerAuth
// @Param chapterItemId path int true "章节项ID"
// @Success 200 {object} util.Response{data=[]model.GradedAttempt}
// @Router /api/chapter-items/{chapterItemId}/attempts [get]
func (c *AttemptController) GetAttemptsHistory(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	chapterItemID, ok := pathID(ctx, "chapterItemId")
	if !ok {
		return
	}

	history, err := c.Service.GetAttemptsHistory(ctx.Request.Context(), user.UserID, chapterItemID)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, history)
}
