package handler

import (
	"go.uber.org/zap"

	"github.com/ysxx86/ClassMaster/internal/service"
	"github.com/ysxx86/ClassMaster/pkg/jwt"
	"github.com/ysxx86/ClassMaster/pkg/session"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth      *AuthHandler
	User      *UserHandler
	Class     *ClassHandler
	Student   *StudentHandler
	Grade     *GradeHandler
	Deyu      *DeyuHandler
	Comment   *CommentHandler
	Dashboard *DashboardHandler
	AI        *AIHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, jwtMgr *jwt.Manager, sessions *session.Store, logger *zap.Logger) *Handler {
	return &Handler{
		Auth:      NewAuthHandler(svc.Auth, jwtMgr, sessions, logger),
		User:      NewUserHandler(svc.User),
		Class:     NewClassHandler(svc.Class),
		Student:   NewStudentHandler(svc.Student),
		Grade:     NewGradeHandler(svc.Grade),
		Deyu:      NewDeyuHandler(svc.Deyu),
		Comment:   NewCommentHandler(svc.Comment, logger),
		Dashboard: NewDashboardHandler(svc.Dashboard),
		AI:        NewAIHandler(svc.AI),
	}
}
