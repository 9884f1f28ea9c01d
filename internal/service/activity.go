package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ysxx86/ClassMaster/internal/dto"
	"github.com/ysxx86/ClassMaster/internal/model"
	"github.com/ysxx86/ClassMaster/internal/repository"
	"github.com/ysxx86/ClassMaster/internal/scope"
)

// activityLog 写操作日志，失败只记录告警
type activityLog struct {
	repo   *repository.Repository
	logger *zap.Logger
}

func (a activityLog) record(ctx context.Context, caller scope.Caller, action, targetType, targetID string, classID *uint, details map[string]any) {
	var raw datatypes.JSON
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			raw = datatypes.JSON(b)
		}
	}
	uid := caller.UserID
	act := &model.Activity{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		UserID:     &uid,
		ClassID:    classID,
		Details:    raw,
	}
	if uid == 0 {
		act.UserID = nil
	}
	if err := a.repo.Activity.Create(ctx, act); err != nil {
		a.logger.Warn("记录操作日志失败", zap.String("action", action), zap.Error(err))
	}
}

// toUserResponse 用户模型 → 脱敏响应
func toUserResponse(u *model.User) dto.UserResponse {
	resp := dto.UserResponse{
		ID:       u.ID,
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
		ClassID:  u.ClassID,
	}
	if u.Class != nil {
		resp.ClassName = u.Class.ClassName
	}
	if !u.CreatedAt.IsZero() {
		resp.CreatedAt = u.CreatedAt.Format(model.TimeLayout)
	}
	return resp
}

// callerOf 用户模型 → 访问身份
func callerOf(u *model.User) scope.Caller {
	return scope.Caller{
		UserID:   u.ID,
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
		ClassID:  u.ClassID,
	}
}
