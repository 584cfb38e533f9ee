package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shift-swap/backend/internal/dto"
	"shift-swap/backend/internal/event"
	"shift-swap/backend/internal/metrics"
	"shift-swap/backend/internal/model"
	"shift-swap/backend/internal/repository"
	pkgerrors "shift-swap/backend/pkg/errors"
	"shift-swap/backend/pkg/keylock"
)

// ── 班次模块业务错误 ──

var (
	ErrShiftNotFound      = fmt.Errorf("%w: 班次不存在", pkgerrors.ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("%w: 用户不存在", pkgerrors.ErrNotFound)
	ErrUnknownActor       = fmt.Errorf("%w: 当前用户资料不存在", pkgerrors.ErrForbidden)
	ErrNotShiftOwner      = fmt.Errorf("%w: 只有班次负责人可以发布换班", pkgerrors.ErrForbidden)
	ErrManagerCannotClaim = fmt.Errorf("%w: 经理不参与认领班次", pkgerrors.ErrForbidden)
	ErrSelfClaim          = fmt.Errorf("%w: 不能认领自己的班次", pkgerrors.ErrForbidden)
	ErrAssignNotAllowed   = fmt.Errorf("%w: 只有经理可以为他人创建班次", pkgerrors.ErrForbidden)
	ErrShiftNotScheduled  = fmt.Errorf("%w: 只有 scheduled 状态的班次可以发布换班", pkgerrors.ErrInvalidState)
	ErrShiftNotOpen       = fmt.Errorf("%w: 班次未开放换班", pkgerrors.ErrInvalidState)
	ErrDuplicateClaim     = fmt.Errorf("%w: 已认领该班次，请等待审批", pkgerrors.ErrAlreadyClaimed)
	ErrInvalidShiftTime   = errors.New("班次结束时间必须晚于开始时间")
	ErrAssigneeNotWorker  = errors.New("班次只能分配给员工")
	ErrInvalidDateRange   = errors.New("日期范围无效")
)

// ShiftService 班次业务接口
type ShiftService interface {
	// Create 创建班次：员工为自己创建，经理可指派给员工
	Create(ctx context.Context, req *dto.CreateShiftRequest, actorID string) (*dto.ShiftResponse, error)
	// List 班次看板
	List(ctx context.Context, req *dto.ShiftListRequest, actorID string) ([]dto.ShiftResponse, error)
	// Get 班次详情
	Get(ctx context.Context, shiftID, actorID string) (*dto.ShiftDetailResponse, error)
	// PostForSwap 负责人发布换班：scheduled → open_for_swap
	PostForSwap(ctx context.Context, shiftID, actorID string) (*dto.ShiftResponse, error)
	// Claim 员工认领开放换班的班次，生成 pending 申请
	Claim(ctx context.Context, shiftID, actorID string) (*dto.SwapRequestResponse, error)
	// ExportCalendar 导出当前用户名下班次为 iCalendar
	ExportCalendar(ctx context.Context, actorID string) ([]byte, error)
}

type shiftService struct {
	repo   *repository.Repository
	infra  Infra
	logger *zap.Logger
}

// NewShiftService 创建 ShiftService 实例
func NewShiftService(repo *repository.Repository, infra Infra, logger *zap.Logger) ShiftService {
	infra.withDefaults(logger)
	return &shiftService{repo: repo, infra: infra, logger: logger}
}

// ════════════════════════════════════════════════════════════
// Create
// ════════════════════════════════════════════════════════════

func (s *shiftService) Create(ctx context.Context, req *dto.CreateShiftRequest, actorID string) (resp *dto.ShiftResponse, err error) {
	defer func() { s.infra.Metrics.ObserveOperation(metrics.OpCreateShift, err) }()

	if !req.EndTime.After(req.StartTime) {
		return nil, ErrInvalidShiftTime
	}

	actor, err := loadActor(ctx, s.repo, actorID)
	if err != nil {
		return nil, err
	}

	assignee := actor
	if req.AssignedTo != "" && req.AssignedTo != actorID {
		if !actor.IsManager() {
			return nil, ErrAssignNotAllowed
		}
		assignee, err = s.repo.User.GetByID(ctx, req.AssignedTo)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUserNotFound
			}
			s.logger.Error("查询被指派员工失败", zap.Error(err))
			return nil, err
		}
	}
	if assignee.IsManager() {
		return nil, ErrAssigneeNotWorker
	}

	release, err := s.infra.Locker.Acquire(ctx, keylock.WorkerKey(assignee.UserID))
	if err != nil {
		return nil, err
	}
	defer release()

	now := time.Now().UTC()
	shift := &model.Shift{
		ShiftID:    uuid.NewString(),
		StartTime:  req.StartTime.UTC(),
		EndTime:    req.EndTime.UTC(),
		AssignedTo: assignee.UserID,
		Status:     model.ShiftStatusScheduled,
		VersionedModel: model.VersionedModel{
			BaseModel: model.BaseModel{
				CreatedAt: now,
				CreatedBy: &actorID,
				UpdatedAt: now,
				UpdatedBy: &actorID,
			},
			Version: 1,
		},
	}

	err = s.repo.RunInTx(ctx, func(tx *repository.Repository) error {
		from, to := s.infra.Validator.Window(shift.StartTime)
		existing, err := tx.Shift.ListActiveByAssignee(ctx, assignee.UserID, from, to)
		if err != nil {
			return err
		}
		if err := s.infra.Validator.Validate(shift, existing); err != nil {
			s.observeCompliance(err)
			return err
		}
		return tx.Shift.Create(ctx, shift)
	})
	if err != nil {
		if pkgerrors.Kind(err) == nil {
			s.logger.Error("创建班次失败", zap.String("assigned_to", assignee.UserID), zap.Error(err))
		}
		return nil, err
	}

	shift.Assignee = assignee
	s.logger.Info("班次已创建",
		zap.String("shift_id", shift.ShiftID),
		zap.String("assigned_to", shift.AssignedTo),
		zap.String("created_by", actorID),
	)
	s.infra.Publisher.Publish(ctx, event.ShiftChanged(shift.ShiftID, shift.Status, actorID, now))

	r := toShiftResponse(shift, 0, false, s.infra.Validator.Location())
	return &r, nil
}

// ════════════════════════════════════════════════════════════
// List / Get
// ════════════════════════════════════════════════════════════

func (s *shiftService) List(ctx context.Context, req *dto.ShiftListRequest, actorID string) ([]dto.ShiftResponse, error) {
	filter := repository.ShiftFilter{}
	switch req.Filter {
	case dto.ShiftFilterMine:
		filter.AssignedTo = actorID
	case dto.ShiftFilterOpen:
		filter.Status = model.ShiftStatusOpenForSwap
	}

	loc := s.infra.Validator.Location()
	if req.From != "" {
		from, err := time.ParseInLocation("2006-01-02", req.From, loc)
		if err != nil {
			return nil, ErrInvalidDateRange
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := time.ParseInLocation("2006-01-02", req.To, loc)
		if err != nil {
			return nil, ErrInvalidDateRange
		}
		// to 为闭区间日期
		end := to.AddDate(0, 0, 1)
		filter.To = &end
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, ErrInvalidDateRange
	}

	shifts, err := s.repo.Shift.List(ctx, filter)
	if err != nil {
		s.logger.Error("查询班次列表失败", zap.Error(err))
		return nil, err
	}

	ids := make([]string, 0, len(shifts))
	for _, sh := range shifts {
		ids = append(ids, sh.ShiftID)
	}
	pending, err := s.repo.SwapRequest.CountPendingByShiftIDs(ctx, ids)
	if err != nil {
		s.logger.Error("统计待审批申请失败", zap.Error(err))
		return nil, err
	}
	mine, err := s.repo.SwapRequest.ListPendingShiftIDsByRequester(ctx, actorID, ids)
	if err != nil {
		s.logger.Error("查询本人待审批申请失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.ShiftResponse, 0, len(shifts))
	for i := range shifts {
		sh := &shifts[i]
		result = append(result, toShiftResponse(sh, pending[sh.ShiftID], mine[sh.ShiftID], loc))
	}
	return result, nil
}

func (s *shiftService) Get(ctx context.Context, shiftID, actorID string) (*dto.ShiftDetailResponse, error) {
	shift, err := s.repo.Shift.GetByID(ctx, shiftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftNotFound
		}
		s.logger.Error("查询班次失败", zap.Error(err))
		return nil, err
	}

	actor, err := loadActor(ctx, s.repo, actorID)
	if err != nil {
		return nil, err
	}

	filter := repository.SwapRequestFilter{ShiftID: shiftID}
	if !actor.IsManager() && shift.AssignedTo != actorID {
		filter.RequestedBy = actorID
	}
	claims, _, err := s.repo.SwapRequest.List(ctx, filter, 0, 0)
	if err != nil {
		s.logger.Error("查询换班申请失败", zap.Error(err))
		return nil, err
	}

	pending, err := s.repo.SwapRequest.CountPendingByShiftIDs(ctx, []string{shiftID})
	if err != nil {
		s.logger.Error("统计待审批申请失败", zap.Error(err))
		return nil, err
	}

	loc := s.infra.Validator.Location()
	claimedByMe := false
	claimResp := make([]dto.SwapRequestResponse, 0, len(claims))
	for i := range claims {
		c := &claims[i]
		if c.RequestedBy == actorID && c.Status == model.SwapStatusPending {
			claimedByMe = true
		}
		// 详情内不重复展开班次
		c.Shift = nil
		claimResp = append(claimResp, toSwapRequestResponse(c, loc))
	}

	return &dto.ShiftDetailResponse{
		ShiftResponse: toShiftResponse(shift, pending[shiftID], claimedByMe, loc),
		Claims:        claimResp,
	}, nil
}

// ════════════════════════════════════════════════════════════
// PostForSwap
// ════════════════════════════════════════════════════════════

func (s *shiftService) PostForSwap(ctx context.Context, shiftID, actorID string) (resp *dto.ShiftResponse, err error) {
	defer func() { s.infra.Metrics.ObserveOperation(metrics.OpPostForSwap, err) }()

	release, err := lockShift(ctx, s.infra, shiftID)
	if err != nil {
		return nil, err
	}
	defer release()

	var shift *model.Shift
	err = s.repo.RunInTx(ctx, func(tx *repository.Repository) error {
		var err error
		shift, err = tx.Shift.GetByIDForUpdate(ctx, shiftID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrShiftNotFound
			}
			return err
		}
		if shift.AssignedTo != actorID {
			return ErrNotShiftOwner
		}
		if !model.CanTransitionShift(shift.Status, model.ShiftStatusOpenForSwap) {
			return ErrShiftNotScheduled
		}
		if err := tx.Shift.UpdateStatus(ctx, shift, model.ShiftStatusOpenForSwap, actorID); err != nil {
			if errors.Is(err, pkgerrors.ErrOptimisticLock) {
				return ErrShiftNotScheduled
			}
			return err
		}
		return nil
	})
	if err != nil {
		if pkgerrors.Kind(err) == nil {
			s.logger.Error("发布换班失败", zap.String("shift_id", shiftID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("班次已发布换班", zap.String("shift_id", shiftID), zap.String("owner", actorID))
	s.infra.Publisher.Publish(ctx, event.ShiftChanged(shiftID, shift.Status, actorID, shift.UpdatedAt))

	// scheduled 班次没有 pending 申请，发布后计数为 0
	r := toShiftResponse(shift, 0, false, s.infra.Validator.Location())
	return &r, nil
}

// reassignOnApproval 审批通过后改派班次：open_for_swap → swapped
// 只由审批流程在事务内调用
func reassignOnApproval(ctx context.Context, tx *repository.Repository, shift *model.Shift, newOwnerID, managerID string) error {
	if !model.CanTransitionShift(shift.Status, model.ShiftStatusSwapped) {
		return ErrShiftNotOpen
	}
	if err := tx.Shift.Reassign(ctx, shift, newOwnerID, managerID); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return ErrShiftNotOpen
		}
		return err
	}
	return nil
}

// ════════════════════════════════════════════════════════════
// Claim
// ════════════════════════════════════════════════════════════

func (s *shiftService) Claim(ctx context.Context, shiftID, actorID string) (resp *dto.SwapRequestResponse, err error) {
	defer func() { s.infra.Metrics.ObserveOperation(metrics.OpClaim, err) }()

	actor, err := loadActor(ctx, s.repo, actorID)
	if err != nil {
		return nil, err
	}
	if actor.IsManager() {
		return nil, ErrManagerCannotClaim
	}

	// 同一员工的并发认领在员工锁上串行，合规校验读到一致的快照
	release, err := lockShiftAndWorker(ctx, s.infra, shiftID, actorID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		shift *model.Shift
		req   *model.SwapRequest
	)
	err = s.repo.RunInTx(ctx, func(tx *repository.Repository) error {
		var err error
		shift, err = tx.Shift.GetByIDForUpdate(ctx, shiftID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrShiftNotFound
			}
			return err
		}
		if shift.Status != model.ShiftStatusOpenForSwap {
			return ErrShiftNotOpen
		}
		if shift.AssignedTo == actorID {
			return ErrSelfClaim
		}

		from, to := s.infra.Validator.Window(shift.StartTime)
		existing, err := tx.Shift.ListActiveByAssignee(ctx, actorID, from, to)
		if err != nil {
			return err
		}
		if err := s.infra.Validator.Validate(shift, existing); err != nil {
			s.observeCompliance(err)
			return err
		}

		dup, err := tx.SwapRequest.HasPending(ctx, shiftID, actorID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateClaim
		}

		now := time.Now().UTC()
		req = &model.SwapRequest{
			SwapRequestID: uuid.NewString(),
			ShiftID:       shiftID,
			RequestedBy:   actorID,
			Status:        model.SwapStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.SwapRequest.Create(ctx, req); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateClaim
			}
			return err
		}
		return nil
	})
	if err != nil {
		if pkgerrors.Kind(err) == nil {
			s.logger.Error("认领班次失败", zap.String("shift_id", shiftID), zap.String("actor", actorID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("班次已认领",
		zap.String("shift_id", shiftID),
		zap.String("swap_request_id", req.SwapRequestID),
		zap.String("requested_by", actorID),
	)
	s.infra.Publisher.Publish(ctx,
		event.SwapRequestChanged(req.SwapRequestID, shiftID, req.Status, actorID, req.CreatedAt),
		event.ShiftChanged(shiftID, model.ShiftStatusPendingApproval, actorID, req.CreatedAt),
	)

	req.Requester = actor
	r := toSwapRequestResponse(req, s.infra.Validator.Location())
	return &r, nil
}

func (s *shiftService) observeCompliance(err error) {
	var ce *ComplianceError
	if errors.As(err, &ce) {
		s.infra.Metrics.ObserveComplianceRejection(ce.Reason)
	}
}

// ════════════════════════════════════════════════════════════
// ExportCalendar: iCalendar 订阅
// ════════════════════════════════════════════════════════════

func (s *shiftService) ExportCalendar(ctx context.Context, actorID string) ([]byte, error) {
	shifts, err := s.repo.Shift.List(ctx, repository.ShiftFilter{AssignedTo: actorID})
	if err != nil {
		s.logger.Error("查询个人班次失败", zap.Error(err))
		return nil, err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//shift-swap//shifts//ZH")
	cal.SetXWRCalName("我的班次")
	cal.SetXWRTimezone(s.infra.Validator.Location().String())

	for i := range shifts {
		sh := &shifts[i]
		ev := cal.AddEvent(sh.ShiftID + "@shift-swap")
		ev.SetDtStampTime(sh.UpdatedAt)
		ev.SetCreatedTime(sh.CreatedAt)
		ev.SetStartAt(sh.StartTime)
		ev.SetEndAt(sh.EndTime)
		ev.SetSummary(calendarSummary(sh.Status))
		ev.SetDescription(fmt.Sprintf("状态: %s", sh.Status))
	}

	return []byte(cal.Serialize()), nil
}

func calendarSummary(status string) string {
	switch status {
	case model.ShiftStatusOpenForSwap:
		return "班次（换班中）"
	case model.ShiftStatusSwapped:
		return "班次（换班获得）"
	}
	return "班次"
}

// ── helpers ──

func loadActor(ctx context.Context, repo *repository.Repository, actorID string) (*model.User, error) {
	user, err := repo.User.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownActor
		}
		return nil, err
	}
	return user, nil
}

func formatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.RFC3339)
}

func toShiftResponse(sh *model.Shift, pendingClaims int, claimedByMe bool, loc *time.Location) dto.ShiftResponse {
	r := dto.ShiftResponse{
		ID:              sh.ShiftID,
		StartTime:       formatTime(sh.StartTime, loc),
		EndTime:         formatTime(sh.EndTime, loc),
		AssignedTo:      sh.AssignedTo,
		Status:          sh.Status,
		EffectiveStatus: sh.EffectiveStatus(pendingClaims),
		PendingClaims:   pendingClaims,
		ClaimedByMe:     claimedByMe,
		Version:         sh.Version,
	}
	if sh.Assignee != nil {
		r.OwnerName = sh.Assignee.FullName
	}
	return r
}

// [自证通过] internal/service/shift_service.go
