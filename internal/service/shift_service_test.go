package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"shift-swap/backend/internal/dto"
	"shift-swap/backend/internal/event"
	"shift-swap/backend/internal/model"
	pkgerrors "shift-swap/backend/pkg/errors"
)

// ── PostForSwap ──

func TestPostForSwap_Success(t *testing.T) {
	env := newTestEnv(t)
	env.store.addShift("s1", "alice", monday, model.ShiftStatusScheduled)

	resp, err := env.svc.Shift.PostForSwap(context.Background(), "s1", "alice")
	if err != nil {
		t.Fatalf("期望成功，得到: %v", err)
	}
	if resp.Status != model.ShiftStatusOpenForSwap || resp.EffectiveStatus != model.ShiftStatusOpenForSwap {
		t.Errorf("期望 open_for_swap，得到 %s/%s", resp.Status, resp.EffectiveStatus)
	}
	if got := env.store.shift("s1"); got.Status != model.ShiftStatusOpenForSwap || got.Version != 2 {
		t.Errorf("存储状态错误: %s v%d", got.Status, got.Version)
	}
	if countEvents(env.bus.Events(), event.TypeShiftChanged, "s1", model.ShiftStatusOpenForSwap) != 1 {
		t.Error("期望发布一次 shift.changed 事件")
	}
}

func TestPostForSwap_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		shiftID string
		actor   string
		wantErr error
	}{
		{"班次不存在", model.ShiftStatusScheduled, "missing", "alice", pkgerrors.ErrNotFound},
		{"非负责人", model.ShiftStatusScheduled, "s1", "bob", pkgerrors.ErrForbidden},
		{"经理也不能代发", model.ShiftStatusScheduled, "s1", "boss", pkgerrors.ErrForbidden},
		{"已开放换班", model.ShiftStatusOpenForSwap, "s1", "alice", pkgerrors.ErrInvalidState},
		{"已完成换班", model.ShiftStatusSwapped, "s1", "alice", pkgerrors.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.store.addShift("s1", "alice", monday, tt.status)

			_, err := env.svc.Shift.PostForSwap(context.Background(), tt.shiftID, tt.actor)
			assertKind(t, err, tt.wantErr)

			if got := env.store.shift("s1"); got.Status != tt.status {
				t.Errorf("失败后状态不应改变: %s → %s", tt.status, got.Status)
			}
			if len(env.bus.Events()) != 0 {
				t.Error("失败时不应发布事件")
			}
		})
	}
}

// ── Claim ──

func TestClaim_Success(t *testing.T) {
	env := newTestEnv(t)
	env.store.addShift("s1", "alice", monday, model.ShiftStatusOpenForSwap)

	resp, err := env.svc.Shift.Claim(context.Background(), "s1", "bob")
	if err != nil {
		t.Fatalf("期望成功，得到: %v", err)
	}
	if resp.Status != model.SwapStatusPending || resp.RequestedBy != "bob" || resp.RequesterName != "Bob" {
		t.Errorf("申请内容错误: %+v", resp)
	}

	// 班次落库状态不变，派生状态为 pending_approval
	if got := env.store.shift("s1"); got.Status != model.ShiftStatusOpenForSwap {
		t.Errorf("认领后班次状态应仍为 open_for_swap，得到 %s", got.Status)
	}
	detail, err := env.svc.Shift.Get(context.Background(), "s1", "bob")
	if err != nil {
		t.Fatalf("Get 失败: %v", err)
	}
	if detail.EffectiveStatus != model.ShiftStatusPendingApproval || !detail.ClaimedByMe || detail.PendingClaims != 1 {
		t.Errorf("派生视图错误: %+v", detail.ShiftResponse)
	}

	events := env.bus.Events()
	if countEvents(events, event.TypeSwapRequestChanged, resp.ID, model.SwapStatusPending) != 1 {
		t.Error("期望发布 swap_request.changed(pending)")
	}
	if countEvents(events, event.TypeShiftChanged, "s1", model.ShiftStatusPendingApproval) != 1 {
		t.Error("期望发布 shift.changed(pending_approval)")
	}
}

func TestClaim_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		shiftID string
		actor   string
		wantErr error
	}{
		{"经理不能认领", model.ShiftStatusOpenForSwap, "s1", "boss", pkgerrors.ErrForbidden},
		{"班次不存在", model.ShiftStatusOpenForSwap, "missing", "bob", pkgerrors.ErrNotFound},
		{"班次未开放", model.ShiftStatusScheduled, "s1", "bob", pkgerrors.ErrInvalidState},
		{"班次已换出", model.ShiftStatusSwapped, "s1", "bob", pkgerrors.ErrInvalidState},
		{"认领自己的班次", model.ShiftStatusOpenForSwap, "s1", "alice", pkgerrors.ErrForbidden},
		{"未知用户", model.ShiftStatusOpenForSwap, "s1", "ghost", pkgerrors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.store.addShift("s1", "alice", monday, tt.status)

			_, err := env.svc.Shift.Claim(context.Background(), tt.shiftID, tt.actor)
			assertKind(t, err, tt.wantErr)
			if n := len(env.store.requestsByShift("s1")); n != 0 {
				t.Errorf("失败时不应创建申请，得到 %d 条", n)
			}
		})
	}
}

func TestClaim_DuplicatePending(t *testing.T) {
	env := newTestEnv(t)
	env.store.addShift("s1", "alice", monday, model.ShiftStatusOpenForSwap)

	if _, err := env.svc.Shift.Claim(context.Background(), "s1", "bob"); err != nil {
		t.Fatalf("首次认领应成功: %v", err)
	}
	_, err := env.svc.Shift.Claim(context.Background(), "s1", "bob")
	assertKind(t, err, pkgerrors.ErrAlreadyClaimed)
	if !errors.Is(err, ErrDuplicateClaim) {
		t.Errorf("期望 ErrDuplicateClaim，得到 %v", err)
	}
	if n := len(env.store.requestsByShift("s1")); n != 1 {
		t.Errorf("期望仅 1 条申请，得到 %d", n)
	}
}

func TestClaim_AfterRejectionCanClaimAgain(t *testing.T) {
	env := newTestEnv(t)
	env.store.addShift("s1", "alice", monday, model.ShiftStatusOpenForSwap)
	ctx := context.Background()

	first, err := env.svc.Shift.Claim(ctx, "s1", "bob")
	if err != nil {
		t.Fatalf("认领失败: %v", err)
	}
	if _, err := env.svc.Swap.Reject(ctx, first.ID, "boss"); err != nil {
		t.Fatalf("驳回失败: %v", err)
	}
	if _, err := env.svc.Shift.Claim(ctx, "s1", "bob"); err != nil {
		t.Errorf("驳回后应可再次认领: %v", err)
	}
}

// 同日非 swapped 班次 ⇔ double-booking
func TestClaim_DoubleBooking(t *testing.T) {
	tests := []struct {
		name       string
		bobShift   time.Time
		bobStatus  string
		wantReject bool
	}{
		{"同日上午已有班次", monday.Add(-2 * time.Hour), model.ShiftStatusScheduled, true},
		{"同日晚间已有班次", monday.Add(10 * time.Hour), model.ShiftStatusOpenForSwap, true},
		{"同日班次已换出", monday, model.ShiftStatusSwapped, false},
		{"前一日有班次", monday.AddDate(0, 0, -1), model.ShiftStatusScheduled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.store.addShift("s1", "alice", monday, model.ShiftStatusOpenForSwap)
			env.store.addShift("b1", "bob", tt.bobShift, tt.bobStatus)

			_, err := env.svc.Shift.Claim(context.Background(), "s1", "bob")
			if !tt.wantReject {
				if err != nil {
					t.Fatalf("期望成功，得到: %v", err)
				}
				return
			}
			var ce *ComplianceError
			if !errors.As(err, &ce) || ce.Reason != ReasonDoubleBooking {
				t.Fatalf("期望 double-booking，得到 %v", err)
			}
			assertKind(t, err, pkgerrors.ErrComplianceViolation)
		})
	}
}

// 1-6 日在岗认领第 7 日被拒，认领第 8 日成功
func TestClaim_ConsecutiveDays(t *testing.T) {
	env := newTestEnv(t)
	for d := 0; d < 6; d++ {
		env.store.addShift(fmt.Sprintf("b%d", d+1), "bob", monday.AddDate(0, 0, d), model.ShiftStatusScheduled)
	}
	env.store.addShift("day7", "alice", monday.AddDate(0, 0, 6), model.ShiftStatusOpenForSwap)
	env.store.addShift("day8", "alice", monday.AddDate(0, 0, 7), model.ShiftStatusOpenForSwap)

	_, err := env.svc.Shift.Claim(context.Background(), "day7", "bob")
	var ce *ComplianceError
	if !errors.As(err, &ce) || ce.Reason != ReasonConsecutiveDays {
		t.Fatalf("认领第 7 日期望 consecutive-days，得到 %v", err)
	}

	if _, err := env.svc.Shift.Claim(context.Background(), "day8", "bob"); err != nil {
		t.Errorf("认领第 8 日应成功，得到 %v", err)
	}
}

func TestClaim_StorageErrorPropagates(t *testing.T) {
	env := newTestEnv(t)
	env.store.addShift("s1", "alice", monday, model.ShiftStatusOpenForSwap)
	env.store.listActiveErr = errors.New("connection reset")

	_, err := env.svc.Shift.Claim(context.Background(), "s1", "bob")
	if err == nil || pkgerrors.Kind(err) != nil {
		t.Fatalf("期望基础设施错误，得到 %v", err)
	}
}

// ── Create ──

func TestCreateShift(t *testing.T) {
	tests := []struct {
		name       string
		actor      string
		assignedTo string
		start      time.Time
		end        time.Time
		wantOwner  string
		wantErr    error
	}{
		{"员工为自己创建", "alice", "", monday, monday.Add(8 * time.Hour), "alice", nil},
		{"经理指派给员工", "boss", "bob", monday, monday.Add(8 * time.Hour), "bob", nil},
		{"员工不能为他人创建", "alice", "bob", monday, monday.Add(8 * time.Hour), "", pkgerrors.ErrForbidden},
		{"经理不能给自己排班", "boss", "", monday, monday.Add(8 * time.Hour), "", ErrAssigneeNotWorker},
		{"被指派人不存在", "boss", "ghost", monday, monday.Add(8 * time.Hour), "", pkgerrors.ErrNotFound},
		{"结束早于开始", "alice", "", monday, monday.Add(-time.Hour), "", ErrInvalidShiftTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp, err := env.svc.Shift.Create(context.Background(), &dto.CreateShiftRequest{
				StartTime:  tt.start,
				EndTime:    tt.end,
				AssignedTo: tt.assignedTo,
			}, tt.actor)

			if tt.wantErr != nil {
				assertKind(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("期望成功，得到: %v", err)
			}
			if resp.AssignedTo != tt.wantOwner || resp.Status != model.ShiftStatusScheduled || resp.Version != 1 {
				t.Errorf("创建结果错误: %+v", resp)
			}
			if got := env.store.shift(resp.ID); got.AssignedTo != tt.wantOwner {
				t.Errorf("存储负责人错误: %s", got.AssignedTo)
			}
		})
	}
}

func TestCreateShift_RunsCompliance(t *testing.T) {
	env := newTestEnv(t)
	env.store.addShift("a1", "alice", monday, model.ShiftStatusScheduled)

	_, err := env.svc.Shift.Create(context.Background(), &dto.CreateShiftRequest{
		StartTime: monday.Add(9 * time.Hour),
		EndTime:   monday.Add(12 * time.Hour),
	}, "alice")
	var ce *ComplianceError
	if !errors.As(err, &ce) || ce.Reason != ReasonDoubleBooking {
		t.Fatalf("期望 double-booking，得到 %v", err)
	}
}

// ── List / Get ──

func TestListShifts_Filters(t *testing.T) {
	env := newTestEnv(t)
	env.store.addShift("a1", "alice", monday, model.ShiftStatusOpenForSwap)
	env.store.addShift("a2", "alice", monday.AddDate(0, 0, 1), model.ShiftStatusScheduled)
	env.store.addShift("b1", "bob", monday.AddDate(0, 0, 2), model.ShiftStatusScheduled)
	ctx := context.Background()

	if _, err := env.svc.Shift.Claim(ctx, "a1", "carol"); err != nil {
		t.Fatalf("认领失败: %v", err)
	}

	tests := []struct {
		name    string
		req     dto.ShiftListRequest
		actor   string
		wantIDs []string
	}{
		{"全部", dto.ShiftListRequest{Filter: dto.ShiftFilterAll}, "alice", []string{"a1", "a2", "b1"}},
		{"我的", dto.ShiftListRequest{Filter: dto.ShiftFilterMine}, "alice", []string{"a1", "a2"}},
		{"开放换班", dto.ShiftListRequest{Filter: dto.ShiftFilterOpen}, "bob", []string{"a1"}},
		{"日期范围", dto.ShiftListRequest{From: "2030-01-08", To: "2030-01-09"}, "bob", []string{"a2", "b1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := env.svc.Shift.List(ctx, &tt.req, tt.actor)
			if err != nil {
				t.Fatalf("List 失败: %v", err)
			}
			var ids []string
			for _, s := range list {
				ids = append(ids, s.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("期望 %v，得到 %v", tt.wantIDs, ids)
			}
		})
	}

	list, _ := env.svc.Shift.List(ctx, &dto.ShiftListRequest{Filter: dto.ShiftFilterOpen}, "carol")
	if len(list) != 1 || list[0].EffectiveStatus != model.ShiftStatusPendingApproval || !list[0].ClaimedByMe || list[0].OwnerName != "Alice" {
		t.Errorf("派生视图错误: %+v", list)
	}
}

func TestListShifts_InvalidRange(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Shift.List(context.Background(), &dto.ShiftListRequest{From: "2030-01-09", To: "2030-01-08"}, "alice")
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("期望 ErrInvalidDateRange，得到 %v", err)
	}
}

func TestGetShift_ClaimVisibility(t *testing.T) {
	env := newTestEnv(t)
	env.store.addShift("s1", "alice", monday, model.ShiftStatusOpenForSwap)
	ctx := context.Background()
	for _, w := range []string{"bob", "carol"} {
		if _, err := env.svc.Shift.Claim(ctx, "s1", w); err != nil {
			t.Fatalf("认领失败: %v", err)
		}
	}

	tests := []struct {
		actor      string
		wantClaims int
	}{
		{"alice", 2},
		{"boss", 2},
		{"bob", 1},
		{"dave", 0},
	}
	for _, tt := range tests {
		detail, err := env.svc.Shift.Get(ctx, "s1", tt.actor)
		if err != nil {
			t.Fatalf("%s Get 失败: %v", tt.actor, err)
		}
		if len(detail.Claims) != tt.wantClaims {
			t.Errorf("%s 期望可见 %d 条申请，得到 %d", tt.actor, tt.wantClaims, len(detail.Claims))
		}
		if detail.PendingClaims != 2 {
			t.Errorf("pending 计数应为 2，得到 %d", detail.PendingClaims)
		}
	}

	_, err := env.svc.Shift.Get(ctx, "missing", "alice")
	assertKind(t, err, pkgerrors.ErrNotFound)
}

// ── ExportCalendar ──

func TestExportCalendar(t *testing.T) {
	env := newTestEnv(t)
	env.store.addShift("a1", "alice", monday, model.ShiftStatusScheduled)
	env.store.addShift("a2", "alice", monday.AddDate(0, 0, 1), model.ShiftStatusOpenForSwap)
	env.store.addShift("b1", "bob", monday, model.ShiftStatusScheduled)

	data, err := env.svc.Shift.ExportCalendar(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ExportCalendar 失败: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "BEGIN:VCALENDAR") {
		t.Fatal("输出不是 iCalendar")
	}
	if n := strings.Count(out, "BEGIN:VEVENT"); n != 2 {
		t.Errorf("期望 2 个事件，得到 %d", n)
	}
	if !strings.Contains(out, "a1@shift-swap") || strings.Contains(out, "b1@shift-swap") {
		t.Error("日历应只包含本人班次")
	}
}
