package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"shift-swap/backend/internal/model"
	"shift-swap/backend/internal/repository"
	pkgerrors "shift-swap/backend/pkg/errors"
)

// ── 内存存储 ──
// 三个 mock repo 共享同一把锁与数据，读写均做值拷贝，模拟数据库行语义

type mockStore struct {
	mu       sync.Mutex
	users    map[string]model.User
	shifts   map[string]model.Shift
	requests map[string]model.SwapRequest

	// 注入基础设施错误
	listActiveErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		users:    make(map[string]model.User),
		shifts:   make(map[string]model.Shift),
		requests: make(map[string]model.SwapRequest),
	}
}

func (s *mockStore) repository() *repository.Repository {
	return &repository.Repository{
		User:        &mockUserRepo{s},
		Shift:       &mockShiftRepo{s},
		SwapRequest: &mockSwapRequestRepo{s},
	}
}

func (s *mockStore) addUser(id, name, role string) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := model.User{
		UserID:    id,
		FullName:  name,
		Email:     id + "@example.com",
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	s.users[id] = u
	return u
}

func (s *mockStore) addShift(id, owner string, start time.Time, status string) model.Shift {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := model.Shift{
		ShiftID:    id,
		StartTime:  start,
		EndTime:    start.Add(8 * time.Hour),
		AssignedTo: owner,
		Status:     status,
	}
	sh.Version = 1
	s.shifts[id] = sh
	return sh
}

func (s *mockStore) shift(id string) model.Shift {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shifts[id]
}

func (s *mockStore) request(id string) model.SwapRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

func (s *mockStore) requestsByShift(shiftID string) []model.SwapRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SwapRequest
	for _, r := range s.requests {
		if r.ShiftID == shiftID {
			out = append(out, r)
		}
	}
	return out
}

// userPtr 调用方需持有锁
func (s *mockStore) userPtr(id string) *model.User {
	if u, ok := s.users[id]; ok {
		return &u
	}
	return nil
}

// ── Mock UserRepository ──

type mockUserRepo struct{ s *mockStore }

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	m.s.users[user.UserID] = *user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u := m.s.userPtr(id); u != nil {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock ShiftRepository ──

type mockShiftRepo struct{ s *mockStore }

func (m *mockShiftRepo) Create(_ context.Context, shift *model.Shift) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored := *shift
	stored.Assignee = nil
	m.s.shifts[shift.ShiftID] = stored
	return nil
}

func (m *mockShiftRepo) GetByID(_ context.Context, id string) (*model.Shift, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sh, ok := m.s.shifts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	sh.Assignee = m.s.userPtr(sh.AssignedTo)
	return &sh, nil
}

func (m *mockShiftRepo) GetByIDForUpdate(_ context.Context, id string) (*model.Shift, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sh, ok := m.s.shifts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &sh, nil
}

func (m *mockShiftRepo) List(_ context.Context, filter repository.ShiftFilter) ([]model.Shift, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.Shift
	for _, sh := range m.s.shifts {
		if filter.AssignedTo != "" && sh.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.Status != "" && sh.Status != filter.Status {
			continue
		}
		if filter.From != nil && sh.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sh.StartTime.Before(*filter.To) {
			continue
		}
		sh.Assignee = m.s.userPtr(sh.AssignedTo)
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *mockShiftRepo) ListActiveByAssignee(_ context.Context, userID string, from, to time.Time) ([]model.Shift, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.listActiveErr != nil {
		return nil, m.s.listActiveErr
	}
	var out []model.Shift
	for _, sh := range m.s.shifts {
		if sh.AssignedTo != userID || sh.Status == model.ShiftStatusSwapped {
			continue
		}
		if sh.StartTime.Before(from) || !sh.StartTime.Before(to) {
			continue
		}
		out = append(out, sh)
	}
	return out, nil
}

func (m *mockShiftRepo) UpdateStatus(_ context.Context, shift *model.Shift, status, operatorID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.shifts[shift.ShiftID]
	if !ok || stored.Status != shift.Status || stored.Version != shift.Version {
		return pkgerrors.ErrOptimisticLock
	}
	stored.Status = status
	stored.Version++
	stored.UpdatedAt = time.Now()
	stored.UpdatedBy = &operatorID
	m.s.shifts[shift.ShiftID] = stored

	shift.Status = status
	shift.Version = stored.Version
	shift.UpdatedAt = stored.UpdatedAt
	shift.UpdatedBy = &operatorID
	return nil
}

func (m *mockShiftRepo) Reassign(_ context.Context, shift *model.Shift, newOwnerID, operatorID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.shifts[shift.ShiftID]
	if !ok || stored.Status != shift.Status || stored.Version != shift.Version {
		return pkgerrors.ErrOptimisticLock
	}
	stored.AssignedTo = newOwnerID
	stored.Status = model.ShiftStatusSwapped
	stored.Version++
	stored.UpdatedAt = time.Now()
	stored.UpdatedBy = &operatorID
	m.s.shifts[shift.ShiftID] = stored

	shift.AssignedTo = newOwnerID
	shift.Status = model.ShiftStatusSwapped
	shift.Version = stored.Version
	shift.UpdatedAt = stored.UpdatedAt
	shift.UpdatedBy = &operatorID
	return nil
}

// ── Mock SwapRequestRepository ──

type mockSwapRequestRepo struct{ s *mockStore }

func (m *mockSwapRequestRepo) Create(_ context.Context, req *model.SwapRequest) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	// 模拟部分唯一索引 uk_swap_requests_pending_claim
	for _, r := range m.s.requests {
		if r.ShiftID == req.ShiftID && r.RequestedBy == req.RequestedBy && r.Status == model.SwapStatusPending {
			return gorm.ErrDuplicatedKey
		}
	}
	stored := *req
	stored.Shift, stored.Requester = nil, nil
	m.s.requests[req.SwapRequestID] = stored
	return nil
}

// preload 调用方需持有锁
func (m *mockSwapRequestRepo) preload(r model.SwapRequest) model.SwapRequest {
	if sh, ok := m.s.shifts[r.ShiftID]; ok {
		sh.Assignee = m.s.userPtr(sh.AssignedTo)
		r.Shift = &sh
	}
	r.Requester = m.s.userPtr(r.RequestedBy)
	return r
}

func (m *mockSwapRequestRepo) GetByID(_ context.Context, id string) (*model.SwapRequest, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	r = m.preload(r)
	return &r, nil
}

func (m *mockSwapRequestRepo) GetByIDForUpdate(_ context.Context, id string) (*model.SwapRequest, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &r, nil
}

func (m *mockSwapRequestRepo) HasPending(_ context.Context, shiftID, requestedBy string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, r := range m.s.requests {
		if r.ShiftID == shiftID && r.RequestedBy == requestedBy && r.Status == model.SwapStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSwapRequestRepo) CountPendingByShiftIDs(_ context.Context, shiftIDs []string) (map[string]int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	wanted := make(map[string]bool, len(shiftIDs))
	for _, id := range shiftIDs {
		wanted[id] = true
	}
	out := make(map[string]int)
	for _, r := range m.s.requests {
		if wanted[r.ShiftID] && r.Status == model.SwapStatusPending {
			out[r.ShiftID]++
		}
	}
	return out, nil
}

func (m *mockSwapRequestRepo) ListPendingShiftIDsByRequester(_ context.Context, requestedBy string, shiftIDs []string) (map[string]bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	wanted := make(map[string]bool, len(shiftIDs))
	for _, id := range shiftIDs {
		wanted[id] = true
	}
	out := make(map[string]bool)
	for _, r := range m.s.requests {
		if wanted[r.ShiftID] && r.RequestedBy == requestedBy && r.Status == model.SwapStatusPending {
			out[r.ShiftID] = true
		}
	}
	return out, nil
}

func (m *mockSwapRequestRepo) List(_ context.Context, filter repository.SwapRequestFilter, offset, limit int) ([]model.SwapRequest, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var all []model.SwapRequest
	for _, r := range m.s.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.ShiftID != "" && r.ShiftID != filter.ShiftID {
			continue
		}
		if filter.RequestedBy != "" && r.RequestedBy != filter.RequestedBy {
			continue
		}
		all = append(all, m.preload(r))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	if limit > 0 {
		if offset >= len(all) {
			return []model.SwapRequest{}, total, nil
		}
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		all = all[offset:end]
	}
	return all, total, nil
}

func (m *mockSwapRequestRepo) Decide(_ context.Context, req *model.SwapRequest, status, deciderID string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.requests[req.SwapRequestID]
	if !ok || stored.Status != model.SwapStatusPending {
		return pkgerrors.ErrOptimisticLock
	}
	// 模拟部分唯一索引 uk_swap_requests_single_approval
	if status == model.SwapStatusApproved {
		for _, r := range m.s.requests {
			if r.ShiftID == stored.ShiftID && r.Status == model.SwapStatusApproved {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	stored.Status = status
	stored.DecidedBy = &deciderID
	stored.DecidedAt = &at
	stored.UpdatedAt = at
	m.s.requests[req.SwapRequestID] = stored

	req.Status = status
	req.DecidedBy = &deciderID
	req.DecidedAt = &at
	req.UpdatedAt = at
	return nil
}

func (m *mockSwapRequestRepo) RejectPendingSiblings(_ context.Context, shiftID, exceptID, deciderID string, at time.Time) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var ids []string
	for id, r := range m.s.requests {
		if r.ShiftID != shiftID || id == exceptID || r.Status != model.SwapStatusPending {
			continue
		}
		r.Status = model.SwapStatusRejected
		r.DecidedBy = &deciderID
		r.DecidedAt = &at
		r.UpdatedAt = at
		m.s.requests[id] = r
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
