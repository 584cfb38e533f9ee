package service

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"shift-swap/backend/config"
	"shift-swap/backend/internal/event"
	"shift-swap/backend/internal/model"
	"shift-swap/backend/pkg/jwt"
	"shift-swap/backend/pkg/keylock"
)

// 2030-01-07 为周一
var monday = time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	store *mockStore
	bus   *event.Bus
	svc   *Service
}

// newTestEnv 预置用户：alice / bob / carol / dave 为员工，boss 为经理
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMockStore()
	store.addUser("alice", "Alice", model.RoleWorker)
	store.addUser("bob", "Bob", model.RoleWorker)
	store.addUser("carol", "Carol", model.RoleWorker)
	store.addUser("dave", "Dave", model.RoleWorker)
	store.addUser("boss", "Boss", model.RoleManager)

	jwtMgr := jwt.NewManager(&config.AuthConfig{
		JWTSecret:      "test-secret-key-for-unit-testing-2026",
		AccessTokenTTL: 15 * time.Minute,
	})

	bus := event.NewBus()
	svc := NewService(store.repository(), jwtMgr, Infra{
		Locker:    keylock.NewLocal(),
		Publisher: bus,
		Validator: NewComplianceValidator(time.UTC, DefaultMaxConsecutiveDays),
	}, zap.NewNop())

	return &testEnv{store: store, bus: bus, svc: svc}
}

func assertKind(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("期望错误 %v，得到 %v", want, err)
	}
}

func countEvents(events []event.Event, typ, id, status string) int {
	n := 0
	for _, e := range events {
		if e.Type == typ && e.ID == id && e.Status == status {
			n++
		}
	}
	return n
}
