// Package memstore — хранилище в памяти процесса (database.driver = "").
// Удержания строк заменены keylock по ключам role:/tool:/request:,
// откат транзакции — журналом отмены.
package memstore

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strconv"
	"sync"
	"time"

	"toolcrib/internal/apperr"
	"toolcrib/internal/keylock"
	"toolcrib/internal/models"
	"toolcrib/internal/reservation"
	"toolcrib/internal/sessions"
)

type Store struct {
	mu sync.Mutex

	users         map[uint]*models.User
	sessions      map[string]*models.Session
	roleLocks     map[models.Role]*models.RoleLock
	tools         map[uint]*models.Tool
	requests      map[uint]*models.UsageRequest
	requestByCode map[string]uint
	notifications []models.Notification

	userSeq, toolSeq, requestSeq, notificationSeq uint

	locks       *keylock.Locker
	lockTimeout time.Duration
}

func New(lockTimeout time.Duration) *Store {
	return &Store{
		users:         make(map[uint]*models.User),
		sessions:      make(map[string]*models.Session),
		roleLocks:     make(map[models.Role]*models.RoleLock),
		tools:         make(map[uint]*models.Tool),
		requests:      make(map[uint]*models.UsageRequest),
		requestByCode: make(map[string]uint),
		locks:         keylock.New(),
		lockTimeout:   lockTimeout,
	}
}

func (s *Store) Sessions() *SessionStore     { return &SessionStore{s: s} }
func (s *Store) Inventory() *InventoryStore { return &InventoryStore{s: s} }

func (s *Store) Ping(context.Context) error { return nil }

// -------- транзакции --------

type tx struct {
	s    *Store
	ctx  context.Context
	held map[string]func()
	undo []func()
}

func (s *Store) inTx(ctx context.Context, fn func(t *tx) error) (err error) {
	t := &tx{s: s, ctx: ctx, held: make(map[string]func())}
	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			t.release()
			panic(r)
		}
		if err != nil {
			t.rollback()
		}
		t.release()
	}()
	return fn(t)
}

// hold берёт эксклюзивное удержание ключа до конца транзакции.
// Повторный вызов с тем же ключом в той же транзакции — no-op.
func (t *tx) hold(key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(t.ctx, t.s.lockTimeout)
	defer cancel()
	unlock, err := t.s.locks.Lock(ctx, key)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.ErrLockTimeout.WithMessagef("waiting for %s", key)
		}
		return err
	}
	t.held[key] = unlock
	return nil
}

func (t *tx) release() {
	for _, unlock := range t.held {
		unlock()
	}
	t.held = nil
}

func (t *tx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// onUndo вызывается под s.mu.
func (t *tx) onUndo(f func()) { t.undo = append(t.undo, f) }

// -------- SessionStore --------

type SessionStore struct{ s *Store }

func (st *SessionStore) InTx(ctx context.Context, fn func(tx sessions.Tx) error) error {
	return st.s.inTx(ctx, func(t *tx) error { return fn(t) })
}

func (st *SessionStore) OpenSessions(context.Context) ([]models.Session, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Session, 0)
	for _, sess := range s.sessions {
		if !sess.Ended() {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (st *SessionStore) SessionLogs(_ context.Context, q sessions.LogQuery) ([]models.SessionLog, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SessionLog, 0)
	for _, sess := range s.sessions {
		if q.Role != "" && sess.Role != q.Role {
			continue
		}
		row := models.SessionLog{Session: *sess}
		if u, ok := s.users[sess.UserID]; ok {
			row.Username, row.FullName = u.Username, u.FullName
		}
		if q.Username != "" && row.Username != q.Username {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *tx) CreateSession(_ context.Context, sess *models.Session) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return errors.New("memstore: duplicate session id")
	}
	c := *sess
	s.sessions[sess.ID] = &c
	t.onUndo(func() { delete(s.sessions, sess.ID) })
	return nil
}

func (t *tx) GetSession(_ context.Context, id string) (*models.Session, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

func (t *tx) EndSession(_ context.Context, id string, at time.Time, reason models.EndReason) (bool, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Ended() {
		return false, nil
	}
	at, r := at.UTC(), reason
	sess.LogoutAt, sess.EndReason = &at, &r
	t.onUndo(func() { sess.LogoutAt, sess.EndReason = nil, nil })
	return true, nil
}

func (t *tx) LockRole(_ context.Context, role models.Role) (*models.RoleLock, error) {
	if err := t.hold("role:" + string(role)); err != nil {
		return nil, err
	}
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.roleLocks[role]
	if !ok {
		l = &models.RoleLock{Role: role, UpdatedAt: time.Now().UTC()}
		s.roleLocks[role] = l
	}
	c := *l
	return &c, nil
}

func (t *tx) SaveRoleLock(_ context.Context, l *models.RoleLock) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.roleLocks[l.Role]
	var before models.RoleLock
	if existed {
		before = *prev
	}
	c := *l
	c.UpdatedAt = time.Now().UTC()
	s.roleLocks[l.Role] = &c
	t.onUndo(func() {
		if existed {
			s.roleLocks[l.Role] = &before
		} else {
			delete(s.roleLocks, l.Role)
		}
	})
	return nil
}

func (t *tx) GetUser(_ context.Context, id uint) (*models.User, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (t *tx) SetUserActive(_ context.Context, id uint, active bool) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	was := u.IsActive
	u.IsActive = active
	t.onUndo(func() { u.IsActive = was })
	return nil
}

// RoleLock — снимок строки роли, для тестов и диагностики.
func (s *Store) RoleLock(role models.Role) models.RoleLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.roleLocks[role]; ok {
		return *l
	}
	return models.RoleLock{Role: role}
}

// -------- InventoryStore --------

type InventoryStore struct{ s *Store }

func (st *InventoryStore) InTx(ctx context.Context, fn func(tx reservation.Tx) error) error {
	return st.s.inTx(ctx, func(t *tx) error { return fn(t) })
}

func (st *InventoryStore) CreateTool(_ context.Context, tool *models.Tool) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if tool.Quantity < 0 {
		return apperr.ErrInvalidQuantity.WithMessage("tool quantity must not be negative")
	}
	s.toolSeq++
	tool.ID = s.toolSeq
	if tool.AddedAt.IsZero() {
		tool.AddedAt = time.Now().UTC()
	}
	tool.UpdatedAt = tool.AddedAt
	s.tools[tool.ID] = cloneTool(tool)
	return nil
}

func (st *InventoryStore) ListTools(context.Context) ([]models.Tool, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Tool, 0, len(s.tools))
	for _, tool := range s.tools {
		out = append(out, *cloneTool(tool))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *InventoryStore) ListRequests(_ context.Context, f reservation.RequestFilter) ([]models.UsageRequest, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UsageRequest, 0)
	for _, r := range s.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.RequesterID != 0 && r.RequesterID != f.RequesterID {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Tool — снимок инструмента вне транзакции.
func (st *InventoryStore) Tool(id uint) (models.Tool, bool) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	tool, ok := s.tools[id]
	if !ok {
		return models.Tool{}, false
	}
	return *cloneTool(tool), true
}

func (t *tx) GetTool(_ context.Context, id uint) (*models.Tool, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	tool, ok := s.tools[id]
	if !ok {
		return nil, nil
	}
	return cloneTool(tool), nil
}

func (t *tx) LockTool(ctx context.Context, id uint) (*models.Tool, error) {
	if err := t.hold(toolKey(id)); err != nil {
		return nil, err
	}
	return t.GetTool(ctx, id)
}

func (t *tx) SetToolQuantity(_ context.Context, id uint, qty int) error {
	if qty < 0 {
		return apperr.ErrInsufficientStock.WithMessage("tool quantity must not be negative")
	}
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	tool, ok := s.tools[id]
	if !ok {
		return apperr.ErrNotFound.WithMessagef("tool %d", id)
	}
	was, wasAt := tool.Quantity, tool.UpdatedAt
	tool.Quantity, tool.UpdatedAt = qty, time.Now().UTC()
	t.onUndo(func() { tool.Quantity, tool.UpdatedAt = was, wasAt })
	return nil
}

func (t *tx) CreateRequest(_ context.Context, r *models.UsageRequest) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requestByCode[r.RequestID]; ok {
		return errors.New("memstore: duplicate request id")
	}
	s.requestSeq++
	r.ID = s.requestSeq
	c := *r
	s.requests[r.ID] = &c
	s.requestByCode[r.RequestID] = r.ID
	id, code := r.ID, r.RequestID
	// счётчик назад не крутится: коды не переиспользуются
	t.onUndo(func() {
		delete(s.requests, id)
		delete(s.requestByCode, code)
	})
	return nil
}

func (t *tx) SetRequestCode(_ context.Context, id uint, code string) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return apperr.ErrNotFound.WithMessagef("request #%d", id)
	}
	if other, ok := s.requestByCode[code]; ok && other != id {
		return errors.New("memstore: duplicate request id")
	}
	old := r.RequestID
	delete(s.requestByCode, old)
	r.RequestID = code
	s.requestByCode[code] = id
	t.onUndo(func() {
		delete(s.requestByCode, code)
		r.RequestID = old
		s.requestByCode[old] = id
	})
	return nil
}

func (t *tx) LockRequest(_ context.Context, code string) (*models.UsageRequest, error) {
	if err := t.hold("request:" + code); err != nil {
		return nil, err
	}
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.requestByCode[code]
	if !ok {
		return nil, nil
	}
	c := *s.requests[id]
	return &c, nil
}

func (t *tx) TransitionRequest(_ context.Context, r *models.UsageRequest, from models.RequestStatus) (bool, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[r.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	before := *cur
	*cur = *r
	t.onUndo(func() { *cur = before })
	return true, nil
}

// -------- пользователи и уведомления --------

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.Username == u.Username {
			return apperr.ErrInvalidArgument.WithMessagef("username %q already exists", u.Username)
		}
	}
	s.userSeq++
	u.ID = s.userSeq
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *Store) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) UserIDsByRole(_ context.Context, role models.Role) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint
	for id, u := range s.users {
		if u.Role == role {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notificationSeq++
	n.ID = s.notificationSeq
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications = append(s.notifications, *n)
	return nil
}

// ListForUser — последние уведомления пользователя, новые первыми.
func (s *Store) ListForUser(_ context.Context, userID uint, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID != userID {
			continue
		}
		out = append(out, s.notifications[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func toolKey(id uint) string { return "tool:" + strconv.FormatUint(uint64(id), 10) }

func cloneTool(t *models.Tool) *models.Tool {
	c := *t
	c.Attributes = maps.Clone(t.Attributes)
	return &c
}
