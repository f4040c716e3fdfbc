package ssh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker 包装 Dialer，记录会话的打开、失败与存活情况
type Tracker struct {
	dialer   Dialer
	sessions map[uint64]*trackedSession
	mutex    sync.RWMutex
	nextID   uint64

	opened atomic.Int64
	failed atomic.Int64
	closed atomic.Int64
}

// trackedSession 被跟踪的会话
type trackedSession struct {
	Session
	id      uint64
	host    string
	created time.Time
	tracker *Tracker
	once    sync.Once
	err     error
}

// NewTracker 创建会话跟踪器
func NewTracker(dialer Dialer) *Tracker {
	return &Tracker{
		dialer:   dialer,
		sessions: make(map[uint64]*trackedSession),
	}
}

// Open 打开会话并登记
func (t *Tracker) Open(ctx context.Context, info *ConnectionInfo) (Session, error) {
	sess, err := t.dialer.Open(ctx, info)
	if err != nil {
		t.failed.Add(1)
		return nil, err
	}
	t.opened.Add(1)

	t.mutex.Lock()
	t.nextID++
	ts := &trackedSession{
		Session: sess,
		id:      t.nextID,
		host:    info.Address(),
		created: time.Now(),
		tracker: t,
	}
	t.sessions[ts.id] = ts
	t.mutex.Unlock()
	return ts, nil
}

// Close 关闭会话并注销，可重复调用
func (s *trackedSession) Close() error {
	s.once.Do(func() {
		s.err = s.Session.Close()
		s.tracker.release(s.id)
	})
	return s.err
}

func (t *Tracker) release(id uint64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if _, ok := t.sessions[id]; ok {
		delete(t.sessions, id)
		t.closed.Add(1)
	}
}

// Active 当前存活会话数
func (t *Tracker) Active() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.sessions)
}

// CloseAll 关闭所有残留会话（服务停止时调用）
func (t *Tracker) CloseAll() error {
	t.mutex.RLock()
	leftover := make([]*trackedSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		leftover = append(leftover, s)
	}
	t.mutex.RUnlock()

	var errs []error
	for _, s := range leftover {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetStats 获取会话统计信息
func (t *Tracker) GetStats() map[string]interface{} {
	t.mutex.RLock()
	active := len(t.sessions)
	var oldest time.Duration
	now := time.Now()
	for _, s := range t.sessions {
		if age := now.Sub(s.created); age > oldest {
			oldest = age
		}
	}
	t.mutex.RUnlock()

	return map[string]interface{}{
		"opened_sessions": t.opened.Load(),
		"failed_sessions": t.failed.Load(),
		"closed_sessions": t.closed.Load(),
		"active_sessions": active,
		"oldest_active":   oldest.String(),
	}
}
