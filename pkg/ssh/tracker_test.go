package ssh

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// TestTrackerLifecycle 会话登记、关闭与统计
func TestTrackerLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := NewMockDialer(ctrl)
	s1 := NewMockSession(ctrl)
	s2 := NewMockSession(ctrl)

	gomock.InOrder(
		dialer.EXPECT().Open(gomock.Any(), gomock.Any()).Return(s1, nil),
		dialer.EXPECT().Open(gomock.Any(), gomock.Any()).Return(nil, errors.New("refused")),
		dialer.EXPECT().Open(gomock.Any(), gomock.Any()).Return(s2, nil),
	)
	s1.EXPECT().Close().Return(nil).Times(1)
	s2.EXPECT().Close().Return(nil).Times(1)

	tracker := NewTracker(dialer)
	ctx := context.Background()

	a, err := tracker.Open(ctx, &ConnectionInfo{Host: "10.0.0.1"})
	require.NoError(t, err)
	_, err = tracker.Open(ctx, &ConnectionInfo{Host: "10.0.0.2"})
	require.Error(t, err)
	_, err = tracker.Open(ctx, &ConnectionInfo{Host: "10.0.0.3"})
	require.NoError(t, err)
	assert.Equal(t, 2, tracker.Active())

	// 重复关闭只调用一次底层 Close
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, tracker.Active())

	// CloseAll 关闭残留会话
	require.NoError(t, tracker.CloseAll())
	assert.Equal(t, 0, tracker.Active())

	stats := tracker.GetStats()
	assert.Equal(t, int64(2), stats["opened_sessions"])
	assert.Equal(t, int64(1), stats["failed_sessions"])
	assert.Equal(t, int64(2), stats["closed_sessions"])
	assert.Equal(t, 0, stats["active_sessions"])
}

// TestTrackerCloseAllErrors 汇总关闭错误
func TestTrackerCloseAllErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := NewMockDialer(ctrl)
	sess := NewMockSession(ctrl)
	dialer.EXPECT().Open(gomock.Any(), gomock.Any()).Return(sess, nil)
	sess.EXPECT().Close().Return(errors.New("broken pipe"))

	tracker := NewTracker(dialer)
	_, err := tracker.Open(context.Background(), &ConnectionInfo{Host: "10.0.0.1"})
	require.NoError(t, err)

	err = tracker.CloseAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, 0, tracker.Active())
}
