package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipstream/qbremote/internal/downloader/mock"
	"github.com/slipstream/qbremote/internal/downloader/types"
	"github.com/slipstream/qbremote/internal/scheduler"
	"github.com/slipstream/qbremote/internal/testutil"
)

func testLogger(t *testing.T) *zerolog.Logger {
	logger := testutil.NewTestLogger(t)
	return &logger
}

func TestDaemonHealthTask_ReportsFlips(t *testing.T) {
	client := mock.New()
	var changes []HealthStatus
	task := NewDaemonHealthTask(client, func(s HealthStatus) { changes = append(changes, s) }, testLogger(t))

	_, ok := task.Status()
	assert.False(t, ok)

	require.NoError(t, task.Run(context.Background()))
	require.NoError(t, task.Run(context.Background()))

	client.FailWith(types.ErrAuthFailed)
	require.NoError(t, task.Run(context.Background()))

	client.FailWith(nil)
	require.NoError(t, task.Run(context.Background()))

	require.Len(t, changes, 3)
	assert.True(t, changes[0].Healthy)
	assert.Equal(t, "v4.6.2", changes[0].Version)
	assert.False(t, changes[1].Healthy)
	assert.Contains(t, changes[1].Message, "authentication")
	assert.True(t, changes[2].Healthy)

	status, ok := task.Status()
	assert.True(t, ok)
	assert.True(t, status.Healthy)
	assert.Equal(t, 4, client.Calls("Version"))
}

func TestTorrentRefreshTask_Run(t *testing.T) {
	client := mock.New()
	client.Seed(
		types.DownloadItem{ID: "aaa", Name: "Ubuntu", Status: types.StatusDownloading, Category: "linux"},
		types.DownloadItem{ID: "bbb", Name: "Movie", Status: types.StatusSeeding, Category: "movies"},
	)

	var got []types.DownloadItem
	task := NewTorrentRefreshTask(client, types.ListFilter{Category: "linux"}, func(items []types.DownloadItem) {
		got = items
	}, testLogger(t))

	require.NoError(t, task.Run(context.Background()))
	require.Len(t, got, 1)
	assert.Equal(t, "Ubuntu", got[0].Name)

	client.FailWith(errors.New("connection refused"))
	assert.Error(t, task.Run(context.Background()))
}

func TestRegisterTasks(t *testing.T) {
	sched, err := scheduler.New(testutil.NewTestLogger(t))
	require.NoError(t, err)

	client := mock.New()
	client.Seed(types.DownloadItem{ID: "aaa", Name: "Ubuntu", Status: types.StatusDownloading})

	var (
		mu    sync.Mutex
		lists int
	)
	_, err = RegisterTorrentRefreshTask(sched, client, types.ListFilter{}, time.Hour, func([]types.DownloadItem) {
		mu.Lock()
		lists++
		mu.Unlock()
	}, testLogger(t))
	require.NoError(t, err)

	health, err := RegisterDaemonHealthTask(sched, client, time.Hour, nil, testLogger(t))
	require.NoError(t, err)

	require.NoError(t, sched.Start())
	defer sched.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		_, checked := health.Status()
		return lists == 1 && checked
	}, 2*time.Second, 5*time.Millisecond)

	tasks := sched.ListTasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "daemon-health", tasks[0].ID)
	assert.Equal(t, "torrent-refresh", tasks[1].ID)
}
