package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-gin-todo-auth/internal/repo"
)

func TestSweepPurgesExpiredRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.active(t, adminEmail)
	oldUser := f.active(t, "old@b.com")
	newUser := f.active(t, "new@b.com")
	keeper := f.active(t, "keep@b.com")

	_, err := f.todos.Create(ctx, oldUser, TodoInput{Task: strp("owned by purged user")})
	require.NoError(t, err)
	stale, err := f.todos.Create(ctx, keeper, TodoInput{Task: strp("stale")})
	require.NoError(t, err)
	live, err := f.todos.Create(ctx, keeper, TodoInput{Task: strp("live")})
	require.NoError(t, err)

	base := f.now
	_, err = f.acc.DeleteUser(ctx, admin, oldUser.ID(), false)
	require.NoError(t, err)
	require.NoError(t, f.todos.Delete(ctx, keeper, stale.ID))

	f.now = base.Add(20 * 24 * time.Hour)
	_, err = f.acc.DeleteUser(ctx, admin, newUser.ID(), false)
	require.NoError(t, err)

	// 31 天后：old 过期，new 未过期；stale todo 未满 90 天
	f.now = base.Add(31 * 24 * time.Hour)
	res, err := f.sweep.Purge(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.UsersPurged)
	require.Equal(t, []string{oldUser.ID()}, res.UserIDs)
	require.EqualValues(t, 1, res.UserTodosPurged)
	require.Zero(t, res.TodosPurged)

	gone, err := f.users.FindByID(ctx, oldUser.ID())
	require.NoError(t, err)
	require.Nil(t, gone)
	still, err := f.users.FindByID(ctx, newUser.ID())
	require.NoError(t, err)
	require.NotNil(t, still)

	f.now = base.Add(91 * 24 * time.Hour)
	res, err = f.sweep.Purge(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.UsersPurged)
	require.EqualValues(t, 1, res.TodosPurged)

	got, err := f.todos.Get(ctx, keeper, live.ID)
	require.NoError(t, err)
	require.Equal(t, "live", got.Task)

	var n int64
	require.NoError(t, f.db.Table("todos").Count(&n).Error)
	require.EqualValues(t, 1, n)
}

func TestSweepIgnoresCallerCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.sweep.Purge(ctx)
	require.NoError(t, err)
	require.Zero(t, res.UsersPurged)
}

func TestSweepConcurrentCallsSucceed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sweep.Purge(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, repo.NewStore(f.db).Ping(ctx))
}
