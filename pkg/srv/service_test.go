package srv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeService struct {
	name string
	rec  *recorder
}

func (f *fakeService) Start(ctx context.Context) error {
	f.rec.add("start " + f.name)
	return nil
}

func (f *fakeService) Shutdown(ctx context.Context) error {
	if ctx.Err() != nil {
		f.rec.add("shutdown " + f.name + " with done ctx")
		return ctx.Err()
	}
	f.rec.add("shutdown " + f.name)
	return nil
}

func TestServices_Lifecycle(t *testing.T) {
	rec := &recorder{}
	services := []Service{
		&fakeService{name: "db", rec: rec},
		&fakeService{name: "transport", rec: rec},
	}

	ctx, cancel := context.WithCancel(context.Background())
	StartServices(ctx, services)

	require.Eventually(t, func() bool { return len(rec.list()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"start db", "start transport"}, rec.list())

	cancel()
	ShutdownServices(ctx, services)

	events := rec.list()
	assert.Equal(t, []string{"shutdown transport", "shutdown db"}, events[2:])
}

func TestCleanup(t *testing.T) {
	called := false
	svc := NewCleanup(func() error {
		called = true
		return nil
	})

	require.NoError(t, svc.Start(context.Background()))
	assert.False(t, called)
	require.NoError(t, svc.Shutdown(context.Background()))
	assert.True(t, called)

	assert.NoError(t, NewCleanup(nil).Shutdown(context.Background()))
}
