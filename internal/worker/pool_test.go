package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockResult implements Result
type mockResult struct {
	value int
	err   error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	value     int
	duration  time.Duration
	shouldErr bool
	panics    bool
	executed  *int32 // atomic counter
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		time.Sleep(j.duration)
	}
	if j.panics {
		panic("boom")
	}
	if j.shouldErr {
		return &mockResult{value: j.value, err: errors.New("job error")}
	}
	return &mockResult{value: j.value}
}

func TestNewPool(t *testing.T) {
	ctx := context.Background()

	for _, tt := range []struct{ in, want int }{{5, 5}, {0, 1}, {-1, 1}} {
		p := NewPool(ctx, tt.in)
		if p.workers != tt.want {
			t.Errorf("NewPool(%d): expected %d workers, got %d", tt.in, tt.want, p.workers)
		}
		p.Start()
		p.Wait()
	}
}

func TestPool_ExecutionOrder(t *testing.T) {
	pool := NewPool(context.Background(), 3)
	pool.Start()

	var executed int32
	count := 50

	for i := 0; i < count; i++ {
		// Earlier jobs sleep longer so they finish out of order
		d := time.Duration(count-i) * 100 * time.Microsecond
		if !pool.Submit(&mockJob{value: i, duration: d, executed: &executed}) {
			t.Fatalf("submit %d rejected", i)
		}
	}

	results := pool.Wait()

	if len(results) != count {
		t.Fatalf("expected %d results, got %d", count, len(results))
	}
	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
	for i, r := range results {
		if got := r.(*mockResult).value; got != i {
			t.Errorf("result %d came from job %d", i, got)
		}
	}
}

func TestPool_ErrorAndPanicIsolation(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	pool.Submit(&mockJob{value: 0})
	pool.Submit(&mockJob{value: 1, shouldErr: true})
	pool.Submit(&mockJob{value: 2, panics: true})
	pool.Submit(&mockJob{value: 3})

	results := pool.Wait()
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	if results[0].GetError() != nil || results[3].GetError() != nil {
		t.Error("expected sibling jobs to succeed")
	}
	if results[1].GetError() == nil {
		t.Error("expected job error to be reported")
	}

	pr, ok := results[2].(*PanicResult)
	if !ok {
		t.Fatalf("expected PanicResult, got %T", results[2])
	}
	if pr.Value != "boom" || pr.GetError() == nil {
		t.Errorf("unexpected panic result: %+v", pr)
	}
}

func TestPool_CancelStopsSubmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	pool.Start()

	var executed int32
	if !pool.Submit(&mockJob{value: 0, duration: 20 * time.Millisecond, executed: &executed}) {
		t.Fatal("expected first submit to succeed")
	}
	cancel()

	if pool.Submit(&mockJob{value: 1, executed: &executed}) {
		t.Error("expected submit after cancel to be rejected")
	}

	results := pool.Wait()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].GetError() != nil {
		t.Errorf("expected dispatched job to finish, got %v", results[0].GetError())
	}
	if atomic.LoadInt32(&executed) != 1 {
		t.Errorf("expected 1 executed job, got %d", executed)
	}
}

func TestPool_Shutdown(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	var executed int32
	for i := 0; i < 4; i++ {
		pool.Submit(&mockJob{value: i, executed: &executed})
	}
	pool.Shutdown()

	if pool.Submit(&mockJob{}) {
		t.Error("expected submit after shutdown to be rejected")
	}
	if len(pool.Wait()) != 4 {
		t.Error("expected Wait after Shutdown to return the submitted results")
	}
	if atomic.LoadInt32(&executed) != 4 {
		t.Errorf("expected 4 executed jobs, got %d", executed)
	}
}
