package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoneTaskIsReadyImmediately(t *testing.T) {
	tk := Done(42, nil)
	if !tk.Ready() {
		t.Fatal("Done task is not Ready")
	}
	v, err := tk.Resume()
	if err != nil || v != 42 {
		t.Fatalf("Resume() = %v, %v; want 42, nil", v, err)
	}
}

func TestSuspendOnDoneTaskRunsContinuationInline(t *testing.T) {
	tk := Done("x", nil)
	ran := false
	tk.Suspend(func() { ran = true })
	if !ran {
		t.Fatal("continuation did not run inline for an already-done task")
	}
}

func TestSuspendOnPendingTaskRunsOnComplete(t *testing.T) {
	tk := New[int]()
	ran := false
	var got int
	tk.Suspend(func() {
		ran = true
		got, _ = tk.Resume()
	})
	if ran {
		t.Fatal("continuation ran before Complete")
	}
	tk.Complete(7, nil)
	if !ran {
		t.Fatal("continuation did not run after Complete")
	}
	if got != 7 {
		t.Fatalf("got = %d, want 7", got)
	}
}

func TestCompleteTwicePanics(t *testing.T) {
	tk := New[int]()
	tk.Complete(1, nil)
	defer func() {
		if recover() == nil {
			t.Fatal("second Complete did not panic")
		}
	}()
	tk.Complete(2, nil)
}

func TestAwaitBlocksUntilComplete(t *testing.T) {
	tk := New[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		tk.Complete("done", nil)
	}()
	v, err := tk.Await(context.Background())
	if err != nil || v != "done" {
		t.Fatalf("Await() = %v, %v; want done, nil", v, err)
	}
}

func TestAwaitRespectsContextCancellation(t *testing.T) {
	tk := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := tk.Await(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	// Observe the task so the finalizer doesn't see a dropped error later.
	tk.Complete(0, nil)
}

func TestRunTaskDeliversErrorToOnError(t *testing.T) {
	done := make(chan struct{})
	var gotErr error
	RunTask(func() error {
		return errors.New("boom")
	}, func(err error) {
		gotErr = err
		close(done)
	})
	<-done
	if gotErr == nil || gotErr.Error() != "boom" {
		t.Fatalf("onError got %v, want boom", gotErr)
	}
}

func TestRunTaskRecoversPanic(t *testing.T) {
	done := make(chan struct{})
	var gotErr error
	RunTask(func() error {
		panic("kaboom")
	}, func(err error) {
		gotErr = err
		close(done)
	})
	<-done
	if gotErr == nil {
		t.Fatal("onError was not called after a panic in the detached task")
	}
}
