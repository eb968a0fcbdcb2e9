package chunkstream

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/SecurityWorks/coro-http/core/stopctx"
)

func TestPushThenNextReturnsChunk(t *testing.T) {
	cs := New(stopctx.Background(), nil)
	cs.Push([]byte("hello"))
	chunk, err := cs.Next(context.Background())
	if err != nil || string(chunk) != "hello" {
		t.Fatalf("Next = %q, %v; want hello, nil", chunk, err)
	}
}

func TestPushCopiesInputSlice(t *testing.T) {
	buf := []byte("abc")
	cs := New(stopctx.Background(), nil)
	cs.Push(buf)
	buf[0] = 'X' // mutate the caller's buffer as if it were reused for the next read
	chunk, err := cs.Next(context.Background())
	if err != nil || string(chunk) != "abc" {
		t.Fatalf("Next = %q, %v; want abc (unaffected by later mutation of the source slice)", chunk, err)
	}
}

func TestPausedAfterOnePushUntilDrained(t *testing.T) {
	cs := New(stopctx.Background(), nil)
	if cs.Paused() {
		t.Fatal("stream reports paused before any Push")
	}
	cs.Push([]byte("x"))
	if !cs.Paused() {
		t.Fatal("stream does not report paused with a buffered, undrained chunk")
	}
	if _, err := cs.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if cs.Paused() {
		t.Fatal("stream still reports paused after the chunk was drained")
	}
}

func TestOnDrainCalledWhenChunkConsumed(t *testing.T) {
	drained := false
	cs := New(stopctx.Background(), func() { drained = true })
	cs.Push([]byte("x"))
	if _, err := cs.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !drained {
		t.Fatal("onDrain was not called after Next consumed the buffered chunk")
	}
}

func TestCloseSurfacesEOFAfterBufferedChunkDrains(t *testing.T) {
	cs := New(stopctx.Background(), nil)
	cs.Push([]byte("last"))
	cs.Close(200, nil)

	chunk, err := cs.Next(context.Background())
	if err != nil || string(chunk) != "last" {
		t.Fatalf("Next = %q, %v; want last, nil (buffered chunk must drain before EOF)", chunk, err)
	}
	_, err = cs.Next(context.Background())
	if err != io.EOF {
		t.Fatalf("Next after drain = %v, want io.EOF", err)
	}
	if cs.Status() != 200 {
		t.Fatalf("Status() = %d, want 200", cs.Status())
	}
}

func TestCloseWithErrorSurfacesAfterDrain(t *testing.T) {
	wantErr := io.ErrClosedPipe
	cs := New(stopctx.Background(), nil)
	cs.Push([]byte("last"))
	cs.Close(-1, wantErr)
	chunk, err := cs.Next(context.Background())
	if err != nil || string(chunk) != "last" {
		t.Fatalf("Next = %q, %v; want last, nil (buffered chunk must drain before the error)", chunk, err)
	}
	_, err = cs.Next(context.Background())
	if err != wantErr {
		t.Fatalf("Next = %v, want %v", err, wantErr)
	}
}

func TestNextBlocksUntilPush(t *testing.T) {
	cs := New(stopctx.Background(), nil)
	result := make(chan []byte, 1)
	go func() {
		chunk, err := cs.Next(context.Background())
		if err != nil {
			t.Errorf("Next: %v", err)
			return
		}
		result <- chunk
	}()

	select {
	case <-result:
		t.Fatal("Next returned before any Push")
	case <-time.After(30 * time.Millisecond):
	}

	cs.Push([]byte("late"))
	select {
	case chunk := <-result:
		if string(chunk) != "late" {
			t.Fatalf("chunk = %q, want late", chunk)
		}
	case <-time.After(time.Second):
		t.Fatal("Next never returned after Push")
	}
}

func TestNextReturnsOnContextCancellation(t *testing.T) {
	cs := New(stopctx.Background(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cs.Next(ctx)
	if err != context.Canceled {
		t.Fatalf("Next err = %v, want context.Canceled", err)
	}
}

func TestStopTokenInterruptsNext(t *testing.T) {
	src := stopctx.NewSource()
	cs := New(src.Token(), nil)

	result := make(chan error, 1)
	go func() {
		_, err := cs.Next(context.Background())
		result <- err
	}()

	time.Sleep(10 * time.Millisecond)
	src.RequestStop()

	select {
	case err := <-result:
		if err != ErrInterrupted {
			t.Fatalf("Next err = %v, want ErrInterrupted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next never returned after RequestStop")
	}
}

func TestZeroLengthChunkIsValid(t *testing.T) {
	cs := New(stopctx.Background(), nil)
	cs.Push([]byte{})
	chunk, err := cs.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(chunk) != 0 {
		t.Fatalf("chunk = %v, want empty", chunk)
	}
}
