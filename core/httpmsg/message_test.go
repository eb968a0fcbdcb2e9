package httpmsg

import (
	"context"
	"io"
	"testing"
)

func TestHeaderGetIsCaseInsensitive(t *testing.T) {
	var h Header
	if err := h.Add("Content-Type", "text/plain"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := h.Get("content-type"); got != "text/plain" {
		t.Fatalf("Get(content-type) = %q, want text/plain", got)
	}
	if got := h.Get("CONTENT-TYPE"); got != "text/plain" {
		t.Fatalf("Get(CONTENT-TYPE) = %q, want text/plain", got)
	}
}

func TestHeaderAddRejectsInvalidNameAndValue(t *testing.T) {
	var h Header
	if err := h.Add("Bad Name", "v"); err == nil {
		t.Fatal("Add accepted a header name with a space")
	}
	if err := h.Add("X-Ok", "bad\nvalue"); err == nil {
		t.Fatal("Add accepted a header value with a newline")
	}
}

func TestHeaderValuesPreservesRepeatableHeaders(t *testing.T) {
	var h Header
	h.AddUnchecked("Set-Cookie", "a=1")
	h.AddUnchecked("Set-Cookie", "b=2")
	vals := h.Values("set-cookie")
	if len(vals) != 2 || vals[0] != "a=1" || vals[1] != "b=2" {
		t.Fatalf("Values = %v, want [a=1 b=2]", vals)
	}
}

func TestHeaderResetClearsFields(t *testing.T) {
	var h Header
	h.AddUnchecked("X-A", "1")
	h.Reset()
	if len(h.All()) != 0 {
		t.Fatalf("All() after Reset = %v, want empty", h.All())
	}
}

func TestFuncBodyYieldsChunksThenEOF(t *testing.T) {
	chunks := [][]byte{[]byte("a"), []byte("b")}
	i := 0
	body := FuncBody(func() ([]byte, bool, error) {
		if i >= len(chunks) {
			return nil, false, nil
		}
		c := chunks[i]
		i++
		return c, true, nil
	})

	c1, err := body.Next(context.Background())
	if err != nil || string(c1) != "a" {
		t.Fatalf("first Next = %q, %v; want a, nil", c1, err)
	}
	c2, err := body.Next(context.Background())
	if err != nil || string(c2) != "b" {
		t.Fatalf("second Next = %q, %v; want b, nil", c2, err)
	}
	_, err = body.Next(context.Background())
	if err != io.EOF {
		t.Fatalf("third Next err = %v, want io.EOF", err)
	}
}

func TestFuncBodyPropagatesError(t *testing.T) {
	wantErr := io.ErrUnexpectedEOF
	body := FuncBody(func() ([]byte, bool, error) {
		return nil, false, wantErr
	})
	_, err := body.Next(context.Background())
	if err != wantErr {
		t.Fatalf("Next err = %v, want %v", err, wantErr)
	}
}
