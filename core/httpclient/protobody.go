package httpclient

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"

	"github.com/SecurityWorks/coro-http/core/httpmsg"
)

// EncodeProtoBody marshals msg and returns a ChunkReader that
// yields it as a single chunk, plus the Content-Length header value the
// caller should attach — giving requests a typed, binary body format
// without the engine itself knowing anything about protobuf wire framing.
//
// The teacher depends on google.golang.org/protobuf only through its RPC
// codec (core/rpc/codec), which has no home once RPC is out of scope; this
// gives the same dependency a genuine job in an HTTP-only engine — a
// structured request/response body format, the role JSON or protobuf
// bodies play in most real HTTP APIs.
func EncodeProtoBody(msg proto.Message) (body httpmsg.ChunkReader, contentLength int, err error) {
	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, 0, fmt.Errorf("httpclient: marshal proto body: %w", err)
	}
	sent := false
	return httpmsg.FuncBody(func() ([]byte, bool, error) {
		if sent {
			return nil, false, nil
		}
		sent = true
		return b, true, nil
	}), len(b), nil
}

// DecodeProtoBody drains a Response body in full and unmarshals it into
// msg. Use only for responses known to be reasonably small; for large or
// unbounded bodies, read Response.Body.Next directly instead.
func DecodeProtoBody(ctx context.Context, resp *httpmsg.Response, msg proto.Message) error {
	var all []byte
	for {
		chunk, err := resp.Body.Next(ctx)
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("httpclient: read proto body: %w", err)
		}
		all = append(all, chunk...)
	}
	if err := proto.Unmarshal(all, msg); err != nil {
		return fmt.Errorf("httpclient: unmarshal proto body: %w", err)
	}
	return nil
}
