package wire

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

// ErrChunkFormat mirrors dqx0-protocols/httpx/internal/http1/chunked.go's
// errChunkFormat, exported here since callers across package boundaries
// need to recognize it.
var ErrChunkFormat = errors.New("wire: invalid chunk format")

type chunkState int

const (
	chunkStateSize chunkState = iota
	chunkStateData
	chunkStateDataCRLF
	chunkStateTrailer
	chunkStateDone
)

// ChunkDecoder turns a chunked-transfer-encoded byte stream into a sequence
// of decoded chunks, one Feed call at a time — the non-blocking analog of
// dqx0's chunkedBody.Read, which pulled directly from a blocking
// bufio.Reader. Ours instead accumulates whatever the socket handed the
// reactor this turn and extracts as many complete chunks as are present.
type ChunkDecoder struct {
	MaxLineBytes int

	state  chunkState
	buf    []byte
	remain int64
}

// NewChunkDecoder returns a decoder ready to read the first chunk.
func NewChunkDecoder(maxLineBytes int) *ChunkDecoder {
	if maxLineBytes <= 0 {
		maxLineBytes = 1024
	}
	return &ChunkDecoder{MaxLineBytes: maxLineBytes}
}

// Feed appends newly read bytes to the decoder's internal buffer.
func (c *ChunkDecoder) Feed(data []byte) {
	c.buf = append(c.buf, data...)
}

// Extract returns the next fully-buffered chunk, if any. ok is false when
// more bytes are needed before a chunk (or the terminating zero-length
// chunk) can be produced; done is true once the terminating chunk and any
// trailers have been consumed, at which point Remainder holds whatever
// bytes were fed past the end of the chunked body (the start of the next
// pipelined message, if any).
func (c *ChunkDecoder) Extract() (chunk []byte, ok bool, done bool, err error) {
	for {
		switch c.state {
		case chunkStateDone:
			return nil, false, true, nil

		case chunkStateSize:
			line, found := c.takeLine()
			if !found {
				return nil, false, false, nil
			}
			if i := bytes.IndexByte(line, ';'); i >= 0 {
				line = line[:i]
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				return nil, false, false, ErrChunkFormat
			}
			n, convErr := strconv.ParseInt(string(line), 16, 64)
			if convErr != nil || n < 0 {
				return nil, false, false, ErrChunkFormat
			}
			if n == 0 {
				c.state = chunkStateTrailer
				continue
			}
			c.remain = n
			c.state = chunkStateData

		case chunkStateData:
			if int64(len(c.buf)) < c.remain {
				return nil, false, false, nil
			}
			out := append([]byte(nil), c.buf[:c.remain]...)
			c.buf = c.buf[c.remain:]
			c.remain = 0
			c.state = chunkStateDataCRLF
			return out, true, false, nil

		case chunkStateDataCRLF:
			if len(c.buf) < 2 {
				return nil, false, false, nil
			}
			if c.buf[0] != '\r' || c.buf[1] != '\n' {
				return nil, false, false, ErrChunkFormat
			}
			c.buf = c.buf[2:]
			c.state = chunkStateSize

		case chunkStateTrailer:
			line, found := c.takeLine()
			if !found {
				return nil, false, false, nil
			}
			if len(line) == 0 {
				c.state = chunkStateDone
				return nil, false, true, nil
			}
			// Trailer headers are consumed and discarded: the CORE surfaces
			// only the headers present before the body, same as the
			// reference codec this is grounded on.
		}
	}
}

// Remainder returns bytes buffered past whatever has been consumed so far
// (valid to call at any time, e.g. after Extract reports done).
func (c *ChunkDecoder) Remainder() []byte {
	return c.buf
}

func (c *ChunkDecoder) takeLine() (line []byte, found bool) {
	i := bytes.IndexByte(c.buf, '\n')
	if i == -1 {
		if c.MaxLineBytes > 0 && len(c.buf) > c.MaxLineBytes {
			c.buf = nil
		}
		return nil, false
	}
	raw := c.buf[:i]
	raw = bytes.TrimSuffix(raw, []byte("\r"))
	c.buf = c.buf[i+1:]
	return raw, true
}

// EncodeChunk frames p as one chunked-transfer chunk. An empty p encodes to
// nothing — callers use EncodeLastChunk to terminate the stream.
func EncodeChunk(p []byte) []byte {
	if len(p) == 0 {
		return nil
	}
	var b bytes.Buffer
	b.WriteString(strconv.FormatInt(int64(len(p)), 16))
	b.WriteString("\r\n")
	b.Write(p)
	b.WriteString("\r\n")
	return b.Bytes()
}

// EncodeLastChunk frames the terminating zero-length chunk with no
// trailers.
func EncodeLastChunk() []byte {
	return []byte("0\r\n\r\n")
}

func isChunkedTransferEncoding(v string) bool {
	return strings.Contains(strings.ToLower(v), "chunked")
}
