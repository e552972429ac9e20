package linesearch

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Actions understood by the server.
const (
	ActionCreateLog = "create_log"
	ActionReadLogs  = "read_logs"
)

// Response statuses and the human-readable create_log answers.
const (
	ResponseOK    = "ok"
	ResponseError = "error"

	MessageExists   = "STRING EXISTS"
	MessageNotFound = "STRING NOT FOUND"
)

// DefaultMaxPayloadSize bounds an inbound frame body when no limit is configured.
const DefaultMaxPayloadSize = 64 * 1024

// Codec selects the payload encoding of a frame.
type Codec byte

// Supported codecs. The tag byte follows the length prefix on the wire.
const (
	CodecJSON  Codec = 0x01
	CodecProto Codec = 0x02
)

func (c Codec) String() string {
	switch c {
	case CodecJSON:
		return "json"
	case CodecProto:
		return "proto"
	default:
		return fmt.Sprintf("codec(0x%02x)", byte(c))
	}
}

// ParseCodec resolves "json" or "proto"/"protobuf". Empty means JSON.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return CodecJSON, nil
	case "proto", "protobuf":
		return CodecProto, nil
	default:
		return 0, fmt.Errorf("%w: unknown codec %q", ErrInvalidArgument, name)
	}
}

// Request is one client frame.
//
//	{"action":"create_log","query":"banana","algo":"trie"}
//	{"action":"read_logs"}
type Request struct {
	Action string `json:"action"`
	Query  string `json:"query,omitempty"`
	Algo   string `json:"algo,omitempty"`
}

// Response is one server frame. Status is "ok" or "error"; Message carries
// STRING EXISTS or STRING NOT FOUND for a successful create_log.
type Response struct {
	Action  string      `json:"action,omitempty"`
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Log     *LogRecord  `json:"log,omitempty"`
	Logs    []LogRecord `json:"logs,omitempty"`
}

// errorResponse builds an error frame for err.
func errorResponse(action string, err error) Response {
	return Response{
		Action: action,
		Status: ResponseError,
		Error:  err.Error(),
		Code:   ErrorCode(err),
	}
}

// Frame layout:
//
//	| length uint32 BE | codec byte | payload (length-1 bytes) |
//
// length counts the codec byte and the payload.
const frameHeaderSize = 4

// readFrame reads one frame body. A body longer than maxSize is consumed
// from r without buffering more than maxSize+1 bytes and rejected through
// GuardPayload, leaving r positioned at the next frame. Any other error
// means the stream is no longer usable.
func readFrame(r io.Reader, maxSize int) (Codec, []byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := int64(binary.BigEndian.Uint32(hdr[:]))

	keep := n
	if limit := int64(maxSize) + 1; keep > limit {
		keep = limit
	}
	body := make([]byte, keep)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	if rest := n - keep; rest > 0 {
		if _, err := io.CopyN(io.Discard, r, rest); err != nil {
			return 0, nil, err
		}
	}

	if _, err := GuardPayload(body, maxSize); err != nil {
		return 0, nil, &frameError{err: err}
	}
	if len(body) == 0 {
		return 0, nil, &frameError{err: fmt.Errorf("%w: empty frame", ErrInvalidArgument)}
	}
	return Codec(body[0]), body[1:], nil
}

// writeFrame writes payload as one frame tagged with codec.
func writeFrame(w io.Writer, codec Codec, payload []byte) error {
	buf := make([]byte, frameHeaderSize+1+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)+1))
	buf[frameHeaderSize] = byte(codec)
	copy(buf[frameHeaderSize+1:], payload)
	_, err := w.Write(buf)
	return err
}

// frameError is a rejected frame on a stream that is still usable.
type frameError struct {
	err error
}

func (e *frameError) Error() string { return e.err.Error() }
func (e *frameError) Unwrap() error { return e.err }

func encodePayload(codec Codec, v any) ([]byte, error) {
	switch codec {
	case CodecJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return b, nil
	case CodecProto:
		return encodeProto(v)
	default:
		return nil, fmt.Errorf("%w: unknown codec %s", ErrInvalidArgument, codec)
	}
}

func decodePayload(codec Codec, data []byte, v any) error {
	switch codec {
	case CodecJSON:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%w: decode json: %w", ErrInvalidArgument, err)
		}
		return nil
	case CodecProto:
		return decodeProto(data, v)
	default:
		return fmt.Errorf("%w: unknown codec %s", ErrInvalidArgument, codec)
	}
}
