package linesearch

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// encodeProto marshals a Request or Response as a protobuf Struct.
func encodeProto(v any) ([]byte, error) {
	var msg *structpb.Struct
	switch x := v.(type) {
	case Request:
		msg = ToProtoRequest(x)
	case *Request:
		msg = ToProtoRequest(*x)
	case Response:
		msg = ToProtoResponse(x)
	case *Response:
		msg = ToProtoResponse(*x)
	default:
		return nil, fmt.Errorf("%w: no protobuf form for %T", ErrInvalidArgument, v)
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal protobuf: %w", err)
	}
	return data, nil
}

// decodeProto unmarshals a protobuf Struct into *Request or *Response.
func decodeProto(data []byte, v any) error {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: unmarshal protobuf: %w", ErrInvalidArgument, err)
	}
	switch x := v.(type) {
	case *Request:
		r, err := FromProtoRequest(&msg)
		if err != nil {
			return err
		}
		*x = r
	case *Response:
		r, err := FromProtoResponse(&msg)
		if err != nil {
			return err
		}
		*x = r
	default:
		return fmt.Errorf("%w: no protobuf form for %T", ErrInvalidArgument, v)
	}
	return nil
}
