package linesearch

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// ToProtoRequest converts a Request into a protobuf Struct.
func ToProtoRequest(r Request) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"action": structpb.NewStringValue(r.Action),
	}
	if r.Query != "" {
		fields["query"] = structpb.NewStringValue(r.Query)
	}
	if r.Algo != "" {
		fields["algo"] = structpb.NewStringValue(r.Algo)
	}
	return &structpb.Struct{Fields: fields}
}

// FromProtoRequest converts a protobuf Struct into a Request.
func FromProtoRequest(p *structpb.Struct) (Request, error) {
	var (
		r   Request
		err error
	)
	if r.Action, err = stringField(p, "action"); err != nil {
		return r, err
	}
	if r.Query, err = stringField(p, "query"); err != nil {
		return r, err
	}
	if r.Algo, err = stringField(p, "algo"); err != nil {
		return r, err
	}
	return r, nil
}

// ToProtoLogRecord converts a LogRecord into a protobuf Struct. Unset
// completion fields become null values.
func ToProtoLogRecord(rec LogRecord) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"id":             structpb.NewStringValue(rec.ID),
		"query":          structpb.NewStringValue(rec.Query),
		"requesting_ip":  structpb.NewStringValue(rec.RequestingIP),
		"execution_time": structpb.NewNullValue(),
		"timestamp":      structpb.NewNullValue(),
		"status":         structpb.NewStringValue(string(rec.Status)),
	}
	if rec.ExecutionTime != nil {
		fields["execution_time"] = structpb.NewNumberValue(*rec.ExecutionTime)
	}
	if rec.Timestamp != nil {
		fields["timestamp"] = structpb.NewStringValue(rec.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	return &structpb.Struct{Fields: fields}
}

// FromProtoLogRecord converts a protobuf Struct into a LogRecord.
func FromProtoLogRecord(p *structpb.Struct) (LogRecord, error) {
	var (
		rec LogRecord
		err error
	)
	if rec.ID, err = stringField(p, "id"); err != nil {
		return rec, err
	}
	if rec.Query, err = stringField(p, "query"); err != nil {
		return rec, err
	}
	if rec.RequestingIP, err = stringField(p, "requesting_ip"); err != nil {
		return rec, err
	}
	status, err := stringField(p, "status")
	if err != nil {
		return rec, err
	}
	rec.Status = Status(status)

	if v, ok := p.GetFields()["execution_time"]; ok {
		switch k := v.GetKind().(type) {
		case *structpb.Value_NumberValue:
			f := k.NumberValue
			rec.ExecutionTime = &f
		case *structpb.Value_NullValue, nil:
		default:
			return rec, fmt.Errorf("%w: field execution_time: unexpected %T", ErrInvalidArgument, k)
		}
	}

	ts, err := stringField(p, "timestamp")
	if err != nil {
		return rec, err
	}
	if ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return rec, fmt.Errorf("%w: field timestamp: %w", ErrInvalidArgument, err)
		}
		rec.Timestamp = &t
	}
	return rec, nil
}

// ToProtoResponse converts a Response into a protobuf Struct.
func ToProtoResponse(r Response) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"status": structpb.NewStringValue(r.Status),
	}
	for k, v := range map[string]string{
		"action":  r.Action,
		"message": r.Message,
		"error":   r.Error,
		"code":    r.Code,
	} {
		if v != "" {
			fields[k] = structpb.NewStringValue(v)
		}
	}
	if r.Log != nil {
		fields["log"] = structpb.NewStructValue(ToProtoLogRecord(*r.Log))
	}
	if r.Logs != nil {
		vals := make([]*structpb.Value, len(r.Logs))
		for i, rec := range r.Logs {
			vals[i] = structpb.NewStructValue(ToProtoLogRecord(rec))
		}
		fields["logs"] = structpb.NewListValue(&structpb.ListValue{Values: vals})
	}
	return &structpb.Struct{Fields: fields}
}

// FromProtoResponse converts a protobuf Struct into a Response.
func FromProtoResponse(p *structpb.Struct) (Response, error) {
	var (
		r   Response
		err error
	)
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"action", &r.Action},
		{"status", &r.Status},
		{"message", &r.Message},
		{"error", &r.Error},
		{"code", &r.Code},
	} {
		if *f.dst, err = stringField(p, f.name); err != nil {
			return r, err
		}
	}

	if v, ok := p.GetFields()["log"]; ok && v.GetStructValue() != nil {
		rec, err := FromProtoLogRecord(v.GetStructValue())
		if err != nil {
			return r, fmt.Errorf("convert log: %w", err)
		}
		r.Log = &rec
	}
	if v, ok := p.GetFields()["logs"]; ok && v.GetListValue() != nil {
		vals := v.GetListValue().GetValues()
		r.Logs = make([]LogRecord, 0, len(vals))
		for i, item := range vals {
			s := item.GetStructValue()
			if s == nil {
				return r, fmt.Errorf("%w: logs[%d] is not an object", ErrInvalidArgument, i)
			}
			rec, err := FromProtoLogRecord(s)
			if err != nil {
				return r, fmt.Errorf("convert logs[%d]: %w", i, err)
			}
			r.Logs = append(r.Logs, rec)
		}
	}
	return r, nil
}

// stringField reads a string field. Missing and null fields read as "".
func stringField(p *structpb.Struct, name string) (string, error) {
	v, ok := p.GetFields()[name]
	if !ok {
		return "", nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NullValue, nil:
		return "", nil
	default:
		return "", fmt.Errorf("%w: field %s: expected string, got %T", ErrInvalidArgument, name, k)
	}
}
