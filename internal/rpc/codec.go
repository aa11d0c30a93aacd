package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cartridge/qagent/internal/service"
	"github.com/cartridge/qagent/internal/storage"
	"github.com/cartridge/qagent/internal/types"
)

// Request and response field names.
const (
	fieldState    = "state"
	fieldAction   = "action"
	fieldReward   = "reward"
	fieldNewState = "new_state"
)

// numbers reads a nested struct of numeric fields. A missing field yields nil.
func numbers(s *structpb.Struct, field string) (map[string]float64, error) {
	v, ok := s.GetFields()[field]
	if !ok {
		return nil, nil
	}
	nested := v.GetStructValue()
	if nested == nil {
		return nil, fmt.Errorf("%w: %s must be an object", types.ErrType, field)
	}
	out := make(map[string]float64, len(nested.GetFields()))
	for name, value := range nested.GetFields() {
		n, ok := value.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s must be a number", types.ErrType, field, name)
		}
		out[name] = n.NumberValue
	}
	return out, nil
}

func numbersStruct(values map[string]float64) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(values))
	for name, v := range values {
		fields[name] = structpb.NewNumberValue(v)
	}
	return &structpb.Struct{Fields: fields}
}

func decodeUpdate(s *structpb.Struct) (service.UpdateInput, error) {
	state, err := numbers(s, fieldState)
	if err != nil {
		return service.UpdateInput{}, err
	}
	action, err := numbers(s, fieldAction)
	if err != nil {
		return service.UpdateInput{}, err
	}
	newState, err := numbers(s, fieldNewState)
	if err != nil {
		return service.UpdateInput{}, err
	}
	reward, ok := s.GetFields()[fieldReward].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return service.UpdateInput{}, fmt.Errorf("%w: reward must be a number", types.ErrType)
	}
	return service.UpdateInput{
		State:    state,
		Action:   action,
		Reward:   reward.NumberValue,
		NewState: newState,
	}, nil
}

func encodeUpdate(input service.UpdateInput) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldReward: structpb.NewNumberValue(input.Reward),
	}
	if input.State != nil {
		fields[fieldState] = structpb.NewStructValue(numbersStruct(input.State))
	}
	if input.Action != nil {
		fields[fieldAction] = structpb.NewStructValue(numbersStruct(input.Action))
	}
	if input.NewState != nil {
		fields[fieldNewState] = structpb.NewStructValue(numbersStruct(input.NewState))
	}
	return &structpb.Struct{Fields: fields}
}

// toStruct converts any JSON-encodable value to a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// toStatus maps agent errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, types.ErrMode):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, types.ErrType), errors.Is(err, types.ErrMismatch), errors.Is(err, types.ErrRange):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrNoStore):
		return status.Error(codes.Unimplemented, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus recovers the agent error kind carried by a gRPC status.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	msg := st.Message()
	switch st.Code() {
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", types.ErrMode, strings.TrimPrefix(msg, types.ErrMode.Error()+": "))
	case codes.InvalidArgument:
		for _, sentinel := range []error{types.ErrMismatch, types.ErrRange, types.ErrType} {
			if strings.HasPrefix(msg, sentinel.Error()) {
				return fmt.Errorf("%w: %s", sentinel, strings.TrimPrefix(msg, sentinel.Error()+": "))
			}
		}
		return fmt.Errorf("%w: %s", types.ErrType, msg)
	case codes.NotFound:
		return fmt.Errorf("%w: %s", storage.ErrNotFound, msg)
	default:
		return err
	}
}
