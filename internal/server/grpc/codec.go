package grpc

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// decodeStruct maps a request body onto v through its JSON form.
func decodeStruct(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: request body: %v", common.ErrSerialization, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: request body: %v", common.ErrSerialization, err)
	}
	return nil
}

// encodeStruct turns any JSON-encodable value into a response body. v must
// encode to a JSON object.
func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: response body: %v", common.ErrSerialization, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: response body: %v", common.ErrSerialization, err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("%w: response body: %v", common.ErrSerialization, err)
	}
	return s, nil
}
