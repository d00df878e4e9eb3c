package httpapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

// Protobuf clients send a google.protobuf.Struct with the same keys as
// the JSON body.

func queryRequestFromProto(p *structpb.Struct) (types.QueryRequest, error) {
	var req types.QueryRequest
	for k, v := range p.GetFields() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return types.QueryRequest{}, fmt.Errorf("field %q must be a string", k)
		}
		switch k {
		case "template":
			req.Template = s.StringValue
		case "finger":
			req.Finger = s.StringValue
		case "received_at":
			req.ReceivedAt = s.StringValue
		default:
			return types.QueryRequest{}, fmt.Errorf("unknown field %q", k)
		}
	}
	return req, nil
}

// queryResultToProto goes through the JSON form so both encodings carry
// identical keys.
func queryResultToProto(r types.QueryResult) (*structpb.Struct, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
