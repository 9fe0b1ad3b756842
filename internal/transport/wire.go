package transport

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"toolhub/internal/domain"
)

type wireError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type wireResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *wireError      `json:"error"`
}

func marshalParams(params any) (json.RawMessage, error) {
	switch typed := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return typed, nil
	case []byte:
		return json.RawMessage(typed), nil
	default:
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
}

// decodeResponse splits a peer response into its result payload or its
// error object. Error code and message survive verbatim inside the
// returned *domain.ProtocolError.
func decodeResponse(resp *jsonrpc.Response) (json.RawMessage, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil response")
	}
	encoded, err := jsonrpc.EncodeMessage(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var wire wireResponse
	if err := json.Unmarshal(encoded, &wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if wire.Error != nil {
		return nil, &domain.ProtocolError{
			Code:    wire.Error.Code,
			Message: wire.Error.Message,
			Data:    wire.Error.Data,
		}
	}
	return wire.Result, nil
}

// DecodeResult unmarshals a call result into out, tolerating empty results.
func DecodeResult(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
