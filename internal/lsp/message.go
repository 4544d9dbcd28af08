package lsp

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Kind is the JSON-RPC shape of a decoded payload.
type Kind int

const (
	// KindInvalid marks a payload matching no JSON-RPC shape.
	KindInvalid Kind = iota
	// KindRequest is a call from the server that expects a reply.
	KindRequest
	// KindResponse is a successful reply to one of our requests.
	KindResponse
	// KindError is a failed reply to one of our requests.
	KindError
	// KindNotification is a one-way message from the server.
	KindNotification
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	case KindNotification:
		return "notification"
	default:
		return "invalid"
	}
}

// Message is one classified JSON-RPC payload.
//
// Only the fields relevant to Kind are set: ID for requests and replies,
// Method for requests and notifications, Params, Result or Error as sent.
type Message struct {
	Kind   Kind
	ID     json.RawMessage
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *RPCError
	Raw    json.RawMessage
}

// IDKey renders the message id as a correlation key.
// String ids yield their contents, numeric ids their decimal text.
func (m Message) IDKey() string {
	if len(m.ID) == 0 {
		return ""
	}
	return gjson.ParseBytes(m.ID).String()
}

// Classify determines the shape of raw by key presence.
//
//   - id and method: request
//   - id and result: response
//   - id and error: error response
//   - method and params without id: notification
//
// Anything else, including non-object payloads, is KindInvalid.
func Classify(raw json.RawMessage) Message {
	msg := Message{Raw: raw}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return msg
	}

	id := root.Get("id")
	method := root.Get("method")
	params := root.Get("params")

	switch {
	case id.Exists() && method.Exists():
		msg.Kind = KindRequest
		msg.ID = json.RawMessage(id.Raw)
		msg.Method = method.String()
		if params.Exists() {
			msg.Params = json.RawMessage(params.Raw)
		}
	case id.Exists() && root.Get("result").Exists():
		msg.Kind = KindResponse
		msg.ID = json.RawMessage(id.Raw)
		msg.Result = json.RawMessage(root.Get("result").Raw)
	case id.Exists() && root.Get("error").Exists():
		msg.Kind = KindError
		msg.ID = json.RawMessage(id.Raw)
		msg.Error = decodeRPCError(root.Get("error"))
	case !id.Exists() && method.Exists() && params.Exists():
		msg.Kind = KindNotification
		msg.Method = method.String()
		msg.Params = json.RawMessage(params.Raw)
	}
	return msg
}

// decodeRPCError reads an error object, tolerating missing fields.
func decodeRPCError(v gjson.Result) *RPCError {
	if !v.IsObject() {
		return &RPCError{Code: CodeInternalError, Message: v.String()}
	}
	e := &RPCError{
		Code:    int(v.Get("code").Int()),
		Message: v.Get("message").String(),
	}
	if data := v.Get("data"); data.Exists() {
		e.Data = data.Value()
	}
	return e
}

// envelope is the shape of an outbound notification.
type envelope struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// newNotification builds {"jsonrpc":"2.0","method":...,"params":...}.
func newNotification(method string, params any) ([]byte, error) {
	data, err := json.Marshal(envelope{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}
	return data, nil
}

// newRequest builds a notification envelope and adds the correlation id.
func newRequest(id any, method string, params any) ([]byte, error) {
	data, err := newNotification(method, params)
	if err != nil {
		return nil, err
	}
	data, err = sjson.SetBytes(data, "id", id)
	if err != nil {
		return nil, fmt.Errorf("set id on %s: %w", method, err)
	}
	return data, nil
}

// newResponse builds a successful reply to a server request.
func newResponse(id json.RawMessage, result any) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return newReply(id, "result", raw)
}

// newErrorResponse builds a failed reply to a server request.
func newErrorResponse(id json.RawMessage, code int, message string) ([]byte, error) {
	raw, err := json.Marshal(&RPCError{Code: code, Message: message})
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}
	return newReply(id, "error", raw)
}

func newReply(id json.RawMessage, key string, value []byte) ([]byte, error) {
	data := []byte(`{"jsonrpc":"2.0"}`)
	data, err := sjson.SetRawBytes(data, "id", id)
	if err != nil {
		return nil, fmt.Errorf("set reply id: %w", err)
	}
	data, err = sjson.SetRawBytes(data, key, value)
	if err != nil {
		return nil, fmt.Errorf("set reply %s: %w", key, err)
	}
	return data, nil
}
