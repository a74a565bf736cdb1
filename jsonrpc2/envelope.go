package jsonrpc2

import (
	"encoding/json"
	"fmt"
)

// wireEnvelope is the superset shape used to sniff an incoming message's
// kind before committing to a concrete Message type. The ID pointer (nil when
// id is absent or null) and a non-empty Method let us tell a Request
// (id+method) from a Notification (method, no id) from a Response (id, no
// method).
type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *MessageId      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *JsonParams     `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// DecodeMessage parses one JSON-RPC envelope into a Message. It does not
// know about method schemas; params/result stay as raw JSON until the
// Codec resolves them against a JsonRpcMethod.
func DecodeMessage(data []byte) (Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &MessageIssueError{Kind: ParseError, Payload: data, Issues: []string{err.Error()}}
	}

	switch {
	case env.Method != "" && env.ID != nil:
		return &RequestMessage{ID: *env.ID, Method: env.Method, Params: env.Params}, nil
	case env.Method != "":
		return &NotificationMessage{Method: env.Method, Params: env.Params}, nil
	case env.Error != nil:
		id := MessageId{}
		if env.ID != nil {
			id = *env.ID
		}
		return &ResponseMessage{ID: id, HasID: env.ID != nil, Error: env.Error}, nil
	case env.ID != nil:
		return &ResponseMessage{ID: *env.ID, HasID: true, Result: env.Result}, nil
	default:
		return nil, &MessageIssueError{
			Kind:    InvalidRequest,
			Payload: data,
			Issues:  []string{"message has neither method nor id/error"},
		}
	}
}

// EncodeMessage serializes a Message into a wire envelope.
func EncodeMessage(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *RequestMessage:
		id := m.ID
		return json.Marshal(struct {
			JSONRPC string      `json:"jsonrpc"`
			ID      MessageId   `json:"id"`
			Method  string      `json:"method"`
			Params  *JsonParams `json:"params,omitempty"`
		}{Version, id, m.Method, m.Params})
	case *NotificationMessage:
		return json.Marshal(struct {
			JSONRPC string      `json:"jsonrpc"`
			Method  string      `json:"method"`
			Params  *JsonParams `json:"params,omitempty"`
		}{Version, m.Method, m.Params})
	case *ResponseMessage:
		return encodeResponse(m)
	default:
		return nil, fmt.Errorf("jsonrpc2: unknown message type %T", msg)
	}
}

func encodeResponse(m *ResponseMessage) ([]byte, error) {
	out := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      *MessageId      `json:"id"`
		Result  json.RawMessage `json:"result,omitempty"`
		Error   *ResponseError  `json:"error,omitempty"`
	}{JSONRPC: Version}
	if m.HasID {
		id := m.ID
		out.ID = &id
	}
	if m.IsError() {
		out.Error = m.Error
	} else {
		out.Result = m.Result
		if out.Result == nil {
			out.Result = json.RawMessage("null")
		}
	}
	return json.Marshal(out)
}

// MessageIssueError wraps a failure to parse or validate an inbound
// message. Payload carries the raw bytes when known, for diagnostics.
type MessageIssueError struct {
	Kind    ResponseErrorCode
	Payload []byte
	Issues  []string
}

func (e *MessageIssueError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("jsonrpc2: message issue (%d)", e.Kind)
	}
	return fmt.Sprintf("jsonrpc2: %s", e.Issues[0])
}
