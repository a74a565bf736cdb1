package jsonrpc2

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// TypeDescriptor describes how to decode one parameter or one result value.
// New returns a fresh pointer suitable as a json.Unmarshal target; IsList
// marks a parameter type that is itself a JSON array (e.g. []string), which
// matters for the single-list-parameter rule in deserializeParams.
type TypeDescriptor struct {
	Name   string
	New    func() any
	IsList bool
}

// AnyType is the "no particular shape" descriptor: decodes into a generic
// interface{} and round-trips arbitrary JSON.
var AnyType = TypeDescriptor{Name: "any", New: func() any { return new(any) }}

// JsonRpcMethod is the registered schema for one method name: its
// parameter types in declared order, its result type, and whether it is a
// Request (expects a Response) or a Notification (does not).
type JsonRpcMethod struct {
	Name           string
	ParameterTypes []TypeDescriptor
	ResultType     TypeDescriptor
	Kind           MethodKind
}

// cancelMethod is the built-in descriptor for "$/cancelRequest", resolved
// by every Codec regardless of what the caller registered.
var cancelMethod = JsonRpcMethod{
	Name:           CancelMethod,
	ParameterTypes: []TypeDescriptor{{Name: "CancelParams", New: func() any { return new(CancelParams) }}},
	Kind:           Notification,
}

// Codec resolves method names to schemas and (de)serializes params/results
// against those schemas. It is immutable after construction.
type Codec struct {
	methods  map[string]*JsonRpcMethod
	fallback *JsonRpcMethod
}

// NewCodec builds a Codec from a set of method descriptors. The returned
// Codec additionally always resolves "$/cancelRequest", even if the caller
// did not register it.
func NewCodec(methods []JsonRpcMethod) *Codec {
	c := &Codec{methods: make(map[string]*JsonRpcMethod, len(methods))}
	for i := range methods {
		m := methods[i]
		c.methods[m.Name] = &m
	}
	return c
}

// NewCodecWithFallback builds a Codec like NewCodec, but Resolve returns
// fallback for any name that isn't otherwise registered, instead of nil.
// This is for endpoints that proxy an open set of method names they don't
// know ahead of time (see internal/mcp), rather than a fixed schema.
func NewCodecWithFallback(methods []JsonRpcMethod, fallback JsonRpcMethod) *Codec {
	c := NewCodec(methods)
	c.fallback = &fallback
	return c
}

// Resolve returns the registered descriptor for name, the built-in
// "$/cancelRequest" descriptor, the codec's fallback descriptor if one was
// configured, or nil if name is unknown and there is no fallback.
func (c *Codec) Resolve(name string) *JsonRpcMethod {
	if name == CancelMethod {
		return &cancelMethod
	}
	if m, ok := c.methods[name]; ok {
		return m
	}
	return c.fallback
}

// InvalidArgumentsError reports an arity mismatch between a call site and
// a method's declared parameter types.
type InvalidArgumentsError struct {
	Method   string
	Expected int
	Got      int
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("jsonrpc2: %s expects %d argument(s), got %d", e.Method, e.Expected, e.Got)
}

// SerializeParams encodes values as the JsonParams for an outbound call to
// method. Zero parameters produce an empty object. A single list-typed
// parameter is unwrapped into ArrayParams directly, mirroring the
// single-list-parameter rule DeserializeParams applies on the way back. A
// single other non-object value is wrapped in a one-element array; a single
// object-shaped value is sent as-is (ObjectParams). Two or more values
// always produce an array.
func (c *Codec) SerializeParams(method *JsonRpcMethod, values []any) (*JsonParams, error) {
	if len(values) != len(method.ParameterTypes) {
		return nil, &InvalidArgumentsError{Method: method.Name, Expected: len(method.ParameterTypes), Got: len(values)}
	}
	if len(values) == 0 {
		return ObjectParams(map[string]json.RawMessage{}), nil
	}
	if len(values) == 1 {
		raw, err := json.Marshal(values[0])
		if err != nil {
			return nil, err
		}
		if method.ParameterTypes[0].IsList {
			var arr []json.RawMessage
			if err := json.Unmarshal(raw, &arr); err != nil {
				return nil, err
			}
			return ArrayParams(arr), nil
		}
		if looksLikeObject(raw) {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(raw, &obj); err != nil {
				return nil, err
			}
			return ObjectParams(obj), nil
		}
		return ArrayParams([]json.RawMessage{raw}), nil
	}
	arr := make([]json.RawMessage, len(values))
	for i, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		arr[i] = raw
	}
	return ArrayParams(arr), nil
}

func looksLikeObject(raw json.RawMessage) bool {
	t := trimLeadingSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

// DeserializeParams decodes params against method's declared parameter
// types, per the shape rules in the codec's contract:
//   - absent params -> empty slice
//   - an empty ObjectParams -> a single nil argument
//   - a non-empty ObjectParams -> decoded as the sole parameter's type
//   - an ArrayParams matching a single list-typed parameter -> the whole
//     array decoded as that one argument
//   - otherwise, array elements are zipped against parameter types,
//     short-padded with null and long-truncated to the declared arity
func (c *Codec) DeserializeParams(method *JsonRpcMethod, params *JsonParams) ([]any, error) {
	if params == nil {
		return []any{}, nil
	}

	if params.IsObject() {
		if params.Size() == 0 {
			return []any{nil}, nil
		}
		if len(method.ParameterTypes) == 0 {
			return []any{}, nil
		}
		raw, err := json.Marshal(params.obj)
		if err != nil {
			return nil, err
		}
		v, err := decodeOne(method.ParameterTypes[0], raw)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}

	// ArrayParams.
	if len(method.ParameterTypes) == 1 && method.ParameterTypes[0].IsList {
		raw, err := json.Marshal(params.array)
		if err != nil {
			return nil, err
		}
		v, err := decodeOne(method.ParameterTypes[0], raw)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}

	n := len(method.ParameterTypes)
	out := make([]any, n)
	for i := 0; i < n; i++ {
		var raw json.RawMessage
		if i < len(params.array) {
			raw = params.array[i]
		} else {
			raw = json.RawMessage("null")
		}
		v, err := decodeOne(method.ParameterTypes[i], raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeOne(t TypeDescriptor, raw json.RawMessage) (any, error) {
	target := t.New()
	if target == nil {
		target = new(any)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, &MessageIssueError{Kind: InvalidParams, Payload: raw, Issues: []string{err.Error()}}
	}
	return derefOnce(target), nil
}

// derefOnce unwraps the single pointer indirection TypeDescriptor.New
// introduces, so callers see plain values (string, not *string).
func derefOnce(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return v
	}
	return rv.Elem().Interface()
}

// SerializeResult encodes value as the wire result for method. The value is
// marshalled as is; method's ResultType is not consulted.
func (c *Codec) SerializeResult(method *JsonRpcMethod, value any) (json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// DeserializeResult decodes a wire result against method's declared
// ResultType.
func (c *Codec) DeserializeResult(method *JsonRpcMethod, raw json.RawMessage) (any, error) {
	t := method.ResultType
	if t.New == nil {
		t = AnyType
	}
	return decodeOne(t, raw)
}
