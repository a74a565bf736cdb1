package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingConsumer captures every Message handed to it, in order, and can
// be made to fail on demand to exercise transport-failure paths.
type recordingConsumer struct {
	mu       sync.Mutex
	sent     []Message
	failWith error
}

func (c *recordingConsumer) Send(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *recordingConsumer) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// fakeLocal is a configurable LocalEndpoint test double.
type fakeLocal struct {
	mu        sync.Mutex
	notified  []notifyCall
	onRequest func(ctx context.Context, method string, params []any) (any, error)
}

type notifyCall struct {
	method string
	params []any
}

func (f *fakeLocal) Notify(ctx context.Context, method string, params []any) error {
	f.mu.Lock()
	f.notified = append(f.notified, notifyCall{method, params})
	f.mu.Unlock()
	return nil
}

func (f *fakeLocal) Request(ctx context.Context, method string, params []any) (any, error) {
	if f.onRequest != nil {
		return f.onRequest(ctx, method, params)
	}
	return nil, nil
}

func stringMethod(name string, kind MethodKind) JsonRpcMethod {
	return JsonRpcMethod{
		Name:           name,
		ParameterTypes: []TypeDescriptor{stringType()},
		ResultType:     stringType(),
		Kind:           kind,
	}
}

func newTestEndpoint(local LocalEndpoint, methods ...JsonRpcMethod) (*RemoteEndpoint, *recordingConsumer) {
	consumer := &recordingConsumer{}
	codec := NewCodec(methods)
	ep := NewRemoteEndpoint(consumer, local, codec)
	return ep, consumer
}

// Scenario 1: notification passthrough.
func TestNotificationPassthrough(t *testing.T) {
	local := &fakeLocal{}
	ep, consumer := newTestEndpoint(local, stringMethod("notification", Notification))

	ep.Consume(context.Background(), &NotificationMessage{
		Method: "notification",
		Params: ArrayParams([]json.RawMessage{json.RawMessage(`"myparam"`)}),
	})

	require.Len(t, local.notified, 1)
	assert.Equal(t, "notification", local.notified[0].method)
	assert.Equal(t, []any{"myparam"}, local.notified[0].params)
	assert.Empty(t, consumer.messages())
}

// Scenario 2 & 3: request with string and number ids.
func TestRequestCompletionByID(t *testing.T) {
	for _, id := range []MessageId{StringId("1"), NumberId(1)} {
		local := &fakeLocal{onRequest: func(ctx context.Context, method string, params []any) (any, error) {
			return "success", nil
		}}
		ep, consumer := newTestEndpoint(local, stringMethod("request", Request))

		ep.Consume(context.Background(), &RequestMessage{
			ID:     id,
			Method: "request",
			Params: ArrayParams([]json.RawMessage{json.RawMessage(`"myparam"`)}),
		})

		require.Eventually(t, func() bool { return len(consumer.messages()) == 1 }, time.Second, time.Millisecond)
		resp := consumer.messages()[0].(*ResponseMessage)
		assert.True(t, resp.ID.Equal(id))
		assert.False(t, resp.IsError())
		assert.JSONEq(t, `"success"`, string(resp.Result))
	}
}

// Scenario 4: outbound completion.
func TestOutboundRequestCompletion(t *testing.T) {
	local := &fakeLocal{}
	ep, consumer := newTestEndpoint(local, stringMethod("request", Request))

	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := ep.Request(context.Background(), "request", "myparam")
		resultCh <- v
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(consumer.messages()) == 1 }, time.Second, time.Millisecond)
	sentReq := consumer.messages()[0].(*RequestMessage)
	assert.Equal(t, "request", sentReq.Method)

	ep.Consume(context.Background(), &ResponseMessage{ID: sentReq.ID, HasID: true, Result: json.RawMessage(`"success"`)})

	assert.Equal(t, "success", <-resultCh)
	assert.NoError(t, <-errCh)
}

// Scenario 5: inbound cancellation.
func TestInboundCancellation(t *testing.T) {
	started := make(chan struct{})
	local := &fakeLocal{onRequest: func(ctx context.Context, method string, params []any) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	ep, consumer := newTestEndpoint(local, stringMethod("request", Request))

	ep.Consume(context.Background(), &RequestMessage{
		ID: StringId("1"), Method: "request",
		Params: ArrayParams([]json.RawMessage{json.RawMessage(`"myparam"`)}),
	})
	<-started

	ep.Consume(context.Background(), &NotificationMessage{
		Method: CancelMethod,
		Params: ObjectParams(map[string]json.RawMessage{"id": json.RawMessage(`"1"`)}),
	})

	require.Eventually(t, func() bool { return len(consumer.messages()) == 1 }, time.Second, time.Millisecond)
	resp := consumer.messages()[0].(*ResponseMessage)
	require.True(t, resp.IsError())
	assert.Equal(t, RequestCancelled, resp.Error.Code)
	assert.Equal(t, `The request (id: "1", method: 'request') has been cancelled`, resp.Error.Message)
}

// Scenario 6: handler exception.
func TestHandlerFailureShapesInternalError(t *testing.T) {
	local := &fakeLocal{onRequest: func(ctx context.Context, method string, params []any) (any, error) {
		return nil, errors.New("BAAZ")
	}}
	ep, consumer := newTestEndpoint(local, stringMethod("request", Request))

	ep.Consume(context.Background(), &RequestMessage{ID: StringId("1"), Method: "request"})

	require.Eventually(t, func() bool { return len(consumer.messages()) == 1 }, time.Second, time.Millisecond)
	resp := consumer.messages()[0].(*ResponseMessage)
	require.True(t, resp.IsError())
	assert.Equal(t, InternalError, resp.Error.Code)
	assert.Equal(t, "Internal error.", resp.Error.Message)
	assert.Contains(t, string(resp.Error.Data), "BAAZ")
}

// Scenario 7: consumer throws on notify.
func TestNotifyConsumerFailureDoesNotPropagate(t *testing.T) {
	local := &fakeLocal{}
	consumer := &recordingConsumer{failWith: errors.New("transport down")}
	ep := NewRemoteEndpoint(consumer, local, NewCodec([]JsonRpcMethod{stringMethod("event", Notification)}))

	assert.NotPanics(t, func() {
		ep.Notify(context.Background(), "event", "x")
	})
}

// P2: outbound ids are pairwise distinct.
func TestOutboundIDsAreUnique(t *testing.T) {
	local := &fakeLocal{}
	ep, consumer := newTestEndpoint(local, stringMethod("request", Request))

	for i := 0; i < 5; i++ {
		go ep.Request(context.Background(), "request", "x")
	}
	require.Eventually(t, func() bool { return len(consumer.messages()) == 5 }, time.Second, time.Millisecond)

	seen := map[string]bool{}
	for _, m := range consumer.messages() {
		id := m.(*RequestMessage).ID.String()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

// P3: cancelling a pending outbound request emits exactly one cancelRequest.
func TestCancellingOutboundEmitsCancelOnce(t *testing.T) {
	local := &fakeLocal{}
	ep, consumer := newTestEndpoint(local, stringMethod("request", Request))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ep.Request(ctx, "request", "x")
		close(done)
	}()

	require.Eventually(t, func() bool { return len(consumer.messages()) == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done

	require.Eventually(t, func() bool { return len(consumer.messages()) == 2 }, time.Second, time.Millisecond)
	cancelMsg := consumer.messages()[1].(*NotificationMessage)
	assert.Equal(t, CancelMethod, cancelMsg.Method)
}

// P4: cancelRequest for an unknown id produces no wire output.
func TestCancelForUnknownIDProducesNoOutput(t *testing.T) {
	local := &fakeLocal{}
	ep, consumer := newTestEndpoint(local)

	ep.Consume(context.Background(), &NotificationMessage{
		Method: CancelMethod,
		Params: ObjectParams(map[string]json.RawMessage{"id": json.RawMessage(`"does-not-exist"`)}),
	})

	assert.Empty(t, consumer.messages())
}

// P8: a response for an unknown id does not panic and leaves pending state alone.
func TestUnknownResponseIDIsDropped(t *testing.T) {
	local := &fakeLocal{}
	ep, _ := newTestEndpoint(local, stringMethod("request", Request))

	assert.NotPanics(t, func() {
		ep.Consume(context.Background(), &ResponseMessage{ID: NumberId(999), HasID: true, Result: json.RawMessage(`"x"`)})
	})
}

// MethodNotFound for a non-optional unknown method; optional ($/) methods
// get a null result instead.
func TestUnknownMethodHandling(t *testing.T) {
	local := &fakeLocal{}
	ep, consumer := newTestEndpoint(local)

	ep.Consume(context.Background(), &RequestMessage{ID: NumberId(1), Method: "nope"})
	resp := consumer.messages()[0].(*ResponseMessage)
	assert.Equal(t, MethodNotFound, resp.Error.Code)

	ep.Consume(context.Background(), &RequestMessage{ID: NumberId(2), Method: "$/optional"})
	resp2 := consumer.messages()[1].(*ResponseMessage)
	assert.False(t, resp2.IsError())
	assert.JSONEq(t, "null", string(resp2.Result))
}

// RejectMalformed reports a null-id ResponseError for input the transport
// could not parse into a Message at all.
func TestRejectMalformed(t *testing.T) {
	local := &fakeLocal{}
	ep, consumer := newTestEndpoint(local)

	ep.RejectMalformed(context.Background(), &MessageIssueError{Kind: ParseError, Issues: []string{"bad json"}})

	require.Len(t, consumer.messages(), 1)
	resp := consumer.messages()[0].(*ResponseMessage)
	assert.False(t, resp.HasID)
	require.True(t, resp.IsError())
	assert.Equal(t, ParseError, resp.Error.Code)
	assert.Equal(t, "jsonrpc2: bad json", resp.Error.Message)
}

// ResponseErrorException returned by a handler is used verbatim.
func TestHandlerResponseErrorExceptionIsUsedVerbatim(t *testing.T) {
	local := &fakeLocal{onRequest: func(ctx context.Context, method string, params []any) (any, error) {
		return nil, &ResponseErrorException{Err: NewResponseError(ContentModified, "stale", nil)}
	}}
	ep, consumer := newTestEndpoint(local, stringMethod("request", Request))

	ep.Consume(context.Background(), &RequestMessage{ID: NumberId(1), Method: "request"})
	require.Eventually(t, func() bool { return len(consumer.messages()) == 1 }, time.Second, time.Millisecond)
	resp := consumer.messages()[0].(*ResponseMessage)
	assert.Equal(t, ContentModified, resp.Error.Code)
	assert.Equal(t, "stale", resp.Error.Message)
}
