// Package rpc implements request/reply dispatch over named methods grouped
// by prefix, with a stable JSON-RPC-style error code taxonomy. Wire framing
// (HTTP, WebSocket) is out of scope — this package only resolves and
// invokes callables.
package rpc

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "rpc")

// Stable JSON-RPC-style error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ErrInvalidParams is the sentinel a Callable returns (via errors.Wrap) to
// have Dispatch report InvalidParams instead of the InternalError default.
var ErrInvalidParams = errors.New("invalid params")

// ErrServiceNotStarted is the sentinel a Callable returns when it would
// need to read a service that is not yet started. It always surfaces as
// InternalError, never a distinct code, since callers cannot act on which
// dependency was missing.
var ErrServiceNotStarted = errors.New("service not started")

// Callable is a single dispatchable method.
type Callable func(params interface{}) (interface{}, error)

// MethodTable groups a set of Callables under a common prefix, e.g. "pg_".
type MethodTable struct {
	Prefix  string
	Methods map[string]Callable
}

// Request is one JSON-RPC-style call.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// RPCError is the structured error half of a Response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is either a successful result or an RPCError, never both.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Dispatcher resolves "prefix+name" to a Callable and invokes it.
type Dispatcher struct {
	methods map[string]Callable
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{methods: make(map[string]Callable)}
}

// RegisterTable merges table's methods into the global "prefix+name"
// method map. A name collision with an already-registered method is an
// error: tables must not silently shadow one another.
func (d *Dispatcher) RegisterTable(table MethodTable) error {
	for name, fn := range table.Methods {
		full := table.Prefix + name
		if _, exists := d.methods[full]; exists {
			return errors.Errorf("method %q already registered", full)
		}
		d.methods[full] = fn
	}
	return nil
}

// Dispatch resolves req.Method and invokes it, always returning a
// well-formed Response — never an error, since a malformed request must
// itself be reported as a structured RPC error.
func (d *Dispatcher) Dispatch(req Request) Response {
	correlationID := uuid.New().String()
	reqLog := log.WithField("correlation_id", correlationID).WithField("method", req.Method)

	if req.JSONRPC != "2.0" {
		reqLog.Warn("rejecting request with unsupported jsonrpc version")
		return errorResponse(req.ID, CodeInvalidRequest, "unsupported jsonrpc version")
	}

	fn, ok := d.methods[req.Method]
	if !ok {
		reqLog.Warn("method not found")
		return errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}

	result, err := fn(req.Params)
	if err != nil {
		reqLog.WithError(err).Warn("method call failed")
		return errorResponse(req.ID, classify(err), err.Error())
	}

	reqLog.Debug("method call succeeded")
	return Response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func classify(err error) int {
	switch {
	case errors.Is(err, ErrInvalidParams):
		return CodeInvalidParams
	default:
		return CodeInternalError
	}
}

func errorResponse(id interface{}, code int, message string) Response {
	return Response{JSONRPC: "2.0", Error: &RPCError{Code: code, Message: message}, ID: id}
}
