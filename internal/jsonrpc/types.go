// Package jsonrpc serves run and model methods over newline-delimited
// JSON-RPC 2.0, on stdio or TCP.
package jsonrpc

import "encoding/json"

// Version is the only protocol version accepted.
const Version = "2.0"

// Request is an incoming call. A request without an "id" member is a
// notification and is never answered; an explicit null id is answered.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`

	hasID bool
}

// UnmarshalJSON records whether the id member was present.
func (r *Request) UnmarshalJSON(data []byte) error {
	type plain Request
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Request(p)
	// a literal null id decodes as "null", an absent one stays nil
	r.hasID = r.ID != nil
	return nil
}

// IsNotification reports whether the request must not be answered.
func (r *Request) IsNotification() bool {
	return !r.hasID
}

// Response answers a request. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Notification is a server-initiated message that expects no answer.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Protocol error codes, plus CodeRunNotFound from the server-defined range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeRunNotFound = -32000
)

var codeMessages = map[int]string{
	CodeParseError:     "Parse error",
	CodeInvalidRequest: "Invalid request",
	CodeMethodNotFound: "Method not found",
	CodeInvalidParams:  "Invalid params",
	CodeInternalError:  "Internal error",
	CodeRunNotFound:    "Run not found",
}

// NewError builds an Error with the standard message for code.
func NewError(code int, data any) *Error {
	msg, ok := codeMessages[code]
	if !ok {
		msg = "Server error"
	}
	return &Error{Code: code, Message: msg, Data: data}
}

func ErrParseError(data any) *Error     { return NewError(CodeParseError, data) }
func ErrInvalidRequest(data any) *Error { return NewError(CodeInvalidRequest, data) }
func ErrInvalidParams(data any) *Error  { return NewError(CodeInvalidParams, data) }
func ErrInternalError(data any) *Error  { return NewError(CodeInternalError, data) }

func ErrMethodNotFound(method string) *Error { return NewError(CodeMethodNotFound, method) }
func ErrRunNotFound(id string) *Error        { return NewError(CodeRunNotFound, id) }
