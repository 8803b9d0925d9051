// Package rpccodecs adapts gorilla/rpc to JSON-RPC 2.0 with Ethereum style
// method names ("mev_getStatus" is served by "Mev.GetStatus").
package rpccodecs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gorilla/rpc"
)

const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
	CodeUnauthorized   = -32001
)

// Error lets a service method choose the error code it answers with.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func NewError(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

type CustomRequestsCodec struct {
}

func NewCustomRequestsCodec() *CustomRequestsCodec {
	return &CustomRequestsCodec{}
}

func (c *CustomRequestsCodec) NewRequest(r *http.Request) rpc.CodecRequest {
	req := new(serverRequest)
	err := json.NewDecoder(r.Body).Decode(req)
	r.Body.Close()
	if err != nil {
		err = NewError(CodeParseError, "parse error: %s", err)
	} else if req.Method == "" {
		err = NewError(CodeInvalidRequest, "invalid request: missing method")
	}
	return &CodecRequest{request: req, err: err}
}

// CodecRequest decodes and encodes a single request.
type CodecRequest struct {
	request *serverRequest
	err     error
}

// Method maps namespace_method to Namespace.Method.
func (c *CodecRequest) Method() (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return serviceMethod(c.request.Method)
}

// ReadRequest fills args from params. A struct may be passed either by name
// or as the single element of a positional array.
func (c *CodecRequest) ReadRequest(args interface{}) error {
	if c.err != nil {
		return c.err
	}

	params := c.request.Params
	if len(params) == 0 || bytes.Equal(params, null) {
		return nil
	}

	target := reflect.ValueOf(args).Elem()
	if target.Kind() == reflect.Struct && bytes.HasPrefix(bytes.TrimSpace(params), []byte("[")) {
		positional := []interface{}{args}
		if err := json.Unmarshal(params, &positional); err != nil {
			c.err = NewError(CodeInvalidParams, "invalid params: %s", err)
		}
		return c.err
	}

	if err := json.Unmarshal(params, args); err != nil {
		c.err = NewError(CodeInvalidParams, "invalid params: %s", err)
	}
	return c.err
}

// WriteResponse encodes the reply, or methodErr when the call failed.
// Notifications, requests without an id, get no body.
func (c *CodecRequest) WriteResponse(w http.ResponseWriter, reply interface{}, methodErr error) error {
	if c.request.Id == nil {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}

	res := &serverResponse{Version: Version, Id: c.request.Id}
	switch {
	case c.err != nil:
		res.Error = asError(c.err)
	case methodErr != nil:
		res.Error = asError(methodErr)
	default:
		res.Result = reply
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(res)
}

func serviceMethod(method string) (string, error) {
	parts := strings.Split(method, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", NewError(CodeMethodNotFound, "invalid method: %s", method)
	}
	return capitalize(parts[0]) + "." + capitalize(parts[1]), nil
}

func asError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &Error{Code: CodeServerError, Message: err.Error()}
}

func capitalize(value string) string {
	r, n := utf8.DecodeRuneInString(value)
	return string(unicode.ToUpper(r)) + value[n:]
}

var null = json.RawMessage("null")

type serverRequest struct {
	Version string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params"`
	Id      *json.RawMessage `json:"id"`
}

type serverResponse struct {
	Version string           `json:"jsonrpc"`
	Result  interface{}      `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
	Id      *json.RawMessage `json:"id"`
}
