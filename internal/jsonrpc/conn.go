package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// maxMessageBytes bounds a single newline-delimited message.
const maxMessageBytes = 10 << 20

// Conn exchanges newline-delimited JSON messages with one peer. Writes are
// serialized, so notifications and responses never interleave.
type Conn struct {
	scanner *bufio.Scanner

	writeMu sync.Mutex
	w       io.Writer
}

// NewConn wraps r and w. Each message is one line.
func NewConn(r io.Reader, w io.Writer) *Conn {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxMessageBytes)
	return &Conn{scanner: scanner, w: w}
}

// Read returns the next request. Blank lines are skipped. A malformed
// message yields a parse *Error and the connection stays usable; any other
// error (io.EOF included) ends the stream.
func (c *Conn) Read() (*Request, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			return nil, ErrParseError(err.Error())
		}
		return &req, nil
	}

	if err := c.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, errors.New("message exceeds 10 MiB")
		}
		return nil, err
	}
	return nil, io.EOF
}

// Reply answers the request with the given id. A nil id is sent as null.
func (c *Conn) Reply(id json.RawMessage, result any, rpcErr *Error) error {
	if id == nil {
		id = json.RawMessage("null")
	}
	resp := &Response{JSONRPC: Version, ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return c.write(resp)
}

// Notify implements [Notifier].
func (c *Conn) Notify(method string, params any) error {
	return c.write(&Notification{JSONRPC: Version, Method: method, Params: params})
}

func (c *Conn) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.w.Write(data)
	return err
}
