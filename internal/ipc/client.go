package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// DefaultTimeout bounds one client round trip.
const DefaultTimeout = 220 * time.Millisecond

// ErrNoInstance reports that nothing is listening on the control socket.
var ErrNoInstance = errors.New("no running volmixer instance")

// Send performs one request/response round trip on path with a deadline.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// RemoteError is an OK=false answer from a running instance.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Command + ": " + e.Message
}

// Client forwards commands to the instance listening on Path.
type Client struct {
	Path    string
	Timeout time.Duration
}

// Do sends command. It returns ErrNoInstance when no instance listens and a
// *RemoteError when the instance answers with OK=false.
func (c Client) Do(ctx context.Context, command string) (Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	resp, err := Send(ctx, c.Path, Request{Command: command}, timeout)
	if err != nil {
		if isSocketMissing(err) || isConnectionRefused(err) {
			return Response{}, ErrNoInstance
		}
		return Response{}, fmt.Errorf("forward command %q: %w", command, err)
	}
	if !resp.OK {
		return resp, &RemoteError{Command: command, Message: resp.Error}
	}
	return resp, nil
}

// Probe reports whether a responsive instance is listening on path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Client{Path: path, Timeout: timeout}.Do(ctx, CommandStatus)
	var remote *RemoteError
	switch {
	case err == nil, errors.As(err, &remote):
		return true, nil
	case errors.Is(err, ErrNoInstance):
		return false, nil
	default:
		return false, fmt.Errorf("probe socket: %w", err)
	}
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
