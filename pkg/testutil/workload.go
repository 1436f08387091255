// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"
)

// TestServer is a local TCP echo server used as a connect target.
type TestServer struct {
	Port     int
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// StartTCPServer starts an echo server on 127.0.0.1:port (0 picks a port).
func StartTCPServer(port int) (*TestServer, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	server := &TestServer{
		Port:     listener.Addr().(*net.TCPAddr).Port,
		listener: listener,
		cancel:   cancel,
	}

	server.wg.Add(1)
	go func() {
		defer server.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			// Echo server - read and write back
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()

	return server, nil
}

// Stop shuts the server down.
func (ts *TestServer) Stop() {
	ts.cancel()
	ts.listener.Close()
	ts.wg.Wait()
}

// TryConnect attempts to establish a TCP connection and reports whether it
// succeeded.
func TryConnect(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 1*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// TryOpen opens path read-only and returns the error, if any.
func TryOpen(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// TryExec runs path with args and returns the start error, if any. Exit
// status is ignored; only whether the exec was permitted matters.
func TryExec(path string, args ...string) error {
	cmd := exec.Command(path, args...)
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// IsPermissionDenied reports whether err is EPERM or EACCES.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, os.ErrPermission)
}
