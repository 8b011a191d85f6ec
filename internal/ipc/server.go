package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// connTimeout bounds one command exchange; a stuck client must not pin a
// handler goroutine for the life of the session.
const connTimeout = 5 * time.Second

// Handler answers session commands.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers session commands on the listener until ctx ends or the
// listener closes. Each connection carries exactly one exchange; in-flight
// handlers are drained before Serve returns.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept session command: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			serveConn(ctx, c, handler)
		}(conn)
	}
}

func serveConn(ctx context.Context, c net.Conn, handler Handler) {
	_ = c.SetDeadline(time.Now().Add(connTimeout))

	line, err := bufio.NewReader(c).ReadBytes('\n')
	if err != nil {
		writeResponse(c, Response{OK: false, Error: fmt.Sprintf("read request: %v", err)})
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		writeResponse(c, Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	writeResponse(c, handler.Handle(ctx, req))
}

func writeResponse(c net.Conn, resp Response) {
	_ = json.NewEncoder(c).Encode(resp)
}
