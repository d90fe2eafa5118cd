// Package server exposes a ledger over a newline-delimited TCP protocol.
//
// Each request is one line; each reply is one line:
//
//	PING                          -> PONG
//	ENTITIES                      -> OK ["customers", ...]
//	LIST <entity>                 -> OK [{...}, ...]
//	GET <entity> <id>             -> OK {...}
//	CREATE <entity> <json>        -> OK {...}
//	UPDATE <entity> <id> <json>   -> OK {...}
//	DEL <entity> <id>             -> OK
//	QUIT                          closes the connection
//
// Failures are answered with "ERR <KIND> <detail>" (see sdk.EncodeError).
package server

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-ledger/pkg/sdk"
)

type Router struct {
	ledger sdk.Ledger
	cert   *tls.Certificate
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
}

func NewRouter(l sdk.Ledger, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{ledger: l, logger: logger}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the bound address once Listen is running.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen starts the TCP server and blocks until Stop is called.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		listener.Close()
		return nil
	}
	r.listener = listener
	r.mu.Unlock()
	defer listener.Close()

	semaphore := make(chan struct{}, 100) // Max 100 concurrent connections

	for {
		conn, err := listener.Accept()
		if err != nil {
			r.mu.Lock()
			stopped := r.stopped
			r.mu.Unlock()
			if stopped || errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}

		// Set aggressive timeouts for light traffic to prevent resource exhaustion
		conn.SetDeadline(time.Now().Add(5 * time.Minute))

		go func(c net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				c.Close()
			}()
			r.handleConnection(c)
		}(conn)
	}
}

// Stop closes the listener; Listen returns once it notices.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

func (r *Router) handleConnection(conn net.Conn) {
	reader := bufio.NewReader(conn)

	for {
		// Set a deadline for the next command
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		line, err := reader.ReadString('\n')
		if err != nil {
			return // Connection closed or timeout
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		command, rest, _ := strings.Cut(line, " ")
		command = strings.ToUpper(command)
		rest = strings.TrimSpace(rest)

		switch command {
		case "PING":
			fmt.Fprintln(conn, "PONG")

		case "QUIT":
			return

		case "ENTITIES":
			list, err := r.ledger.Entities()
			r.respond(conn, list, err)

		case "LIST":
			entity, _, _ := strings.Cut(rest, " ")
			if entity == "" {
				r.fail(conn, usage("LIST <entity>"))
				continue
			}
			list, err := r.ledger.List(entity)
			r.respond(conn, list, err)

		case "GET":
			entity, id, ok := twoArgs(rest)
			if !ok {
				r.fail(conn, usage("GET <entity> <id>"))
				continue
			}
			rec, err := r.ledger.Get(entity, id)
			r.respond(conn, rec, err)

		case "CREATE":
			entity, payload, _ := strings.Cut(rest, " ")
			data, err := decodePayload(payload)
			if entity == "" || err != nil {
				r.fail(conn, usage("CREATE <entity> <json object>"))
				continue
			}
			rec, err := r.ledger.Create(entity, data)
			r.respond(conn, rec, err)

		case "UPDATE":
			entity, tail, _ := strings.Cut(rest, " ")
			id, payload, _ := strings.Cut(strings.TrimSpace(tail), " ")
			data, err := decodePayload(payload)
			if entity == "" || id == "" || err != nil {
				r.fail(conn, usage("UPDATE <entity> <id> <json object>"))
				continue
			}
			rec, err := r.ledger.Update(entity, id, data)
			r.respond(conn, rec, err)

		case "DEL":
			entity, id, ok := twoArgs(rest)
			if !ok {
				r.fail(conn, usage("DEL <entity> <id>"))
				continue
			}
			if err := r.ledger.Delete(entity, id); err != nil {
				r.fail(conn, err)
			} else {
				fmt.Fprintln(conn, "OK")
			}

		default:
			r.fail(conn, fmt.Errorf("%w: unknown command %s", sdk.ErrBadRequest, command))
		}
	}
}

func usage(form string) error {
	return fmt.Errorf("%w: usage %s", sdk.ErrBadRequest, form)
}

func twoArgs(s string) (string, string, bool) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func decodePayload(payload string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("payload is not an object")
	}
	return data, nil
}

func (r *Router) respond(w io.Writer, v any, err error) {
	if err != nil {
		r.fail(w, err)
		return
	}
	res, err := json.Marshal(v)
	if err != nil {
		r.fail(w, err)
		return
	}
	fmt.Fprintln(w, "OK", string(res))
}

func (r *Router) fail(w io.Writer, err error) {
	detail, expected := sdk.EncodeError(err)
	if !expected {
		r.logger.Error("command failed", "err", err)
	}
	fmt.Fprintln(w, "ERR", detail)
}
