// Package sdk provides the client-side library for the Celerix Ledger.
// It supports both remote connections via TCP/TLS and local embedded mode.
package sdk

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

// Client is a remote client for the ledger daemon.
// It implements the Ledger interface.
type Client struct {
	addr   string
	useTLS bool
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex // Protects concurrent access to the connection
}

// Connect establishes a TLS-encrypted connection to a remote ledger daemon.
// If LEDGER_DISABLE_TLS is set to "true", it falls back to plain TCP.
func Connect(addr string) (*Client, error) {
	return Dial(addr, os.Getenv("LEDGER_DISABLE_TLS") != "true")
}

// Dial connects to addr, with or without TLS.
func Dial(addr string, useTLS bool) (*Client, error) {
	c := &Client{addr: addr, useTLS: useTLS}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	var conn net.Conn
	var err error

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	if c.useTLS {
		config := &tls.Config{
			InsecureSkipVerify: true, // The daemon uses a self-signed certificate
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	} else {
		conn, err = dialer.Dial("tcp", c.addr)
	}

	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// drop closes the connection; the next request dials again.
func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// sendAndReceive writes one command and returns the payload of its OK reply.
// A command whose write fails never reached the daemon and is retried. A lost
// reply is only retried for read-only commands: the daemon may already have
// applied a mutation.
func (c *Client) sendAndReceive(cmd string, readOnly bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error

	// Try up to 3 times with exponential backoff
	for i := 0; i < 3; i++ {
		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
				continue
			}
		}

		c.conn.SetDeadline(time.Now().Add(30 * time.Second))

		if _, err = fmt.Fprint(c.conn, cmd+"\n"); err != nil {
			slog.Warn("ledger sdk: write failed, reconnecting", "attempt", i+1, "err", err)
			c.drop()
			time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
			continue
		}

		resp, readErr := c.reader.ReadString('\n')
		if readErr == nil {
			resp = strings.TrimSpace(resp)
			if detail, ok := strings.CutPrefix(resp, "ERR "); ok {
				return "", DecodeError(detail)
			}
			return strings.TrimSpace(strings.TrimPrefix(resp, "OK")), nil
		}

		err = readErr
		c.drop()
		if !readOnly {
			return "", fmt.Errorf("no reply to %s, outcome unknown: %w", verb(cmd), err)
		}
		slog.Warn("ledger sdk: request failed, reconnecting", "attempt", i+1, "err", err)
		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return "", fmt.Errorf("failed after 3 attempts: %w", err)
}

func verb(cmd string) string {
	v, _, _ := strings.Cut(cmd, " ")
	return v
}

// Ping checks that the daemon answers.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.reconnect(); err != nil {
			return err
		}
	}
	c.conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprint(c.conn, "PING\n"); err != nil {
		return err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) != "PONG" {
		return fmt.Errorf("unexpected ping reply %q", line)
	}
	return nil
}

func (c *Client) Entities() ([]string, error) {
	resp, err := c.sendAndReceive("ENTITIES", true)
	if err != nil {
		return nil, err
	}
	var list []string
	err = json.Unmarshal([]byte(resp), &list)
	return list, err
}

func (c *Client) List(entity string) ([]*schema.Record, error) {
	resp, err := c.sendAndReceive(fmt.Sprintf("LIST %s", entity), true)
	if err != nil {
		return nil, err
	}
	var list []*schema.Record
	err = json.Unmarshal([]byte(resp), &list)
	return list, err
}

func (c *Client) Get(entity, id string) (*schema.Record, error) {
	resp, err := c.sendAndReceive(fmt.Sprintf("GET %s %s", entity, id), true)
	if err != nil {
		return nil, err
	}
	return decodeReply(resp)
}

func (c *Client) Create(entity string, data map[string]any) (*schema.Record, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	resp, err := c.sendAndReceive(fmt.Sprintf("CREATE %s %s", entity, payload), false)
	if err != nil {
		return nil, err
	}
	return decodeReply(resp)
}

func (c *Client) Update(entity, id string, data map[string]any) (*schema.Record, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	resp, err := c.sendAndReceive(fmt.Sprintf("UPDATE %s %s %s", entity, id, payload), false)
	if err != nil {
		return nil, err
	}
	return decodeReply(resp)
}

func (c *Client) Delete(entity, id string) error {
	_, err := c.sendAndReceive(fmt.Sprintf("DEL %s %s", entity, id), false)
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	return c.conn.Close()
}

func decodeReply(resp string) (*schema.Record, error) {
	rec := schema.NewRecord()
	if err := json.Unmarshal([]byte(resp), rec); err != nil {
		return nil, err
	}
	return rec, nil
}
