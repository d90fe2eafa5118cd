package sdk_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/internal/server"
	"github.com/celerix-dev/celerix-ledger/internal/vault"
	"github.com/celerix-dev/celerix-ledger/pkg/apperr"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"github.com/celerix-dev/celerix-ledger/pkg/sdk"
)

func newLocal(t *testing.T) *sdk.Local {
	t.Helper()
	p, err := engine.NewPersistence(t.TempDir(), engine.CSV)
	require.NoError(t, err)
	r, err := engine.NewRegistry(p, schema.Defaults(), nil)
	require.NoError(t, err)
	return sdk.NewLocal(r)
}

func startServer(t *testing.T, l sdk.Ledger, withTLS bool) string {
	t.Helper()
	router := server.NewRouter(l, nil)
	if withTLS {
		cert, err := vault.GenerateSelfSignedCert()
		require.NoError(t, err)
		router.SetCertificate(cert)
	}
	go router.Listen("0")

	for i := 0; i < 20; i++ {
		time.Sleep(50 * time.Millisecond)
		if addr := router.Addr(); addr != nil {
			t.Cleanup(func() { router.Stop() })
			return fmt.Sprintf("127.0.0.1:%d", addr.(*net.TCPAddr).Port)
		}
	}
	t.Fatal("Server did not start in time")
	return ""
}

// exercise runs the same scenario against any Ledger implementation.
func exercise(t *testing.T, l sdk.Ledger) {
	names, err := l.Entities()
	require.NoError(t, err)
	assert.Contains(t, names, "suppliers")

	_, err = l.Create("suppliers", map[string]any{"name": "Acme", "email": "bad", "phone": "12345678901"})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Contains(t, err.Error(), "Invalid email format")

	rec, err := l.Create("suppliers", map[string]any{"name": "Acme", "email": "a@b.com", "phone": "12345678901"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID())

	got, err := l.Get("suppliers", rec.ID())
	require.NoError(t, err)
	v, _ := got.Get("name")
	assert.Equal(t, "Acme", v)

	updated, err := l.Update("suppliers", rec.ID(), map[string]any{"credit_limit": 5000.0})
	require.NoError(t, err)
	v, _ = updated.Get("credit_limit")
	assert.Equal(t, 5000.0, v)

	list, err := l.List("suppliers")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, l.Delete("suppliers", rec.ID()))
	err = l.Delete("suppliers", rec.ID())
	assert.True(t, apperr.IsNotFound(err))

	_, err = l.List("widgets")
	assert.True(t, apperr.IsUnknownResource(err))
}

func TestLocal(t *testing.T) {
	exercise(t, newLocal(t))
}

func TestClient(t *testing.T) {
	addr := startServer(t, newLocal(t), false)

	client, err := sdk.Dial(addr, false)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping())
	exercise(t, client)
}

func TestClient_TLS(t *testing.T) {
	addr := startServer(t, newLocal(t), true)

	t.Setenv("LEDGER_DISABLE_TLS", "")
	client, err := sdk.Connect(addr)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping())
	names, err := client.Entities()
	require.NoError(t, err)
	assert.Len(t, names, 9)
}

func TestNew_Remote(t *testing.T) {
	addr := startServer(t, newLocal(t), false)
	t.Setenv("LEDGER_STORE_ADDR", addr)
	t.Setenv("LEDGER_DISABLE_TLS", "true")

	l, err := sdk.New(t.TempDir(), engine.CSV, nil)
	require.NoError(t, err)
	c, ok := l.(*sdk.Client)
	require.True(t, ok)
	defer c.Close()

	_, err = l.Get("customers", "nobody")
	assert.True(t, apperr.IsNotFound(err))
}

func TestGetAs(t *testing.T) {
	l := newLocal(t)

	type Invoice struct {
		ID            string           `json:"id"`
		InvoiceNumber string           `json:"invoice_number"`
		TotalAmount   float64          `json:"total_amount"`
		Items         []map[string]any `json:"items"`
	}

	rec, err := l.Create("invoices", map[string]any{
		"invoice_number": "INV-7",
		"total_amount":   250.0,
		"items":          []any{map[string]any{"sku": "A"}, map[string]any{"sku": "B"}},
	})
	require.NoError(t, err)

	inv, err := sdk.GetAs[Invoice](l, "invoices", rec.ID())
	require.NoError(t, err)
	assert.Equal(t, rec.ID(), inv.ID)
	assert.Equal(t, "INV-7", inv.InvoiceNumber)
	assert.Equal(t, 250.0, inv.TotalAmount)
	assert.Len(t, inv.Items, 2)

	all, err := sdk.ListAs[Invoice](l, "invoices")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWireErrors(t *testing.T) {
	tests := []struct {
		err   error
		check func(error) bool
	}{
		{apperr.NewValidationError("suppliers", []string{"Invalid email format"}), apperr.IsValidation},
		{apperr.NewNotFoundError("suppliers", "x"), apperr.IsNotFound},
		{apperr.NewUnknownResourceError("widgets"), apperr.IsUnknownResource},
	}
	for _, tt := range tests {
		detail, expected := sdk.EncodeError(tt.err)
		require.True(t, expected)
		back := sdk.DecodeError(detail)
		assert.True(t, tt.check(back), "round trip of %v gave %v", tt.err, back)
		assert.Equal(t, tt.err.Error(), back.Error())
	}

	detail, expected := sdk.EncodeError(fmt.Errorf("disk on fire"))
	assert.False(t, expected)
	assert.Equal(t, "INTERNAL internal error", detail)
	assert.NotContains(t, sdk.DecodeError(detail).Error(), "disk")
}

func TestNew_EmbeddedFallback(t *testing.T) {
	t.Setenv("LEDGER_STORE_ADDR", "")

	l, err := sdk.New(t.TempDir(), engine.CSV, nil)
	require.NoError(t, err)
	_, ok := l.(*sdk.Local)
	assert.True(t, ok)
}

// startDroppingServer accepts connections and hands every request line to
// reply. An empty answer closes the connection without replying.
func startDroppingServer(t *testing.T, reply func(line string) string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				reader := bufio.NewReader(c)
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						return
					}
					answer := reply(strings.TrimSpace(line))
					if answer == "" {
						return
					}
					fmt.Fprintln(c, answer)
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestClient_LostReplyIsNotResentForMutations(t *testing.T) {
	var creates, deletes atomic.Int32
	addr := startDroppingServer(t, func(line string) string {
		switch {
		case strings.HasPrefix(line, "CREATE "):
			creates.Add(1)
		case strings.HasPrefix(line, "DEL "):
			deletes.Add(1)
		}
		return ""
	})

	client, err := sdk.Dial(addr, false)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Create("suppliers", map[string]any{"name": "Acme"})
	require.Error(t, err)
	assert.Equal(t, int32(1), creates.Load())

	err = client.Delete("suppliers", "some-id")
	require.Error(t, err)
	assert.False(t, apperr.IsNotFound(err))
	assert.Equal(t, int32(1), deletes.Load())
}

func TestClient_LostReplyIsRetriedForReads(t *testing.T) {
	var lists atomic.Int32
	addr := startDroppingServer(t, func(line string) string {
		if strings.HasPrefix(line, "LIST ") && lists.Add(1) == 1 {
			return ""
		}
		return "OK []"
	})

	client, err := sdk.Dial(addr, false)
	require.NoError(t, err)
	defer client.Close()

	list, err := client.List("suppliers")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, int32(2), lists.Load())
}

func TestClient_ErrorChainIsKept(t *testing.T) {
	addr := startDroppingServer(t, func(string) string { return "" })

	client, err := sdk.Dial(addr, false)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Get("suppliers", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
}
