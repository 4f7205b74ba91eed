package mqttlink

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDialRequiresBroker(t *testing.T) {
	if _, err := Dial(context.Background(), Options{}); err == nil {
		t.Fatalf("expected broker error")
	}
}

func TestDialGivesUpWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = Dial(ctx, Options{BrokerURL: "tcp://" + ln.Addr().String(), ClientID: "silent", Timeout: 10 * time.Second})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("dial ignored the context")
	}
}

func TestPreview(t *testing.T) {
	if got := preview([]byte("short")); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	got := preview([]byte(strings.Repeat("x", 600)))
	if !strings.HasSuffix(got, "... (600 bytes)") || len(got) > 600 {
		t.Fatalf("unexpected preview %q", got)
	}
}

func TestTLSFilesConfig(t *testing.T) {
	cfg, err := TLSFiles{}.Config()
	if err != nil || cfg != nil {
		t.Fatalf("expected no tls, got %v %v", cfg, err)
	}
	if _, err := (TLSFiles{Cert: "cert.pem"}).Config(); err == nil {
		t.Fatalf("expected key pair error")
	}
	if _, err := (TLSFiles{CA: filepath.Join(t.TempDir(), "missing.pem")}).Config(); err == nil {
		t.Fatalf("expected missing CA error")
	}

	bad := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(bad, []byte("not a cert"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := (TLSFiles{CA: bad}).Config(); err == nil {
		t.Fatalf("expected CA parse error")
	}
}
