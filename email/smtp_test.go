package email

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeSMTPListener accepts a single connection and speaks just enough SMTP
// for a client to get through the greeting and EHLO exchange.
func fakeSMTPListener(t *testing.T) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprint(conn, "220 localhost ESMTP\r\n")
		br := bufio.NewReader(conn)
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				fmt.Fprint(conn, "250-localhost\r\n250 8BITMIME\r\n")
			case strings.HasPrefix(line, "QUIT"):
				fmt.Fprint(conn, "221 bye\r\n")
				return
			default:
				fmt.Fprint(conn, "250 ok\r\n")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// The connection timeout has to be long enough for a real handshake. A
// server that answers instantly must never be reported as a dial timeout.
func TestDialDoesNotTimeOutAgainstResponsiveServer(t *testing.T) {
	host, port := fakeSMTPListener(t)
	sender, err := NewSMTPSender(SMTPConfig{
		Host:    host,
		Port:    port,
		From:    "noreply@example.com",
		AppName: "Test",
	})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = sender.client.DialWithContext(ctx)
	if err == nil {
		sender.client.Close()
		return
	}
	// The fake server offers no STARTTLS, so a policy error here is fine.
	// What must not happen is the TCP connect itself timing out.
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		t.Fatalf("dial timed out against a responsive server: %v", err)
	}
}
