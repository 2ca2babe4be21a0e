package mail

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Ads2024/Demo-Assistant-API-AI/internal/errors"
)

// fakeSMTP accepts one session and records the commands and DATA body.
type fakeSMTP struct {
	ln       net.Listener
	commands chan []string
	data     chan string
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	f := &fakeSMTP{ln: ln, commands: make(chan []string, 1), data: make(chan string, 1)}
	go f.serve()
	return f
}

func (f *fakeSMTP) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeSMTP) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(s string) { conn.Write([]byte(s + "\r\n")) }

	var cmds []string
	var body strings.Builder
	reply("220 localhost ESMTP test")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimRight(line, "\r\n")
		cmds = append(cmds, strings.SplitN(line, " ", 2)[0])
		switch {
		case strings.HasPrefix(line, "EHLO"):
			reply("250-localhost")
			reply("250 AUTH PLAIN")
		case strings.HasPrefix(line, "AUTH"):
			reply("235 2.7.0 Authentication successful")
		case strings.HasPrefix(line, "DATA"):
			reply("354 go ahead")
			for {
				dl, err := r.ReadString('\n')
				if err != nil || dl == ".\r\n" {
					break
				}
				body.WriteString(dl)
			}
			reply("250 queued")
		case strings.HasPrefix(line, "QUIT"):
			reply("221 bye")
			f.commands <- cmds
			f.data <- body.String()
			return
		default:
			reply("250 ok")
		}
	}
	f.commands <- cmds
	f.data <- body.String()
}

func TestSend(t *testing.T) {
	srv := startFakeSMTP(t)
	s := NewSender("127.0.0.1", srv.port(), "bot@example.com", "secret")
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Send(ctx, "Ann <ann@example.com>", "Q3 report", "Line 1\nLine 2"))

	cmds := <-srv.commands
	assert.Equal(t, []string{"EHLO", "AUTH", "MAIL", "RCPT", "DATA", "QUIT"}, cmds)

	data := <-srv.data
	assert.Contains(t, data, "To: ann@example.com\r\n")
	assert.Contains(t, data, "Subject: Q3 report\r\n")
	assert.Contains(t, data, "Line 1\r\nLine 2\r\n")
}

func TestSend_InvalidRecipient(t *testing.T) {
	s := NewSender("127.0.0.1", 1, "bot@example.com", "secret")
	err := s.Send(context.Background(), "not an address", "", "body")
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.KindEmail))
}

func TestSend_InvalidSender(t *testing.T) {
	s := NewSender("127.0.0.1", 1, "", "secret")
	err := s.Send(context.Background(), "ann@example.com", "", "body")
	assert.True(t, cerrors.Is(err, cerrors.KindConfig))
}

func TestSend_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := NewSender("127.0.0.1", port, "bot@example.com", "secret")
	err = s.Send(context.Background(), "ann@example.com", "", "body")
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.KindEmail))
	assert.Contains(t, err.Error(), "127.0.0.1:"+strconv.Itoa(port))
}

func TestBuildMessage(t *testing.T) {
	date := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := string(buildMessage("a@x.com", "b@x.com", "Umsatz für Q3", "one\r\ntwo", date))

	assert.True(t, strings.HasPrefix(msg, "From: a@x.com\r\nTo: b@x.com\r\n"))
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.Contains(t, msg, "Date: Fri, 02 Jan 2026 03:04:05 +0000\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\none\r\ntwo\r\n"))
}

func TestMimeSubject(t *testing.T) {
	assert.Equal(t, "Weekly report", mimeSubject("Weekly\r\nreport"))
	assert.Equal(t, DefaultSubject, mimeSubject(DefaultSubject))
}
