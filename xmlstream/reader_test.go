// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmlstream

import (
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderNext(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()
	r := NewReader(cli)

	go func() {
		srv.Write([]byte(`<stream from='example.net'>`))
		srv.Write([]byte(`<message><body>one</body></message>`))
		srv.Write([]byte(`<message><body>two</body></message>`))
		srv.Write([]byte(`</stream>`))
	}()

	msg, err := r.Next(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "one", msg.Child("body").Text)

	require.NotNil(t, r.Root())
	assert.Equal(t, "example.net", r.Root().AttrValue("from"))

	msg, err = r.Next(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "two", msg.Child("body").Text)

	_, err = r.Next(time.Second)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderTransportEOF(t *testing.T) {
	srv, cli := net.Pipe()
	defer cli.Close()
	r := NewReader(cli)

	go func() {
		srv.Write([]byte(`<stream>`))
		srv.Close()
	}()

	_, err := r.Next(time.Second)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderTimeout(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()
	r := NewReader(cli)

	_, err := r.Next(20 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, os.IsTimeout(err), "expected a timeout error, got %v", err)
}

func TestReaderParseError(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()
	r := NewReader(cli)

	go srv.Write([]byte(`<stream><not<well<formed`))

	_, err := r.Next(time.Second)
	require.Error(t, err)
	assert.False(t, os.IsTimeout(err))
}

func TestReaderSend(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()
	r := NewReader(cli)

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := srv.Read(buf)
		got <- buf[:n]
	}()

	require.NoError(t, r.Send([]byte(`<presence/>`)))
	assert.Equal(t, `<presence/>`, string(<-got))
}

func TestReaderQueueOverflow(t *testing.T) {
	// More stanzas in one burst than the queue can hold is a consumer
	// programming error, reported as such.
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()
	r := NewReader(cli)

	var b strings.Builder
	b.WriteString("<stream>")
	for i := 0; i < maxQueue+1; i++ {
		b.WriteString("<a/>")
	}
	require.NoError(t, r.s.Feed([]byte(b.String())))

	_, err := r.Next(time.Second)
	assert.ErrorIs(t, err, ErrQueueOverflow)
}
