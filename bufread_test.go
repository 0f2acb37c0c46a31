package slava

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufRead_readLine(t *testing.T) {
	listener, err := Bind(0)
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	port, err := listener.Port()
	require.NoError(t, err)

	sched := NewScheduler()
	lines := make(chan string, 2)
	require.NoError(t, sched.Spawn(func(aw *Awaiter) {
		stream, err := listener.Accept(aw)
		if err != nil {
			return
		}
		defer stream.Close()
		reader := NewBufRead(stream)
		for i := 0; i < 2; i++ {
			line, err := reader.ReadLine(aw)
			if err != nil {
				return
			}
			lines <- line
		}
	}))

	done := make(chan struct{})
	go func() { sched.Run(1); close(done) }()
	t.Cleanup(func() {
		sched.Close()
		<-done
	})

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Write([]byte("first line\nsecond line\n"))
	require.NoError(t, err)

	assert.Equal(t, "first line\n", <-lines)
	assert.Equal(t, "second line\n", <-lines)
}
