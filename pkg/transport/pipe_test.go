package transport

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPipe(t *testing.T) (*Pipe, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	p := NewPipe(client, PipeConfig{PollInterval: 50 * time.Millisecond})
	t.Cleanup(func() {
		p.Close()
		server.Close()
	})
	return p, server
}

func TestPipeSend(t *testing.T) {
	p, server := testPipe(t)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	err := p.Send(map[string]any{"id": 1, "method": "server.version"})
	require.NoError(t, err)

	line := <-done
	require.NotEmpty(t, line)
	assert.Equal(t, byte('\n'), line[len(line)-1])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(line, &decoded))
	assert.Equal(t, "server.version", decoded["method"])
}

func TestPipeReceive(t *testing.T) {
	p, server := testPipe(t)

	go server.Write([]byte(`{"id":7,"result":"ok"}` + "\n"))

	line, err := p.Receive()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"result":"ok"}`, string(line))
}

func TestPipeReceiveTimeout(t *testing.T) {
	p, _ := testPipe(t)

	start := time.Now()
	_, err := p.Receive()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPipePartialLineSurvivesPoll(t *testing.T) {
	p, server := testPipe(t)

	go server.Write([]byte(`{"id":1,`))

	_, err := p.Receive()
	require.ErrorIs(t, err, ErrTimeout)

	go server.Write([]byte(`"result":null}` + "\n"))

	line, err := p.Receive()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"result":null}`, string(line))
}

func TestPipeMultipleLinesOneRead(t *testing.T) {
	p, server := testPipe(t)

	go server.Write([]byte("{\"id\":1}\n{\"id\":2}\n"))

	first, err := p.Receive()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(first))

	second, err := p.Receive()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2}`, string(second))
}

func TestPipeSkipsEmptyLines(t *testing.T) {
	p, server := testPipe(t)

	go server.Write([]byte("\n\r\n{\"id\":3}\n"))

	line, err := p.Receive()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3}`, string(line))
}

func TestPipePeerClose(t *testing.T) {
	p, server := testPipe(t)

	go server.Close()

	var err error
	for i := 0; i < 10; i++ {
		if _, err = p.Receive(); err != ErrTimeout {
			break
		}
	}
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPipeLocalClose(t *testing.T) {
	p, _ := testPipe(t)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.Receive()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Send(map[string]int{"id": 1}), ErrClosed)
}

func TestPipeIdleTime(t *testing.T) {
	p, server := testPipe(t)

	assert.Less(t, p.IdleTime(), time.Second)

	time.Sleep(60 * time.Millisecond)
	before := p.IdleTime()
	assert.GreaterOrEqual(t, before, 60*time.Millisecond)

	go server.Write([]byte("{\"id\":1}\n"))
	_, err := p.Receive()
	require.NoError(t, err)

	assert.Less(t, p.IdleTime(), before)
}

func TestPipeLineTooLong(t *testing.T) {
	client, server := net.Pipe()
	p := NewPipe(client, PipeConfig{
		PollInterval: 50 * time.Millisecond,
		MaxLineSize:  16,
	})
	t.Cleanup(func() {
		p.Close()
		server.Close()
	})

	go server.Write([]byte(`{"data":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"`))

	var err error
	for i := 0; i < 10; i++ {
		if _, err = p.Receive(); err != ErrTimeout {
			break
		}
	}
	assert.ErrorIs(t, err, ErrLineTooLong)
}
