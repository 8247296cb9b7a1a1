package serial

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/volmixer/internal/config"
)

type pipePort struct {
	*io.PipeReader
}

func newPipePort() (*pipePort, *io.PipeWriter) {
	r, w := io.Pipe()
	return &pipePort{PipeReader: r}, w
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestManagerOpenRetriesUntilSuccess(t *testing.T) {
	port, w := newPipePort()
	defer w.Close()

	calls := 0
	var attempts []int
	m := Manager{
		Opener: OpenerFunc(func(Settings) (Port, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("busy")
			}
			return port, nil
		}),
		Logger:        discard(),
		RetryInterval: time.Millisecond,
		OnAttempt:     func(attempt int, _ error) { attempts = append(attempts, attempt) },
	}

	link, err := m.Open(context.Background(), Settings{Port: "/dev/ttyTEST", MaxRetries: 5})
	require.NoError(t, err)
	require.NotNil(t, link)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2, 3}, attempts)
	require.Equal(t, "/dev/ttyTEST", link.Name())
	require.NoError(t, link.Close())
}

func TestManagerOpenExhaustsRetries(t *testing.T) {
	calls := 0
	m := Manager{
		Opener: OpenerFunc(func(Settings) (Port, error) {
			calls++
			return nil, errors.New("no such device")
		}),
		Logger:        discard(),
		RetryInterval: time.Millisecond,
	}

	link, err := m.Open(context.Background(), Settings{Port: "COM9", MaxRetries: 3})
	require.Nil(t, link)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.Contains(t, err.Error(), "no such device")
	require.Equal(t, 3, calls)
}

func TestManagerOpenZeroRetriesNeverOpens(t *testing.T) {
	calls := 0
	m := Manager{
		Opener: OpenerFunc(func(Settings) (Port, error) {
			calls++
			return nil, nil
		}),
	}

	_, err := m.Open(context.Background(), Settings{Port: "COM3", MaxRetries: 0})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.Zero(t, calls)
}

func TestManagerOpenCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := Manager{
		Opener: OpenerFunc(func(Settings) (Port, error) {
			cancel()
			return nil, errors.New("busy")
		}),
		Logger:        discard(),
		RetryInterval: time.Hour,
	}

	_, err := m.Open(ctx, Settings{Port: "COM3", MaxRetries: 10})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenUsesDefaultInterval(t *testing.T) {
	port, w := newPipePort()
	defer w.Close()

	link, err := Open(context.Background(), Settings{Port: "p", MaxRetries: 1}, OpenerFunc(func(Settings) (Port, error) {
		return port, nil
	}), nil)
	require.NoError(t, err)
	require.NoError(t, link.Close())
}

func TestLinkReadLineFraming(t *testing.T) {
	port, w := newPipePort()
	link := newLink(Settings{Port: "p"}, port, discard())

	go func() {
		_, _ = io.WriteString(w, "1:50\r\n\n2:")
		_, _ = io.WriteString(w, "75\n")
		_ = w.Close()
	}()

	line, err := link.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "1:50", line)

	line, err = link.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "", line)

	line, err = link.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "2:75", line)

	_, err = link.ReadLine()
	require.ErrorIs(t, err, io.EOF)
}

func TestLinkReadLineTreatsEOFAsTimeoutWhenConfigured(t *testing.T) {
	timeout := 10 * time.Millisecond
	reads := 0
	port := &scriptedPort{reads: []scriptedRead{
		{err: io.EOF, delay: timeout},
		{err: io.EOF, delay: timeout},
		{err: io.EOF, delay: timeout},
		{data: "3:10"},
		{err: io.EOF, delay: timeout},
		{data: "\n"},
	}, onRead: func() { reads++ }}
	link := newLink(Settings{Port: "p", ReadTimeout: timeout}, port, discard())

	line, err := link.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "3:10", line)
	require.Equal(t, 6, reads)
}

func TestLinkReadLineReportsHungUpPort(t *testing.T) {
	port := &hungUpPort{}
	link := newLink(Settings{Port: "/dev/ttyUSB0", ReadTimeout: 250 * time.Millisecond}, port, discard())

	done := make(chan error, 1)
	go func() {
		_, err := link.ReadLine()
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrDisconnected)
		require.Contains(t, err.Error(), "/dev/ttyUSB0")
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLine kept reading a hung-up port")
	}
	require.Equal(t, int64(hangupReads), port.reads.Load())
}

func TestLinkReadLineDataResetsHangupCount(t *testing.T) {
	port := &scriptedPort{reads: []scriptedRead{
		{err: io.EOF},
		{err: io.EOF},
		{data: "5:"},
		{err: io.EOF},
		{err: io.EOF},
		{data: "60\n"},
	}}
	link := newLink(Settings{Port: "p", ReadTimeout: time.Second}, port, discard())

	line, err := link.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "5:60", line)
}

func TestLinkCloseUnblocksRead(t *testing.T) {
	port, w := newPipePort()
	defer w.Close()
	link := newLink(Settings{Port: "p"}, port, discard())

	done := make(chan error, 1)
	go func() {
		_, err := link.ReadLine()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, link.Close())
	require.NoError(t, link.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLine did not return after Close")
	}
}

func TestLinkDiscardsOverlongLine(t *testing.T) {
	port, w := newPipePort()
	link := newLink(Settings{Port: "p"}, port, discard())

	go func() {
		junk := make([]byte, MaxLineLength+10)
		for i := range junk {
			junk[i] = 'x'
		}
		_, _ = w.Write(junk)
		_, _ = io.WriteString(w, "\n")
		_, _ = io.WriteString(w, "4:20\n")
		_ = w.Close()
	}()

	var lines []string
	for {
		line, err := link.ReadLine()
		if err != nil {
			break
		}
		lines = append(lines, line)
	}
	require.NotEmpty(t, lines)
	require.Equal(t, "4:20", lines[len(lines)-1])
	for _, line := range lines {
		require.LessOrEqual(t, len(line), MaxLineLength+256)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(config.SerialConfig{Port: "COM3", BaudRate: 9600, MaxRetries: 4, ReadTimeoutMS: 250})
	require.Equal(t, Settings{Port: "COM3", BaudRate: 9600, MaxRetries: 4, ReadTimeout: 250 * time.Millisecond}, s)
}

type scriptedRead struct {
	data  string
	err   error
	delay time.Duration
}

type scriptedPort struct {
	reads  []scriptedRead
	onRead func()
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if p.onRead != nil {
		p.onRead()
	}
	if len(p.reads) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	next := p.reads[0]
	p.reads = p.reads[1:]
	if next.delay > 0 {
		time.Sleep(next.delay)
	}
	return copy(b, next.data), next.err
}

func (p *scriptedPort) Close() error { return nil }

// hungUpPort behaves like a tty after the device is unplugged.
type hungUpPort struct {
	reads atomic.Int64
}

func (p *hungUpPort) Read([]byte) (int, error) {
	p.reads.Add(1)
	return 0, io.EOF
}

func (p *hungUpPort) Close() error { return nil }
