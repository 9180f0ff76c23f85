package transport

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"
)

// fakeSerialConn is an in-memory serialConn used to test SerialPort
// without opening a real OS port.
type fakeSerialConn struct {
	mu      sync.Mutex
	inbound [][]byte // chunks returned by successive Read calls
	written []byte
	closed  bool
	failOn  error
}

func (f *fakeSerialConn) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, b...)
	return len(b), nil
}

func (f *fakeSerialConn) Read(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		return 0, f.failOn
	}
	if len(f.inbound) == 0 {
		return 0, nil
	}
	chunk := f.inbound[0]
	f.inbound = f.inbound[1:]
	n := copy(b, chunk)
	return n, nil
}

func (f *fakeSerialConn) SetReadTimeout(time.Duration) error { return nil }
func (f *fakeSerialConn) ResetInputBuffer() error             { return nil }
func (f *fakeSerialConn) ResetOutputBuffer() error            { return nil }
func (f *fakeSerialConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestSerialPortAwaitResponseMatch(t *testing.T) {
	conn := &fakeSerialConn{inbound: [][]byte{[]byte("xx-Ready-xx")}}
	p := newSerialPort("COM-TEST", conn)

	got, err := p.AwaitResponse(context.Background(), 11, regexp.MustCompile(`Ready`), time.Second)
	if err != nil {
		t.Fatalf("AwaitResponse: %v", err)
	}
	if string(got) != "Ready" {
		t.Errorf("got %q, want Ready", got)
	}
}

func TestSerialPortAwaitResponseMismatch(t *testing.T) {
	conn := &fakeSerialConn{inbound: [][]byte{[]byte("xxxxxxxxxxx")}}
	p := newSerialPort("COM-TEST", conn)

	_, err := p.AwaitResponse(context.Background(), 11, regexp.MustCompile(`Ready`), time.Second)
	if _, ok := err.(*UnexpectedResponseError); !ok {
		t.Fatalf("err = %v, want *UnexpectedResponseError", err)
	}
}

func TestSerialPortAwaitResponseTimeout(t *testing.T) {
	conn := &fakeSerialConn{} // never produces bytes
	p := newSerialPort("COM-TEST", conn)

	_, err := p.AwaitResponse(context.Background(), 11, regexp.MustCompile(`Ready`), 50*time.Millisecond)
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("err = %v, want *TimeoutError", err)
	}
}

func TestSerialPortBuffersBytesAcrossCalls(t *testing.T) {
	conn := &fakeSerialConn{inbound: [][]byte{[]byte("Re"), []byte("ady-extra")}}
	p := newSerialPort("COM-TEST", conn)

	got, err := p.AwaitResponse(context.Background(), 11, regexp.MustCompile(`Ready`), time.Second)
	if err != nil {
		t.Fatalf("AwaitResponse: %v", err)
	}
	if string(got) != "Ready" {
		t.Errorf("got %q, want Ready", got)
	}
}

func TestSerialPortCloseIdempotent(t *testing.T) {
	conn := &fakeSerialConn{}
	p := newSerialPort("COM-TEST", conn)

	if err := p.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSerialPortWriteAfterCloseFails(t *testing.T) {
	conn := &fakeSerialConn{}
	p := newSerialPort("COM-TEST", conn)
	_ = p.Close()

	if err := p.Write([]byte("x")); err == nil {
		t.Fatal("expected error writing after close")
	}
}
