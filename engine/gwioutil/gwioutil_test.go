package gwioutil

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestIsTimeoutError(t *testing.T) {
	assert.T(t, IsTimeoutError(timeoutErr{}))
	assert.T(t, IsTimeoutError(errors.Wrap(timeoutErr{}, "read")))
	assert.T(t, !IsTimeoutError(io.EOF))
	assert.T(t, !IsTimeoutError(nil))
}

func TestReadDeadline(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	c1.SetReadDeadline(time.Now().Add(time.Millisecond * 10))
	_, err := c1.Read(make([]byte, 1))
	assert.T(t, IsTimeoutError(err))
}
