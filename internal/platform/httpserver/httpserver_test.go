package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	h := http.NotFoundHandler()

	srv := New(":0", h, 30*time.Second)
	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 30*time.Second, srv.ReadTimeout)
	assert.Equal(t, 35*time.Second, srv.WriteTimeout)

	unbounded := New(":0", h, 0)
	assert.Zero(t, unbounded.ReadTimeout)
	assert.Zero(t, unbounded.WriteTimeout)
}
