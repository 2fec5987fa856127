package controller

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestReadMessagesStopsWhenDone(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			var up websocket.Upgrader
			conn, err := up.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer func() { _ = conn.Close() }()
			for range incomingBufferSize + 4 {
				err := conn.WriteMessage(websocket.TextMessage, []byte("{}"))
				if err != nil {
					return
				}
			}
			<-release
		},
	))
	defer srv.Close()
	defer close(release)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if !assert.NoError(t, err) {
		return
	}
	defer func() { _ = conn.Close() }()

	incoming := make(chan []byte, incomingBufferSize)
	errs := make(chan error, 1)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		readMessages(conn, incoming, errs, done)
		close(exited)
	}()

	assert.Eventually(t, func() bool {
		return len(incoming) == incomingBufferSize
	}, time.Second, 5*time.Millisecond)
	close(done)

	select {
	case <-exited:
	case <-time.After(time.Second):
		assert.Fail(t, "reader still blocked after done")
		return
	}
	assert.Empty(t, errs)

	count := 0
	for range incoming {
		count++
	}
	assert.Equal(t, incomingBufferSize, count)
}
