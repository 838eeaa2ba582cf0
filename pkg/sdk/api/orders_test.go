package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/tradeweb/pkg/sdk/apierr"
	"github.com/betbot/tradeweb/pkg/session"
)

// 第一个调用方放弃等待时，共享同一次 DELETE 的其他调用方仍然拿到结果
func TestCancelActiveOrder_CallerCancelDoesNotAffectOthers(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		started <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"symbol_id":1,"ticker":"stk1","side":"B","quantity":5,"price":10,"type":"L","status":"cancelled"}`))
	}))
	defer srv.Close()
	defer func() {
		select {
		case <-release:
		default:
			close(release)
		}
	}()

	client := NewClient(srv.URL, session.NewMemoryStore("token"))
	defer client.Close()

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := client.CancelActiveOrder(ctxA, 7)
		errA <- err
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("服务端没有收到撤单请求")
	}

	type result struct {
		order *Order
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		order, err := client.CancelActiveOrder(context.Background(), 7)
		resB <- result{order, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		reqErr, ok := apierr.AsRequestError(err)
		require.True(t, ok)
		assert.True(t, reqErr.IsTransport())
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("取消 ctx 后调用方应立即返回")
	}

	close(release)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.Equal(t, StatusCancelled, res.order.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("等待撤单结果超时")
	}

	// 结果已缓存，不会再发 DELETE
	order, err := client.CancelActiveOrder(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, order.ID)
	assert.Equal(t, int32(1), hits.Load())
}
