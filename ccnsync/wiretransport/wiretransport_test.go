package wiretransport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ccnxgo/ccnsync/ccnsync"
	"github.com/ccnxgo/ccnsync/log"
)

func dialPair(t *testing.T) (*Transport, *Transport) {
	t.Helper()
	server := New(log.Root())
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	client := New(log.Root())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sync"
	if err := client.Connect(context.Background(), url); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// Give the server's upgrade handler a moment to register the peer.
	time.Sleep(50 * time.Millisecond)
	return client, server
}

func TestExpressInterestReachesFilter(t *testing.T) {
	client, server := dialPair(t)

	received := make(chan ccnsync.Name, 1)
	cancelFilter := server.SetInterestFilter(ccnsync.Name{[]byte("topo")}, func(name ccnsync.Name, exclude []ccnsync.Hash) {
		received <- name
	})
	defer cancelFilter()

	want := ccnsync.Name{[]byte("topo"), []byte("ra"), []byte("slice")}
	cancel := client.ExpressInterest(want, ccnsync.InterestTemplate{}, func(ccnsync.ResponseEvent) {})
	defer cancel()

	select {
	case got := <-received:
		if !got.Equal(want) {
			t.Fatalf("filter saw %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("interest never reached the registered filter")
	}
}

func TestPutReachesPendingInterestByPrefix(t *testing.T) {
	client, server := dialPair(t)

	server.SetInterestFilter(ccnsync.Name{[]byte("topo")}, func(name ccnsync.Name, exclude []ccnsync.Hash) {
		respName := append(append(ccnsync.Name{}, name...), []byte("nodehash"))
		server.Put(ccnsync.ContentObject{Name: respName, Body: []byte("node-bytes")})
	})

	reqName := ccnsync.Name{[]byte("topo"), []byte("nf"), []byte("slice")}
	got := make(chan ccnsync.ResponseEvent, 1)
	cancel := client.ExpressInterest(reqName, ccnsync.InterestTemplate{}, func(ev ccnsync.ResponseEvent) {
		if ev.Content != nil {
			got <- ev
		}
	})
	defer cancel()

	select {
	case ev := <-got:
		if string(ev.Content.Body) != "node-bytes" {
			t.Fatalf("content body = %q, want %q", ev.Content.Body, "node-bytes")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Put response never reached the pending interest")
	}
}

func TestCancelStopsFurtherDelivery(t *testing.T) {
	client, server := dialPair(t)

	reqName := ccnsync.Name{[]byte("topo"), []byte("nf"), []byte("slice")}
	calls := make(chan struct{}, 4)
	cancel := client.ExpressInterest(reqName, ccnsync.InterestTemplate{}, func(ccnsync.ResponseEvent) {
		calls <- struct{}{}
	})
	cancel()

	respName := append(append(ccnsync.Name{}, reqName...), []byte("h"))
	server.Put(ccnsync.ContentObject{Name: respName, Body: []byte("late")})

	select {
	case <-calls:
		t.Fatalf("cancelled interest should not receive further responses")
	case <-time.After(300 * time.Millisecond):
	}
}
