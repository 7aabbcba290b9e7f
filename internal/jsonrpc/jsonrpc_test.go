package jsonrpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type echoParams struct {
	Name string `json:"name"`
}

func TestCallRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "1" {
			t.Errorf("missing custom header")
		}
		var p echoParams
		req, err := DecodeParams(r, &p)
		if err != nil {
			WriteError(w, nil, -32700, err.Error())
			return
		}
		if req.JSONRPC != Version || req.Method != "call" {
			t.Errorf("unexpected envelope %+v", req)
		}
		WriteResult(w, req.ID, map[string]string{"hello": p.Name})
	}))
	defer srv.Close()

	c := &Client{Headers: http.Header{"X-Test": []string{"1"}}}
	var out map[string]string
	if err := c.Call(context.Background(), srv.URL, echoParams{Name: "ada"}, &out); err != nil {
		t.Fatalf("Call returned err: %v", err)
	}
	if out["hello"] != "ada" {
		t.Fatalf("expected echo, got %v", out)
	}
}

func TestCallSurfacesRemoteErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, nil, 200, "Access Denied")
	}))
	defer srv.Close()

	c := &Client{}
	err := c.Call(context.Background(), srv.URL, echoParams{}, nil)
	if err == nil || err.Error() != "Access Denied" {
		t.Fatalf("expected remote error message, got %v", err)
	}
}

func TestCallRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &Client{}
	if err := c.Call(context.Background(), srv.URL, echoParams{}, nil); err == nil {
		t.Fatalf("expected error for 502")
	}
}
