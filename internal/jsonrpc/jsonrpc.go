// Package jsonrpc implements the JSON-RPC 2.0 "call" envelope used by the
// record server and the token exchange endpoint.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

const Version = "2.0"

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"data"`
}

func (e *Error) Error() string {
	if e.Data.Message != "" {
		return e.Data.Message
	}
	if e.Message != "" {
		return e.Message
	}
	return "RPC error"
}

// Client posts call envelopes to a single endpoint.
type Client struct {
	HTTP    *http.Client
	Headers http.Header
}

// Call posts params to url and decodes the result into out.
func (c *Client) Call(ctx context.Context, url string, params, out any) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	body, err := json.Marshal(Request{
		JSONRPC: Version,
		Method:  "call",
		Params:  rawParams,
		ID:      uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range c.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var envelope Response
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	rdec := json.NewDecoder(bytes.NewReader(envelope.Result))
	rdec.UseNumber()
	return rdec.Decode(out)
}

// DecodeParams reads a call envelope from r and decodes its params into v.
func DecodeParams(r *http.Request, v any) (Request, error) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return Request{}, err
	}
	if len(req.Params) == 0 {
		return req, errors.New("missing params")
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return req, err
	}
	return req, nil
}

// WriteResult answers a call envelope with a result payload.
func WriteResult(w http.ResponseWriter, id, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		WriteError(w, id, -32603, "encode result")
		return
	}
	write(w, Response{JSONRPC: Version, ID: id, Result: raw})
}

func WriteError(w http.ResponseWriter, id any, code int, message string) {
	e := &Error{Code: code, Message: message}
	e.Data.Message = message
	write(w, Response{JSONRPC: Version, ID: id, Error: e})
}

func write(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
