package recordstore

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ryadrakem/mms-V2/internal/jsonrpc"
)

// JSONRPC talks to a record server over its call_kw endpoint.
type JSONRPC struct {
	baseURL string
	client  *jsonrpc.Client
}

type JSONRPCOptions struct {
	BaseURL   string
	SessionID string
	Timeout   time.Duration
}

func NewJSONRPC(opts JSONRPCOptions) *JSONRPC {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	headers := http.Header{}
	if opts.SessionID != "" {
		headers.Set("Cookie", "session_id="+opts.SessionID)
	}
	return &JSONRPC{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client: &jsonrpc.Client{
			HTTP:    &http.Client{Timeout: timeout},
			Headers: headers,
		},
	}
}

type callKW struct {
	Model  string         `json:"model"`
	Method string         `json:"method"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

func (s *JSONRPC) call(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	url := s.baseURL + "/web/dataset/call_kw/" + model + "/" + method
	return s.client.Call(ctx, url, callKW{Model: model, Method: method, Args: args, Kwargs: kwargs}, out)
}

func (s *JSONRPC) Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []Record
	if err := s.call(ctx, model, "read", []any{ids, fields}, nil, &out); err != nil {
		return nil, remote("read", model, err)
	}
	return out, nil
}

func (s *JSONRPC) Write(ctx context.Context, model string, ids []int64, patch Record) error {
	if len(ids) == 0 {
		return nil
	}
	var ok bool
	if err := s.call(ctx, model, "write", []any{ids, patch}, nil, &ok); err != nil {
		return remote("write", model, err)
	}
	return nil
}

func (s *JSONRPC) Create(ctx context.Context, model string, payload Record) (int64, error) {
	var raw json.RawMessage
	if err := s.call(ctx, model, "create", []any{payload}, nil, &raw); err != nil {
		return 0, remote("create", model, err)
	}
	// Newer servers answer a batch create with a list of ids.
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err == nil && len(ids) > 0 {
		return ids[0], nil
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, remote("create", model, err)
	}
	return id, nil
}

func (s *JSONRPC) Delete(ctx context.Context, model string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.call(ctx, model, "unlink", []any{ids}, nil, nil); err != nil {
		return remote("delete", model, err)
	}
	return nil
}

func (s *JSONRPC) Search(ctx context.Context, model string, domain Domain) ([]int64, error) {
	wire, err := encodeDomain(domain)
	if err != nil {
		return nil, remote("search", model, err)
	}
	var ids []int64
	if err := s.call(ctx, model, "search", []any{wire}, nil, &ids); err != nil {
		return nil, remote("search", model, err)
	}
	return ids, nil
}

func (s *JSONRPC) SearchRead(ctx context.Context, model string, domain Domain, fields []string) ([]Record, error) {
	wire, err := encodeDomain(domain)
	if err != nil {
		return nil, remote("search_read", model, err)
	}
	var out []Record
	kwargs := map[string]any{"domain": wire, "fields": fields}
	if err := s.call(ctx, model, "search_read", []any{}, kwargs, &out); err != nil {
		return nil, remote("search_read", model, err)
	}
	return out, nil
}

func (s *JSONRPC) SearchCount(ctx context.Context, model string, domain Domain) (int, error) {
	wire, err := encodeDomain(domain)
	if err != nil {
		return 0, remote("search_count", model, err)
	}
	var n int
	if err := s.call(ctx, model, "search_count", []any{wire}, nil, &n); err != nil {
		return 0, remote("search_count", model, err)
	}
	return n, nil
}

func encodeDomain(domain Domain) ([][]any, error) {
	out := make([][]any, 0, len(domain))
	for _, c := range domain {
		if err := c.validate(); err != nil {
			return nil, err
		}
		out = append(out, []any{c.Field, c.Op, c.Value})
	}
	return out, nil
}
