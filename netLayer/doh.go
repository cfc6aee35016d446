package netLayer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

const (
	DefaultDoHURL     = "https://1.1.1.1/dns-query"
	DefaultDoHTimeout = time.Second * 5

	dohMimeType = "application/dns-message"
)

// Resolver 接收一个 原始的 dns 请求报文, 返回 原始的 dns 响应报文.
type Resolver interface {
	Resolve(ctx context.Context, query []byte) ([]byte, error)
}

// DoHResolver 用 RFC 8484 的 POST 方式 发送 dns 请求
type DoHResolver struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

func NewDoHResolver(url string, timeout time.Duration) *DoHResolver {
	if url == "" {
		url = DefaultDoHURL
	}
	return &DoHResolver{
		URL:     url,
		Timeout: timeout,
		Client:  cleanhttp.DefaultPooledClient(),
	}
}

func (r *DoHResolver) Resolve(ctx context.Context, query []byte) ([]byte, error) {
	var req dns.Msg
	if err := req.Unpack(query); err != nil {
		return nil, utils.ErrInErr{ErrDesc: "invalid dns query", ErrDetail: err}
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(query))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Add("Accept", dohMimeType)
	httpReq.Header.Add("Content-Type", dohMimeType)

	httpResp, err := r.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("got HTTP status %v", httpResp.StatusCode)
	}
	response, err := io.ReadAll(io.LimitReader(httpResp.Body, utils.MaxBufLen))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var msg dns.Msg
	if err = msg.Unpack(response); err != nil {
		return nil, fmt.Errorf("failed to unpack DNS response: %w", err)
	}
	if msg.Id != req.Id {
		return nil, fmt.Errorf("dns response id mismatch, want %d got %d", req.Id, msg.Id)
	}

	if ce := utils.CanLogDebug("doh resolved"); ce != nil {
		var name string
		if len(req.Question) > 0 {
			name = req.Question[0].Name
		}
		ce.Write(zap.String("question", name), zap.Int("answers", len(msg.Answer)), zap.Int("rcode", msg.Rcode))
	}
	return response, nil
}
