// Package selector 把 路由token 变成 一个 host:port 形式的 代理地址.
//
// token 若是 国家代码列表 (如 "US,JP"), 则从 代理列表 中 随机选一个国家, 再随机选一个地址.
// 代理列表 是 json 格式的 map[国家代码][]地址, 从 ProxyKVURL 下载, 存到 Store 中, 有效期 TTL.
package selector

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/biter777/countries"
	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	KVKey = "proxy_kv"

	DefaultTTL             = 6 * time.Hour
	DefaultRefreshInterval = time.Minute

	maxListSize = 4 << 20
)

var (
	ErrNoProxyList   = utils.ErrInErr{ErrDesc: "proxy list unavailable", ErrDetail: utils.ErrFailed}
	ErrUnknownRegion = utils.ErrInErr{ErrDesc: "no proxy for region", ErrDetail: utils.ErrWrongParameter}
	ErrRateLimited   = utils.ErrInErr{ErrDesc: "proxy list refresh rate limited", ErrDetail: utils.ErrFailed}
)

type Conf struct {
	ProxyKVURL string

	TTL time.Duration

	// 两次 远程下载 之间的 最小间隔
	RefreshInterval time.Duration

	RetryMax int
}

type ProxyList map[string][]string

type Selector struct {
	conf  Conf
	store Store

	client  *retryablehttp.Client
	limiter *rate.Limiter

	// 解码后的 ProxyList, 与 store 中的 同时过期
	decoded *cache.Cache

	fetchMu sync.Mutex
}

func New(conf Conf, store Store) *Selector {
	if conf.TTL <= 0 {
		conf.TTL = DefaultTTL
	}
	if conf.RefreshInterval <= 0 {
		conf.RefreshInterval = DefaultRefreshInterval
	}

	return &Selector{
		conf:  conf,
		store: store,
		client: &retryablehttp.Client{
			HTTPClient:   cleanhttp.DefaultPooledClient(),
			RetryWaitMin: 500 * time.Millisecond,
			RetryWaitMax: 5 * time.Second,
			RetryMax:     conf.RetryMax,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			Backoff:      retryablehttp.DefaultBackoff,
		},
		limiter: rate.NewLimiter(rate.Every(conf.RefreshInterval), 1),
		decoded: cache.New(conf.TTL, conf.TTL),
	}
}

// Resolve 返回 token 对应的 host:port 字符串. 不是 国家代码列表 的 token 原样返回.
func (s *Selector) Resolve(ctx context.Context, token string) (string, error) {
	if !IsCountryList(token) {
		return token, nil
	}

	var codes []string
	for _, c := range strings.Split(strings.ToUpper(token), ",") {
		if countries.ByName(c) == countries.Unknown {
			if ce := utils.CanLogDebug("ignore unknown country code"); ce != nil {
				ce.Write(zap.String("code", c))
			}
			continue
		}
		codes = append(codes, c)
	}
	if len(codes) == 0 {
		return "", utils.ErrInErr{ErrDesc: ErrUnknownRegion.ErrDesc, ErrDetail: ErrUnknownRegion, Data: token}
	}

	list, err := s.proxyList(ctx)
	if err != nil {
		return "", err
	}

	code := codes[randIndex(len(codes))]
	addrs := list[code]
	if len(addrs) == 0 {
		return "", utils.ErrInErr{ErrDesc: ErrUnknownRegion.ErrDesc, ErrDetail: ErrUnknownRegion, Data: code}
	}
	return addrs[randIndex(len(addrs))], nil
}

func randIndex(n int) int {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(i.Int64())
}

func (s *Selector) proxyList(ctx context.Context) (ProxyList, error) {
	if v, ok := s.decoded.Get(KVKey); ok {
		return v.(ProxyList), nil
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	if v, ok := s.decoded.Get(KVKey); ok {
		return v.(ProxyList), nil
	}

	raw, expire, ok, err := s.store.Get(KVKey)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "read proxy list from store failed", ErrDetail: err}
	}
	if !ok {
		if ce := utils.CanLogInfo("getting proxy kv from remote"); ce != nil {
			ce.Write(zap.String("url", s.conf.ProxyKVURL))
		}
		raw, err = s.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err = s.store.Put(KVKey, raw, s.conf.TTL); err != nil {
			return nil, utils.ErrInErr{ErrDesc: "save proxy list failed", ErrDetail: err}
		}
		expire = time.Now().Add(s.conf.TTL)
	}

	var list ProxyList
	if err = json.Unmarshal(raw, &list); err != nil {
		return nil, utils.ErrInErr{ErrDesc: "decode proxy list failed", ErrDetail: err}
	}

	//解码后的列表 不能比 store 中的 原始数据 活得更久
	ttl := s.conf.TTL
	if !expire.IsZero() {
		ttl = time.Until(expire)
	}
	if ttl > 0 {
		s.decoded.Set(KVKey, list, ttl)
	}
	return list, nil
}

func (s *Selector) fetch(ctx context.Context) ([]byte, error) {
	if s.conf.ProxyKVURL == "" {
		return nil, ErrNoProxyList
	}
	if !s.limiter.Allow() {
		return nil, ErrRateLimited
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.conf.ProxyKVURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: ErrNoProxyList.ErrDesc, ErrDetail: ErrNoProxyList, Data: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, utils.ErrInErr{ErrDesc: fmt.Sprintf("error getting proxy kv: %d", resp.StatusCode), ErrDetail: ErrNoProxyList}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxListSize))
}

// Flush 丢弃 内存中 解码后的 列表, 下次 Resolve 会 重新读取 Store.
func (s *Selector) Flush() {
	s.decoded.Flush()
}
