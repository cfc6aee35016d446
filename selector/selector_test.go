package selector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestParseProxyIP(t *testing.T) {
	cases := []struct {
		token string
		want  string
		ok    bool
	}{
		{"1.2.3.4:443", "1.2.3.4:443", true},
		{"1.2.3.4-8443", "1.2.3.4:8443", true},
		{"proxy.example.com=443", "proxy.example.com:443", true},
		{"[2001:db8::1]-443", "[2001:db8::1]:443", true},
		{"example.com", "", false},
		{"example.com:0", "", false},
		{"example.com:70000", "", false},
		{"US", "", false},
	}
	for _, c := range cases {
		t.Run(c.token, func(t *testing.T) {
			a, err := ParseProxyIP(c.token)
			if !c.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.want, a.String())
		})
	}
}

func TestIsCountryList(t *testing.T) {
	assert.True(t, IsCountryList("us"))
	assert.True(t, IsCountryList("US,jp,DE"))
	assert.False(t, IsCountryList("USA"))
	assert.False(t, IsCountryList("US,"))
	assert.False(t, IsCountryList("1.2.3.4:443"))
}

func TestStores(t *testing.T) {
	bs, err := OpenBoltStore(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)

	for name, s := range map[string]Store{"bolt": bs, "mem": NewMemStore()} {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			_, _, ok, err := s.Get("nothing")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, s.Put("k", []byte("v"), time.Hour))
			v, expire, ok, err := s.Get("k")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "v", string(v))
			require.WithinDuration(t, time.Now().Add(time.Hour), expire, time.Minute)

			require.NoError(t, s.Put("short", []byte("v"), time.Millisecond))
			time.Sleep(10 * time.Millisecond)
			_, _, ok, err = s.Get("short")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func newListServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	hits := atomic.NewInt32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Inc()
		w.WriteHeader(status)
		w.Write([]byte(`{"US":["1.1.1.1:443","2.2.2.2-443"],"JP":["3.3.3.3:8443"]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func newTestSelector(t *testing.T, url string) (*Selector, *BoltStore) {
	st, err := OpenBoltStore(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(Conf{ProxyKVURL: url, RefreshInterval: time.Hour}, st), st
}

func TestSelectorResolve(t *testing.T) {
	srv, hits := newListServer(t, http.StatusOK)
	s, st := newTestSelector(t, srv.URL)
	ctx := context.Background()

	got, err := s.Resolve(ctx, "jp")
	require.NoError(t, err)
	require.Equal(t, "3.3.3.3:8443", got)

	got, err = s.Resolve(ctx, "US")
	require.NoError(t, err)
	require.Contains(t, []string{"1.1.1.1:443", "2.2.2.2-443"}, got)
	require.EqualValues(t, 1, hits.Load())

	raw, _, ok, err := st.Get(KVKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, string(raw), "3.3.3.3")

	//内存缓存 清空后 从 store 读取, 不再下载
	s.Flush()
	_, err = s.Resolve(ctx, "US,JP")
	require.NoError(t, err)
	require.EqualValues(t, 1, hits.Load())

	_, err = s.Resolve(ctx, "DE")
	require.ErrorIs(t, err, ErrUnknownRegion)

	_, err = s.Resolve(ctx, "XX")
	require.ErrorIs(t, err, ErrUnknownRegion)

	got, err = s.Resolve(ctx, "9.9.9.9:443")
	require.NoError(t, err)
	require.Equal(t, "9.9.9.9:443", got)
}

func TestSelectorCacheFollowsStoreExpiry(t *testing.T) {
	srv, hits := newListServer(t, http.StatusOK)
	s, st := newTestSelector(t, srv.URL)
	ctx := context.Background()

	//store 中的数据 快过期了, 内存里的 解码结果 也要 同时过期
	require.NoError(t, st.Put(KVKey, []byte(`{"DE":["4.4.4.4:443"]}`), 100*time.Millisecond))

	got, err := s.Resolve(ctx, "DE")
	require.NoError(t, err)
	require.Equal(t, "4.4.4.4:443", got)
	require.EqualValues(t, 0, hits.Load())

	time.Sleep(200 * time.Millisecond)

	_, err = s.Resolve(ctx, "DE")
	require.ErrorIs(t, err, ErrUnknownRegion)
	require.EqualValues(t, 1, hits.Load())

	got, err = s.Resolve(ctx, "JP")
	require.NoError(t, err)
	require.Equal(t, "3.3.3.3:8443", got)
}

func TestSelectorFetchFailed(t *testing.T) {
	srv, hits := newListServer(t, http.StatusNotFound)
	s, _ := newTestSelector(t, srv.URL)

	_, err := s.Resolve(context.Background(), "US")
	require.ErrorIs(t, err, ErrNoProxyList)
	require.EqualValues(t, 1, hits.Load())

	_, err = s.Resolve(context.Background(), "US")
	require.ErrorIs(t, err, ErrRateLimited)
	require.EqualValues(t, 1, hits.Load())
}

func TestSelectorNoURL(t *testing.T) {
	s, _ := newTestSelector(t, "")
	_, err := s.Resolve(context.Background(), "US")
	require.ErrorIs(t, err, ErrNoProxyList)
}
