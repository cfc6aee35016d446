/*
Package httpLayer 提供 http层 的路由: 决定 一个请求 是 重定向到 主页, 还是 升级为 websocket 隧道.
*/
package httpLayer

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/e1732a364fed/ws_relay/advLayer/ws"
	"github.com/e1732a364fed/ws_relay/selector"
	"github.com/e1732a364fed/ws_relay/tunnel"
	"github.com/e1732a364fed/ws_relay/utils"
	"go.uber.org/zap"
)

// TokenResolver 把 路由token 变成 host:port 形式; *selector.Selector 实现了它.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// Router 处理 所有 http 请求:
//
//	/                   重定向到 MainPageURL
//	/free/cc/{proxyip}  隧道
//	/free/{proxyip}     隧道
//	/{proxyip}          隧道
//
// 其它路径, 以及 不是 websocket 升级的请求, 都重定向到 MainPageURL.
type Router struct {
	MainPageURL string

	Resolver TokenResolver
	WS       *ws.Server
	Handler  *tunnel.Handler

	// 会话 在 ctx 结束时 被取消
	BaseCtx context.Context

	mux *http.ServeMux
	wg  sync.WaitGroup
}

func NewRouter(mainPageURL string, resolver TokenResolver, wsServer *ws.Server, h *tunnel.Handler) *Router {
	rt := &Router{
		MainPageURL: mainPageURL,
		Resolver:    resolver,
		WS:          wsServer,
		Handler:     h,
		BaseCtx:     context.Background(),
		mux:         http.NewServeMux(),
	}
	rt.mux.HandleFunc("/", rt.redirect)
	rt.mux.HandleFunc("/free/cc/{proxyip}", rt.tunnel)
	rt.mux.HandleFunc("/free/{proxyip}", rt.tunnel)
	rt.mux.HandleFunc("/{proxyip}", rt.tunnel)
	return rt
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

func (rt *Router) redirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, rt.MainPageURL, http.StatusFound)
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (rt *Router) tunnel(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("proxyip")

	if rt.Resolver != nil {
		resolved, err := rt.Resolver.Resolve(r.Context(), token)
		if err != nil {
			if ce := utils.CanLogWarn("resolve route token failed"); ce != nil {
				ce.Write(zap.String("token", token), zap.Error(err))
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		token = resolved
	}

	if !isWebsocketUpgrade(r) {
		rt.redirect(w, r)
		return
	}
	proxyAddr, err := selector.ParseProxyIP(token)
	if err != nil {
		if ce := utils.CanLogDebug("route token is not host:port, redirect"); ce != nil {
			ce.Write(zap.String("token", token), zap.Error(err))
		}
		rt.redirect(w, r)
		return
	}

	conn, err := rt.WS.UpgradeHTTP(w, r)
	if err != nil {
		if ce := utils.CanLogDebug("ws upgrade failed"); ce != nil {
			ce.Write(zap.String("from", r.RemoteAddr), zap.Error(err))
		}
		return
	}

	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		rt.Handler.Serve(rt.BaseCtx, conn, proxyAddr)
	}()
}

// Wait 等待 所有 已创建的 会话 结束
func (rt *Router) Wait() {
	rt.wg.Wait()
}
