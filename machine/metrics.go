package machine

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

/*
curl -u admin:pass http://127.0.0.1:9100/metrics
curl -u admin:pass http://127.0.0.1:9100/api/allstate
*/

const metricsUser = "admin"

type auth struct {
	expectedUsernameHash [32]byte
	expectedPasswordHash [32]byte
}

type metricsServer struct {
	admin_auth auth
	nopass     bool
}

func newMetricsServer(user, pass string) *metricsServer {
	s := new(metricsServer)
	if pass != "" {
		s.admin_auth.expectedUsernameHash = sha256.Sum256([]byte(user))
		s.admin_auth.expectedPasswordHash = sha256.Sum256([]byte(pass))
	} else {
		s.nopass = true
	}
	return s
}

func (ser *metricsServer) basicAuth(real http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ser.nopass {
			real.ServeHTTP(w, r)
			return
		}

		thisun, thispass, ok := r.BasicAuth()
		if ok {
			usernameHash := sha256.Sum256([]byte(thisun))
			passwordHash := sha256.Sum256([]byte(thispass))

			usernameMatch := subtle.ConstantTimeCompare(usernameHash[:], ser.admin_auth.expectedUsernameHash[:]) == 1
			passwordMatch := subtle.ConstantTimeCompare(passwordHash[:], ser.admin_auth.expectedPasswordHash[:]) == 1

			if usernameMatch && passwordMatch {
				real.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// 非阻塞; 只有 监听失败 会返回错误.
func (m *M) startMetricsServer(addr, pass string) (*http.Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "metrics server listen failed", ErrDetail: err, Data: addr}
	}

	ser := newMetricsServer(metricsUser, pass)
	mux := http.NewServeMux()
	mux.Handle("/metrics", ser.basicAuth(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	mux.Handle("/api/allstate", ser.basicAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.PrintAllState(w)
	})))

	srv := &http.Server{
		Handler:      mux,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	m.metricsAddr.Store(l.Addr().String())
	if ce := utils.CanLogInfo("Start metrics server"); ce != nil {
		ce.Write(zap.String("addr", l.Addr().String()), zap.Bool("auth", !ser.nopass))
	}

	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if ce := utils.CanLogWarn("metrics server stopped"); ce != nil {
				ce.Write(zap.Error(err))
			}
		}
	}()
	return srv, nil
}
