package selector

import (
	"regexp"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/utils"
)

var (
	// host 与 port 之间 可以用 ':' '=' '-' 分隔, 因为 路径中 不方便写 ':'
	ProxyIPPattern = regexp.MustCompile(`^(.+?)[:=-](\d{1,5})$`)

	// 逗号分隔的 两字母 国家代码
	ProxyKVPattern = regexp.MustCompile(`^([a-zA-Z]{2})(,[a-zA-Z]{2})*$`)
)

func IsCountryList(token string) bool {
	return ProxyKVPattern.MatchString(token)
}

// ParseProxyIP 解析 host[:=-]port 形式的 路由token.
func ParseProxyIP(token string) (netLayer.Addr, error) {
	m := ProxyIPPattern.FindStringSubmatch(token)
	if m == nil {
		return netLayer.Addr{}, utils.ErrInErr{ErrDesc: "token is not host:port", ErrDetail: utils.ErrWrongParameter, Data: token}
	}
	host := strings.Trim(m[1], "[]")
	if !govalidator.IsHost(host) {
		return netLayer.Addr{}, utils.ErrInErr{ErrDesc: "invalid host in token", ErrDetail: utils.ErrWrongParameter, Data: host}
	}
	return netLayer.NewAddrByHostAndPortStr(host, m[2])
}
