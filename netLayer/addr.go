package netLayer

import (
	"io"
	"net"
	"strconv"

	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/shadowsocks/go-shadowsocks2/socks"
)

// Addr represents a address that you want to access by proxy. Either Name or IP is used exclusively.
// Addr完整地表示了一个 传输层的目标，同时用 Network 字段 来记录网络层协议名
type Addr struct {
	Network string
	Name    string // domain name
	IP      net.IP
	Port    int
}

var ErrInvalidPort = utils.ErrInErr{ErrDesc: "port must be within 1-65535", ErrDetail: utils.ErrInvalidData}

// hostPortStr格式 必须为 host:port. 端口必须在 1-65535 之间.
func NewAddrByHostPort(hostPortStr string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(hostPortStr)
	if err != nil {
		return Addr{}, err
	}
	return NewAddrByHostAndPortStr(host, portStr)
}

func NewAddrByHostAndPortStr(host, portStr string) (Addr, error) {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Addr{}, utils.ErrInErr{ErrDesc: "invalid port", ErrDetail: err, Data: portStr}
	}
	return NewAddrByHostAndPort(host, port)
}

func NewAddrByHostAndPort(host string, port int) (Addr, error) {
	if port <= 0 || port > 65535 {
		return Addr{}, utils.ErrInErr{ErrDesc: ErrInvalidPort.ErrDesc, ErrDetail: utils.ErrInvalidData, Data: port}
	}
	if host == "" {
		return Addr{}, utils.ErrInErr{ErrDesc: "empty host", ErrDetail: utils.ErrInvalidData}
	}

	a := Addr{Port: port}
	if ip := net.ParseIP(host); ip != nil {
		a.IP = ip
	} else {
		a.Name = host
	}
	return a, nil
}

// NewAddrFromSocks 转换 shadowsocks/trojan 所用的 socks5 格式地址.
func NewAddrFromSocks(sa socks.Addr) (Addr, error) {
	if sa == nil {
		return Addr{}, utils.ErrNilParameter
	}
	host, portStr, err := net.SplitHostPort(sa.String())
	if err != nil {
		return Addr{}, err
	}
	return NewAddrByHostAndPortStr(host, portStr)
}

// ReadSocksAddr 从 r 读取 atyp(1,3,4) + 地址 + 2字节端口.
func ReadSocksAddr(r io.Reader) (Addr, error) {
	sa, err := socks.ReadAddr(r)
	if err != nil {
		return Addr{}, utils.ErrInErr{ErrDesc: "read socks addr failed", ErrDetail: err}
	}
	return NewAddrFromSocks(sa)
}

// 读取 v2ray 标准 (vless/vmess) 的 atyp(1,2,3) + 地址 部分, 不包括端口.
func ReadV2rayHost(r io.Reader) (host string, err error) {
	var one [1]byte
	if _, err = io.ReadFull(r, one[:]); err != nil {
		return
	}
	switch one[0] {
	case AtypIP4:
		ip := make(net.IP, net.IPv4len)
		if _, err = io.ReadFull(r, ip); err != nil {
			return
		}
		host = ip.String()
	case AtypIP6:
		ip := make(net.IP, net.IPv6len)
		if _, err = io.ReadFull(r, ip); err != nil {
			return
		}
		host = ip.String()
	case AtypDomain:
		if _, err = io.ReadFull(r, one[:]); err != nil {
			return
		}
		if one[0] == 0 {
			err = utils.ErrInErr{ErrDesc: "empty domain", ErrDetail: utils.ErrInvalidData}
			return
		}
		bs := make([]byte, one[0])
		if _, err = io.ReadFull(r, bs); err != nil {
			return
		}
		host = string(bs)
	default:
		err = utils.ErrInErr{ErrDesc: "unknown atyp", ErrDetail: utils.ErrInvalidData, Data: one[0]}
	}
	return
}

// Return host:port string.
// 若有Name而没有ip，则返回 a.Name:a.Port . 否则返回 a.IP: a.Port;
func (a *Addr) String() string {
	port := strconv.Itoa(a.Port)
	if a.IP == nil {
		return net.JoinHostPort(a.Name, port)
	}
	return net.JoinHostPort(a.IP.String(), port)
}

// Returned host string
func (a *Addr) HostStr() string {
	if a.IP == nil {
		return a.Name
	}
	return a.IP.String()
}

func (a *Addr) IsEmpty() bool {
	return a.Name == "" && len(a.IP) == 0 && a.Port == 0
}

// a.Network == "udp", "udp4", "udp6"
func (a *Addr) IsUDP() bool {
	return IsStrUDP_network(a.Network)
}

// SocksBytes 返回 socks5 格式的地址, 用于 trojan udp 等 需要回写地址的场合.
func (a *Addr) SocksBytes() []byte {
	return socks.ParseAddr(a.String())
}

func itoa(i int) string { return strconv.Itoa(i) }
