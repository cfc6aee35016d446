package proxy

// Tag 表示 嗅探 得到的 协议种类, 一旦确定就不再改变.
type Tag byte

const (
	Unrecognized Tag = iota
	VLESS
	Shadowsocks
	Trojan
	VMess
)

func (t Tag) String() string {
	switch t {
	case VLESS:
		return "vless"
	case Shadowsocks:
		return "shadowsocks"
	case Trojan:
		return "trojan"
	case VMess:
		return "vmess"
	}
	return "unrecognized"
}

var AllTags = []Tag{VLESS, Shadowsocks, Trojan, VMess}
