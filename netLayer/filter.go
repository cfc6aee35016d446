package netLayer

import (
	"net"
	"strings"

	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/oschwald/maxminddb-golang"
	"github.com/yl2chen/cidranger"
)

var ErrDenied = utils.ErrInErr{ErrDesc: "outbound target denied", ErrDetail: utils.ErrFailed}

// OutboundFilter 决定一个 出站ip 是否允许拨号.
// 可以用 cidr 列表, 也可以用 geoip 国家码 进行拒绝; 两者都为空时 全部放行.
//
// 60个以内时，直接用 netip.Prefix 列表进行遍历更快；其他情况 cidranger 更快; 我们不预知用户会给多少个, 所以统一用 cidranger.
type OutboundFilter struct {
	NetRanger cidranger.Ranger

	Geoip          *maxminddb.Reader
	DenyCountryMap map[string]bool
}

func NewOutboundFilter(denyCIDRs []string, geoipFile string, denyCountries []string) (*OutboundFilter, error) {
	f := &OutboundFilter{}

	if len(denyCIDRs) > 0 {
		f.NetRanger = cidranger.NewPCTrieRanger()
		for _, s := range denyCIDRs {
			if !strings.Contains(s, "/") {
				if strings.Contains(s, ":") {
					s += "/128"
				} else {
					s += "/32"
				}
			}
			_, n, err := net.ParseCIDR(s)
			if err != nil {
				return nil, utils.ErrInErr{ErrDesc: "invalid deny cidr", ErrDetail: err, Data: s}
			}
			if err = f.NetRanger.Insert(cidranger.NewBasicRangerEntry(*n)); err != nil {
				return nil, err
			}
		}
	}

	if len(denyCountries) > 0 {
		if geoipFile == "" {
			return nil, utils.ErrInErr{ErrDesc: "deny_countries given but no geoip file", ErrDetail: utils.ErrWrongParameter}
		}
		db, err := LoadMaxmindGeoipFile(geoipFile)
		if err != nil {
			return nil, err
		}
		f.Geoip = db
		f.DenyCountryMap = make(map[string]bool, len(denyCountries))
		for _, c := range denyCountries {
			f.DenyCountryMap[strings.ToUpper(c)] = true
		}
	}

	return f, nil
}

func (f *OutboundFilter) IsEmpty() bool {
	return f == nil || (f.NetRanger == nil && f.Geoip == nil)
}

// Check 在 ip 被拒绝时 返回 ErrDenied 包装的错误
func (f *OutboundFilter) Check(ip net.IP) error {
	if f.IsEmpty() || ip == nil {
		return nil
	}
	if f.NetRanger != nil {
		if ok, _ := f.NetRanger.Contains(ip); ok {
			return utils.ErrInErr{ErrDesc: ErrDenied.ErrDesc, ErrDetail: utils.ErrFailed, Data: ip.String()}
		}
	}
	if f.Geoip != nil {
		if iso := GetIP_ISO_byReader(f.Geoip, ip); iso != "" && f.DenyCountryMap[iso] {
			return utils.ErrInErr{ErrDesc: ErrDenied.ErrDesc, ErrDetail: utils.ErrFailed, Data: iso}
		}
	}
	return nil
}

func (f *OutboundFilter) Close() error {
	if f == nil || f.Geoip == nil {
		return nil
	}
	return f.Geoip.Close()
}
