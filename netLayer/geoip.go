package netLayer

import (
	"net"
	"os"

	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/oschwald/maxminddb-golang"
	"go.uber.org/zap"
)

// 将一个外部的 maxmind mmdb 文件加载为 geoip 数据库
func LoadMaxmindGeoipFile(fn string) (*maxminddb.Reader, error) {
	bs, e := os.ReadFile(fn)
	if e != nil {
		return nil, utils.ErrInErr{ErrDesc: "LoadMaxmindGeoipFile read failed", ErrDetail: e, Data: fn}
	}
	db, e := maxminddb.FromBytes(bs)
	if e != nil {
		return nil, utils.ErrInErr{ErrDesc: "LoadMaxmindGeoipFile parse failed", ErrDetail: e, Data: fn}
	}
	return db, nil
}

// 返回 iso 3166 字符串， 见 https://dev.maxmind.com/geoip/legacy/codes?lang=en ，大写，两字节
func GetIP_ISO_byReader(db *maxminddb.Reader, ip net.IP) string {
	var record struct {
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}

	err := db.Lookup(ip, &record)
	if err != nil {
		if ce := utils.CanLogErr("GetIP_ISO_byReader db.Lookup err"); ce != nil {
			ce.Write(zap.Error(err))
		}
		return ""
	}
	return record.Country.ISOCode
}
