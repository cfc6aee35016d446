// Package vless provies vless header parsing for proxy.HeaderParser.
//
// 请求头部:
//
//	1 版本 | 16 uuid | 1 附加信息长度 M | M 附加信息 | 1 指令 | 2 端口 | 1 地址类型 | 地址
//
// 响应头部 (第一次写入 时 发送):
//
//	1 版本 | 1 附加信息长度 (恒为0)
//
// udp 时 每个数据包 前面有 2字节 大端 长度.
package vless

const Name = "vless"

// CMD types, for vless and vmess
const (
	_ byte = iota
	CmdTCP
	CmdUDP
	CmdMux
)
