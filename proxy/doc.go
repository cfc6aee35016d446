/*
Package proxy 定义了 协议嗅探 与 协议头部解析 所需的必备组件.

# Layer Definition

一个 ws_relay 的传输过程 由以下几层组成 (verysimple Interconnection Model, 简称vsi模型, 1到4层与OSI相同):

	9 ｜ tcp/udp data
	--------------------
	8 ｜ vless/shadowsocks/trojan/vmess
	--------------------
	7 ｜ ws
	--------------------
	6 ｜ http
	--------------------
	4 ｜ tcp
	--------------------

TLS 由前置的 cdn 或 反代 负责, 本作不处理第五层.

与 一般的代理 不同, 我们在一个 ws 路径上 同时接受 四种 第八层协议, 用 Sniff 根据 前62字节 猜测 是哪一种,
然后交给 对应子包 注册的 HeaderParser 解析头部.

# Sniff

Sniff 是一个 纯函数, 按 SniffTable 的顺序 依次匹配, 第一个匹配的 获胜; vmess 是兜底, 所以必须排最后.

# Parsers

子包 vless, shadowsocks, trojan, vmess 各自在 init 中 调用 RegisterParser 注册.
使用者需要 匿名导入 这些子包.
*/
package proxy
