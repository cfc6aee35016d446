/*
Package vmess implements vmess AEAD header parsing for proxy.HeaderParser.

本作不支持alterid!=0 的情况. 即 仅支持 使用 aead 方式 进行认证. 即不支持 "MD5 认证信息"

标准:  https://www.v2fly.org/developer/protocols/vmess.html

aead:

https://github.com/v2fly/v2fly-github-io/issues/20

# Implementation Details

vmess 协议是一个很老旧的协议，有很多向前兼容的代码，很多地方都已经废弃了. 我们这里只支持最新的aead.

请求:

	16 authid | 18 加密的头部长度 | 8 nonce | 加密的指令部分 | 数据部分

指令部分:

	1 版本(1) | 16 数据加密IV | 16 数据加密Key | 1 响应认证V | 1 选项Opt | 4bit 余量P + 4bit 加密方式Sec | 1 保留 | 1 指令Cmd | 2 端口 | 1 地址类型 | 地址 | P字节随机值 | 4 FNV1a

数据部分 按 Opt 与 Sec 分块加密, 见 chunk.go.

vmess 的 头部 完全是 随机数据, 所以 在嗅探中 只能作为 兜底; 也因此 所有的 校验失败 都必须 明确地 返回错误.
*/
package vmess

import (
	"crypto/md5"

	"github.com/e1732a364fed/ws_relay/utils"
)

const Name = "vmess"

// Request Options
const (
	OptChunkStream         byte = 0x01
	OptChunkMasking        byte = 0x04
	OptGlobalPadding       byte = 0x08
	OptAuthenticatedLength byte = 0x10
)

// Security types
const (
	SecurityAES128CFB        byte = 1 //古老的非aead方式, 不支持
	SecurityAES128GCM        byte = 3
	SecurityChacha20Poly1305 byte = 4
	SecurityNone             byte = 5
	SecurityZero             byte = 6
)

// v2ray CMD types
const (
	CmdTCP byte = 1
	CmdUDP byte = 2
	CmdMux byte = 3 //mux.cool, 不支持
)

const cmdKeySalt = "c48619fe-8f02-49e0-b9e9-edf763e17e21"

// GetCmdKey 即 MD5(uuid + 固定盐)
func GetCmdKey(uuid [utils.UUID_BytesLen]byte) (r [16]byte) {
	h := md5.New()
	h.Write(uuid[:])
	h.Write([]byte(cmdKeySalt))
	copy(r[:], h.Sum(nil))
	return
}
