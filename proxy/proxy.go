package proxy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/utils"
)

// Result 是 头部解析 的结果.
type Result struct {
	Target netLayer.Addr
	Kind   netLayer.TransportKind

	// 头部 所占的 字节数, 只用于日志
	Consumed int

	// 读写 承载数据 (第九层). 协议的 响应头 与 udp分包 等 由它负责.
	Payload io.ReadWriter
}

// HeaderParser 从 rw 读取 并剥离 协议头部. 只读取 头部所需的字节, 多余数据 留在 rw 中.
type HeaderParser interface {
	Name() string
	Parse(rw io.ReadWriter) (Result, error)
}

// ParserConf 是 所有协议 共用的 身份配置. 四种协议 都从同一个 uuid 派生.
type ParserConf struct {
	UUID    [utils.UUID_BytesLen]byte
	UUIDStr string

	// 为 false 时 身份不匹配 只记录日志, 与 一些 cdn worker 实现的 宽松行为 一致.
	EnforceUser bool
}

func NewParserConf(uuidStr string, enforce bool) (*ParserConf, error) {
	u, err := utils.StrToUUID(uuidStr)
	if err != nil {
		return nil, err
	}
	return &ParserConf{UUID: u, UUIDStr: utils.UUIDToStr(u[:]), EnforceUser: enforce}, nil
}

// trojan 的 密码 就是 uuid 字符串
func (pc *ParserConf) TrojanPassword() string {
	return pc.UUIDStr
}

func SHA224_hexStringBytes(password string) []byte {
	hash := sha256.New224()
	hash.Write([]byte(password))
	val := hash.Sum(nil)
	out := make([]byte, hex.EncodedLen(len(val)))
	hex.Encode(out, val)
	return out
}

type ParserCreator func(conf *ParserConf) (HeaderParser, error)

var (
	creatorMu  sync.RWMutex
	creatorMap = make(map[Tag]ParserCreator)
)

// 规定，每个 实现 HeaderParser 的子包 必须在 init 中 使用本函数进行注册
func RegisterParser(tag Tag, c ParserCreator) {
	creatorMu.Lock()
	creatorMap[tag] = c
	creatorMu.Unlock()
}

// Parsers 为 每个已注册的 Tag 持有一个 HeaderParser
type Parsers map[Tag]HeaderParser

func NewParsers(conf *ParserConf) (Parsers, error) {
	creatorMu.RLock()
	defer creatorMu.RUnlock()

	ps := make(Parsers, len(creatorMap))
	for tag, c := range creatorMap {
		p, err := c(conf)
		if err != nil {
			return nil, utils.ErrInErr{ErrDesc: "create parser failed", ErrDetail: err, Data: tag.String()}
		}
		ps[tag] = p
	}
	return ps, nil
}

type countingReader struct {
	io.Reader
	n int
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.Reader.Read(p)
	cr.n += n
	return n, err
}

// ParseHeader 用 tag 对应的 parser 解析 rw, 并填写 Result.Consumed.
func (ps Parsers) ParseHeader(tag Tag, rw io.ReadWriter) (Result, error) {
	p := ps[tag]
	if p == nil {
		return Result{}, fmt.Errorf("%w: no parser for %s", ErrProtocolNotRecognized, tag)
	}
	cr := &countingReader{Reader: rw}
	r, err := p.Parse(utils.RW{Reader: cr, Writer: rw})
	if err != nil {
		return r, utils.ErrInErr{ErrDesc: p.Name() + " header parse failed", ErrDetail: err}
	}
	r.Consumed = cr.n
	return r, nil
}
