package vmess

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/e1732a364fed/ws_relay/utils"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"
)

const (
	lenSize = 2

	// 一个块 的 最大长度, 包括 aead overhead 和 padding
	chunkSize = 1 << 14

	maxPadding = 64
)

// shakeSizeParser 用 shake128(iv) 生成 长度掩码 与 填充长度. 读写两端 调用 next 的顺序 必须一致:
// 先 padding, 后 size.
type shakeSizeParser struct {
	shake  sha3.ShakeHash
	buffer [2]byte

	shouldPad bool
}

func newShakeSizeParser(iv []byte, shouldPad bool) *shakeSizeParser {
	shake := sha3.NewShake128()
	shake.Write(iv)
	return &shakeSizeParser{shake: shake, shouldPad: shouldPad}
}

func (s *shakeSizeParser) next() uint16 {
	s.shake.Read(s.buffer[:])
	return binary.BigEndian.Uint16(s.buffer[:])
}

func (s *shakeSizeParser) nextPaddingLen() int {
	if s == nil || !s.shouldPad {
		return 0
	}
	return int(s.next() % maxPadding)
}

func (s *shakeSizeParser) mask(size uint16) uint16 {
	if s == nil {
		return size
	}
	return s.next() ^ size
}

func chacha20Key(key []byte) []byte {
	k := make([]byte, 0, 32)
	h := md5.Sum(key)
	k = append(k, h[:]...)
	h = md5.Sum(h[:])
	return append(k, h[:]...)
}

// bodyAEAD 按 Sec 创建 数据部分 的 aead; None 返回 nil.
func bodyAEAD(security byte, key []byte) (cipher.AEAD, error) {
	switch security {
	case SecurityAES128GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case SecurityChacha20Poly1305:
		return chacha20poly1305.New(chacha20Key(key))
	case SecurityNone, SecurityZero:
		return nil, nil
	}
	return nil, utils.ErrInErr{ErrDesc: "vmess: unsupported security", ErrDetail: utils.ErrNotImplemented, Data: security}
}

// isRawBody 为 true 时 数据部分 不分块, 直接透传.
func isRawBody(opt, security byte) bool {
	if security == SecurityZero {
		return true
	}
	return security == SecurityNone && opt&OptChunkStream == 0
}

type chunkCodec struct {
	aead  cipher.AEAD
	iv    []byte
	count uint16
	sizer *shakeSizeParser

	nonce [12]byte
}

func newChunkCodec(opt, security byte, key, iv []byte) (*chunkCodec, error) {
	aead, err := bodyAEAD(security, key)
	if err != nil {
		return nil, err
	}
	c := &chunkCodec{aead: aead, iv: iv}
	if opt&OptChunkMasking != 0 {
		c.sizer = newShakeSizeParser(iv, opt&OptGlobalPadding != 0)
	}
	return c, nil
}

func (c *chunkCodec) overhead() int {
	if c.aead == nil {
		return 0
	}
	return c.aead.Overhead()
}

// nonce 为 2字节 计数 + iv[2:12]
func (c *chunkCodec) nextNonce() []byte {
	binary.BigEndian.PutUint16(c.nonce[:2], c.count)
	copy(c.nonce[2:], c.iv[2:12])
	c.count++
	return c.nonce[:]
}

// ChunkReader 读取 vmess 的 分块数据. 每次 Read 最多返回 一个块 的内容, 所以 udp 也可以直接用它.
type ChunkReader struct {
	r io.Reader
	c *chunkCodec

	leftover []byte
	eof      bool
}

func (cr *ChunkReader) Read(p []byte) (int, error) {
	if len(cr.leftover) > 0 {
		n := copy(p, cr.leftover)
		cr.leftover = cr.leftover[n:]
		return n, nil
	}
	if cr.eof {
		return 0, io.EOF
	}

	padding := cr.c.sizer.nextPaddingLen()

	var sizeBs [lenSize]byte
	if _, err := io.ReadFull(cr.r, sizeBs[:]); err != nil {
		return 0, err
	}
	size := int(cr.c.sizer.mask(binary.BigEndian.Uint16(sizeBs[:])))

	if size == cr.c.overhead()+padding {
		cr.eof = true
		return 0, io.EOF
	}
	if size < cr.c.overhead()+padding {
		return 0, utils.ErrInErr{ErrDesc: "vmess: invalid chunk size", ErrDetail: utils.ErrInvalidData, Data: size}
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(cr.r, buf); err != nil {
		return 0, err
	}
	data := buf[:size-padding]

	if cr.c.aead != nil {
		var err error
		data, err = cr.c.aead.Open(data[:0], cr.c.nextNonce(), data, nil)
		if err != nil {
			return 0, utils.ErrInErr{ErrDesc: "vmess: open chunk failed", ErrDetail: err}
		}
	}

	n := copy(p, data)
	if n < len(data) {
		cr.leftover = data[n:]
	}
	return n, nil
}

// ChunkWriter 把 每次 Write 的数据 切成 一个或多个块 写入, 且 整次 Write 只调用 一次 底层的 Write.
type ChunkWriter struct {
	w io.Writer
	c *chunkCodec
}

func (cw *ChunkWriter) maxPayload() int {
	return chunkSize - cw.c.overhead() - maxPadding
}

func (cw *ChunkWriter) appendChunk(buf []byte, data []byte) []byte {
	padding := cw.c.sizer.nextPaddingLen()
	size := len(data) + cw.c.overhead() + padding

	var sizeBs [lenSize]byte
	binary.BigEndian.PutUint16(sizeBs[:], cw.c.sizer.mask(uint16(size)))
	buf = append(buf, sizeBs[:]...)

	if cw.c.aead != nil {
		buf = cw.c.aead.Seal(buf, cw.c.nextNonce(), data, nil)
	} else {
		buf = append(buf, data...)
	}
	if padding > 0 {
		start := len(buf)
		buf = append(buf, make([]byte, padding)...)
		rand.Read(buf[start:])
	}
	return buf
}

func (cw *ChunkWriter) Write(p []byte) (int, error) {
	max := cw.maxPayload()
	buf := make([]byte, 0, len(p)+(len(p)/max+1)*(lenSize+cw.c.overhead()+maxPadding))

	for left := p; len(left) > 0; {
		n := len(left)
		if n > max {
			n = max
		}
		buf = cw.appendChunk(buf, left[:n])
		left = left[n:]
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if _, err := cw.w.Write(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteEnd 写入 空块, 表示 数据结束.
func (cw *ChunkWriter) WriteEnd() error {
	_, err := cw.w.Write(cw.appendChunk(nil, nil))
	return err
}

// newBodyReader 与 newBodyWriter 在 isRawBody 时 直接返回 底层.
func newBodyReader(r io.Reader, opt, security byte, key, iv []byte) (io.Reader, error) {
	if isRawBody(opt, security) {
		return r, nil
	}
	c, err := newChunkCodec(opt, security, key, iv)
	if err != nil {
		return nil, err
	}
	return &ChunkReader{r: r, c: c}, nil
}

func newBodyWriter(w io.Writer, opt, security byte, key, iv []byte) (io.Writer, error) {
	if isRawBody(opt, security) {
		return w, nil
	}
	c, err := newChunkCodec(opt, security, key, iv)
	if err != nil {
		return nil, err
	}
	return &ChunkWriter{w: w, c: c}, nil
}
