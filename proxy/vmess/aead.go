package vmess

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/e1732a364fed/ws_relay/utils"
)

const (
	authid_len              = 16
	authID_timeMaxSecondGap = 120

	headerLenAEADLen = 2 + 16
	connNonceLen     = 8
)

var ErrAuthID_timeBeyondGap = utils.ErrInErr{ErrDesc: fmt.Sprintf("vmess: time gap more than %d second", authID_timeMaxSecondGap), ErrDetail: utils.ErrInvalidData}

var ErrAuthID_crc = utils.ErrInErr{ErrDesc: "vmess: authid crc not match", ErrDetail: utils.ErrInvalidData}

func newAuthIDBlock(cmdKey []byte) cipher.Block {
	block, _ := aes.NewCipher(kdf16(cmdKey, kdfSaltConstAuthIDEncryptionKey))
	return block
}

// https://github.com/v2fly/v2fly-github-io/issues/20
//
// 明文为 8字节时间戳 + 4字节随机数 + 4字节 crc32, 用 aes 单块加密.
func createAuthID(cmdKey []byte, t int64) (result [authid_len]byte) {
	binary.BigEndian.PutUint64(result[:8], uint64(t))
	rand.Read(result[8:12])
	binary.BigEndian.PutUint32(result[12:], crc32.ChecksumIEEE(result[:12]))

	newAuthIDBlock(cmdKey).Encrypt(result[:], result[:])
	return
}

// 返回 authid 中的时间戳. crc 不对 或 时间差 过大 时 返回错误.
func decodeAuthID(block cipher.Block, authid [authid_len]byte, now int64) (t int64, err error) {
	var plain [authid_len]byte
	block.Decrypt(plain[:], authid[:])

	if crc32.ChecksumIEEE(plain[:12]) != binary.BigEndian.Uint32(plain[12:]) {
		return 0, ErrAuthID_crc
	}
	t = int64(binary.BigEndian.Uint64(plain[:8]))

	gap := now - t
	if gap < 0 {
		gap = -gap
	}
	if gap > authID_timeMaxSecondGap {
		return t, ErrAuthID_timeBeyondGap
	}
	return t, nil
}

func newGCM(key []byte) cipher.AEAD {
	block, _ := aes.NewCipher(key)
	aead, _ := cipher.NewGCM(block)
	return aead
}

// sealAEADHeader 供 客户端使用; 返回 authid 之后 的部分: 加密长度 + nonce + 加密指令.
func sealAEADHeader(cmdKey []byte, authid [authid_len]byte, data []byte) []byte {
	var nonce [connNonceLen]byte
	rand.Read(nonce[:])

	aid, n := string(authid[:]), string(nonce[:])

	var lenBs [2]byte
	binary.BigEndian.PutUint16(lenBs[:], uint16(len(data)))

	lenAEAD := newGCM(kdf16(cmdKey, kdfSaltConstVMessHeaderPayloadLengthAEADKey, aid, n))
	encLen := lenAEAD.Seal(nil, kdf(cmdKey, kdfSaltConstVMessHeaderPayloadLengthAEADIV, aid, n)[:12], lenBs[:], authid[:])

	payloadAEAD := newGCM(kdf16(cmdKey, kdfSaltConstVMessHeaderPayloadAEADKey, aid, n))
	encPayload := payloadAEAD.Seal(nil, kdf(cmdKey, kdfSaltConstVMessHeaderPayloadAEADIV, aid, n)[:12], data, authid[:])

	out := make([]byte, 0, len(encLen)+connNonceLen+len(encPayload))
	out = append(out, encLen...)
	out = append(out, nonce[:]...)
	return append(out, encPayload...)
}

// from v2fly/v2ray-core/proxy/vmess/aead/encrypt.go/OpenVMessAEADHeader.
//
// r 的位置 应在 authid 之后.
func openAEADHeader(cmdKey []byte, authid [authid_len]byte, r io.Reader) (aeadData []byte, err error) {
	var lenAndNonce [headerLenAEADLen + connNonceLen]byte
	if _, err = io.ReadFull(r, lenAndNonce[:]); err != nil {
		return
	}
	encLen := lenAndNonce[:headerLenAEADLen]
	nonce := lenAndNonce[headerLenAEADLen:]

	aid, n := string(authid[:]), string(nonce)

	lenAEAD := newGCM(kdf16(cmdKey, kdfSaltConstVMessHeaderPayloadLengthAEADKey, aid, n))
	lenBs, err := lenAEAD.Open(nil, kdf(cmdKey, kdfSaltConstVMessHeaderPayloadLengthAEADIV, aid, n)[:12], encLen, authid[:])
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "vmess: open header length failed", ErrDetail: err}
	}
	length := int(binary.BigEndian.Uint16(lenBs))

	payloadAEAD := newGCM(kdf16(cmdKey, kdfSaltConstVMessHeaderPayloadAEADKey, aid, n))
	encPayload := make([]byte, length+payloadAEAD.Overhead())
	if _, err = io.ReadFull(r, encPayload); err != nil {
		return
	}

	aeadData, err = payloadAEAD.Open(encPayload[:0], kdf(cmdKey, kdfSaltConstVMessHeaderPayloadAEADIV, aid, n)[:12], encPayload, authid[:])
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "vmess: open header failed", ErrDetail: err}
	}
	return
}

// 响应头部 为 V | Opt | Cmd | CmdLen, 我们不发送 动态端口 之类的指令, 所以后三个都是0.
func sealResponseHeader(respKey, respIV []byte, v byte) []byte {
	header := []byte{v, 0, 0, 0}

	var lenBs [2]byte
	binary.BigEndian.PutUint16(lenBs[:], uint16(len(header)))

	lenAEAD := newGCM(kdf16(respKey, kdfSaltConstAEADRespHeaderLenKey))
	out := lenAEAD.Seal(nil, kdf(respIV, kdfSaltConstAEADRespHeaderLenIV)[:12], lenBs[:], nil)

	payloadAEAD := newGCM(kdf16(respKey, kdfSaltConstAEADRespHeaderPayloadKey))
	return payloadAEAD.Seal(out, kdf(respIV, kdfSaltConstAEADRespHeaderPayloadIV)[:12], header, nil)
}

// 供 客户端 使用, 返回 响应认证V
func openResponseHeader(respKey, respIV []byte, r io.Reader) (v byte, err error) {
	var encLen [headerLenAEADLen]byte
	if _, err = io.ReadFull(r, encLen[:]); err != nil {
		return
	}
	lenAEAD := newGCM(kdf16(respKey, kdfSaltConstAEADRespHeaderLenKey))
	lenBs, err := lenAEAD.Open(nil, kdf(respIV, kdfSaltConstAEADRespHeaderLenIV)[:12], encLen[:], nil)
	if err != nil {
		return
	}

	payloadAEAD := newGCM(kdf16(respKey, kdfSaltConstAEADRespHeaderPayloadKey))
	enc := make([]byte, int(binary.BigEndian.Uint16(lenBs))+payloadAEAD.Overhead())
	if _, err = io.ReadFull(r, enc); err != nil {
		return
	}
	header, err := payloadAEAD.Open(enc[:0], kdf(respIV, kdfSaltConstAEADRespHeaderPayloadIV)[:12], enc, nil)
	if err != nil {
		return
	}
	if len(header) < 4 {
		return 0, utils.ErrShortRead
	}
	return header[0], nil
}

func nowUnix() int64 { return time.Now().Unix() }
