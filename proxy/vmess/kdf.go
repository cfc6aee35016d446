package vmess

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
)

const (
	kdfSaltConstAuthIDEncryptionKey = "AES Auth ID Encryption"

	kdfSaltConstAEADRespHeaderLenKey     = "AEAD Resp Header Len Key"
	kdfSaltConstAEADRespHeaderLenIV      = "AEAD Resp Header Len IV"
	kdfSaltConstAEADRespHeaderPayloadKey = "AEAD Resp Header Key"
	kdfSaltConstAEADRespHeaderPayloadIV  = "AEAD Resp Header IV"

	kdfSaltConstVMessAEADKDF = "VMess AEAD KDF"

	kdfSaltConstVMessHeaderPayloadAEADKey       = "VMess Header AEAD Key"
	kdfSaltConstVMessHeaderPayloadAEADIV        = "VMess Header AEAD Nonce"
	kdfSaltConstVMessHeaderPayloadLengthAEADKey = "VMess Header AEAD Key_Length"
	kdfSaltConstVMessHeaderPayloadLengthAEADIV  = "VMess Header AEAD Nonce_Length"
)

// hmacCreator 是 套娃的 hmac: 每一层 的 哈希函数 都是 上一层的 hmac.
type hmacCreator struct {
	parent *hmacCreator
	value  []byte
}

func (h *hmacCreator) Create() hash.Hash {
	if h.parent == nil {
		return hmac.New(sha256.New, h.value)
	}
	return hmac.New(h.parent.Create, h.value)
}

// kdf 返回 32字节
func kdf(key []byte, path ...string) []byte {
	creator := &hmacCreator{value: []byte(kdfSaltConstVMessAEADKDF)}
	for _, v := range path {
		creator = &hmacCreator{value: []byte(v), parent: creator}
	}
	h := creator.Create()
	h.Write(key)
	return h.Sum(nil)
}

func kdf16(key []byte, path ...string) []byte {
	return kdf(key, path...)[:16]
}
