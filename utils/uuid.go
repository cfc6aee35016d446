package utils

import (
	"github.com/google/uuid"
)

const UUID_BytesLen = 16

// StrToUUID 接受标准 36字节格式, 以及 uuid 包支持的其它格式(如 urn:uuid:, 无横杠的32字节).
func StrToUUID(s string) (u [UUID_BytesLen]byte, err error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return u, ErrInErr{ErrDesc: "invalid UUID Str", ErrDetail: ErrInvalidData, Data: s}
	}
	return parsed, nil
}

func UUIDToStr(u []byte) string {
	parsed, err := uuid.FromBytes(u)
	if err != nil {
		return ""
	}
	return parsed.String()
}

// 生成符合v4标准的uuid
func GenerateUUIDStr() string {
	return uuid.NewString()
}
