package utils

import "io"

// bufio.Reader 和 bytes.Buffer 都实现了 ByteReader
type ByteReader interface {
	ReadByte() (byte, error)
	Read(p []byte) (n int, err error)
}

// PrefixWriter 在第一次 Write 时 先写入 Prefix, 且与第一段数据 合并为一次写入.
//
// 我们的底层是 按消息发送的websocket, 分两次写会多出一个帧, 所以要合并.
type PrefixWriter struct {
	io.Writer
	Prefix []byte
}

func (pw *PrefixWriter) Write(p []byte) (int, error) {
	if pw.Prefix == nil {
		return pw.Writer.Write(p)
	}
	buf := GetBuf()
	buf.Write(pw.Prefix)
	buf.Write(p)
	pw.Prefix = nil

	_, err := pw.Writer.Write(buf.Bytes())
	PutBuf(buf)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// RW 把单独的 Reader 和 Writer 组合为 io.ReadWriter
type RW struct {
	io.Reader
	io.Writer
}
