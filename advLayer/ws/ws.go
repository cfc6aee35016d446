/*
Package ws implements websocket for advLayer.

# Reference

websocket rfc: https://datatracker.ietf.org/doc/html/rfc6455/

Below is a real websocket handshake progress:

Request

	GET /chat HTTP/1.1
	    Host: server.example.com
	    Upgrade: websocket
	    Connection: Upgrade
	    Sec-WebSocket-Key: x3JJHMbDL1EzLkh9GBhXDw==
	    Sec-WebSocket-Protocol: chat, superchat
	    Sec-WebSocket-Version: 13
	    Origin: http://example.com

Response

	HTTP/1.1 101 Switching Protocols
	    Upgrade: websocket
	    Connection: Upgrade
	    Sec-WebSocket-Accept: HSmrc0sMlYUkAGmm5OPpG2HaGWk=
	    Sec-WebSocket-Protocol: chat

websocket packages comparison:
https://yalantis.com/blog/how-to-build-websockets-in-go/

All in all gobwas/ws is the best package. We use gobwas/ws.

gobwas包只支持http1.1, 所以如果使用nginx前置，确保 proxy_http_version 1.1;

与 一般的 ws 代理不同, 本包的 Conn 不是 net.Conn, 而是 按消息 读写的 advLayer.FramedConn;
把消息 拼成字节流 是 tunnel 包的 Adapter 的工作.
*/
package ws

import "errors"

// 2048 /3 = 682.6666...  (682 又 三分之二),
// 683 * 4 = 2732, 你若不信，运行 ws_test.go中的 TestBase64Len
const MaxEarlyDataLen_Base64 = 2732
const MaxEarlyDataLen = 2048

// 单条消息 读取时的 内存上限. 比这个还大的消息 我们根本不读进内存.
// 业务上的 消息上限 (一般是64k) 由上层检查, 这里只是防止 恶意的超大帧.
const DefaultReadLimit = 1 << 20

var ErrReadLimit = errors.New("ws message exceeds read limit")
