/*
Package tunnel 把 一条 分帧传输 (advLayer.FramedConn) 变成 一次完整的 代理会话.

一个会话 依次经过:

	Sniffing -> Dispatching -> Relaying -> Closed

任一阶段 出错 都进入 Errored. 不论以何种方式结束, 清理 只执行一次: 关闭出站连接, 关闭 分帧传输, 记录日志.

Adapter 把 按消息到达的数据 变成 io.Reader / io.Writer, 这样 proxy 中的 头部解析 与 netLayer.Relay 可以直接使用.
*/
package tunnel
