// Package quic 封装 quic-go，提供会话层使用的传输边界
//
// # 组成
//
//   - Endpoint: 一个 UDP socket 与其上的 quic.Transport，监听与拨号共用
//   - Listener: 接受已完成握手的入站连接
//   - Conn: 连接封装，Close 受 teardown 判定保护
//   - Stream: 双向流封装，读到 EOF、finish 写半部等事件自动记入 teardown
//
// # 关闭约定
//
// Conn.Close 只有在该连接上全部流都已排空（见 teardown 包）时才会真正关闭
// 连接并以 CodeDone 通知对端；否则返回 teardown.ErrUnsafeClose 且连接保持
// 打开。出错路径使用 Conn.Abort。
//
// # 使用示例
//
//	ep, err := quic.Bind("127.0.0.1:0")
//	if err != nil {
//	    return err
//	}
//	conn, err := ep.Dial(ctx, "127.0.0.1:6666", tlsConf, quic.NewConfig(cfg.QUIC, 0))
package quic
