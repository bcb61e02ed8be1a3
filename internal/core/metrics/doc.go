// Package metrics 提供会话层的 Prometheus 指标
//
// Metrics 由调用方创建并注入到 listener、initiator 与 exchange 中；
// 所有记录方法对 nil 接收者安全，未注入时记录为空操作。
//
// # 快速开始
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//
//	l, _ := listener.New(cfg, listener.WithMetrics(m))
//	c := exchange.NewCoordinator(exchange.WithMetrics(m))
//
// # 指标
//
//   - qsession_connections_accepted_total: 监听端接受的连接
//   - qsession_accept_failures_total: 接受失败（含握手失败）
//   - qsession_handler_failures_total{stage}: 监听端单流处理失败
//   - qsession_active_handlers: 正在处理的流
//   - qsession_exchanges_total{result}: 发起端交换结果
//   - qsession_dials_total{result}: 发起端拨号结果
//   - qsession_trusted_certificates: 信任库中的证书数量
//   - qsession_bytes_total{side,direction}: 问候负载字节数
package metrics
