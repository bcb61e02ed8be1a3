// Package identity 实现监听端的自签名身份
//
// 每个监听端在构造时生成一份独立身份：一把新私钥与一张绑定到单一主机名的
// 自签名 X.509 证书。证书（DER）可通过 Certificate() 取出并带外分发给
// 发起端；私钥只通过 ServerTLSConfig() 进入监听端的 TLS 配置，不以其他
// 形式暴露。
//
// # 快速开始
//
//	provider.MustInstallDefault()
//
//	id, err := identity.Generate("localhost")
//	if err != nil {
//	    return err
//	}
//	der := id.Certificate()          // 带外分发
//	tlsConf := id.ServerTLSConfig("qsession/1")
//
// 身份构造后不可变。
package identity
