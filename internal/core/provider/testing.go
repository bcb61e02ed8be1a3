package provider

// ResetForTesting 清除已安装的提供者
//
// 仅供其他包的测试验证"未安装提供者"路径；生产代码不得调用。
func ResetForTesting() {
	reset()
}
