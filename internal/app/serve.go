package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/fx"

	"github.com/dep2p/go-qsession/config"
	"github.com/dep2p/go-qsession/internal/core/listener"
)

// ServeSingle 运行单个监听端直到 ctx 结束
//
// 启动后把证书指纹与 PEM 写入 out，供带外分发给发起端。
func ServeSingle(ctx context.Context, cfg *config.Config, out io.Writer, verbose bool) error {
	var l *listener.Listener
	app := NewApp(cfg, verbose, ServeModule(), fx.Populate(&l))
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	fmt.Fprintf(out, "listener %s (%s) serving on %s\n", l.Name(), l.ID(), l.Addr())
	fmt.Fprintf(out, "hostname %s\nfingerprint %s\n", l.Hostname(), l.Fingerprint())
	out.Write(l.CertificatePEM())

	<-ctx.Done()
	logger.Info("正在停止监听端", "name", l.Name())

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	return app.Stop(stopCtx)
}
