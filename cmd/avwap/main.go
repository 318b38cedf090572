package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"avwap/internal/logger"
)

const usage = `avwap - 锚定 VWAP 图表工具

用法:
  avwap <command> [flags]

命令:
  draw     按任务文件批量绘制（每个 ticker 两张图）
  chart    绘制单个代码，锚点由 -anchors 指定
  profile  绘制成交量/价格分布
  ratio    绘制两个代码的收盘价比值
  avg5     绘制 K 线与五日均线（15m/30m）
  serve    启动 HTTP 服务
  init     写出示例任务文件

各命令使用 -h 查看参数。`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "draw":
		err = runDraw(ctx, args)
	case "chart":
		err = runChart(ctx, args)
	case "profile":
		err = runProfile(ctx, args)
	case "ratio":
		err = runRatio(ctx, args)
	case "avg5":
		err = runAvg5(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit(args)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "未知命令 %q\n\n%s\n", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Errorf("[main] %s 失败: %v", cmd, err)
		os.Exit(1)
	}
}
