package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/wfunc/kiosk-devices/internal/config"
	"github.com/wfunc/kiosk-devices/internal/logger"
)

var (
	configPath string
	driverName string
)

var rootCmd = &cobra.Command{
	Use:   "devicectl",
	Short: "收银终端串口设备控制",
	Long: `devicectl 驱动收银终端上的三类串口设备：热敏打印机、纸币接收器和出钞机。

serve 启动 HTTP 控制面并按配置打开设备；print、dispense 直接打开单个设备执行一次操作。
串口驱动可选 tarm、bugst 或 sim（内置模拟器，无需硬件）。`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&driverName, "driver", "", "串口驱动 (tarm|bugst|sim)，覆盖配置")
	rootCmd.SetVersionTemplate(fmt.Sprintf("devicectl %s (build %s, commit %s, %s %s/%s)\n",
		Version, BuildTime, GitCommit, runtime.Version(), runtime.GOOS, runtime.GOARCH))

	rootCmd.AddCommand(serveCmd, tokenCmd, printCmd, dispenseCmd, portsCmd)
}

// loadConfig 读取配置并初始化日志
func loadConfig() (*config.Config, error) {
	if err := config.Init(configPath); err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	cfg := config.Get()
	if driverName != "" {
		cfg.Serial.Driver = driverName
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if err := logger.Init(&cfg.Log); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}
