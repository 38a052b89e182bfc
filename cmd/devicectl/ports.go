package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wfunc/kiosk-devices/internal/config"
	"github.com/wfunc/kiosk-devices/internal/hardware"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "检查配置中的串口设备节点",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "driver=%s read_timeout=%s\n", cfg.Serial.Driver, cfg.Serial.ReadTimeout)

		missing := 0
		for _, d := range configuredPorts(cfg.Serial) {
			state := "disabled"
			if d.cfg.Enabled {
				state = "present"
				if cfg.Serial.Driver != hardware.DriverSim && !hardware.PortExists(d.cfg.Port) {
					state = "missing"
					missing++
				}
			}
			fmt.Fprintf(out, "  %-10s %-16s %s\n", d.role, d.cfg.Port, state)
		}
		if missing > 0 {
			return fmt.Errorf("%d 个已启用设备的串口不存在", missing)
		}
		return nil
	},
}

type configuredPort struct {
	role string
	cfg  config.DeviceConfig
}

func configuredPorts(s config.SerialConfig) []configuredPort {
	return []configuredPort{
		{hardware.RolePrinter, s.Printer.DeviceConfig},
		{hardware.RoleDeposit, s.Deposit},
		{hardware.RoleDispenser, s.Dispenser},
	}
}
