package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/wfunc/kiosk-devices/internal/config"
	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"github.com/wfunc/kiosk-devices/internal/hardware"
	"github.com/wfunc/kiosk-devices/internal/logger"
)

var (
	printSize  int
	printCut   bool
	oneshotTTL time.Duration
)

var printCmd = &cobra.Command{
	Use:   "print TEXT",
	Short: "打开打印机打印一行文字",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := hardware.FontSizeFromLevel(printSize)
		if err != nil {
			return err
		}
		m, err := openSingle(func(s *config.SerialConfig) { s.Printer.Enabled = true })
		if err != nil {
			return err
		}
		defer m.Stop()

		p, err := m.Printer()
		if err != nil {
			return err
		}
		if err := p.Open(); err != nil {
			return err
		}
		if err := p.PrintText(args[0], size); err != nil {
			return err
		}
		if printCut {
			if err := p.Cut(); err != nil {
				return err
			}
		}

		// 等待打印机应答，ESC/POS 没有应答
		if p.Model() == hardware.DeviceTGP58 {
			if err := awaitAck(oneshotTTL, func() bool { return p.Snapshot().Acks > 0 }); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "printed on %s\n", p.Model())
		return nil
	},
}

var dispenseCmd = &cobra.Command{
	Use:   "dispense AMOUNT",
	Short: "打开出钞机出钞并等待完成",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.Atoi(args[0])
		if err != nil {
			return apperrors.Newf(apperrors.ErrInvalidParam, "amount %q is not a number", args[0])
		}
		m, err := openSingle(func(s *config.SerialConfig) { s.Dispenser.Enabled = true })
		if err != nil {
			return err
		}
		defer m.Stop()

		d, err := m.Dispenser()
		if err != nil {
			return err
		}
		updates, cancel := d.Updates(16)
		defer cancel()
		if err := d.Open(); err != nil {
			return err
		}
		if err := d.Dispense(amount); err != nil {
			return err
		}

		timeout := time.After(oneshotTTL)
		for {
			select {
			case st := <-updates:
				switch st.Phase {
				case hardware.DispenserIdle:
					if st.LastDispensedAmount > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "dispensed %d (total %d)\n", st.LastDispensedAmount, st.TotalDispensed)
						return nil
					}
				case hardware.DispenserError:
					return fmt.Errorf("dispenser error %s", st.ErrorCode)
				}
			case <-timeout:
				return apperrors.New(apperrors.ErrTimeout, "出钞未在规定时间内完成")
			}
		}
	},
}

func init() {
	printCmd.Flags().IntVar(&printSize, "size", 1, "字号等级 1..6")
	printCmd.Flags().BoolVar(&printCut, "cut", false, "打印后切纸")
	for _, c := range []*cobra.Command{printCmd, dispenseCmd} {
		c.Flags().DurationVar(&oneshotTTL, "timeout", 10*time.Second, "等待设备应答的时间")
	}
}

// openSingle 只启用一个设备创建管理器，设备由调用方打开
func openSingle(enable func(*config.SerialConfig)) (*hardware.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	serial := cfg.Serial
	serial.Printer.Enabled = false
	serial.Deposit.Enabled = false
	serial.Dispenser.Enabled = false
	enable(&serial)
	serial.Printer.AutoOpen = false
	serial.Dispenser.AutoOpen = false

	m, err := hardware.NewManager(serial, hardware.WithLogger(logger.WithModule("hardware")))
	if err != nil {
		return nil, err
	}
	if err := m.Start(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

// awaitAck 等待设备应答，超时返回 ErrTimeout
func awaitAck(timeout time.Duration, acked func() bool) error {
	if !waitFor(timeout, acked) {
		return apperrors.Newf(apperrors.ErrTimeout, "%s 内未收到打印机应答", timeout)
	}
	return nil
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}
