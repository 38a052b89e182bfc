package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/wfunc/kiosk-devices/internal/service"
	"github.com/wfunc/kiosk-devices/internal/utils"
)

var (
	tokenSubject string
	tokenRole    string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "签发操作员令牌",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		auth := service.NewServices(nil, service.ConfigFrom(cfg), nil).Auth
		resp, err := auth.IssueToken(context.Background(), tokenSubject, tokenRole)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
		fmt.Fprintf(cmd.ErrOrStderr(), "operator=%s role=%s expires=%s\n",
			resp.Operator, resp.Role, resp.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "操作员名称")
	tokenCmd.Flags().StringVar(&tokenRole, "role", utils.RoleOperator, "角色 (operator|service)")
	tokenCmd.MarkFlagRequired("subject")
}
