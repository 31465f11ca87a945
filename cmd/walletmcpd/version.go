package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version 在发布时通过 -ldflags 注入。
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本信息",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "walletmcpd %s\n", version)
	},
}
