// Package main 数据对账命令行工具：引用审计、成绩单去重、名单比对、修正脚本执行与统计重建
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "EduRoots 数据对账工具",
		Long: `EduRoots 数据对账工具，直接连接数据库执行对账任务。

Commands:
  audit-attendance  审计考勤表的课次引用并生成修正脚本
  dedupe-grades     折叠同一课次同一天的重复成绩单
  compare-students  比对外部学生名单与数据库
  apply-script      执行修正脚本
  recompute-stats   全量重建学生与全局统计
  migrate           数据库迁移`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（默认查找 ./config/config.yaml 与 ./config.yaml）")

	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newDedupeCommand())
	rootCmd.AddCommand(newCompareCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newRecomputeCommand())
	rootCmd.AddCommand(newMigrateCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
