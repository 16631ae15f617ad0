package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"eduroots/backend/internal/service"
	"eduroots/backend/pkg/database"
)

// ErrBadMigrateDirection migrate 子命令参数非法
var ErrBadMigrateDirection = errors.New("迁移方向只能是 up 或 down")

const excelFilePerm = 0o644

func newAuditCommand() *cobra.Command {
	var xlsxOut string

	cmd := &cobra.Command{
		Use:   "audit-attendance",
		Short: "审计考勤表的课次引用，为失效引用匹配课次并生成修正脚本",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				report, err := a.svc.Reconcile.AuditAttendance(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				renderAudit(out, report)

				if xlsxOut == "" {
					return nil
				}
				buf, _, err := a.svc.Reconcile.ExportAuditReport(report)
				if err != nil {
					return err
				}
				if err := os.WriteFile(xlsxOut, buf.Bytes(), excelFilePerm); err != nil {
					return fmt.Errorf("写入 Excel 失败: %w", err)
				}
				fmt.Fprintf(out, "Excel 报告: %s (%s)\n", xlsxOut, humanize.Bytes(uint64(buf.Len())))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&xlsxOut, "xlsx", "", "同时导出 Excel 报告到指定路径")

	return cmd
}

func newDedupeCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "dedupe-grades",
		Short: "折叠同一课次同一天的重复成绩单",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				report, err := a.svc.Reconcile.CollapseGradeDuplicates(ctx, dryRun)
				if err != nil {
					return err
				}
				renderDuplicates(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只报告不删除")

	return cmd
}

func newCompareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare-students <file>",
		Short: "比对外部学生名单（.json / .xlsx）与数据库",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imported, err := service.LoadImportFile(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				report, err := a.svc.Reconcile.CompareStudents(ctx, imported)
				if err != nil {
					return err
				}
				renderComparison(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

func newApplyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apply-script <path>",
		Short: "执行 audit-attendance 生成的修正脚本",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				result, err := a.svc.Reconcile.ApplyScript(ctx, args[0])
				if err != nil {
					return err
				}
				renderApply(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newRecomputeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-stats",
		Short: "从考勤与成绩明细全量重建统计",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				result, err := a.svc.Stats.RecomputeAll(ctx)
				if err != nil {
					return err
				}
				renderRecompute(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "执行或回滚数据库迁移",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(_ *cobra.Command, args []string) error {
			direction := args[0]
			if direction != "up" && direction != "down" {
				return ErrBadMigrateDirection
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
			}
			defer sqlDB.Close()

			if direction == "up" {
				return database.RunMigrations(sqlDB, logger)
			}
			return database.RollbackMigrations(sqlDB, steps, logger)
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "回滚步数（仅 down）")

	return cmd
}
