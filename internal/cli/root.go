// Package cli 实现 addrdirctl 管理命令。
//
// 命令直接连接目录数据库，用于建表、导入外部用户和排查地址解析。
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"addrdir/backend/internal/config"
	"addrdir/backend/internal/domain"
	"addrdir/backend/internal/service"
	"addrdir/backend/internal/storage/postgres"
)

// 单个命令的数据库操作超时
const commandTimeout = 30 * time.Second

type options struct {
	dbType string
	dsn    string
	driver string
}

// NewRootCommand 创建根命令
//
// 数据库配置默认取自 ADDRDIR_ 环境变量，--type/--dsn/--driver 覆盖环境变量。
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "addrdirctl",
		Short:         "地址目录管理工具",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.dbType, "type", "", "数据库类型: mysql、postgres 或 sqlite")
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "数据库连接字符串")
	root.PersistentFlags().StringVar(&opts.driver, "driver", "", "PostgreSQL 驱动: pgx 或 pq")

	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newUserCommand(opts))
	root.AddCommand(newResolveCommand(opts))

	return root
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "创建或升级 addresses 与 users 表",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// 打开存储时会执行 AutoMigrate
			store, _, err := opts.open()
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "✓ 数据库表结构已是最新")
			return nil
		},
	}
}

func newUserCommand(opts *options) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "管理地址所属用户",
	}

	var address string
	addCmd := &cobra.Command{
		Use:   "add <user-id>",
		Short: "导入或覆盖一个用户",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := opts.open()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			if err := store.SaveUser(ctx, &domain.User{ID: args[0], DefaultAddress: address}); err != nil {
				return fmt.Errorf("save user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ 用户 %s 已保存\n", args[0])
			return nil
		},
	}
	addCmd.Flags().StringVar(&address, "main", "", "用户主地址")

	userCmd.AddCommand(addCmd)
	return userCmd
}

func newResolveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <address|id>",
		Short: "按精确匹配解析地址并输出 JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := opts.open()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			addresses := service.NewAddressService(store, store, cfg, zap.NewNop())
			result, err := addresses.Resolve(ctx, args[0])
			if err != nil {
				if errors.Is(err, domain.ErrAddressNotFound) {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

// open 加载配置并打开目录数据库
func (o *options) open() (*postgres.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.dbType != "" {
		cfg.Database.Type = o.dbType
	}
	if o.dsn != "" {
		cfg.Database.DSN = o.dsn
	}
	if o.driver != "" {
		cfg.Database.Driver = o.driver
	}

	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		return nil, nil, errors.New("database type and dsn are required (--type/--dsn or ADDRDIR_DATABASE_*)")
	}

	store, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}
