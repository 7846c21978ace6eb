package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BaSui01/genflow/config"
	"github.com/BaSui01/genflow/internal/migration"
)

// migrateFlags --db-type 与 --db-url 同时给出时绕过配置文件
type migrateFlags struct {
	dbType string
	dbURL  string
}

func newMigrateCmd() *cobra.Command {
	var f migrateFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database schema migrations",
	}
	cmd.PersistentFlags().StringVar(&f.dbType, "db-type", "", "postgres, mysql or sqlite (overrides config)")
	cmd.PersistentFlags().StringVar(&f.dbURL, "db-url", "", "database/sql connection URL")

	// sub 为每个子命令打开迁移器并在结束时关闭
	sub := func(use, short string, posArgs cobra.PositionalArgs, run func(cmd *cobra.Command, cli *migration.CLI, args []string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  posArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				configPath, _ := cmd.Flags().GetString("config")
				m, err := openMigrator(configPath, f)
				if err != nil {
					return err
				}
				defer m.Close()
				return run(cmd, migration.NewCLI(m), args)
			},
		}
	}

	var all bool
	down := sub("down", "Roll back the last migration", cobra.NoArgs, func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
		if all {
			return cli.RunDownAll(cmd.Context())
		}
		return cli.RunDown(cmd.Context())
	})
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")

	cmd.AddCommand(
		sub("up", "Apply all pending migrations", cobra.NoArgs, func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
			return cli.RunUp(cmd.Context())
		}),
		down,
		sub("reset", "Roll back every migration", cobra.NoArgs, func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
			return cli.RunDownAll(cmd.Context())
		}),
		sub("status", "List migrations and whether they are applied", cobra.NoArgs, func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
			return cli.RunStatus(cmd.Context())
		}),
		sub("version", "Print the current schema version", cobra.NoArgs, func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
			return cli.RunVersion(cmd.Context())
		}),
		sub("info", "Summarize applied and pending migrations", cobra.NoArgs, func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
			return cli.RunInfo(cmd.Context())
		}),
		sub("goto <version>", "Migrate up or down to a version", cobra.ExactArgs(1), func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return cli.RunGoto(cmd.Context(), uint(v))
		}),
		// force 只改写版本记录并清除 dirty 标记，不执行 SQL
		sub("force <version>", "Overwrite the recorded version", cobra.ExactArgs(1), func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
			v, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return cli.RunForce(cmd.Context(), int(v))
		}),
	)
	return cmd
}

func openMigrator(configPath string, f migrateFlags) (*migration.SQLMigrator, error) {
	if f.dbType != "" && f.dbURL != "" {
		logger, _ := newLogger(config.LogConfig{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
		return migration.FromURL(f.dbType, f.dbURL, logger)
	}

	cfg, err := config.NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		return nil, err
	}
	if f.dbType != "" {
		cfg.Database.Driver = f.dbType
	}
	logger, _ := newLogger(cfg.Log)
	return migration.FromDatabaseConfig(cfg.Database, logger)
}
