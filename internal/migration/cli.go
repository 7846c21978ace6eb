package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 把 Migrator 的操作结果渲染为命令行输出
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// CLIOption 配置 CLI
type CLIOption func(*CLI)

// WithOutput 替换默认的 os.Stdout
func WithOutput(w io.Writer) CLIOption {
	return func(c *CLI) { c.out = w }
}

func NewCLI(m Migrator, opts ...CLIOption) *CLI {
	c := &CLI{migrator: m, out: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apply 执行变更类操作，成功后打印当前版本
func (c *CLI) apply(ctx context.Context, banner string, op func(context.Context) error) error {
	fmt.Fprintln(c.out, banner)
	if err := op(ctx); err != nil {
		return err
	}
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "done, schema at version %d%s\n", v, dirtySuffix(dirty))
	return nil
}

func (c *CLI) RunUp(ctx context.Context) error {
	return c.apply(ctx, "applying pending migrations", c.migrator.Up)
}

func (c *CLI) RunDown(ctx context.Context) error {
	return c.apply(ctx, "rolling back one migration", c.migrator.Down)
}

func (c *CLI) RunDownAll(ctx context.Context) error {
	return c.apply(ctx, "rolling back all migrations", c.migrator.DownAll)
}

func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	return c.apply(ctx, fmt.Sprintf("migrating to version %d", version), func(ctx context.Context) error {
		return c.migrator.Goto(ctx, version)
	})
}

// RunForce 不执行 SQL，仅在修复 dirty 状态时使用
func (c *CLI) RunForce(ctx context.Context, version int) error {
	return c.apply(ctx, fmt.Sprintf("forcing version %d", version), func(ctx context.Context) error {
		return c.migrator.Force(ctx, version)
	})
}

func (c *CLI) RunVersion(ctx context.Context) error {
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d%s\n", v, dirtySuffix(dirty))
	return nil
}

func (c *CLI) RunStatus(ctx context.Context) error {
	migrations, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		fmt.Fprintln(c.out, "no migrations found")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, m := range migrations {
		state := "pending"
		switch {
		case m.Dirty:
			state = "dirty"
		case m.Applied:
			state = "applied"
		}
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", m.Version, m.Name, state)
	}
	return tw.Flush()
}

func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "current: %d%s\n", info.Current, dirtySuffix(info.Dirty))
	fmt.Fprintf(c.out, "applied: %d/%d\n", info.Applied, info.Total)
	fmt.Fprintf(c.out, "pending: %d\n", info.Pending)
	if info.Dirty {
		fmt.Fprintln(c.out, "last migration failed; fix the schema and run 'genflow migrate force <version>'")
	}
	return nil
}

func dirtySuffix(dirty bool) string {
	if dirty {
		return " (dirty)"
	}
	return ""
}
