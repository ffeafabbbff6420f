package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/githighlight/internal"
	pkgconfig "github.com/starford/githighlight/pkg/config"
)

var version = "dev"

// errNoMatch makes `match` exit non-zero without logging an error.
var errNoMatch = errors.New("no recent change")

func loadConfig(cmd *cli.Command) (*internal.Config, string, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, configPath, nil
}

// oneShotConfig loads the config with the --root override applied.
func oneShotConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if root := cmd.String("root"); root != "" {
		cfg.Project.Root = root
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithRoot(cmd.String("root")),
		internal.WithVersion(version),
	}
	if !cmd.Bool("no-reload") {
		opts = append(opts, internal.WithConfigPath(configPath))
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithRoot(cmd.String("root")),
		internal.WithVersion(version),
	}
	if !cmd.Bool("no-reload") {
		opts = append(opts, internal.WithConfigPath(configPath))
	}

	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func match(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: githighlight match <path>")
	}
	cfg, err := oneShotConfig(cmd)
	if err != nil {
		return err
	}

	msg, ok, err := internal.MatchOnce(ctx, cfg, cmd.Args().First(), cliLogger())
	if err != nil {
		return err
	}
	if !ok {
		return errNoMatch
	}
	fmt.Println(msg)
	return nil
}

func commits(ctx context.Context, cmd *cli.Command) error {
	cfg, err := oneShotConfig(cmd)
	if err != nil {
		return err
	}

	_, records, err := internal.FetchOnce(ctx, cfg, cliLogger())
	if err != nil {
		return err
	}
	for _, c := range records {
		short := c.Hash
		if len(short) > 10 {
			short = short[:10]
		}
		fmt.Printf("%s %s\n", short, c.Message)
		if cmd.Bool("files") {
			for _, f := range c.ChangedFiles {
				fmt.Printf("    %s\n", f)
			}
		}
	}
	return nil
}

// cliLogger keeps one-shot commands quiet on stdout.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func main() {
	cmd := &cli.Command{
		Name:   "githighlight",
		Usage:  "Highlights files touched by the most recent git commits",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Usage:   "Project directory, overrides project.root",
				Sources: cli.EnvVars("GITHIGHLIGHT_ROOT"),
			},
			&cli.BoolFlag{
				Name:  "no-reload",
				Usage: "Do not watch the config file for changes",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP daemon (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP protocol on stdio",
				Action: serveMCP,
			},
			{
				Name:      "match",
				Usage:     "Print the message of the recent commit that touched a file",
				ArgsUsage: "<path>",
				Action:    match,
			},
			{
				Name:  "commits",
				Usage: "List the recent commit window",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "files", Usage: "List the files of each commit"},
				},
				Action: commits,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, errNoMatch) {
			os.Exit(1)
		}
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
