package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nuko-mc/nuko/pkg/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRoot(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// buildRoot constructs the root command and attaches all subcommands.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.SetOut(out)

	nukoCommand := &command{global: globalFlags, out: out}

	root.AddCommand(
		createServeCommand(out),
		createListCommand(nukoCommand),
		createCreateCommand(nukoCommand),
		createLifecycleCommand(nukoCommand, "start", "Start an instance's server process"),
		createLifecycleCommand(nukoCommand, "stop", "Stop an instance gracefully"),
		createLifecycleCommand(nukoCommand, "kill", "Forcibly kill an instance"),
		createRestartCommand(nukoCommand),
		createStatusCommand(nukoCommand),
		createSendCommand(nukoCommand),
		createLogsCommand(nukoCommand),
		createMetricsCommand(nukoCommand),
		createHistoryCommand(nukoCommand),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "nuko",
		Short: "Minecraft server instance manager",
		Long: `Nuko creates Minecraft server instances and supervises their server
processes, either through the daemon's HTTP API or from this CLI.

Examples:
  nuko serve --config=nuko.toml     # Start daemon
  nuko create --name=survival --software=paper --version=1.21.1
  nuko start survival
  nuko send survival say hello
  nuko logs survival --follow
  nuko list --api-url=http://remote:8787/api`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", client.DefaultBaseURL, "daemon API URL")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")

	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(out io.Writer) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the nuko daemon",
		Long: `Start the nuko daemon. Settings come from an optional TOML file and
NUKO_* environment variables (e.g. NUKO_SERVER_LISTEN=:9000).

Workers keep running when the daemon exits unless --stop-on-exit is set;
a later daemon finds them again by their instance directory.

Examples:
  nuko serve
  nuko serve nuko.toml --stop-on-exit`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeCommand(cmd.Context(), serveFlags, args, out)
		},
	}

	cmd.Flags().StringVar(&serveFlags.ConfigPath, "config", "", "path to TOML config file (optional)")
	cmd.Flags().BoolVar(&serveFlags.StopOnExit, "stop-on-exit", false, "stop running workers when the daemon exits")

	return cmd
}

func createListCommand(nukoCommand *command) *cobra.Command {
	flags := &ListFlags{}
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List instances and whether they are running",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return nukoCommand.List(cmd.Context(), *flags)
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print JSON instead of a table")
	return cmd
}

// createCreateCommand creates the create subcommand
func createCreateCommand(nukoCommand *command) *cobra.Command {
	flags := &CreateFlags{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new instance",
		Long: `Create a new instance directory with its nuko.toml and eula.txt on the
daemon host. A custom jar, when given, is copied to server.jar, and an icon
to server-icon.png.

Examples:
  nuko create --name=survival --software=paper --version=1.21.1
  nuko create --name=modded --software=fabric --version=1.20.4 --jar=/srv/fabric.jar --max-memory=8G`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return nukoCommand.Create(cmd.Context(), *flags)
		},
	}

	cmd.Flags().StringVar(&flags.Name, "name", "", "instance name (required)")
	cmd.Flags().StringVar(&flags.Software, "software", "vanilla", "server software")
	cmd.Flags().StringVar(&flags.Version, "version", "", "game version")
	cmd.Flags().StringVar(&flags.Loader, "loader", "", "mod loader version")
	cmd.Flags().StringVar(&flags.CustomJarPath, "jar", "", "absolute path of a server jar to copy")
	cmd.Flags().StringVar(&flags.IconPath, "icon", "", "absolute path of a PNG to copy to server-icon.png")
	cmd.Flags().StringVar(&flags.JavaPath, "java", "", "java executable")
	cmd.Flags().StringVar(&flags.MinMemory, "min-memory", "", "initial heap, e.g. 1G")
	cmd.Flags().StringVar(&flags.MaxMemory, "max-memory", "", "maximum heap, e.g. 4G")
	cmd.Flags().StringSliceVar(&flags.AdditionalArgs, "jvm-arg", nil, "extra JVM argument (repeatable)")

	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}

	return cmd
}

func createLifecycleCommand(nukoCommand *command, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <instance>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return nukoCommand.Lifecycle(cmd.Context(), action, args[0])
		},
	}
}

func createRestartCommand(nukoCommand *command) *cobra.Command {
	flags := &RestartFlags{}
	cmd := &cobra.Command{
		Use:   "restart <instance>",
		Short: "Stop an instance, wait for it to exit and start it again",
		Long: `Stop an instance, wait for its server process to exit and start it again.
The daemon completes the restart even when --wait runs out first.

Examples:
  nuko restart survival
  nuko restart survival --wait=2m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return nukoCommand.Restart(cmd.Context(), args[0], *flags)
		},
	}
	cmd.Flags().DurationVar(&flags.Wait, "wait", client.DefaultRestartTimeout, "how long to wait for the restart")
	return cmd
}

func createStatusCommand(nukoCommand *command) *cobra.Command {
	return &cobra.Command{
		Use:   "status <instance>",
		Short: "Show an instance and its run state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return nukoCommand.Status(cmd.Context(), args[0])
		},
	}
}

func createSendCommand(nukoCommand *command) *cobra.Command {
	return &cobra.Command{
		Use:   "send <instance> <command...>",
		Short: "Write a console command to a running instance",
		Long: `Write one line to the server console of a running instance.

Examples:
  nuko send survival say hello
  nuko send survival whitelist add steve`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return nukoCommand.Send(cmd.Context(), args[0], args[1:])
		},
	}
}

func createLogsCommand(nukoCommand *command) *cobra.Command {
	flags := &LogsFlags{}
	cmd := &cobra.Command{
		Use:   "logs <instance>",
		Short: "Print captured server output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return nukoCommand.Logs(cmd.Context(), args[0], *flags)
		},
	}
	cmd.Flags().IntVar(&flags.Since, "since", 0, "start at this line offset")
	cmd.Flags().BoolVarP(&flags.Follow, "follow", "f", false, "keep printing new lines")
	cmd.Flags().DurationVar(&flags.Interval, "interval", time.Second, "poll interval with --follow")
	return cmd
}

func createMetricsCommand(nukoCommand *command) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <instance>",
		Short: "Show CPU and memory usage of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return nukoCommand.Metrics(cmd.Context(), args[0])
		},
	}
}

func createHistoryCommand(nukoCommand *command) *cobra.Command {
	flags := &HistoryFlags{}
	cmd := &cobra.Command{
		Use:   "history <instance>",
		Short: "Show recorded lifecycle events, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return nukoCommand.History(cmd.Context(), args[0], *flags)
		},
	}
	cmd.Flags().IntVar(&flags.Limit, "limit", 20, "maximum number of events")
	return cmd
}
