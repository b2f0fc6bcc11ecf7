package main

import (
	"context"
	"fmt"
	"io"

	"github.com/richardjlyon/ayda/internal/app"
	"github.com/richardjlyon/ayda/internal/config"
	"github.com/richardjlyon/ayda/pkg/logging"
	"github.com/richardjlyon/ayda/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cli carries state shared by all commands of one invocation.
type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
	out     io.Writer
	errOut  io.Writer
}

// run executes the command line and returns the process exit status.
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	c := &cli{v: config.New(), out: out, errOut: errOut}
	root := newRootCommand(c)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "%s %v\n", red("Error:"), err)
		return 1
	}
	return 0
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "ayda",
		Short: "Import Zotero collections and folders into AnythingLLM",
		Long: `ayda uploads the PDF attachments of a Zotero collection, or the files of a
local folder, to AnythingLLM and embeds them into a dedicated workspace.

Configuration is read from the config file, AYDA_* environment variables and
flags, in increasing order of precedence. Run "ayda config init" to create a
config file.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default <user config dir>/ayda/config.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Bool("pretty", true, "human-readable log output instead of JSON")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while running")

	c.bind(map[string]*pflag.Flag{
		"log.level":    flags.Lookup("log-level"),
		"log.pretty":   flags.Lookup("pretty"),
		"metrics.addr": flags.Lookup("metrics-addr"),
	})

	root.AddCommand(newImportCommand(c))
	root.AddCommand(newWorkspaceCommand(c))
	root.AddCommand(newDocumentsCommand(c))
	root.AddCommand(newZoteroCommand(c))
	root.AddCommand(newConfigCommand(c))
	return root
}

// bind maps flags onto config keys. Flag definitions are static, so a
// failure is a programming error.
func (c *cli) bind(flags map[string]*pflag.Flag) {
	if err := config.BindFlags(c.v, flags); err != nil {
		panic(err)
	}
}

// setup loads the configuration and configures logging and metrics before
// any command runs.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}
	c.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	c.logger = logging.Setup(logging.Config{Level: level, Pretty: cfg.Log.Pretty, Output: c.errOut})
	if cfg.File != "" {
		c.logger.Debug().Str("file", cfg.File).Msg("Loaded config")
	}

	if cfg.Metrics.Addr != "" {
		errs, err := metrics.Serve(cmd.Context(), cfg.Metrics.Addr, c.logger)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		go func() {
			if err := <-errs; err != nil {
				c.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}
	return nil
}

// app builds the application for a command needing need. The caller closes it.
func (c *cli) app(ctx context.Context, need config.Need) (*app.App, error) {
	return app.New(ctx, c.cfg, need)
}
