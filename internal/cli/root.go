package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/orgadmin/internal/catalog"
	"github.com/roach88/orgadmin/internal/config"
	"github.com/roach88/orgadmin/internal/logging"
	"github.com/roach88/orgadmin/internal/model"
	"github.com/roach88/orgadmin/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	Database   string // overrides database.path
	Models     string // overrides models

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Config loads the configuration once. Flags override the file and the
// environment.
func (o *RootOptions) Config() (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}
	v := config.New()
	if o.Database != "" {
		v.Set("database.path", o.Database)
	}
	if o.Models != "" {
		v.Set("models", o.Models)
	}
	if o.Verbose {
		v.Set("log.level", "debug")
	}
	cfg, err := config.Load(v, o.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.cfg = cfg
	return cfg, nil
}

// Registry compiles the configured models.
func (o *RootOptions) Registry() (*model.Registry, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	reg, err := catalog.Load(cfg.Models)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load models", err)
	}
	return reg, nil
}

// OpenStore opens the configured database with the configured models.
func (o *RootOptions) OpenStore() (*store.Store, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	reg, err := o.Registry()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(cfg.Database.Path, reg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", cfg.Database.Path), err)
	}
	return s, nil
}

// NewRootCommand creates the root command for the orgadmin CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	var logCloser io.Closer

	cmd := &cobra.Command{
		Use:   "orgadmin",
		Short: "Organization points and membership administration",
		Long: `Administer campus organizations: distribute points on schedule,
run bulk membership actions, and query the data with lookup chains
such as "person.person_id.username".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := opts.Config()
			if err != nil {
				return err
			}
			_, logCloser = logging.Setup(logging.Options{
				Level:   cfg.LogLevel(),
				Console: os.Stderr,
				File:    cfg.Log.File,
			})
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database path (default from config)")
	cmd.PersistentFlags().StringVar(&opts.Models, "models", "", "CUE model definitions (default built-in)")

	cmd.AddCommand(NewModelsCommand(opts))
	cmd.AddCommand(NewPathCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewDistributeCommand(opts))
	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewAdminCommand(opts))
	cmd.AddCommand(NewManagersCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// newFormatter returns a formatter writing to the command's streams.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
