package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/openattach/openattach/internal/config"
	"github.com/openattach/openattach/internal/control"
	"github.com/openattach/openattach/internal/session"
	"github.com/openattach/openattach/internal/supervisor"
)

var controlAddr string

var runCmd = &cobra.Command{
	Use:   "run <command> [args...]",
	Short: "Run a command under supervision",
	Long: `Run a command on a pseudo-terminal and supervise it.
Example: openattach run agent --verbose

The supervisor exits with the child's own exit code, 130/143 on
interrupt/terminate, or 1 if a restart sequence fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if controlAddr != "" {
			cfg.ControlAddr = controlAddr
		}

		mgr := session.NewManager()
		sup := supervisor.New(supervisor.Params{
			Config: cfg,
			Argv:   args,
			Spawn: func(argv []string, dir string, env []string, cols, rows uint16) (supervisor.Term, error) {
				return mgr.Spawn(argv, dir, env, cols, rows)
			},
			Exits:  mgr.Exits(),
			Mirror: os.Stdout,
		})

		if cfg.ControlAddr != "" {
			srv := control.NewServer(cfg, sup)
			go func() {
				if err := srv.Start(cfg.ControlAddr); err != nil {
					log.Printf("control: server stopped: %v", err)
				}
			}()
		}

		os.Exit(sup.Run())
		return nil
	},
}

// loadConfig reads the environment configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if rootDir != "" {
		cfg.Root = rootDir
	}
	if requestLog != "" {
		cfg.RequestLog = requestLog
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&controlAddr, "control-addr", "", "serve the HTTP control endpoint on this address (default: disabled)")
	// Stop parsing flags after the first non-flag arg so that arguments
	// like --verbose are passed to the supervised command, not interpreted
	// by Cobra.
	runCmd.Flags().SetInterspersed(false)
}
