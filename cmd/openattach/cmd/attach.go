package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openattach/openattach/internal/pathcheck"
	"github.com/openattach/openattach/internal/requestlog"
)

var attachCmd = &cobra.Command{
	Use:   "attach <path>",
	Short: "Queue an image for the supervised session",
	Long: `Validate an image path and append it to the attach request log.
Example: openattach attach screenshots/error.png

The path must be relative, resolve inside the root directory, use an
allowed image extension (.png, .jpg, .jpeg, .webp), and exist. The
running supervisor picks the request up on the child's next restart;
this command never triggers a restart itself.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		validated, err := pathcheck.Validate(args[0], cfg.Root)
		if err != nil {
			return err
		}

		logPath := cfg.RequestLog
		if !filepath.IsAbs(logPath) {
			logPath = filepath.Join(cfg.Root, logPath)
		}
		if err := requestlog.Append(logPath, validated); err != nil {
			return err
		}

		fmt.Printf("queued %s\n", validated)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)
}
