package initcmd

import (
	"fmt"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	infraconfig "github.com/YoshitsuguKoike/storyrelay/internal/infra/config"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// SettingFileName is the file written by init
const SettingFileName = "setting.yml"

// NewCommand creates the init command
func NewCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the storyrelay home with a default setting file",
		Long: `Create the storyrelay home directory and write setting.yml holding every
default plus two sample agents. An existing setting file is kept unless --force is set.`,
		Annotations: map[string]string{common.AnnotationSkipConfig: "true"},
		RunE: func(c *cobra.Command, _ []string) error {
			return runInit(c, common.GetFs(), common.GetHome(), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing setting file")

	return cmd
}

func runInit(c *cobra.Command, fs afero.Fs, home string, force bool) error {
	if home == "" {
		home = infraconfig.DefaultHome
	}
	if err := fs.MkdirAll(home, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create home directory", goerr.V("home", home))
	}

	settingPath := filepath.Join(home, SettingFileName)
	exists, err := afero.Exists(fs, settingPath)
	if err != nil {
		return goerr.Wrap(err, "failed to check setting file", goerr.V("path", settingPath))
	}
	if exists && !force {
		fmt.Fprintf(c.OutOrStdout(), "SKIP: %s (exists; use --force to overwrite)\n", settingPath)
		return nil
	}

	content, err := infraconfig.CreateDefaultSettings(home)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, settingPath, content, 0o600); err != nil {
		return goerr.Wrap(err, "failed to write setting file", goerr.V("path", settingPath))
	}

	action := "CREATE"
	if exists {
		action = "OVERWRITE"
	}
	fmt.Fprintf(c.OutOrStdout(), "%s: %s\n", action, settingPath)
	return nil
}
