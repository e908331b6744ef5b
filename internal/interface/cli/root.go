package cli

import (
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	infraconfig "github.com/YoshitsuguKoike/storyrelay/internal/infra/config"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/escalate"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/initcmd"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/memory"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/session"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/story"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/version"
)

// HomeEnv overrides the default home directory
const HomeEnv = "STORYRELAY_HOME"

func NewRoot() *cobra.Command {
	var (
		home       string
		output     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "storyrelay",
		Short: "Story files, memories and sessions for cooperating agents",
		Long: `storyrelay keeps the working context of cooperating agents in one place.
Story files carry a task across handovers, memories keep what agents learned
and sessions hold short-lived state. Escalations route a tool request to the
best available agent and record the handover on its story file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			if jsonOutput {
				output = common.OutputJSON
			}
			switch output {
			case common.OutputText, common.OutputJSON:
			default:
				return goerr.New("unknown output format", goerr.V("format", output))
			}
			common.SetOutputFormat(output)
			common.SetHome(home)

			if c.Annotations[common.AnnotationSkipConfig] != "" {
				return nil
			}

			// Priority: setting.yml > setting.toml > defaults
			cfg, err := infraconfig.LoadSettings(common.GetFs(), home)
			if err != nil {
				return err
			}
			common.SetGlobalConfig(cfg)
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}

	defaultHome := infraconfig.DefaultHome
	if env := os.Getenv(HomeEnv); env != "" {
		defaultHome = env
	}
	cmd.PersistentFlags().StringVar(&home, "home", defaultHome, "storyrelay home directory (env "+HomeEnv+")")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", common.OutputText, "Output format: text or json")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Shorthand for --output json")

	cmd.AddCommand(initcmd.NewCommand())
	cmd.AddCommand(version.NewCommand())
	cmd.AddCommand(story.NewStoryCommand())
	cmd.AddCommand(memory.NewMemoryCommand())
	cmd.AddCommand(session.NewSessionCommand())
	cmd.AddCommand(escalate.NewCommand())
	return cmd
}

// Execute runs the root command and returns the process exit code.
// Errors the presenter already showed are not printed again.
func Execute() int {
	root := NewRoot()
	if err := root.Execute(); err != nil {
		if !common.IsPresented(err) {
			fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		}
		return 1
	}
	return 0
}
