package command

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/policywatch/policywatch/agent"
	"github.com/policywatch/policywatch/agent/config"
	"github.com/policywatch/policywatch/sdk"
	flaghelper "github.com/policywatch/policywatch/sdk/helper/flag"
)

type RunCommand struct {
	Ctx    context.Context
	Logger hclog.Logger
}

type runCommandArgs struct {
	configPaths []string
	cadence     string
	logLevel    string
}

// Help should return long-form help text that includes the command-line
// usage, a brief few sentences explaining the function of the command,
// and the complete list of flags the command accepts.
func (c *RunCommand) Help() string {
	helpText := `
Usage: policywatch run [options] [args]

  Executes a single check cycle over the selected cadence and exits.
  Intended for cron-driven deployments and manual runs.

Options:

  -config=<path>
    The path to either a single config file or a directory of config
    files to use for configuring the policywatch agent.

  -cadence=<daily|weekly|all>
    The cadence to run. The default is daily.

  -log-level=<level>
    Specify the verbosity level of policywatch's logs. The default is
    INFO.
`
	return strings.TrimSpace(helpText)
}

// Synopsis should return a one-line, short synopsis of the command.
// This should be less than 50 characters ideally.
func (c *RunCommand) Synopsis() string {
	return "Runs a single check cycle and exits"
}

// Run should run the actual command with the given CLI instance and
// command-line arguments. It should return the exit status when it is
// finished.
func (c *RunCommand) Run(args []string) int {
	cArgs, err := c.parseFlags(args)
	if err != nil {
		fmt.Println(err)
		return 1
	}

	var cadences []sdk.CheckFrequency
	switch cArgs.cadence {
	case "daily":
		cadences = []sdk.CheckFrequency{sdk.CheckFrequencyDaily}
	case "weekly":
		cadences = []sdk.CheckFrequency{sdk.CheckFrequencyWeekly}
	case "all":
		cadences = []sdk.CheckFrequency{sdk.CheckFrequencyDaily, sdk.CheckFrequencyWeekly}
	default:
		fmt.Printf("invalid cadence %q, expected daily, weekly or all\n", cArgs.cadence)
		return 1
	}

	cfg, err := config.LoadPaths(cArgs.configPaths)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	if cArgs.logLevel != "" {
		cfg.LogLevel = cArgs.logLevel
	}

	logger := c.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:       "policywatch",
			Level:      hclog.LevelFromString(cfg.LogLevel),
			JSONFormat: cfg.LogJson,
		})
	}

	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	a := agent.NewAgent(cfg, cArgs.configPaths, logger)
	if err := a.Setup(ctx); err != nil {
		logger.Error("failed to setup agent", "error", err)
		return 1
	}

	exit := 0
	for _, cadence := range cadences {
		result, err := a.RunOnce(ctx, cadence)
		if err != nil {
			logger.Error("check cycle failed", "cadence", cadence, "error", err)
			exit = 1
			continue
		}

		logger.Info("check cycle complete", "cadence", cadence,
			"processed", result.SourcesProcessed,
			"succeeded", result.SourcesSucceeded,
			"failed", result.SourcesFailed,
			"changes", result.ChangesDetected,
			"alerts", result.AlertsSent)

		if result.SourcesFailed > 0 {
			exit = 1
		}
	}
	return exit
}

func (c *RunCommand) parseFlags(args []string) (*runCommandArgs, error) {
	cArgs := &runCommandArgs{}

	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	flags.Var((*flaghelper.StringFlag)(&cArgs.configPaths), "config", "")
	flags.StringVar(&cArgs.cadence, "cadence", "daily", "")
	flags.StringVar(&cArgs.logLevel, "log-level", "", "")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse CLI args: %v", err)
	}

	return cArgs, nil
}
