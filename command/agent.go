package command

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/policywatch/policywatch/agent"
	"github.com/policywatch/policywatch/agent/config"
	agentHTTP "github.com/policywatch/policywatch/agent/http"
	flaghelper "github.com/policywatch/policywatch/sdk/helper/flag"
	"github.com/policywatch/policywatch/version"
)

type AgentCommand struct {
	Ctx context.Context

	args []string

	agent      *agent.Agent
	httpServer *agentHTTP.Server
}

// Help should return long-form help text that includes the command-line
// usage, a brief few sentences explaining the function of the command,
// and the complete list of flags the command accepts.
func (c *AgentCommand) Help() string {
	helpText := `
Usage: policywatch agent [options] [args]

  Starts the policywatch agent and runs until an interrupt is received.
  The agent checks the configured policy sources on their daily and
  weekly cadences, records detected changes and dispatches email alerts
  to matching route subscriptions.

  The agent's configuration primarily comes from the config files used,
  but a subset of the options may also be passed directly as CLI
  arguments, listed below.

Options:

  -config=<path>
    The path to either a single config file or a directory of config
    files to use for configuring the policywatch agent.

  -log-level=<level>
    Specify the verbosity level of policywatch's logs. Valid values
    include DEBUG, INFO, and WARN, in decreasing order of verbosity. The
    default is INFO.

  -log-json
    Output logs in a JSON format. The default is false.

  -enable-debug
    Enable the agent debugging HTTP endpoints. The default is false.

HTTP Options:

  -http-bind-address=<addr>
    The HTTP address that the health server will bind to. The default is
    127.0.0.1.

  -http-bind-port=<port>
    The port that the health server will bind to. The default is 8080.

Storage Options:

  -postgres-dsn=<dsn>
    The Postgres connection string. When empty, the agent keeps all
    state in memory and loses it on restart.

Fetch Options:

  -fetch-user-agent=<ua>
    The User-Agent header sent on retrieval requests.

  -fetch-timeout=<dur>
    The deadline of a single HTTP request attempt. The default is 30s.

  -fetch-max-retries=<num>
    The number of attempts for retryable failures. The default is 3.

  -fetch-retry-base=<dur>
    The base delay of the exponential backoff between attempts. The
    default is 1s.

  -fetch-disable-robots
    Skip robots.txt consultation before requests.

Scheduler Options:

  -scheduler-workers=<num>
    The number of sources checked concurrently. The default is 8.

  -scheduler-source-deadline=<dur>
    The wall time cap for processing a single source, fetch retries
    included. The default is 2m.

  -scheduler-daily-interval=<dur>
    The tick interval of the daily cadence. The default is 24h.

  -scheduler-weekly-interval=<dur>
    The tick interval of the weekly cadence. The default is 168h.

Alert Options:

  -alert-from-address=<addr>
    The sender address stamped on alert emails.

  -alert-diff-truncate=<num>
    The maximum diff excerpt length included in alert bodies. The
    default is 4000.

Telemetry Options:

  -telemetry-disable-hostname
    Specifies whether gauge values should be prefixed with the local
    hostname.

  -telemetry-enable-hostname-label
    Enable adding hostname to metric labels.

  -telemetry-statsite-address=<addr>
    The address of the statsite aggregation server.

  -telemetry-statsd-address=<addr>
    The address of the statsd aggregation server.

  -telemetry-dogstatsd-address=<addr>
    The address of the Datadog statsd server.

  -telemetry-dogstatsd-tags=<tag_list>
    A list of global tags that will be added to all telemetry packets
    sent to DogStatsD.

  -telemetry-prometheus-metrics
    Indicates whether the agent should make Prometheus formatted metrics
    available. Defaults to false.

  -telemetry-prometheus-retention-time=<dur>
    The time to retain Prometheus metrics before they are expired and
    untracked.
`
	return strings.TrimSpace(helpText)
}

// Synopsis should return a one-line, short synopsis of the command.
// This should be less than 50 characters ideally.
func (c *AgentCommand) Synopsis() string {
	return "Runs a policywatch agent"
}

// Run should run the actual command with the given CLI instance and
// command-line arguments. It should return the exit status when it is
// finished.
func (c *AgentCommand) Run(args []string) int {

	c.args = args

	parsedConfig, configPaths := c.readConfig()
	if parsedConfig == nil {
		fmt.Println("Run 'policywatch agent --help' for more information.")
		return 1
	}

	// Create the agent logger.
	logger := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:       "agent",
		Level:      hclog.LevelFromString(parsedConfig.LogLevel),
		JSONFormat: parsedConfig.LogJson,
	})

	logger.Info("Starting policywatch agent")

	// Compile agent information for output later
	info := make(map[string]string)
	info["bind addrs"] = fmt.Sprintf("%s:%d", parsedConfig.HTTP.BindAddress, parsedConfig.HTTP.BindPort)
	info["log level"] = parsedConfig.LogLevel
	info["version"] = version.GetHumanVersion()
	if parsedConfig.Postgres.DSN != "" {
		info["storage"] = "postgres"
	} else {
		info["storage"] = "memory"
	}

	// Sort the keys for output
	infoKeys := make([]string, 0, len(info))
	for key := range info {
		infoKeys = append(infoKeys, key)
	}
	sort.Strings(infoKeys)

	// Agent configuration output
	padding := 18
	logger.Info("policywatch agent configuration:")
	logger.Info("")
	for _, k := range infoKeys {
		logger.Info(fmt.Sprintf(
			"%s%s: %s",
			strings.Repeat(" ", padding-len(k)),
			strings.ToUpper(k[:1])+k[1:],
			info[k]))
	}
	logger.Info("")
	logger.Info("policywatch agent started! Log data will stream in below:")

	// create and run agent and HTTP server
	c.agent = agent.NewAgent(parsedConfig, configPaths, logger)
	httpServer, err := agentHTTP.NewHTTPServer(
		parsedConfig.EnableDebug, parsedConfig.Telemetry.PrometheusMetrics, parsedConfig.HTTP, logger, c.agent)
	if err != nil {
		logger.Error("failed to setup HTTP server", "error", err)
		return 1
	}

	c.httpServer = httpServer
	go c.httpServer.Start()
	defer c.httpServer.Stop()

	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if err := c.agent.Run(ctx); err != nil {
		logger.Error("failed to start agent", "error", err)
		return 1
	}
	return 0
}

func (c *AgentCommand) readConfig() (*config.Agent, []string) {
	var configPath []string

	// cmdConfig is used to store any passed CLI flags.
	cmdConfig := &config.Agent{
		HTTP:      &config.HTTP{},
		Postgres:  &config.Postgres{},
		Fetch:     &config.Fetch{},
		Scheduler: &config.Scheduler{},
		Alert:     &config.Alert{},
		Telemetry: &config.Telemetry{},
	}

	flags := flag.NewFlagSet("agent", flag.ContinueOnError)
	flags.Usage = func() { c.Help() }

	// Specify our top level CLI flags.
	flags.Var((*flaghelper.StringFlag)(&configPath), "config", "")
	flags.StringVar(&cmdConfig.LogLevel, "log-level", "", "")
	flags.BoolVar(&cmdConfig.LogJson, "log-json", false, "")
	flags.BoolVar(&cmdConfig.EnableDebug, "enable-debug", false, "")

	// Specify our HTTP bind flags.
	flags.StringVar(&cmdConfig.HTTP.BindAddress, "http-bind-address", "", "")
	flags.IntVar(&cmdConfig.HTTP.BindPort, "http-bind-port", 0, "")

	// Specify our storage flags.
	flags.StringVar(&cmdConfig.Postgres.DSN, "postgres-dsn", "", "")

	// Specify our fetch client flags.
	flags.StringVar(&cmdConfig.Fetch.UserAgent, "fetch-user-agent", "", "")
	flags.Var((flaghelper.FuncDurationVar)(func(d time.Duration) error {
		cmdConfig.Fetch.Timeout = d
		return nil
	}), "fetch-timeout", "")
	var fetchMaxRetries int
	flags.IntVar(&fetchMaxRetries, "fetch-max-retries", 0, "")
	flags.Var((flaghelper.FuncDurationVar)(func(d time.Duration) error {
		cmdConfig.Fetch.RetryBase = d
		return nil
	}), "fetch-retry-base", "")
	flags.BoolVar(&cmdConfig.Fetch.DisableRobots, "fetch-disable-robots", false, "")

	// Specify our scheduler flags.
	var schedulerWorkers int
	flags.IntVar(&schedulerWorkers, "scheduler-workers", 0, "")
	flags.Var((flaghelper.FuncDurationVar)(func(d time.Duration) error {
		cmdConfig.Scheduler.SourceDeadline = d
		return nil
	}), "scheduler-source-deadline", "")
	flags.Var((flaghelper.FuncDurationVar)(func(d time.Duration) error {
		cmdConfig.Scheduler.DailyInterval = d
		return nil
	}), "scheduler-daily-interval", "")
	flags.Var((flaghelper.FuncDurationVar)(func(d time.Duration) error {
		cmdConfig.Scheduler.WeeklyInterval = d
		return nil
	}), "scheduler-weekly-interval", "")

	// Specify our alert flags.
	flags.StringVar(&cmdConfig.Alert.FromAddress, "alert-from-address", "", "")
	flags.IntVar(&cmdConfig.Alert.DiffTruncate, "alert-diff-truncate", 0, "")

	// Specify our Telemetry CLI flags.
	flags.BoolVar(&cmdConfig.Telemetry.DisableHostname, "telemetry-disable-hostname", false, "")
	flags.BoolVar(&cmdConfig.Telemetry.EnableHostnameLabel, "telemetry-enable-hostname-label", false, "")
	flags.StringVar(&cmdConfig.Telemetry.StatsiteAddr, "telemetry-statsite-address", "", "")
	flags.StringVar(&cmdConfig.Telemetry.StatsdAddr, "telemetry-statsd-address", "", "")
	flags.StringVar(&cmdConfig.Telemetry.DogStatsDAddr, "telemetry-dogstatsd-address", "", "")
	flags.Var((*flaghelper.StringFlag)(&cmdConfig.Telemetry.DogStatsDTags), "telemetry-dogstatsd-tags", "")
	flags.BoolVar(&cmdConfig.Telemetry.PrometheusMetrics, "telemetry-prometheus-metrics", false, "")
	flags.Var((flaghelper.FuncDurationVar)(func(d time.Duration) error {
		cmdConfig.Telemetry.PrometheusRetentionTime = d
		return nil
	}), "telemetry-prometheus-retention-time", "")

	if err := flags.Parse(c.args); err != nil {
		return nil, configPath
	}

	if fetchMaxRetries != 0 {
		cmdConfig.Fetch.MaxRetriesPtr = &fetchMaxRetries
		cmdConfig.Fetch.MaxRetries = fetchMaxRetries
	}
	if schedulerWorkers != 0 {
		cmdConfig.Scheduler.WorkersPtr = &schedulerWorkers
		cmdConfig.Scheduler.Workers = schedulerWorkers
	}

	// Validate config values from flags.
	if err := cmdConfig.Validate(); err != nil {
		fmt.Printf("%s\n", err)
		return nil, configPath
	}

	fileConfig, err := config.LoadPaths(configPath)
	if err != nil {
		fmt.Printf("%s\n", err)
		return nil, configPath
	}

	return fileConfig.Merge(cmdConfig), configPath
}
