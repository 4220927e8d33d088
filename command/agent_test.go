package command

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/policywatch/policywatch/agent/config"
	"github.com/policywatch/policywatch/sdk/helper/ptr"
)

func TestCommandAgent_readConfig(t *testing.T) {
	defaultConfig, _ := config.Default()

	testCases := []struct {
		name string
		args []string
		want *config.Agent
	}{
		{
			name: "no args",
			want: defaultConfig,
		},
		{
			name: "top level flags",
			args: []string{
				"-log-level", "WARN",
				"-log-json",
				"-enable-debug",
			},
			want: defaultConfig.Merge(&config.Agent{
				LogLevel:    "WARN",
				LogJson:     true,
				EnableDebug: true,
			}),
		},
		{
			name: "http flags",
			args: []string{
				"-http-bind-address", "10.0.0.1",
				"-http-bind-port", "9999",
			},
			want: defaultConfig.Merge(&config.Agent{
				HTTP: &config.HTTP{
					BindAddress: "10.0.0.1",
					BindPort:    9999,
				},
			}),
		},
		{
			name: "storage flags",
			args: []string{
				"-postgres-dsn", "postgres://policywatch@db.example.com/policywatch",
			},
			want: defaultConfig.Merge(&config.Agent{
				Postgres: &config.Postgres{
					DSN: "postgres://policywatch@db.example.com/policywatch",
				},
			}),
		},
		{
			name: "fetch flags",
			args: []string{
				"-fetch-user-agent", "policywatch-test/9.9",
				"-fetch-timeout", "90s",
				"-fetch-max-retries", "7",
				"-fetch-retry-base", "5s",
				"-fetch-disable-robots",
			},
			want: defaultConfig.Merge(&config.Agent{
				Fetch: &config.Fetch{
					UserAgent:     "policywatch-test/9.9",
					Timeout:       90 * time.Second,
					MaxRetriesPtr: ptr.IntToPtr(7),
					MaxRetries:    7,
					RetryBase:     5 * time.Second,
					DisableRobots: true,
				},
			}),
		},
		{
			name: "scheduler flags",
			args: []string{
				"-scheduler-workers", "16",
				"-scheduler-source-deadline", "5m",
				"-scheduler-daily-interval", "6h",
				"-scheduler-weekly-interval", "48h",
			},
			want: defaultConfig.Merge(&config.Agent{
				Scheduler: &config.Scheduler{
					WorkersPtr:     ptr.IntToPtr(16),
					Workers:        16,
					SourceDeadline: 5 * time.Minute,
					DailyInterval:  6 * time.Hour,
					WeeklyInterval: 48 * time.Hour,
				},
			}),
		},
		{
			name: "alert flags",
			args: []string{
				"-alert-from-address", "noreply@example.com",
				"-alert-diff-truncate", "1500",
			},
			want: defaultConfig.Merge(&config.Agent{
				Alert: &config.Alert{
					FromAddress:  "noreply@example.com",
					DiffTruncate: 1500,
				},
			}),
		},
		{
			name: "telemetry flags",
			args: []string{
				"-telemetry-disable-hostname",
				"-telemetry-enable-hostname-label",
				"-telemetry-statsite-address", "statsite.example.com",
				"-telemetry-statsd-address", "statsd.example.com",
				"-telemetry-dogstatsd-address", "dogstatsd.example.com",
				"-telemetry-dogstatsd-tags", "my_tag_name1:my_tag_value1",
				"-telemetry-dogstatsd-tags", "my_tag_name2:my_tag_value2",
				"-telemetry-prometheus-metrics",
				"-telemetry-prometheus-retention-time", "14s",
			},
			want: defaultConfig.Merge(&config.Agent{
				Telemetry: &config.Telemetry{
					DisableHostname:         true,
					EnableHostnameLabel:     true,
					StatsiteAddr:            "statsite.example.com",
					StatsdAddr:              "statsd.example.com",
					DogStatsDAddr:           "dogstatsd.example.com",
					DogStatsDTags:           []string{"my_tag_name1:my_tag_value1", "my_tag_name2:my_tag_value2"},
					PrometheusMetrics:       true,
					PrometheusRetentionTime: 14 * time.Second,
				},
			}),
		},
		{
			name: "from file",
			args: []string{
				"-config", "./test-fixtures/agent_config_full.hcl",
			},
			want: defaultConfig.Merge(&config.Agent{
				LogLevel:    "TRACE",
				LogJson:     true,
				EnableDebug: true,
				HTTP: &config.HTTP{
					BindAddress: "10.0.0.2",
					BindPort:    8888,
				},
				Postgres: &config.Postgres{
					DSN: "postgres://policywatch@db_from_file.example.com/policywatch?sslmode=disable",
				},
				Fetch: &config.Fetch{
					UserAgent:        "policywatch-from-file/1.0",
					Timeout:          45 * time.Second,
					MaxRetriesPtr:    ptr.IntToPtr(5),
					MaxRetries:       5,
					RetryBase:        2 * time.Second,
					RateLimitPerHost: 0.5,
					DisableRobots:    true,
					DefaultHeaders: map[string]string{
						"Accept-Language": "en-GB",
					},
				},
				Scheduler: &config.Scheduler{
					WorkersPtr:     ptr.IntToPtr(12),
					Workers:        12,
					SourceDeadline: 3 * time.Minute,
					DailyInterval:  12 * time.Hour,
					WeeklyInterval: 72 * time.Hour,
				},
				Alert: &config.Alert{
					Provider:     "log",
					FromAddress:  "alerts_from_file@example.com",
					DiffTruncate: 2000,
				},
				Telemetry: &config.Telemetry{
					DisableHostname:         true,
					EnableHostnameLabel:     true,
					StatsiteAddr:            "statsite_from_file.example.com",
					StatsdAddr:              "statsd_from_file.example.com",
					DogStatsDAddr:           "dogstatsd_from_file.example.com",
					DogStatsDTags:           []string{"tag_from_file:value"},
					PrometheusMetrics:       true,
					PrometheusRetentionTime: 30 * time.Second,
				},
			}),
		},
		{
			name: "flags override files",
			args: []string{
				"-log-level", "TRACE",
				"-config", "./test-fixtures/agent_config_small.hcl",
			},
			want: defaultConfig.Merge(&config.Agent{
				LogLevel: "TRACE",
			}),
		},
		{
			name: "flags merge with files",
			args: []string{
				"-log-json",
				"-config", "./test-fixtures/agent_config_small.hcl",
			},
			want: defaultConfig.Merge(&config.Agent{
				LogLevel: "ERROR",
				LogJson:  true,
			}),
		},
		{
			name: "multiple files are merged",
			args: []string{
				"-config", "./test-fixtures/agent_config_small.hcl",
				"-config", "./test-fixtures/agent_config_small_2.hcl",
			},
			want: defaultConfig.Merge(&config.Agent{
				LogLevel: "ERROR",
				LogJson:  true,
			}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &AgentCommand{args: tc.args}
			got, _ := c.readConfig()

			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("readConfig() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
