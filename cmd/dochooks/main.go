package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/andreazorzetto/yh/highlight"
	"github.com/hokaccha/go-prettyjson"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gopkg.in/yaml.v3"

	sdk "go.opentelemetry.io/otel/sdk/metric"

	"github.com/looplj/dochooks/conf"
	"github.com/looplj/dochooks/internal/build"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/metrics"
	"github.com/looplj/dochooks/internal/server"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			handleConfigCommand()
			return
		case "version", "--version", "-v":
			showVersion()
			return
		case "help", "--help", "-h":
			showHelp()
			return
		case "build-info":
			showBuildInfo()
			return
		}
	}

	startServer()
}

func showBuildInfo() {
	fmt.Println(build.GetBuildInfo())
}

type logger struct{}

func (l *logger) LogEvent(event fxevent.Event) {
	log.Debug(context.Background(), "fx event", log.Any("event", event))
}

func startServer() {
	server.Run(
		fx.WithLogger(func() fxevent.Logger {
			return &logger{}
		}),
		fx.Provide(conf.Load),
		fx.Provide(metrics.NewProvider),
		fx.Invoke(func(lc fx.Lifecycle, provider *sdk.MeterProvider) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if provider != nil {
						return metrics.SetupMetrics(provider, build.Name)
					}

					return nil
				},
				OnStop: func(ctx context.Context) error {
					if provider != nil {
						return provider.Shutdown(ctx)
					}

					return nil
				},
			})
		}),
	)
}

func loadConfig() conf.Config {
	config, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	return config
}

func handleConfigCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: dochooks config <preview|validate|get>")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "preview":
		configPreview()
	case "validate":
		configValidate()
	case "get":
		configGet()
	default:
		fmt.Println("Usage: dochooks config <preview|validate|get>")
		os.Exit(1)
	}
}

func configPreview() {
	format := "yml"

	for i := 3; i < len(os.Args); i++ {
		if (os.Args[i] == "--format" || os.Args[i] == "-f") && i+1 < len(os.Args) {
			format = os.Args[i+1]
		}
	}

	config := loadConfig()

	var output string

	switch format {
	case "json":
		b, err := prettyjson.Marshal(config)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output = string(b)
	case "yml", "yaml":
		b, err := yaml.Marshal(config)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output, err = highlight.Highlight(bytes.NewBuffer(b))
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unsupported format: %s\n", format)
		os.Exit(1)
	}

	fmt.Println(output)
}

func configValidate() {
	errs := validateConfig(loadConfig())

	if len(errs) == 0 {
		fmt.Println("Configuration is valid!")
		return
	}

	fmt.Println("Configuration validation failed:")

	for _, err := range errs {
		fmt.Printf("  - %s\n", err)
	}

	os.Exit(1)
}

func configGet() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: dochooks config get <key>")
		fmt.Println("")
		fmt.Println("Available keys:")

		for _, key := range configKeys {
			fmt.Printf("  %s\n", key)
		}

		os.Exit(1)
	}

	value, ok := configValue(loadConfig(), os.Args[3])
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", os.Args[3])
		os.Exit(1)
	}

	fmt.Println(value)
}

func showHelp() {
	fmt.Println("dochooks: hook dispatch for document collections")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  dochooks                    Start the daemon (default)")
	fmt.Println("  dochooks config preview     Preview configuration")
	fmt.Println("  dochooks config validate    Validate configuration")
	fmt.Println("  dochooks config get <key>   Get a specific config value")
	fmt.Println("  dochooks version            Show version")
	fmt.Println("  dochooks build-info         Show build information")
	fmt.Println("  dochooks help               Show this help message")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -f, --format FORMAT        Output format for config preview (yml, json)")
}

func showVersion() {
	fmt.Println(build.Version)
}
