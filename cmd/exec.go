package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phantomctl/internal/config"
	"github.com/xkilldash9x/phantomctl/internal/network"
	"github.com/xkilldash9x/phantomctl/internal/observability"
	"github.com/xkilldash9x/phantomctl/internal/protocol"
	"github.com/xkilldash9x/phantomctl/internal/script"
	"github.com/xkilldash9x/phantomctl/internal/webdriver"
)

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

type execOptions struct {
	asFunction bool
	rawArgs    []string
}

// newExecCmd creates the `exec` command.
func newExecCmd(v *viper.Viper) *cobra.Command {
	opts := &execOptions{}

	execCmd := &cobra.Command{
		Use:   "exec [script]",
		Short: "Execute a script in the PhantomJS context of a session",
		Long: `Execute a script in the PhantomJS context (not the page) of a WebDriver session.

The script is a function body that reads its arguments through the arguments
object, or function source when --function is given. With no script argument,
or with "-", the script is read from stdin. The result value is printed as JSON.`,
		Example: `  phantomctl exec --session 1a2b 'return document.title'
  phantomctl exec -f --arg '"./mydoc.pdf"' 'function (path) { page.render(path); return "done" }'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			source, err := readScript(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			scriptArgs, err := parseScriptArgs(opts.rawArgs)
			if err != nil {
				return err
			}

			var input interface{} = source
			if opts.asFunction {
				input = script.Function(source)
			}
			return runExec(cmd.Context(), cfg, input, scriptArgs, cmd.OutOrStdout())
		},
	}

	flags := execCmd.Flags()
	flags.String("url", "", "WebDriver server URL (default from config: http://127.0.0.1:8910)")
	flags.String("session", "", "session id to execute in")
	flags.Duration("timeout", 0, "overall timeout of one command")
	flags.Bool("multi-session", false, `also wrap string scripts starting with "function ("`)
	flags.BoolVarP(&opts.asFunction, "function", "f", false, "treat the script as function source and apply it to the arguments")
	flags.StringArrayVarP(&opts.rawArgs, "arg", "a", nil, "script argument as a JSON value (repeatable)")

	// Flags override the config file and environment.
	_ = v.BindPFlag("webdriver.url", flags.Lookup("url"))
	_ = v.BindPFlag("webdriver.session_id", flags.Lookup("session"))
	_ = v.BindPFlag("webdriver.timeout", flags.Lookup("timeout"))
	_ = v.BindPFlag("webdriver.multi_session", flags.Lookup("multi-session"))

	return execCmd
}

func readScript(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading script from stdin: %w", err)
	}
	source := strings.TrimSpace(string(raw))
	if source == "" {
		return "", fmt.Errorf("no script given")
	}
	return source, nil
}

// parseScriptArgs decodes each raw argument as a JSON value.
func parseScriptArgs(raw []string) ([]interface{}, error) {
	args := make([]interface{}, 0, len(raw))
	for i, r := range raw {
		var value interface{}
		if err := wire.UnmarshalFromString(r, &value); err != nil {
			return nil, fmt.Errorf("--arg #%d is not a JSON value (quote strings, e.g. '\"text\"'): %w", i+1, err)
		}
		args = append(args, value)
	}
	return args, nil
}

func runExec(ctx context.Context, cfg *config.Config, input interface{}, args []interface{}, out io.Writer) error {
	logger := observability.GetLogger()

	clientConfig, err := network.ClientConfigFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	httpClient := network.NewClient(clientConfig)
	defer httpClient.CloseIdleConnections()

	handler, err := webdriver.NewRequestHandler(webdriver.Options{
		BaseURL:   cfg.WebDriver.URL,
		SessionID: cfg.WebDriver.SessionID,
		UserAgent: cfg.WebDriver.UserAgent,
		RateLimit: cfg.WebDriver.RateLimit,
		Client:    httpClient,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	client := protocol.NewClient(handler,
		protocol.WithFunctionStrings(cfg.WebDriver.MultiSession),
		protocol.WithLogger(logger))

	logger.Debug("Executing PhantomJS script",
		zap.String("url", cfg.WebDriver.URL),
		zap.String("session_id", cfg.WebDriver.SessionID),
		zap.Int("args", len(args)))

	result, err := client.ExecutePhantomJS(ctx, input, args...)
	if err != nil {
		return err
	}
	return printValue(out, result)
}

func printValue(out io.Writer, result *webdriver.CommandResult) error {
	var value interface{}
	if len(result.Value) > 0 {
		if err := result.DecodeValue(&value); err != nil {
			return err
		}
	}
	pretty, err := wire.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting result: %w", err)
	}
	_, err = fmt.Fprintln(out, string(pretty))
	return err
}
