package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/phantomctl/internal/observability"
	"github.com/xkilldash9x/phantomctl/internal/stub"
)

// newStubCmd creates the `stub` command.
func newStubCmd(v *viper.Viper) *cobra.Command {
	stubCmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve a stub PhantomJS WebDriver session for local testing",
		Long: `Serve a single stub PhantomJS session that answers the phantom execute
commands with an embedded JavaScript runtime. It runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			srv := stub.NewServer(stub.Config{
				SessionID:     cfg.Stub.SessionID,
				Title:         cfg.Stub.Title,
				W3COnly:       cfg.Stub.W3COnly,
				ScriptTimeout: cfg.WebDriver.Timeout,
			}, observability.GetLogger())
			return srv.ListenAndServe(cmd.Context(), cfg.Stub.Addr)
		},
	}

	flags := stubCmd.Flags()
	flags.String("addr", "", "listen address (default from config: 127.0.0.1:8910)")
	flags.String("session", "", "session id to serve (generated when empty)")
	flags.String("title", "", "document.title seen by scripts")
	flags.Bool("w3c-only", false, "reject the legacy execute endpoint like a W3C-only server")

	_ = v.BindPFlag("stub.addr", flags.Lookup("addr"))
	_ = v.BindPFlag("stub.session_id", flags.Lookup("session"))
	_ = v.BindPFlag("stub.title", flags.Lookup("title"))
	_ = v.BindPFlag("stub.w3c_only", flags.Lookup("w3c-only"))

	return stubCmd
}
