package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/orgadmin/pkg/configuration"
	"github.com/iota-uz/orgadmin/pkg/logging"
	"github.com/iota-uz/orgadmin/pkg/orgtree/apiclient"
)

type globalOptions struct {
	BaseURL       string
	Timeout       time.Duration
	Authorization string
	PagePath      string
	JSON          bool
	Verbose       bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{
		BaseURL:  "http://localhost:3200",
		Timeout:  15 * time.Second,
		PagePath: "/admin/organizations",
	}
	if conf, err := configuration.Load(); err == nil {
		opts.BaseURL = conf.Org.APIBaseURL
		opts.Timeout = conf.Org.APITimeout
		opts.Authorization = conf.Org.APIAuthorization
		conf.Unload()
	}

	cmd := &cobra.Command{
		Use:           "orgctl",
		Short:         "Inspect and rearrange the organization tree through the admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", opts.BaseURL, "admin server base URL")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", opts.Timeout, "per-request timeout")
	cmd.PersistentFlags().StringVar(&opts.Authorization, "authorization", opts.Authorization, "Authorization header value to forward")
	cmd.PersistentFlags().StringVar(&opts.PagePath, "page", opts.PagePath, "HTML page the CSRF token is read from")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "print JSON instead of text")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log requests and notifications")

	cmd.AddCommand(newTreeCmd(opts))
	cmd.AddCommand(newDashboardCmd(opts))
	cmd.AddCommand(newReorderCmd(opts))
	cmd.AddCommand(newMoveCmd(opts))
	cmd.AddCommand(newCreateCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}

func (o *globalOptions) logger(w io.Writer) *logrus.Logger {
	level := logrus.WarnLevel
	if o.Verbose {
		level = logrus.DebugLevel
	}
	logger := logging.ConsoleLogger(level)
	logger.SetOutput(w)
	return logger
}

// connect builds an org client. Mutating commands pass withCSRF so the
// token is fetched before the first write.
func (o *globalOptions) connect(cmd *cobra.Command, withCSRF bool) (*apiclient.OrgClient, *logrus.Logger, error) {
	logger := o.logger(cmd.ErrOrStderr())
	client, err := apiclient.New(apiclient.Options{
		BaseURL:         o.BaseURL,
		Timeout:         o.Timeout,
		RequestIDHeader: "X-Request-ID",
		Authorization:   o.Authorization,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, withCode(exitUsage, err)
	}
	if withCSRF {
		if err := client.BootstrapCSRF(cmd.Context(), o.PagePath); err != nil {
			return nil, nil, classify(err)
		}
	}
	return apiclient.NewOrgClient(client), logger, nil
}

// classify maps client errors onto exit codes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var httpErr *apiclient.HTTPError
	var rejected *apiclient.RejectedError
	switch {
	case errors.As(err, &httpErr) && httpErr.Status >= 400 && httpErr.Status < 500:
		return withCode(exitRejected, err)
	case errors.As(err, &rejected):
		return withCode(exitRejected, err)
	default:
		return withCode(exitNetwork, err)
	}
}
