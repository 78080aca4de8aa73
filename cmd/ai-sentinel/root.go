package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ai-sentinel/internal/bootstrap"
)

var (
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	alertColor   = color.New(color.FgRed, color.Bold).SprintFunc()
)

type globalFlags struct {
	configPath string
	endpoint   string
	mode       string
	noDotEnv   bool
}

func (g *globalFlags) options() bootstrap.Options {
	return bootstrap.Options{
		ConfigPath: g.configPath,
		Endpoint:   g.endpoint,
		Mode:       g.mode,
		DotEnv:     !g.noDotEnv,
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "ai-sentinel",
		Short:         "Classify images as AI-generated or authentic",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to the YAML config file")
	root.PersistentFlags().StringVar(&flags.endpoint, "endpoint", "", "inference endpoint URL (implies --mode live)")
	root.PersistentFlags().StringVar(&flags.mode, "mode", "", "detector mode: live or simulated")
	root.PersistentFlags().BoolVar(&flags.noDotEnv, "no-dotenv", false, "do not load .env from the working directory")

	root.AddCommand(newServeCmd(flags), newAnalyzeCmd(flags), newTokenCmd(flags))
	return root
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bootstrap.Run(cmd.Context(), flags.options()); err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", alertColor("ai-sentinel failed:"), err)
				return err
			}
			return nil
		},
	}
}

func newTokenCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.New(cmd.Context(), flags.options())
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorColor("error:"), err)
				return err
			}
			defer app.Close()

			if app.Tokens == nil {
				err := fmt.Errorf("API auth is disabled; set server.auth.enabled and a secret")
				fmt.Fprintf(os.Stderr, "%s %v\n", warningColor("warning:"), err)
				return err
			}
			token, err := app.Tokens.GenerateToken(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorColor("error:"), err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
