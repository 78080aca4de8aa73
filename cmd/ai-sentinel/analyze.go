package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"ai-sentinel/internal/bootstrap"
	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/domain/eventbus"
	"ai-sentinel/internal/domain/image"
	"ai-sentinel/internal/utils"
)

func newAnalyzeCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one image and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.New(ctx, flags.options())
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorColor("error:"), err)
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			result, err := analyzeFile(ctx, app, args[0], out, !asJSON)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", alertColor("analysis failed:"), err)
				return err
			}
			if asJSON {
				payload, err := sonic.ConfigStd.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(payload))
				return nil
			}
			printVerdict(out, result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON instead of text")
	return cmd
}

func analyzeFile(ctx context.Context, app *bootstrap.App, path string, out io.Writer, live bool) (*detection.DetectionResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	sel, err := app.Pipeline.Select(ctx, image.Input{Reader: file, Name: path})
	if err != nil {
		return nil, err
	}
	if err := app.Machine.Select(sel); err != nil {
		return nil, err
	}

	if live {
		fmt.Fprintf(out, "%s %s (%s, %s)\n", infoColor("analyzing"), sel.Name, sel.MediaType, utils.FormatMegabytes(sel.Size))
		if sel.Risk != "" {
			fmt.Fprintf(out, "%s %s\n", warningColor("warning:"), sel.Risk)
		}
		if err := app.Bus.Subscribe(eventbus.TopicAnalyzerStage, func(event eventbus.AnalyzerEvent) {
			if event.Stage != nil {
				fmt.Fprintf(out, "  %s %s\n", infoColor(fmt.Sprintf("[%3.0f%%]", event.Stage.Progress)), event.LogLine)
			}
		}); err != nil {
			return nil, err
		}
	}

	run, err := app.Machine.Submit(ctx)
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			app.Machine.Reset()
		case <-run.Done():
		}
	}()
	return run.Wait(context.Background())
}

func printVerdict(out io.Writer, result *detection.DetectionResult) {
	verdict := successColor(result.Verdict())
	if result.IsAIGenerated {
		verdict = alertColor(result.Verdict())
	}
	fmt.Fprintf(out, "\n%s %s  confidence %.1f%%\n", "verdict:", verdict, result.Confidence)
	fmt.Fprintf(out, "%s %s\n", "details:", result.Details)
	md := result.Metadata
	fmt.Fprintf(out, "lighting=%s grain=%s compression=%s resolution=%s\n", md.Lighting, md.Grain, md.Compression, md.Resolution)
	if result.Mode == detection.ModeSimulated {
		fmt.Fprintln(out, warningColor("simulated result: no inference endpoint was consulted"))
	}
}
