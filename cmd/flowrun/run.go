package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kode4food/argyll/worker/internal/config"
	"github.com/kode4food/argyll/worker/internal/engine"
	"github.com/kode4food/argyll/worker/internal/services"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/log"
)

const localServerURL = "http://localhost:8080/"

var ErrRunFailed = errors.New("run did not succeed")

func (c *cli) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <flow-file>",
		Short: "Execute a flow from its trigger and print the run result",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run,
	}
	cmd.Flags().StringVar(&c.payload, "payload", "",
		"JSON file holding the trigger payload")
	cmd.Flags().StringArrayVar(&c.sets, "set", nil,
		"set a trigger payload field as path=value, repeatable")
	return cmd
}

func (c *cli) stepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step <flow-file> <step-name>",
		Short: "Execute a single step against sample outputs",
		Args:  cobra.ExactArgs(2),
		RunE:  c.step,
	}
	cmd.Flags().StringVar(&c.samples, "samples", "",
		"JSON file mapping step names to sample step outputs")
	cmd.Flags().StringVar(&c.payload, "payload", "",
		"JSON file holding the sample trigger payload")
	cmd.Flags().StringArrayVar(&c.sets, "set", nil,
		"set a trigger payload field as path=value, repeatable")
	return cmd
}

func (c *cli) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <flow-file>",
		Short: "Parse and validate a flow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fv, err := loadFlow(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "flow %q is valid\n", fv.ID)
			return err
		},
	}
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	fv, err := loadFlow(args[0])
	if err != nil {
		return err
	}
	payload, err := c.triggerPayload()
	if err != nil {
		return err
	}
	eng, err := c.newEngine()
	if err != nil {
		return err
	}

	res, err := eng.ExecuteFlow(cmd.Context(), &api.ExecuteFlowInput{
		RunID:              uuid.NewString(),
		FlowVersion:        *fv,
		ServerURL:          localServerURL,
		ExecutionType:      api.ExecutionBegin,
		TriggerPayload:     payload,
		ProgressUpdateType: api.ProgressNone,
	})
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}

	switch res.Status {
	case api.RunSucceeded, api.RunStopped, api.RunPaused:
		return nil
	default:
		slog.Error("Run did not succeed",
			log.RunID(res.RunID),
			log.Status(res.Status))
		return fmt.Errorf("%w: %s", ErrRunFailed, res.Status)
	}
}

func (c *cli) step(cmd *cobra.Command, args []string) error {
	fv, err := loadFlow(args[0])
	if err != nil {
		return err
	}
	samples := map[string]*api.StepOutput{}
	if c.samples != "" {
		data, err := os.ReadFile(c.samples)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &samples); err != nil {
			return err
		}
	}
	if _, ok := samples[api.TriggerStepName]; !ok {
		payload, err := c.triggerPayload()
		if err != nil {
			return err
		}
		samples[api.TriggerStepName] = api.NewStepOutput(
			api.ActionTrigger, nil,
		).SetOutput(payload).SetStatus(api.StepSucceeded)
	}
	eng, err := c.newEngine()
	if err != nil {
		return err
	}

	out, err := eng.ExecuteStep(cmd.Context(), &api.ExecuteStepInput{
		FlowVersion: *fv,
		StepName:    args[1],
		SampleData:  samples,
		ServerURL:   localServerURL,
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func (c *cli) triggerPayload() (any, error) {
	var base []byte
	if c.payload != "" {
		data, err := os.ReadFile(c.payload)
		if err != nil {
			return nil, err
		}
		base = data
	}
	return buildPayload(base, c.sets)
}

func (c *cli) newEngine() (*engine.Engine, error) {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = c.logLevel
	cfg.CodeDirectory = c.codeDir
	cfg.SandboxMode = config.SandboxMode(c.sandbox)
	cfg.Expressions = config.ExpressionLanguage(c.exprLang)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conns, err := parseConnections(c.connection)
	if err != nil {
		return nil, err
	}
	return engine.New(cfg, engine.Dependencies{
		Connections: services.NewStaticConnections(conns),
	}), nil
}

func loadFlow(path string) (*api.FlowVersion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return api.ParseFlowVersion(data)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
