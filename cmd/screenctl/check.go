package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"propertyvet/internal/platform/config"
	"propertyvet/internal/platform/logger"
	"propertyvet/internal/screening/dispatcher"
	"propertyvet/internal/screening/engine"
	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/providers"
	"propertyvet/internal/screening/providers/simulated"
	"propertyvet/internal/screening/publish"
	"propertyvet/internal/screening/ratelimit"
	"propertyvet/internal/screening/service"
	"propertyvet/pkg/platform/privacy"
)

type checkOptions struct {
	id         string
	tier       string
	consent    bool
	propertyID string
	outDir     string
	subject    models.Subject
	latency    time.Duration
}

func newCheckCmd(root *rootOptions) *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Screen one applicant with the simulated providers and print the report",
		Example: `  screenctl check --tier premium --consent \
    --name "Ada Lovelace" --national-id 123-45-6789 --dob 1990-12-10 --address "1 Analytical Way"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			cfg.Log.Level = root.logLevel
			report, err := runCheck(cmd.Context(), cfg, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.id, "id", "", "check id (generated when empty)")
	f.StringVar(&opts.tier, "tier", string(models.TierStandard), "basic, standard, premium or enterprise")
	f.BoolVar(&opts.consent, "consent", false, "the applicant consented to screening")
	f.StringVar(&opts.propertyID, "property", "", "property the application is for")
	f.StringVar(&opts.outDir, "out", "", "also write the report to this directory")
	f.StringVar(&opts.subject.FullName, "name", "", "applicant full name")
	f.StringVar(&opts.subject.NationalID, "national-id", "", "applicant national id")
	f.StringVar(&opts.subject.DateOfBirth, "dob", "", "date of birth (YYYY-MM-DD)")
	f.StringVar(&opts.subject.Address, "address", "", "current address")
	f.StringVar(&opts.subject.Email, "email", "", "contact email")
	f.StringVar(&opts.subject.Phone, "phone", "", "contact phone")
	f.DurationVar(&opts.latency, "latency", 0, "simulated provider latency")
	return cmd
}

func runCheck(ctx context.Context, cfg config.Config, opts *checkOptions, logOut io.Writer) (models.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.NewWithWriter(logOut, cfg.Log.Level, cfg.Log.Format)

	registry := providers.NewRegistry()
	registry.MustRegister(simulated.Defaults(simulated.WithLatency(opts.latency))...)

	dcfg, err := engine.DispatcherConfig(cfg.Screening)
	if err != nil {
		return models.Report{}, err
	}
	weights, err := engine.Weights(cfg.Screening)
	if err != nil {
		return models.Report{}, err
	}
	decider, err := engine.Decider(cfg.Screening)
	if err != nil {
		return models.Report{}, err
	}
	key := cfg.Privacy.PseudonymKey
	if key == "" {
		key = "screenctl"
	}
	pseudonyms, err := privacy.New(key)
	if err != nil {
		return models.Report{}, err
	}

	limiter := ratelimit.NewMemory(engine.RateLimits(cfg.Screening))
	svcOpts := []service.Option{
		service.WithRegistry(registry),
		service.WithLimiter(limiter),
		service.WithPseudonymizer(pseudonyms),
		service.WithLogger(log),
	}
	var reports *publish.Publisher
	if opts.outDir != "" {
		file, err := publish.NewFileSink(opts.outDir)
		if err != nil {
			return models.Report{}, err
		}
		reports = publish.NewPublisher([]publish.Sink{file}, publish.WithLogger(log))
		svcOpts = append(svcOpts, service.WithPublisher(reports))
	}

	d := dispatcher.New(dcfg, registry, limiter, dispatcher.WithLogger(log))
	controller := service.New(engine.ControllerConfig(cfg.Screening), d, decider, weights, svcOpts...)

	id := opts.id
	if id == "" {
		id = uuid.NewString()
	}
	report, err := controller.Execute(ctx, models.CheckRequest{
		ID:         id,
		Tier:       models.Tier(opts.tier),
		Consent:    opts.consent,
		PropertyID: opts.propertyID,
		Subject:    opts.subject,
	})
	if reports != nil {
		if cerr := reports.Close(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("write report: %w", cerr)
		}
	}
	return report, err
}
