package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"movefines/internal/adapters/archive"
	"movefines/internal/adapters/digitalpost"
	"movefines/internal/adapters/eflyt"
	"movefines/internal/adapters/graph"
	"movefines/internal/adapters/nova"
	"movefines/internal/adapters/opener"
	"movefines/internal/adapters/sap"
	"movefines/internal/adapters/smtp"
	"movefines/internal/config"
	"movefines/internal/ports"
	"movefines/internal/repository"
	"movefines/internal/repository/queue"
	"movefines/internal/repository/steplog"
	"movefines/internal/services/fines"
	"movefines/internal/services/intake"
	"movefines/internal/services/robot"
)

type app struct {
	Runner *robot.Runner
	Intake *intake.Service
}

func migrate(ctx context.Context, cfg *config.Config) error {
	return errors.Join(
		cfg.S3.EnsureBucket(ctx),
		queue.NewRepo(cfg.Postgres, cfg.Robot.QueueTable).EnsureSchema(ctx),
		repository.NewTokenRepository(cfg.Postgres).EnsureSchema(ctx),
		steplog.NewJournal(cfg.Mongo).EnsureIndexes(ctx),
	)
}

// build creates the external sessions once; they are reused by every pass.
// ctx must outlive the passes since token refreshes use it.
func build(ctx context.Context, cfg *config.Config) (*app, error) {
	rc := cfg.Robot

	q := queue.NewRepo(cfg.Postgres, rc.QueueTable)
	journal := steplog.NewJournal(cfg.Mongo)
	store := archive.New(cfg.S3.Client, cfg.S3.Bucket, rc.ArchivePrefix)

	op := opener.NewCompoundOpener(
		opener.NewHTTPOpener(nil),
		opener.NewS3Opener(cfg.S3.Client),
		opener.NewLocalOpener(rc.TemplateRoot),
		cfg.S3.Bucket,
	)
	template, meta, err := ports.ReadFile(ctx, op, rc.TemplateLocation)
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", rc.TemplateLocation, err)
	}
	log.Printf("[ROBOT] template source=%s size=%d", meta.Source, len(template))

	ef, err := eflyt.New(rc.Eflyt, nil)
	if err != nil {
		return nil, fmt.Errorf("eflyt client: %w", err)
	}
	dp, err := digitalpost.New(rc.DigitalPost, nil)
	if err != nil {
		return nil, fmt.Errorf("digital post client: %w", err)
	}
	mailer := smtp.New(rc.SMTP)

	var mailbox ports.Mailbox
	if rc.Graph.TenantID != "" {
		mb, err := graph.Login(ctx, rc.Graph)
		if err != nil {
			return nil, fmt.Errorf("graph login: %w", err)
		}
		mailbox = mb
	} else {
		log.Printf("[ROBOT] GRAPH_TENANT_ID not set, inbox is not checked")
	}

	svc := intake.NewService(q, mailbox, mailer, store, intake.Config{
		QueueName:     rc.QueueName,
		ApprovedUsers: rc.ApprovedUsers,
	})

	steps := robot.NewSteps(robot.Systems{
		Addresses: ef,
		Cases:     nova.New(ctx, rc.Nova),
		Post:      dp,
		Ledger:    sap.New(rc.SAP, nil),
		Template:  template,
		Rates:     fines.Default,
		Contact:   rc.Contact,
	})
	rb := robot.New(q, journal, steps, robot.Options{
		QueueName:       rc.QueueName,
		MaxIterations:   rc.MaxIterations,
		TimeBudget:      rc.TimeBudget,
		InvoiceCooldown: rc.InvoiceCooldown,
	})

	return &app{
		Runner: &robot.Runner{
			Robot:      rb,
			Intake:     svc,
			Reporter:   svc,
			Mailer:     mailer,
			ErrorEmail: rc.ErrorEmail,
			MaxRetries: rc.MaxRetries,
		},
		Intake: svc,
	}, nil
}
