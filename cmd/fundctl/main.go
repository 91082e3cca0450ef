// Command fundctl is the operator CLI for fundflow: it seeds and toggles
// workflow steps, inspects fund request history and progress, replays dead
// outbox events and mints development tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	eventapp "github.com/erp/fundflow/internal/application/event"
	fundapp "github.com/erp/fundflow/internal/application/fundrequest"
	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/infrastructure/config"
	"github.com/erp/fundflow/internal/infrastructure/event"
	"github.com/erp/fundflow/internal/infrastructure/logger"
	"github.com/erp/fundflow/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// operatorID identifies changes made from the CLI in logs and history
var operatorID = uuid.MustParse("00000000-0000-0000-0000-00000000f00d")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what the subcommands share. Services are opened lazily so that
// commands such as token run without a database.
type app struct {
	logLevel string
	tenant   string
	output   string

	cfg *config.Config
	log *zap.Logger
	db  *persistence.Database
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "fundctl",
		Short:         "Operate the fund request workflow",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&a.tenant, "tenant", "t", "", "Organization (tenant) ID")
	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "Output format (table, json)")

	cmd.AddCommand(
		stepsCmd(a),
		historyCmd(a),
		progressCmd(a),
		outboxCmd(a),
		tokenCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "fundctl %s\n", version)
			},
		},
	)
	return cmd
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(&logger.Config{Level: a.logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) close() error {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return err
		}
	}
	if a.log != nil {
		_ = logger.Sync(a.log)
	}
	return nil
}

func (a *app) database() (*persistence.Database, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := persistence.NewDatabase(&a.cfg.Database, a.log)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) tenantID() (uuid.UUID, error) {
	if a.tenant == "" {
		return uuid.Nil, fmt.Errorf("--tenant is required")
	}
	id, err := uuid.Parse(a.tenant)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant ID %q: %w", a.tenant, err)
	}
	return id, nil
}

// operator is the admin actor on whose behalf CLI changes are made
func (a *app) operator() fundrequest.Actor {
	return fundrequest.NewActor(operatorID, "fundctl", string(fundrequest.RoleAdmin))
}

func (a *app) stepService() (*fundapp.StepService, error) {
	db, err := a.database()
	if err != nil {
		return nil, err
	}
	return fundapp.NewStepService(persistence.NewGormWorkflowStepRepository(db.DB)), nil
}

func (a *app) fundRequestService() (*fundapp.FundRequestService, error) {
	steps, err := a.stepService()
	if err != nil {
		return nil, err
	}
	return fundapp.NewFundRequestService(
		persistence.NewGormFundRequestRepository(a.db.DB),
		persistence.NewGormHistoryRepository(a.db.DB),
		steps,
		persistence.NewGormRequestNumberGenerator(a.db.DB),
	), nil
}

func (a *app) outboxService() (*eventapp.OutboxService, error) {
	db, err := a.database()
	if err != nil {
		return nil, err
	}
	return eventapp.NewOutboxService(event.NewGormOutboxRepository(db.DB), a.log), nil
}

// withLogger attaches the CLI logger so services log through it
func (a *app) withLogger(ctx context.Context) context.Context {
	return logger.WithContext(ctx, a.log)
}
