package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/erp/fundflow/internal/infrastructure/auth"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func stepsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Manage an organization's workflow steps",
	}

	var activeOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List workflow steps in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := a.tenantID()
			if err != nil {
				return err
			}
			svc, err := a.stepService()
			if err != nil {
				return err
			}
			steps, err := svc.ListSteps(a.withLogger(cmd.Context()), tenantID, activeOnly)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), steps, stepRows(steps))
		},
	}
	list.Flags().BoolVar(&activeOnly, "active", false, "Only list active steps")

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Seed the default steps for an organization that has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := a.tenantID()
			if err != nil {
				return err
			}
			svc, err := a.stepService()
			if err != nil {
				return err
			}
			inserted, err := svc.EnsureDefaultSteps(a.withLogger(cmd.Context()), tenantID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d step(s) inserted\n", inserted)
			return nil
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <step-id> <true|false>",
		Short: "Activate or deactivate a step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := a.tenantID()
			if err != nil {
				return err
			}
			stepID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid step ID %q: %w", args[0], err)
			}
			active, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid active flag %q", args[1])
			}
			svc, err := a.stepService()
			if err != nil {
				return err
			}
			step, err := svc.SetStepActive(a.withLogger(cmd.Context()), tenantID, a.operator(), stepID, active)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), step, stepRows(nil, *step))
		},
	}

	cmd.AddCommand(list, seed, toggle)
	return cmd
}

func historyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <fund-request-id>",
		Short: "Show the history ledger of a fund request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, requestID, err := a.requestArgs(args)
			if err != nil {
				return err
			}
			svc, err := a.fundRequestService()
			if err != nil {
				return err
			}
			entries, err := svc.History(a.withLogger(cmd.Context()), tenantID, requestID)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), entries, historyRows(entries))
		},
	}
}

func progressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <fund-request-id>",
		Short: "Show per-step progress of a fund request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, requestID, err := a.requestArgs(args)
			if err != nil {
				return err
			}
			svc, err := a.fundRequestService()
			if err != nil {
				return err
			}
			progress, err := svc.Progress(a.withLogger(cmd.Context()), tenantID, requestID)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), progress, progressRows(progress))
		},
	}
}

func outboxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay outbox events",
	}

	var limit int
	dead := &cobra.Command{
		Use:   "dead",
		Short: "List dead-lettered events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.outboxService()
			if err != nil {
				return err
			}
			entries, err := svc.GetDeadLetterEntries(a.withLogger(cmd.Context()), limit)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), entries, outboxRows(entries))
		},
	}
	dead.Flags().IntVar(&limit, "limit", 50, "Maximum entries to list")

	retry := &cobra.Command{
		Use:   "retry [entry-id]",
		Short: "Requeue one dead-lettered event, or all of them when no ID is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.outboxService()
			if err != nil {
				return err
			}
			ctx := a.withLogger(cmd.Context())
			if len(args) == 0 {
				n, err := svc.RetryAllDeadEntries(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d event(s) requeued\n", n)
				return nil
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry ID %q: %w", args[0], err)
			}
			entry, err := svc.RetryDeadEntry(ctx, id)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), entry, outboxRows(nil, *entry))
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count outbox events by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.outboxService()
			if err != nil {
				return err
			}
			s, err := svc.GetStats(a.withLogger(cmd.Context()))
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), s, [][]string{
				{"PENDING", "PROCESSING", "SENT", "FAILED", "DEAD", "TOTAL"},
				{
					strconv.FormatInt(s.Pending, 10),
					strconv.FormatInt(s.Processing, 10),
					strconv.FormatInt(s.Sent, 10),
					strconv.FormatInt(s.Failed, 10),
					strconv.FormatInt(s.Dead, 10),
					strconv.FormatInt(s.Total, 10),
				},
			})
		},
	}

	cmd.AddCommand(dead, retry, stats)
	return cmd
}

func tokenCmd(a *app) *cobra.Command {
	var (
		userID string
		name   string
		roles  string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := a.tenantID()
			if err != nil {
				return err
			}
			uid := uuid.New()
			if userID != "" {
				if uid, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid user ID %q: %w", userID, err)
				}
			}
			if a.cfg.IsProduction() {
				return fmt.Errorf("refusing to mint tokens in production")
			}
			token, expiresAt, err := auth.NewJWTService(a.cfg.JWT).GenerateAccessToken(auth.GenerateTokenInput{
				TenantID:    tenantID,
				UserID:      uid,
				DisplayName: name,
				Roles:       splitRoles(roles),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "user %s, expires %s\n", uid, expiresAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID (default: random)")
	cmd.Flags().StringVar(&name, "name", "Operator", "Display name")
	cmd.Flags().StringVar(&roles, "roles", "requester", "Comma-separated roles")
	return cmd
}

func (a *app) requestArgs(args []string) (uuid.UUID, uuid.UUID, error) {
	tenantID, err := a.tenantID()
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	requestID, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid fund request ID %q: %w", args[0], err)
	}
	return tenantID, requestID, nil
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
