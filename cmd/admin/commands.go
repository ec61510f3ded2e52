package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kindkart/internal/models"
	"kindkart/internal/notifications"
	"kindkart/internal/service"

	"github.com/spf13/cobra"
)

func newSweepCmd(rt func() *runtime) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue pending requests",
		Long: `Cancel every pending request whose expiry has passed and release its item.

The server runs the same sweep periodically when the expiry_sweep feature
flag is on. Use this command when the flag is off or to catch up after
downtime.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := service.NewExpirySweeper(rt().requests(), 0, batch).SweepOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d request(s)\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 100, "Requests expired per transaction batch")
	return cmd
}

func newPromoteCmd(rt func() *runtime) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "promote <user-id>",
		Short: "Change a user's role (admin by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			user, err := rt().users().SetRole(cmd.Context(), operator, id, models.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d (%s) is now %s\n", user.ID, user.Email, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "Role to assign: donor, recipient, ngo, admin")
	return cmd
}

func newBlockCmd(rt func() *runtime, blocked bool) *cobra.Command {
	use, short, verb := "block", "Block a user from the API", "blocked"
	if !blocked {
		use, short, verb = "unblock", "Restore a blocked user's access", "unblocked"
	}
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			user, err := rt().users().SetBlocked(cmd.Context(), operator, id, blocked)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d (%s) %s\n", user.ID, user.Email, verb)
			return nil
		},
	}
}

func newVerifyCmd(rt func() *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <user-id>",
		Short: "Mark a user as verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			user, err := rt().users().Verify(cmd.Context(), operator, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d (%s) verified\n", user.ID, user.Email)
			return nil
		},
	}
}

func newReconcileCmd(rt func() *runtime) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reconcile-stats [user-id]",
		Short: "Recompute donation counters from completed requests",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var ids []uint
			if all {
				if err := rt().db.WithContext(cmd.Context()).
					Model(&models.User{}).Order("id").Pluck("id", &ids).Error; err != nil {
					return fmt.Errorf("list users: %w", err)
				}
			} else {
				id, err := parseUserID(args[0])
				if err != nil {
					return err
				}
				ids = []uint{id}
			}

			users := rt().users()
			for _, id := range ids {
				stats, err := users.ReconcileStats(cmd.Context(), operator, id)
				if err != nil {
					return fmt.Errorf("user %d: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %d: donated=%d received=%d impact=%d\n",
					id, stats.ItemsDonated, stats.ItemsReceived, stats.TotalImpact)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reconcile every user")
	return cmd
}

func newEventsCmd(rt func() *runtime) *cobra.Command {
	var (
		count     int
		eventType string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream request lifecycle events as JSON lines",
		Long: `Subscribe to the shared lifecycle channel in Redis and print every event
as one JSON object per line. Stops on interrupt or after --count events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := rt()
			if r.rdb == nil {
				return fmt.Errorf("redis is not available")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			enc := json.NewEncoder(cmd.OutOrStdout())
			seen := 0
			err := notifications.NewNotifier(r.rdb).StartEventSubscriber(ctx, func(e models.RequestEvent) {
				if ctx.Err() != nil || (eventType != "" && string(e.Type) != eventType) {
					return
				}
				_ = enc.Encode(e)
				seen++
				if count > 0 && seen >= count {
					cancel()
				}
			})
			if err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many events (0 streams until interrupted)")
	cmd.Flags().StringVar(&eventType, "type", "", "Only print events of this type, e.g. accepted")
	return cmd
}
