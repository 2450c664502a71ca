package main

import (
	"context"
	"fmt"
	"livesession/internal/app"
	"livesession/internal/config"
	"livesession/internal/model"
	"livesession/internal/service"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// seed populates a dev database and prints identity tokens for manual testing

type dependencies struct {
	cfg *config.Config
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}

	if err := newRootCmd(&dependencies{cfg: cfg}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(deps *dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed sessions and enrollments for local development",
	}

	rootCmd.AddCommand(newTokenCmd(deps))
	rootCmd.AddCommand(newEnrollCmd(deps))
	rootCmd.AddCommand(newSessionCmd(deps))

	return rootCmd
}

func newTokenCmd(deps *dependencies) *cobra.Command {
	var (
		name string
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Print an identity token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authSvc := service.NewAuthService(deps.cfg.JWTSecret)
			token, err := authSvc.IssueUserToken(args[0], name, model.UserRole(role), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(model.UserStudent), "student, teacher or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}

func newEnrollCmd(deps *dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enroll <course-id> <user-id>...",
		Short: "Create active enrollments",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			a, err := app.New(ctx, deps.cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			courseID := args[0]
			for _, userID := range args[1:] {
				err := a.Enrollments.Enroll(ctx, &model.Enrollment{
					UserID:    userID,
					CourseID:  courseID,
					Status:    model.EnrollmentActive,
					CreatedAt: time.Now(),
				})
				if err != nil {
					return fmt.Errorf("failed to enroll %s: %w", userID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enrolled %s in %s\n", userID, courseID)
			}
			return nil
		},
	}

	return cmd
}

func newSessionCmd(deps *dependencies) *cobra.Command {
	var (
		req      model.ScheduleRequest
		kind     string
		startsIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "session <host-id>",
		Short: "Schedule a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			a, err := app.New(ctx, deps.cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			req.HostID = args[0]
			req.Kind = model.SessionKind(kind)
			req.ScheduledAt = time.Now().Add(startsIn)

			session, err := a.Gateway.ScheduleSession(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %d assigned) opens %s\n",
				session.ID, session.Kind, len(session.AssignedUserIDs),
				session.JoinOpensAt(deps.cfg.JoinWindow).Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(model.KindClass), "class, teacher, student or admin")
	cmd.Flags().StringVar(&req.Title, "title", "Dev session", "session title")
	cmd.Flags().StringVar(&req.CourseID, "course", "", "course the class belongs to")
	cmd.Flags().StringSliceVar(&req.InviteeIDs, "invite", nil, "user IDs to assign")
	cmd.Flags().BoolVar(&req.IsPrivate, "private", false, "require a password")
	cmd.Flags().StringVar(&req.Password, "password", "", "password for private sessions")
	cmd.Flags().BoolVar(&req.IsPublic, "public", false, "open class with preview for non-assigned users")
	cmd.Flags().IntVar(&req.MaxParticipants, "max", 0, "capacity (0 for default)")
	cmd.Flags().DurationVar(&startsIn, "starts-in", 10*time.Minute, "time until the scheduled start")

	return cmd
}
