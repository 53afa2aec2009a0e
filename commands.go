package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"oral_exam_backend/internal/app"
	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/repository"
	"oral_exam_backend/internal/retrieval"
	"oral_exam_backend/internal/service"
	"oral_exam_backend/pkg/database"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const commandTimeout = 30 * time.Second

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.InitDB(&cfg.Database)
			if err != nil {
				return fmt.Errorf("database.InitDB() > %w", err)
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("database.Migrate() > %w", err)
			}
			color.Green("Migration completed")
			return nil
		},
	}
}

func newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity to the database, Redis and the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			failed := 0
			report := func(name string, err error) {
				if err != nil {
					failed++
					color.Red("✗ %s: %v", name, err)
					return
				}
				color.Green("✓ %s", name)
			}

			db, err := database.InitDB(&cfg.Database)
			if err == nil {
				var sqlErr error
				if sqlDB, dbErr := db.DB(); dbErr != nil {
					sqlErr = dbErr
				} else {
					sqlErr = sqlDB.PingContext(ctx)
				}
				err = sqlErr
			}
			report("database ("+cfg.Database.Driver+")", err)

			if cfg.Redis.Enabled {
				rdb, err := database.InitRedis(&cfg.Redis)
				if rdb != nil {
					_ = rdb.Close()
				}
				report("redis", err)
			} else {
				color.Yellow("- redis disabled")
			}

			if cfg.Vector.Enabled {
				qdrant := retrieval.NewQdrantStore(&cfg.Vector)
				report("qdrant collection "+cfg.Vector.Collection, qdrant.EnsureCollection(ctx))
				_ = qdrant.Close()
			} else {
				color.Yellow("- vector store disabled")
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <exam-id> <out.pdf>",
		Short: "Render an exam transcript to PDF",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, _, err := app.Open(cfg)
			if err != nil {
				return err
			}

			session, err := repository.NewExamRepository(db).FindSessionWithQuestions(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("exam %d: %w", id, err)
			}
			pdf, err := service.RenderPDF(service.ExamReportMarkdown(session))
			if err != nil {
				return fmt.Errorf("service.RenderPDF() > %w", err)
			}
			if err := os.WriteFile(args[1], pdf, 0o644); err != nil {
				return err
			}
			color.Green("Wrote %s (%d questions)", args[1], len(session.Questions))
			return nil
		},
	}
}

func newAbandonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <exam-id>",
		Short: "Mark an exam as failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, _, err := app.Open(cfg)
			if err != nil {
				return err
			}

			repo := repository.NewExamRepository(db)
			session, err := repo.FindSession(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("exam %d: %w", id, err)
			}
			if session.Status != model.ExamInProgress {
				color.Yellow("Exam %d is already %s", id, session.Status)
				return nil
			}
			if err := repo.SetStatus(cmd.Context(), id, model.ExamFailed); err != nil {
				return err
			}
			color.Green("Exam %d marked %s", id, model.ExamFailed)
			return nil
		},
	}
}

func newRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Revoke every refresh token of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, _, err := app.Open(cfg)
			if err != nil {
				return err
			}

			if err := repository.NewRefreshTokenRepository(db).RevokeAllForUser(cmd.Context(), id, time.Now()); err != nil {
				return err
			}
			color.Green("Refresh tokens of user %d revoked", id)
			return nil
		},
	}
}

func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return uint(id), nil
}
