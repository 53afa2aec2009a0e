// @title Oral Exam Backend API
// @version 1.0
// @description Oral exam and tutoring service with simulated teachers.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"fmt"
	"os"

	"oral_exam_backend/internal/app"
	"oral_exam_backend/internal/config"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var migrate bool

	root := &cobra.Command{
		Use:          "oral-exam",
		Short:        "Oral exam and tutoring backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(migrate)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs", "config directory or YAML file")
	root.Flags().BoolVar(&migrate, "migrate", false, "Run database migrations on startup even in release mode")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(migrate)
		},
	}
	serveCmd.Flags().BoolVar(&migrate, "migrate", false, "Run database migrations on startup even in release mode")

	root.AddCommand(
		serveCmd,
		newMigrateCommand(),
		newDoctorCommand(),
		newReportCommand(),
		newAbandonCommand(),
		newRevokeCommand(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func serve(migrate bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ForceMigrate = migrate

	application, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	application.Run()
	return nil
}
