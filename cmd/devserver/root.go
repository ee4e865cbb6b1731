package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"handbook-agent/internal/app"
	"handbook-agent/internal/config"
	"handbook-agent/internal/integrations/paramstore"
	"handbook-agent/internal/logging"
)

func newRootCmd() *cobra.Command {
	var envFile string
	rootCmd := &cobra.Command{
		Use:          "devserver",
		Short:        "Run the handbook agent locally",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnv(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")

	rootCmd.AddCommand(
		newServeCmd(),
		newAskCmd(),
		newIngestCmd(),
	)
	return rootCmd
}

// loadEnv tolerates a missing default .env but not an explicit one.
func loadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(errors.Cause(err)) && path == ".env" {
			return nil
		}
		return errors.Wrapf(err, "load %s", path)
	}
	return nil
}

// buildApp loads configuration and wires the application. With
// OPENAI_API_KEY set, parameters come from the environment instead of SSM.
func buildApp(ctx context.Context) (*app.App, config.Config, error) {
	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, config.Config{}, err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	deps := app.Deps{}
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		params, err := staticParams(cfg.ParamPrefix, key)
		if err != nil {
			return nil, config.Config{}, err
		}
		deps.Params = params
		log.Info().Msg("using OPENAI_API_KEY from the environment")
	}

	if deps.Params == nil || cfg.StateTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, config.Config{}, errors.Wrap(err, "load AWS config")
		}
		if deps.Params == nil {
			ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				return nil, config.Config{}, err
			}
			deps.Params = ssmClient
		}
		if cfg.StateTable != "" {
			deps.DynamoDB = awsdynamodb.NewFromConfig(awsCfg)
		}
	}

	a, err := app.Build(ctx, cfg, deps)
	if err != nil {
		return nil, config.Config{}, err
	}
	return a, cfg, nil
}

func staticParams(prefix, apiKey string) (paramstore.Static, error) {
	token, err := json.Marshal(map[string]string{"token": apiKey})
	if err != nil {
		return nil, errors.Wrap(err, "encode api key")
	}
	params := paramstore.Static{prefix + "/open-ai-token": string(token)}
	if model := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); model != "" {
		params[prefix+"/config/openai_model"] = model
	}
	return params, nil
}
