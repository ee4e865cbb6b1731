package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"handbook-agent/internal/app"
	"handbook-agent/internal/config"
	"handbook-agent/internal/integrations/paramstore"
	"handbook-agent/internal/logging"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(viper.New())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AWS config")
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create SSM client")
	}
	deps := app.Deps{Params: ssmClient}
	if cfg.StateTable != "" {
		deps.DynamoDB = awsdynamodb.NewFromConfig(awsCfg)
	}

	// ---- Handler ----
	a, err := app.Build(ctx, cfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build application")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close application")
		}
	}()

	// Cold start indexes the handbook. A failure leaves the responder in the
	// failed state; chat requests retry and /rag/reinitialize forces a reload.
	if err := a.Responder.Initialize(ctx); err != nil {
		log.Error().Err(err).Msg("initial handbook load failed")
	}

	lambda.Start(a.Handler.Handle)
}
