// attnctl manages link-strength models from the command line:
// training, hyperparameter tuning, evaluation, and readiness checks.
//
// Usage:
//
//	attnctl -tenant <uuid> train [-epochs N] [-batch N] [-lr F] [-patience N] [-heads N] [-hidden N]
//	attnctl -tenant <uuid> auto-train
//	attnctl -tenant <uuid> tune [-trials N]
//	attnctl -tenant <uuid> evaluate
//	attnctl -tenant <uuid> readiness
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Harshitk-cp/synapse/internal/config"
	"github.com/Harshitk-cp/synapse/internal/neural"
	"github.com/Harshitk-cp/synapse/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	tenantFlag := flag.String("tenant", "", "tenant UUID (required)")
	modelFlag := flag.String("model", "", "model artifact path (default from MODEL_PATH)")
	minFlag := flag.Int("min-examples", 0, "override readiness-gate floor")

	epochsFlag := flag.Int("epochs", 0, "training epochs")
	batchFlag := flag.Int("batch", 0, "batch size")
	lrFlag := flag.Float64("lr", 0, "learning rate")
	patienceFlag := flag.Int("patience", 0, "early-stopping patience")
	headsFlag := flag.Int("heads", 0, "attention head count")
	hiddenFlag := flag.Int("hidden", 0, "feed-forward hidden dimension")
	trialsFlag := flag.Int("trials", 10, "tuning trials to sample from the grid")

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	if *tenantFlag == "" {
		log.Fatal("-tenant is required")
	}
	tenantID, err := uuid.Parse(*tenantFlag)
	if err != nil {
		log.Fatalf("invalid tenant id: %v", err)
	}

	if err := config.Load(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	modelPath := *modelFlag
	if modelPath == "" {
		modelPath = config.ModelPath()
	}

	dbURL := config.DatabaseURL()
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	pipeline := neural.NewPipeline(store.NewLinkStore(pool), store.NewConceptStore(pool), logger)
	trainer := neural.NewTrainer(pipeline, logger)
	if *minFlag > 0 {
		trainer.SetMinExamples(*minFlag)
	} else {
		trainer.SetMinExamples(config.MinTrainingExamples())
	}

	switch command {
	case "train":
		modelCfg := neural.DefaultConfig()
		if *headsFlag > 0 {
			modelCfg.HeadCount = *headsFlag
		}
		if *hiddenFlag > 0 {
			modelCfg.HiddenDim = *hiddenFlag
		}

		trainCfg := neural.DefaultTrainingConfig()
		if *epochsFlag > 0 {
			trainCfg.Epochs = *epochsFlag
		}
		if *batchFlag > 0 {
			trainCfg.BatchSize = *batchFlag
		}
		if *lrFlag > 0 {
			trainCfg.LearningRate = *lrFlag
		}
		if *patienceFlag > 0 {
			trainCfg.Patience = *patienceFlag
		}

		result, err := trainer.Train(ctx, tenantID, modelCfg, trainCfg, modelPath)
		if err != nil {
			log.Fatalf("training failed: %v", err)
		}
		printJSON(result)

	case "auto-train":
		result, err := trainer.AutoTrain(ctx, tenantID, modelPath)
		if err != nil {
			log.Fatalf("auto-train failed: %v", err)
		}
		printJSON(result)

	case "tune":
		result, err := trainer.Tune(ctx, tenantID, *trialsFlag)
		if err != nil {
			log.Fatalf("tuning failed: %v", err)
		}
		printJSON(result)

	case "evaluate":
		result, err := trainer.Evaluate(ctx, tenantID, modelPath)
		if err != nil {
			log.Fatalf("evaluation failed: %v", err)
		}
		printJSON(result)

	case "readiness":
		ready, count, err := trainer.CheckTrainingReadiness(ctx, tenantID)
		if err != nil {
			log.Fatalf("readiness check failed: %v", err)
		}
		printJSON(map[string]any{"ready": ready, "examples": count})

	default:
		log.Fatalf("unknown command %q (want train, auto-train, tune, evaluate, or readiness)", command)
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}
	fmt.Println(string(out))
}
