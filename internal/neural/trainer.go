package neural

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMinExamples is the readiness-gate floor: no training path proceeds
// with fewer harvested examples.
const DefaultMinExamples = 50

const dropoutRate = 0.1

// TrainingConfig controls one training run.
type TrainingConfig struct {
	Epochs          int
	BatchSize       int
	LearningRate    float64
	Patience        int
	ValidationRatio float64
	Seed            int64
}

func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Epochs:          100,
		BatchSize:       32,
		LearningRate:    0.001,
		Patience:        10,
		ValidationRatio: 0.2,
		Seed:            42,
	}
}

// TrainResult reports the outcome of a completed training run.
type TrainResult struct {
	Examples     int     `json:"examples"`
	EpochsRun    int     `json:"epochs_run"`
	StoppedEarly bool    `json:"stopped_early"`
	TrainLoss    float64 `json:"train_loss"`
	BestValLoss  float64 `json:"best_val_loss"`
	Parameters   int     `json:"parameters"`
	ModelPath    string  `json:"model_path,omitempty"`
}

// EvalResult audits a persisted model without retraining it.
type EvalResult struct {
	ValLoss    float64 `json:"val_loss"`
	Parameters int     `json:"parameters"`
	Examples   int     `json:"examples"`
}

// TuneResult reports the best configuration found by hyperparameter search.
type TuneResult struct {
	Trials       int     `json:"trials"`
	Failed       int     `json:"failed"`
	BestConfig   Config  `json:"best_config"`
	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
	BestValLoss  float64 `json:"best_val_loss"`
}

// Trainer fits predictors against data from the pipeline. It is a batch job
// invoked by the CLI or at startup, never by the runtime updater.
type Trainer struct {
	pipeline    *Pipeline
	logger      *zap.Logger
	minExamples int
}

func NewTrainer(pipeline *Pipeline, logger *zap.Logger) *Trainer {
	return &Trainer{
		pipeline:    pipeline,
		logger:      logger,
		minExamples: DefaultMinExamples,
	}
}

// SetMinExamples overrides the readiness-gate floor.
func (t *Trainer) SetMinExamples(n int) {
	t.minExamples = n
}

// CheckTrainingReadiness runs the pipeline and reports whether enough
// examples exist to train. Every training path consults this first.
func (t *Trainer) CheckTrainingReadiness(ctx context.Context, tenantID uuid.UUID) (bool, int, error) {
	examples, _, err := t.pipeline.ExtractTrainingData(ctx, tenantID)
	if err != nil {
		return false, 0, err
	}
	return len(examples) >= t.minExamples, len(examples), nil
}

// Train runs a full training loop with early stopping and persists the
// best-validation-loss snapshot to modelPath.
func (t *Trainer) Train(ctx context.Context, tenantID uuid.UUID, modelCfg Config, trainCfg TrainingConfig, modelPath string) (*TrainResult, error) {
	examples, vocab, err := t.pipeline.ExtractTrainingData(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(examples) < t.minExamples {
		return nil, &InsufficientDataError{Count: len(examples), Required: t.minExamples}
	}

	predictor, result, err := t.fit(examples, modelCfg, trainCfg)
	if err != nil {
		return nil, err
	}

	predictor.Vocab = vocab
	if err := predictor.Save(modelPath); err != nil {
		return nil, err
	}
	result.ModelPath = modelPath

	t.logger.Info("training complete",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("examples", result.Examples),
		zap.Int("epochs_run", result.EpochsRun),
		zap.Bool("stopped_early", result.StoppedEarly),
		zap.Float64("best_val_loss", result.BestValLoss),
		zap.Int("parameters", result.Parameters),
		zap.String("model_path", modelPath),
	)
	return result, nil
}

// AutoTrain is the scheduled/startup entry point: readiness-gated training
// with default configuration.
func (t *Trainer) AutoTrain(ctx context.Context, tenantID uuid.UUID, modelPath string) (*TrainResult, error) {
	ready, count, err := t.CheckTrainingReadiness(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, &InsufficientDataError{Count: count, Required: t.minExamples}
	}
	return t.Train(ctx, tenantID, DefaultConfig(), DefaultTrainingConfig(), modelPath)
}

// fit trains a fresh predictor on a deterministic split of the examples and
// returns it with the best-validation weights restored.
func (t *Trainer) fit(examples []TrainingExample, modelCfg Config, trainCfg TrainingConfig) (*Predictor, *TrainResult, error) {
	predictor, err := NewPredictor(modelCfg, trainCfg.Seed)
	if err != nil {
		return nil, nil, err
	}
	if n := predictor.CountParameters(); n > MaxParameters {
		return nil, nil, fmt.Errorf("configuration exceeds parameter budget: %d > %d", n, MaxParameters)
	}

	trainSet, valSet := TrainTestSplit(examples, trainCfg.ValidationRatio, trainCfg.Seed)
	if len(trainSet) == 0 || len(valSet) == 0 {
		return nil, nil, &InsufficientDataError{Count: len(examples), Required: t.minExamples}
	}

	rng := rand.New(rand.NewSource(trainCfg.Seed))
	opt := newAdam(trainCfg.LearningRate, predictor.paramSlices())
	grads := newGradients(modelCfg)

	bestValLoss := math.Inf(1)
	bestSnap := predictor.snapshot()
	sinceImprovement := 0

	result := &TrainResult{
		Examples:   len(examples),
		Parameters: predictor.CountParameters(),
	}

	for epoch := 1; epoch <= trainCfg.Epochs; epoch++ {
		rng.Shuffle(len(trainSet), func(i, j int) {
			trainSet[i], trainSet[j] = trainSet[j], trainSet[i]
		})

		predictor.setTraining(true, dropoutRate, rng)
		trainLoss := 0.0
		for start := 0; start < len(trainSet); start += trainCfg.BatchSize {
			end := start + trainCfg.BatchSize
			if end > len(trainSet) {
				end = len(trainSet)
			}
			batch := trainSet[start:end]

			grads.zero()
			for _, ex := range batch {
				cache := predictor.forward(concatInput(ex))
				diff := cache.out - ex.Target
				trainLoss += diff * diff
				predictor.backward(cache, 2*diff, grads)
			}
			grads.scale(1 / float64(len(batch)))
			opt.step(predictor.paramSlices(), grads.slices())
		}
		trainLoss /= float64(len(trainSet))

		predictor.setTraining(false, 0, nil)
		valLoss := meanLoss(predictor, valSet)

		t.logger.Info("epoch complete",
			zap.Int("epoch", epoch),
			zap.Float64("train_loss", trainLoss),
			zap.Float64("val_loss", valLoss),
		)

		result.EpochsRun = epoch
		result.TrainLoss = trainLoss

		if valLoss < bestValLoss {
			bestValLoss = valLoss
			bestSnap = predictor.snapshot()
			sinceImprovement = 0
		} else {
			sinceImprovement++
			if sinceImprovement >= trainCfg.Patience {
				result.StoppedEarly = true
				t.logger.Info("early stopping",
					zap.Int("epoch", epoch),
					zap.Int("patience", trainCfg.Patience),
					zap.Float64("best_val_loss", bestValLoss),
				)
				break
			}
		}
	}

	predictor.restore(bestSnap)
	predictor.setTraining(false, 0, nil)
	result.BestValLoss = bestValLoss
	return predictor, result, nil
}

// Tune samples trial configurations without replacement from the grid
// cross-product, runs an abbreviated training for each, and reports the best.
// Failed trials are logged and skipped; if every trial fails, the search
// reports no viable configuration instead of crashing.
func (t *Trainer) Tune(ctx context.Context, tenantID uuid.UUID, trials int) (*TuneResult, error) {
	examples, _, err := t.pipeline.ExtractTrainingData(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(examples) < t.minExamples {
		return nil, &InsufficientDataError{Count: len(examples), Required: t.minExamples}
	}

	type trialConfig struct {
		lr     float64
		batch  int
		heads  int
		hidden int
	}
	// Head counts start at 4: with shared d x d projections, 2 heads means
	// 80x80 Q/K/V matrices and the configuration exceeds the parameter budget.
	var grid []trialConfig
	for _, lr := range []float64{0.0005, 0.001, 0.005} {
		for _, batch := range []int{16, 32, 64} {
			for _, heads := range []int{4, 8, 16} {
				for _, hidden := range []int{32, 64} {
					grid = append(grid, trialConfig{lr, batch, heads, hidden})
				}
			}
		}
	}

	rng := rand.New(rand.NewSource(DefaultTrainingConfig().Seed))
	rng.Shuffle(len(grid), func(i, j int) { grid[i], grid[j] = grid[j], grid[i] })
	if trials > len(grid) {
		trials = len(grid)
	}

	result := &TuneResult{Trials: trials, BestValLoss: math.Inf(1)}
	for i := 0; i < trials; i++ {
		tc := grid[i]
		modelCfg := DefaultConfig()
		modelCfg.HeadCount = tc.heads
		modelCfg.HiddenDim = tc.hidden

		trainCfg := DefaultTrainingConfig()
		trainCfg.LearningRate = tc.lr
		trainCfg.BatchSize = tc.batch
		trainCfg.Epochs = 20
		trainCfg.Patience = 3

		_, fitResult, err := t.fit(examples, modelCfg, trainCfg)
		if err != nil {
			result.Failed++
			trialErr := &TrialError{Trial: i + 1, Err: err}
			t.logger.Warn("tuning trial failed", zap.Int("trial", i+1), zap.Error(trialErr))
			continue
		}

		t.logger.Info("tuning trial complete",
			zap.Int("trial", i+1),
			zap.Float64("learning_rate", tc.lr),
			zap.Int("batch_size", tc.batch),
			zap.Int("head_count", tc.heads),
			zap.Int("hidden_dim", tc.hidden),
			zap.Float64("val_loss", fitResult.BestValLoss),
		)

		if fitResult.BestValLoss < result.BestValLoss {
			result.BestValLoss = fitResult.BestValLoss
			result.BestConfig = modelCfg
			result.LearningRate = tc.lr
			result.BatchSize = tc.batch
		}
	}

	if result.Failed == result.Trials {
		return nil, ErrNoViableConfig
	}
	return result, nil
}

// Evaluate loads a persisted model and scores it against a freshly computed
// validation split, re-encoded with the model's own vocabulary so the audit
// matches what the deployed model actually sees.
func (t *Trainer) Evaluate(ctx context.Context, tenantID uuid.UUID, modelPath string) (*EvalResult, error) {
	predictor, err := Load(modelPath)
	if err != nil {
		return nil, err
	}
	if predictor.Vocab == nil {
		return nil, &ModelLoadError{Path: modelPath, Err: errors.New("artifact has no vocabulary")}
	}

	raw, err := t.pipeline.extractRaw(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	examples := encodeExamples(raw, predictor.Vocab)
	if len(examples) == 0 {
		return nil, &InsufficientDataError{Count: 0, Required: 1}
	}

	cfg := DefaultTrainingConfig()
	_, valSet := TrainTestSplit(examples, cfg.ValidationRatio, cfg.Seed)
	if len(valSet) == 0 {
		valSet = examples
	}

	return &EvalResult{
		ValLoss:    meanLoss(predictor, valSet),
		Parameters: predictor.CountParameters(),
		Examples:   len(examples),
	}, nil
}

func meanLoss(p *Predictor, examples []TrainingExample) float64 {
	loss := 0.0
	for _, ex := range examples {
		cache := p.forward(concatInput(ex))
		diff := cache.out - ex.Target
		loss += diff * diff
	}
	return loss / float64(len(examples))
}

func concatInput(ex TrainingExample) []float64 {
	x := make([]float64, 0, len(ex.ConceptA)+len(ex.ConceptB)+len(ex.Context))
	x = append(x, ex.ConceptA...)
	x = append(x, ex.ConceptB...)
	return append(x, ex.Context...)
}
