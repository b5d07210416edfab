package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/config"
	"github.com/jonesrussell/north-cloud/curator/internal/database"
	"github.com/jonesrussell/north-cloud/curator/internal/logger"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

const sysConfigLoadTimeout = 5 * time.Second

// ApplyStoreOverrides layers operator tunables from the system_config table
// over the file/env configuration. Missing keys are not an error; unparseable
// documents are logged and skipped so a bad row cannot keep the service down.
func ApplyStoreOverrides(cfg *config.Config, repo *database.SysConfigRepository, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), sysConfigLoadTimeout)
	defer cancel()

	load := func(key string, apply func(models.JSONMap) error) {
		value, err := repo.Get(ctx, key)
		if errors.Is(err, models.ErrNotFound) {
			return
		}
		if err != nil {
			log.Warn("Failed to load system config key",
				logger.String("key", key), logger.Error(err))
			return
		}
		if applyErr := apply(value); applyErr != nil {
			log.Warn("Ignoring invalid system config value",
				logger.String("key", key), logger.Error(applyErr))
			return
		}
		log.Info("Applied system config override", logger.String("key", key))
	}

	load(models.ConfigKeyFetchIntervals, func(value models.JSONMap) error {
		intervals := make(map[models.SourceType]time.Duration, len(value))
		for name, raw := range value {
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("interval for %q is not a duration string", name)
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("interval for %q: %w", name, err)
			}
			intervals[models.SourceType(name)] = d
		}
		if cfg.Scheduler.FetchIntervals == nil {
			cfg.Scheduler.FetchIntervals = intervals
			return nil
		}
		for t, d := range intervals {
			cfg.Scheduler.FetchIntervals[t] = d
		}
		return nil
	})

	load(models.ConfigKeyTaskRetry, func(value models.JSONMap) error {
		var doc struct {
			MaxAttempts int    `json:"max_attempts"`
			BackoffBase string `json:"backoff_base"`
			BackoffCap  string `json:"backoff_cap"`
		}
		if err := value.Decode(&doc); err != nil {
			return err
		}
		if doc.MaxAttempts > 0 {
			cfg.Tasks.MaxAttempts = doc.MaxAttempts
		}
		if doc.BackoffBase != "" {
			d, err := time.ParseDuration(doc.BackoffBase)
			if err != nil {
				return fmt.Errorf("backoff_base: %w", err)
			}
			cfg.Tasks.BackoffBase = d
		}
		if doc.BackoffCap != "" {
			d, err := time.ParseDuration(doc.BackoffCap)
			if err != nil {
				return fmt.Errorf("backoff_cap: %w", err)
			}
			cfg.Tasks.BackoffCap = d
		}
		return nil
	})

	load(models.ConfigKeyScoringThresholds, func(value models.JSONMap) error {
		var doc struct {
			TrustWeights    map[string]float64 `json:"trust_weights"`
			RecencyHalfLife string             `json:"recency_half_life"`
		}
		if err := value.Decode(&doc); err != nil {
			return err
		}
		if len(doc.TrustWeights) > 0 {
			if cfg.Scorer.TrustWeights == nil {
				cfg.Scorer.TrustWeights = make(map[string]float64, len(doc.TrustWeights))
			}
			for name, w := range doc.TrustWeights {
				cfg.Scorer.TrustWeights[name] = w
			}
		}
		if doc.RecencyHalfLife != "" {
			d, err := time.ParseDuration(doc.RecencyHalfLife)
			if err != nil {
				return fmt.Errorf("recency_half_life: %w", err)
			}
			cfg.Scorer.RecencyHalfLife = d
		}
		return nil
	})

	load(models.ConfigKeyDigestCutoffHour, func(value models.JSONMap) error {
		var doc struct {
			Hour int `json:"hour"`
		}
		if err := value.Decode(&doc); err != nil {
			return err
		}
		if doc.Hour < 0 || doc.Hour > 23 {
			return fmt.Errorf("hour %d out of range", doc.Hour)
		}
		cfg.Digest.Cron = fmt.Sprintf("0 %d * * *", doc.Hour)
		return nil
	})
}
