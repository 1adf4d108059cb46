// Package cmd - seed command
package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	agreement "invoicing-cloud/internal/agreement/domain"
	agreementpg "invoicing-cloud/internal/agreement/infrastructure/postgres"
	"invoicing-cloud/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// seedAgreement is the on-disk shape of one agreement.
type seedAgreement struct {
	CustomerID string         `json:"customer_id"`
	Version    int            `json:"version"`
	Strategy   string         `json:"strategy"`
	Multiplier string         `json:"multiplier"`
	VATRate    string         `json:"vat_rate"`
	Currency   string         `json:"currency"`
	Rules      map[string]any `json:"rules"`
	ValidFrom  time.Time      `json:"valid_from"`
	Type       string         `json:"type"`
}

// seedCmd loads agreements from a JSON file into the database.
var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Load customer agreements from a JSON file into the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for seeding")
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var seeds []seedAgreement
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return fmt.Errorf("parse agreements: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := agreementpg.NewRepository(db, agreementpg.WithStandardCustomerID(cfg.StandardCustomerID))
	ctx := context.Background()
	for _, seed := range seeds {
		ag, err := seedToAgreement(seed)
		if err != nil {
			return fmt.Errorf("agreement %s v%d: %w", seed.CustomerID, seed.Version, err)
		}
		if err := repo.Insert(ctx, ag); err != nil {
			return fmt.Errorf("insert %s v%d: %w", seed.CustomerID, seed.Version, err)
		}
		fmt.Printf("seeded %s v%d (%s)\n", ag.CustomerID, ag.Version, ag.Strategy)
	}
	return nil
}

func seedToAgreement(seed seedAgreement) (agreement.Agreement, error) {
	multiplier, err := decimal.NewFromString(defaultString(seed.Multiplier, "1"))
	if err != nil {
		return agreement.Agreement{}, fmt.Errorf("invalid multiplier: %w", err)
	}
	vatRate, err := decimal.NewFromString(defaultString(seed.VATRate, "0"))
	if err != nil {
		return agreement.Agreement{}, fmt.Errorf("invalid vat rate: %w", err)
	}
	agType := agreement.TypeCustom
	if seed.Type == string(agreement.TypeStandard) {
		agType = agreement.TypeStandard
	}
	validFrom := seed.ValidFrom
	if validFrom.IsZero() {
		validFrom = time.Now().UTC()
	}
	return agreement.Agreement{
		CustomerID: seed.CustomerID,
		Version:    seed.Version,
		Strategy:   seed.Strategy,
		Multiplier: multiplier,
		VATRate:    vatRate,
		Currency:   seed.Currency,
		Rules:      seed.Rules,
		ValidFrom:  validFrom,
		Type:       agType,
	}, nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
