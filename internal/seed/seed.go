package seed

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"mockcrm-backend/internal/config"
	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/store"
)

// Run fills every empty resource table with generated records. Tables that
// already hold data are left alone, so restarts do not duplicate rows.
// Seeding writes directly, without change-history entries or webhook events.
func Run(ctx context.Context, s *store.Store, reg *metadata.Registry, cfg config.SeedConfig) error {
	faker := gofakeit.New(0)

	for _, schema := range reg.All() {
		count := countFor(schema.Kind, cfg)
		if count <= 0 {
			continue
		}

		row, err := store.QueryRow(ctx, s.DB,
			fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", schema.Table()))
		if err != nil {
			return fmt.Errorf("count %s: %w", schema.Table(), err)
		}
		if existing, _ := row["count"].(int64); existing > 0 {
			continue
		}

		if err := insertBatch(ctx, s, faker, schema, count); err != nil {
			return err
		}
		log.Printf("Seeded %d %s for %s", count, schema.Kind, schema.Tenant)
	}
	return nil
}

func countFor(kind string, cfg config.SeedConfig) int {
	switch kind {
	case "contacts":
		return cfg.ContactsPerTenant
	case "deals":
		return cfg.DealsPerTenant
	case "companies":
		return cfg.CompaniesPerTenant
	}
	return 0
}

func insertBatch(ctx context.Context, s *store.Store, faker *gofakeit.Faker, schema *metadata.Schema, count int) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < count; i++ {
		record := Record(faker, schema)
		now := store.NowString()
		record["id"] = store.GenerateUUID()
		record["created_at"] = now
		record["updated_at"] = now

		columns := make([]string, 0, len(record))
		for k := range record {
			columns = append(columns, k)
		}
		sort.Strings(columns)

		pb := s.Dialect.NewParamBuilder()
		placeholders := make([]string, len(columns))
		for j, col := range columns {
			placeholders[j] = pb.Add(record[col])
		}
		_, err := store.Exec(ctx, tx,
			fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
				schema.Table(), strings.Join(columns, ", "), strings.Join(placeholders, ", ")),
			pb.Params()...)
		if err != nil {
			return fmt.Errorf("seed %s: %w", schema.Table(), err)
		}
	}
	return tx.Commit()
}
