// Package main seeds a development database with catalog data and prints
// access tokens for each warehouse role.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"almacen/internal/app"
	appctx "almacen/internal/core/context"
	"almacen/internal/core/id"
	"almacen/internal/core/security"
	"almacen/internal/domain/auth"
	"almacen/internal/domain/catalogs/article"
	"almacen/internal/domain/catalogs/equipo"
	"almacen/internal/domain/catalogs/supplier"
	"almacen/internal/infrastructure/storage/postgres"
	"almacen/pkg/config"
	"almacen/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if cfg.Storage.Driver == config.DriverPostgres {
		if err := seedCatalogs(ctx, cfg, log); err != nil {
			log.Fatalw("failed to seed catalogs", "error", err)
		}
	} else {
		log.Warn("memory driver selected, skipping catalog seed")
	}

	if err := printTokens(cfg); err != nil {
		log.Fatalw("failed to issue tokens", "error", err)
	}

	log.Info("seeding completed successfully")
}

func seedCatalogs(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	pool, err := postgres.NewPool(ctx, postgres.PoolConfigFrom(cfg.DB))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	txm := postgres.NewTxManager(pool, cfg.DB.StatementTimeout)
	stores, err := app.PostgresStores(txm)
	if err != nil {
		return err
	}

	existing, err := stores.Articles.List(ctx, article.ListFilter{Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Info("catalogs already seeded, skipping")
		return nil
	}

	now := time.Now()
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		suppliers := []*supplier.Supplier{
			{ID: id.New(), Name: "Ferretería Industrial del Norte", TaxID: "FIN010203AB1", Email: "ventas@fin.example", Active: true},
			{ID: id.New(), Name: "Abrasivos y Herramientas", TaxID: "AYH990101CD2", Email: "pedidos@ayh.example", Active: true},
		}
		for _, s := range suppliers {
			if err := stores.Suppliers.Create(ctx, s); err != nil {
				return fmt.Errorf("supplier %s: %w", s.Name, err)
			}
		}

		articles := []struct {
			code, name, unit string
			stock, minimo    int64
			cost             string
			supplier         *supplier.Supplier
		}{
			{"TOR-0001", "Tornillo hexagonal 3/8", "pza", 250, 100, "1.85", suppliers[0]},
			{"DIS-0002", "Disco de corte 4 1/2", "pza", 40, 20, "32.50", suppliers[1]},
			{"GUA-0003", "Guante de carnaza", "par", 12, 15, "48.00", nil},
			{"SOL-0004", "Soldadura 6013 1/8", "kg", 8, 10, "95.00", suppliers[0]},
		}
		for _, row := range articles {
			a := &article.Article{
				ID:          id.New(),
				Code:        row.code,
				Name:        row.name,
				Unit:        row.unit,
				StockActual: decimal.NewFromInt(row.stock),
				StockMinimo: decimal.NewNullDecimal(decimal.NewFromInt(row.minimo)),
				UnitCost:    decimal.RequireFromString(row.cost),
				UpdatedAt:   now,
			}
			if row.supplier != nil {
				a.SupplierID = id.Ptr(row.supplier.ID)
			}
			if err := stores.Articles.Create(ctx, a); err != nil {
				return fmt.Errorf("article %s: %w", a.Code, err)
			}
			if row.supplier != nil {
				link := article.SupplierLink{ArticleID: a.ID, SupplierID: row.supplier.ID, Preferred: true, LinkedAt: now}
				if err := stores.Articles.LinkSupplier(ctx, link); err != nil {
					return fmt.Errorf("link %s: %w", a.Code, err)
				}
			}
		}

		e := &equipo.Equipo{
			ID:           id.New(),
			Code:         "EQ-PRENSA-01",
			Name:         "Prensa hidráulica 1",
			Location:     "Nave 2",
			SupervisorID: "sup-1",
		}
		if err := stores.Equipos.Create(ctx, e); err != nil {
			return fmt.Errorf("equipo: %w", err)
		}

		log.Infow("seeded catalogs",
			"suppliers", len(suppliers),
			"articles", len(articles),
			"equipo", e.Code,
		)
		return nil
	})
}

// printTokens issues one access token per role for local testing.
func printTokens(cfg *config.Config) error {
	svc := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.JWT.Secret,
		Issuer:         cfg.JWT.Issuer,
		AccessTokenTTL: 24 * time.Hour,
	})

	users := map[security.Role]string{
		security.RoleAdmin:      "adm-1",
		security.RoleWarehouse:  "alm-1",
		security.RoleDesigner:   "dis-1",
		security.RoleSupervisor: "sup-1",
		security.RolePurchasing: "com-1",
	}

	for _, role := range security.KnownRoles() {
		token, expires, err := svc.GenerateAccessToken(appctx.UserContext{
			UserID:    users[role],
			Name:      string(role),
			Role:      string(role),
			SessionID: id.New().String(),
		})
		if err != nil {
			return err
		}
		fmt.Printf("%-10s %s (expires %s)\n", role, token, expires.Format(time.RFC3339))
	}
	return nil
}
