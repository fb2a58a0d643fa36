package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/198cad/orcish-dashboard/internal/app"
	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/rbac"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

const (
	seedAdminRole     = "superadmin"
	seedAdminUsername = "superadmin"
	seedAdminEmail    = "admin@orcish.local"
)

// runSeed bootstraps the superadmin role, its user, and the core permission
// catalog. Every statement is idempotent so the command can run on each
// deploy.
func runSeed() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		logger.Error("SEED_ADMIN_PASSWORD must be set")
		os.Exit(1)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("hash password", slog.Any("error", err))
		os.Exit(1)
	}

	rbacRepo := rbac.NewRepository()

	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		var roleID uuid.UUID
		if err := tx.QueryRow(ctx, `
			INSERT INTO roles (role_name, description)
			VALUES ($1, 'Full administrative access')
			ON CONFLICT (role_name) DO UPDATE SET updated_at = NOW()
			RETURNING role_id`,
			seedAdminRole,
		).Scan(&roleID); err != nil {
			return shared.Persistence("seed: upsert role", err)
		}

		for _, name := range shared.CoreScopes() {
			perm, err := rbacRepo.UpsertPermission(ctx, tx, name, "", nil)
			if err != nil {
				return err
			}
			if err := rbacRepo.AttachPermission(ctx, tx, roleID, perm.ID, nil); err != nil {
				return err
			}
		}

		var userID uuid.UUID
		if err := tx.QueryRow(ctx, `
			INSERT INTO users (username, email, password_hash, full_name)
			VALUES ($1, $2, $3, 'Super Admin')
			ON CONFLICT (username) DO UPDATE SET updated_at = NOW()
			RETURNING user_id`,
			seedAdminUsername, seedAdminEmail, string(hash),
		).Scan(&userID); err != nil {
			return shared.Persistence("seed: upsert user", err)
		}

		return rbacRepo.AssignRole(ctx, tx, userID, roleID, nil)
	})
	if err != nil {
		logger.Error("seed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seed complete",
		slog.String("role", seedAdminRole),
		slog.String("username", seedAdminUsername),
	)
}
