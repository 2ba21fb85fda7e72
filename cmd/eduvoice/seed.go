package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eduvoice/eduvoice/internal/account"
	"github.com/eduvoice/eduvoice/internal/auth"
	"github.com/eduvoice/eduvoice/internal/config"
	"github.com/eduvoice/eduvoice/internal/voucher"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo learner and demo vouchers",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

const demoEmail = "demo@eduvoice.dev"

func demoVouchers(now time.Time) []voucher.CreateInput {
	expires := now.AddDate(0, 3, 0)
	fifty := 50
	return []voucher.CreateInput{
		{Code: "WELCOME100", DiscountPercent: 100, ExpiresAt: &expires},
		{Code: "HALFOFF", DiscountPercent: 50, MaxUses: &fifty},
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Ledger.Backend == config.LedgerMemory {
		return errors.New("seed needs a persistent backend; ledger.backend is memory")
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	password, err := auth.GenerateToken()
	if err != nil {
		return fmt.Errorf("generating demo password: %w", err)
	}
	password = strings.TrimPrefix(password, auth.TokenPrefix)[:16]

	u, token, err := a.accounts.Signup(ctx, account.SignupInput{
		Email:    demoEmail,
		Password: password,
		Name:     "Demo Learner",
	})
	if errors.Is(err, account.ErrEmailTaken) {
		slog.Info("demo data already exists, skipping seed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating demo learner: %w", err)
	}
	slog.Info("created demo learner", "id", u.ID, "email", u.Email)

	if _, err := a.gate.Grant(ctx, u.ID, 500, "demo grant"); err != nil {
		return fmt.Errorf("granting demo tokens: %w", err)
	}

	var codes []string
	for _, in := range demoVouchers(time.Now()) {
		v, err := a.vouchers.Create(ctx, in)
		if errors.Is(err, voucher.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return fmt.Errorf("creating voucher %q: %w", in.Code, err)
		}
		slog.Info("created voucher", "code", v.Code, "discount_percent", v.DiscountPercent)
		codes = append(codes, v.Code)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Learner:   %s (%s)\n", u.Email, u.ID)
	fmt.Printf("Password:  %s\n", password)
	fmt.Printf("Token:     %s\n", token)
	fmt.Printf("Vouchers:  %v\n", codes)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -H 'Authorization: Bearer %s' http://localhost:%d/api/v1/me\n", token, cfg.Server.Port)
	fmt.Printf("  curl -X POST -H 'Authorization: Bearer %s' -d '{\"topic\":\"photosynthesis\",\"level\":\"beginner\"}' http://localhost:%d/api/v1/lectures\n", token, cfg.Server.Port)

	return nil
}
