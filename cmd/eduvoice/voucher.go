package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/eduvoice/eduvoice/internal/config"
	"github.com/eduvoice/eduvoice/internal/voucher"
	"github.com/spf13/cobra"
)

var voucherCmd = &cobra.Command{
	Use:   "voucher",
	Short: "Manage discount vouchers",
}

var voucherCreateCmd = &cobra.Command{
	Use:   "create CODE",
	Short: "Create a voucher",
	Args:  cobra.ExactArgs(1),
	RunE:  runVoucherCreate,
}

var voucherListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vouchers",
	RunE:  runVoucherList,
}

var (
	voucherDiscount int
	voucherMaxUses  int
	voucherValidFor time.Duration
)

func init() {
	voucherCreateCmd.Flags().IntVar(&voucherDiscount, "discount", 100, "discount percent (1-100)")
	voucherCreateCmd.Flags().IntVar(&voucherMaxUses, "max-uses", 0, "maximum redemptions (0 = unlimited)")
	voucherCreateCmd.Flags().DurationVar(&voucherValidFor, "valid-for", 0, "lifetime from now, e.g. 720h (0 = never expires)")

	voucherCmd.AddCommand(voucherCreateCmd, voucherListCmd)
	rootCmd.AddCommand(voucherCmd)
}

func runVoucherCreate(cmd *cobra.Command, args []string) error {
	in := voucher.CreateInput{Code: args[0], DiscountPercent: voucherDiscount}
	if voucherMaxUses > 0 {
		in.MaxUses = &voucherMaxUses
	}
	if voucherValidFor > 0 {
		expires := time.Now().Add(voucherValidFor)
		in.ExpiresAt = &expires
	}

	return withVouchers(func(ctx context.Context, svc *voucher.Service) error {
		v, err := svc.Create(ctx, in)
		if err != nil {
			return err
		}
		fmt.Printf("created voucher %s (%d%% off)\n", v.Code, v.DiscountPercent)
		return nil
	})
}

func runVoucherList(cmd *cobra.Command, args []string) error {
	return withVouchers(func(ctx context.Context, svc *voucher.Service) error {
		vs, err := svc.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tDISCOUNT\tUSES\tMAX\tEXPIRES")
		for _, v := range vs {
			maxUses, expires := "-", "-"
			if v.MaxUses != nil {
				maxUses = fmt.Sprint(*v.MaxUses)
			}
			if v.ExpiresAt != nil {
				expires = v.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%d%%\t%d\t%s\t%s\n", v.Code, v.DiscountPercent, v.UsesSoFar, maxUses, expires)
		}
		return w.Flush()
	})
}

func withVouchers(fn func(ctx context.Context, svc *voucher.Service) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Ledger.Backend == config.LedgerMemory {
		return fmt.Errorf("voucher commands need a persistent backend; ledger.backend is memory")
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a.vouchers)
}
