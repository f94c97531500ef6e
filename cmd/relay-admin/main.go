package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/chesskite/chesskite-relay/internal/config"
	"github.com/chesskite/chesskite-relay/internal/gateway"
	"github.com/chesskite/chesskite-relay/internal/intent"
	intentpg "github.com/chesskite/chesskite-relay/internal/intent/postgres"
	"github.com/chesskite/chesskite-relay/internal/secrets"
	"github.com/chesskite/chesskite-relay/internal/suikey"
	"github.com/chesskite/chesskite-relay/internal/suirpc"
)

const usage = `usage: relay-admin <command> [flags]

commands:
  set-authorized-minter   rotate the badge registry's authorized minter
  reclaim-stuck           reset processing rows stuck past a cutoff to pending
  show                    print one queue row
  gc                      delete completed/failed rows older than 24h
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "set-authorized-minter":
		err = runSetAuthorizedMinter(ctx, os.Args[2:], log)
	case "reclaim-stuck":
		err = runReclaimStuck(ctx, os.Args[2:], log)
	case "show":
		err = runShow(ctx, os.Args[2:])
	case "gc":
		err = runGC(ctx, os.Args[2:], log)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error(os.Args[1], "err", err)
		os.Exit(1)
	}
}

func runSetAuthorizedMinter(ctx context.Context, args []string, log *slog.Logger) error {
	fs := flag.NewFlagSet("set-authorized-minter", flag.ExitOnError)
	newMinter := fs.String("new-minter", "", "address to authorize as minter (required)")
	registry := fs.String("registry", "", "registry object id (defaults to SUI_BADGE_REGISTRY_ID)")
	_ = fs.Parse(args)

	if *newMinter == "" {
		return fmt.Errorf("--new-minter is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	reg := *registry
	if reg == "" {
		reg = cfg.RegistryID
	}
	if reg == "" {
		return fmt.Errorf("no registry object id configured")
	}

	sponsorSecret, err := secrets.Resolve(ctx, cfg.SponsorRef)
	if err != nil {
		return err
	}
	signer, err := suikey.Parse(sponsorSecret)
	if err != nil {
		return err
	}

	rpcURL := cfg.SuiURL
	if rpcURL == "" {
		rpcURL, err = suirpc.FullnodeURL(cfg.SuiNetwork)
		if err != nil {
			return err
		}
	}
	rpc, err := suirpc.New(rpcURL)
	if err != nil {
		return err
	}
	gw, err := gateway.New(gateway.Config{
		PackageID:  cfg.PackageID,
		RegistryID: reg,
		GasBudget:  cfg.GasBudget,
	}, rpc, signer, log)
	if err != nil {
		return err
	}

	call, err := gw.BuildSetAuthorizedMinter(reg, *newMinter)
	if err != nil {
		return err
	}
	digest, err := gw.SubmitCall(ctx, call)
	if err != nil {
		return err
	}
	log.Info("authorized minter rotated", "registry", reg, "newMinter", *newMinter, "digest", digest)
	return nil
}

func runReclaimStuck(ctx context.Context, args []string, log *slog.Logger) error {
	fs := flag.NewFlagSet("reclaim-stuck", flag.ExitOnError)
	olderThan := fs.Duration("older-than", 10*time.Minute, "reset processing rows stuck longer than this")
	_ = fs.Parse(args)

	queue, cleanup, err := openQueue(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := queue.ReclaimStuck(ctx, *olderThan)
	if err != nil {
		return err
	}
	log.Info("reclaimed stuck rows", "count", n, "olderThan", olderThan.String())
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	id := fs.String("id", "", "queue row id (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	queue, cleanup, err := openQueue(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	it, err := queue.Get(ctx, *id)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(struct {
		ID          string         `json:"id"`
		Kind        intent.Kind    `json:"kind"`
		Actor       string         `json:"actor,omitempty"`
		GameRef     string         `json:"game_ref,omitempty"`
		PlayerRef   string         `json:"player_ref,omitempty"`
		Status      intent.Status  `json:"status"`
		Error       string         `json:"error,omitempty"`
		Retries     int            `json:"retries"`
		Payload     intent.Payload `json:"payload"`
		CreatedAt   time.Time      `json:"created_at"`
		UpdatedAt   time.Time      `json:"updated_at"`
		ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	}{
		ID:        it.ID,
		Kind:      it.Kind,
		Actor:     it.Actor,
		GameRef:   it.GameRef,
		PlayerRef: it.PlayerRef,
		Status:    it.Status,
		Error:     it.Error,
		Retries:   it.Retries,
		Payload:   it.Payload,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
		ProcessedAt: func() *time.Time {
			if it.ProcessedAt.IsZero() {
				return nil
			}
			t := it.ProcessedAt
			return &t
		}(),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runGC(ctx context.Context, args []string, log *slog.Logger) error {
	fs := flag.NewFlagSet("gc", flag.ExitOnError)
	olderThan := fs.Duration("older-than", intent.DefaultGCAge, "delete completed/failed rows older than this")
	_ = fs.Parse(args)

	queue, cleanup, err := openQueue(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := queue.GCOld(ctx, *olderThan)
	if err != nil {
		return err
	}
	log.Info("gc removed rows", "count", n, "olderThan", olderThan.String())
	return nil
}

func openQueue(ctx context.Context) (*intentpg.Store, func(), error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	queue, err := intentpg.New(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return queue, pool.Close, nil
}
