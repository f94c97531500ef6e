package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/chesskite/chesskite-relay/internal/intent"
	"github.com/chesskite/chesskite-relay/internal/suirpc"
)

var (
	ErrInvalidConfig = errors.New("gateway: invalid config")
	ErrNoGasCoins    = errors.New("gateway: sponsor has no gas coins")
	ErrExecution     = errors.New("gateway: execution failed")
)

// RPC is the fullnode surface the gateway needs.
type RPC interface {
	GetCoins(ctx context.Context, owner string) ([]suirpc.Coin, error)
	BuildMoveCall(ctx context.Context, sender string, call suirpc.MoveCall, gasObjectID string, gasBudget uint64) (string, error)
	ExecuteTransactionBlock(ctx context.Context, txBytesB64 string, signatures []string) (suirpc.TransactionBlock, error)
	GetTransactionBlock(ctx context.Context, digest string) (suirpc.TransactionBlock, error)
}

// Signer signs transaction bytes with the sponsor key.
type Signer interface {
	Address() string
	SignTransaction(txBytesB64 string) (string, error)
}

const (
	// DefaultGasBudget is the per-transaction sponsor budget in MIST.
	DefaultGasBudget uint64 = 100_000_000

	defaultPollAttempts = 15
	defaultPollInterval = time.Second
)

type Config struct {
	// PackageID is the published game package; RegistryID the shared badge
	// registry object.
	PackageID  string
	RegistryID string

	GasBudget uint64

	PollAttempts int
	PollInterval time.Duration

	// Sleep is injectable for tests. Defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Gateway builds, sponsors, submits and reads back transactions.
type Gateway struct {
	cfg    Config
	rpc    RPC
	signer Signer
	log    *slog.Logger
}

func New(cfg Config, rpc RPC, signer Signer, log *slog.Logger) (*Gateway, error) {
	if rpc == nil || signer == nil {
		return nil, fmt.Errorf("%w: nil dependency", ErrInvalidConfig)
	}
	if cfg.PackageID == "" {
		return nil, fmt.Errorf("%w: missing package id", ErrInvalidConfig)
	}
	if cfg.GasBudget == 0 {
		cfg.GasBudget = DefaultGasBudget
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = defaultPollAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Gateway{cfg: cfg, rpc: rpc, signer: signer, log: log}, nil
}

// Build constructs the Move call for an intent. Pure; no chain interaction.
func (g *Gateway) Build(it intent.Intent) (suirpc.MoveCall, error) {
	switch it.Kind {
	case intent.KindCreateGame:
		p := it.Payload.CreateGame
		if p == nil {
			return suirpc.MoveCall{}, fmt.Errorf("%w: missing create_game payload", ErrInvalidConfig)
		}
		return suirpc.MoveCall{
			PackageID: g.cfg.PackageID,
			Module:    "game",
			Function:  "create_game",
			Args:      []any{p.Mode, p.Difficulty, suirpc.ClockObjectID},
		}, nil

	case intent.KindMakeMove:
		p := it.Payload.MakeMove
		if p == nil || p.GameObjectID == "" {
			return suirpc.MoveCall{}, fmt.Errorf("%w: make_move requires a game object id", ErrInvalidConfig)
		}
		return suirpc.MoveCall{
			PackageID: g.cfg.PackageID,
			Module:    "game",
			Function:  "make_move",
			Args:      []any{p.GameObjectID, p.IsComputer, p.SAN, p.FEN, p.MoveHash, suirpc.ClockObjectID},
		}, nil

	case intent.KindEndGame:
		p := it.Payload.EndGame
		if p == nil || p.GameObjectID == "" {
			return suirpc.MoveCall{}, fmt.Errorf("%w: end_game requires a game object id", ErrInvalidConfig)
		}
		// option<address> travels as a 0- or 1-element address vector.
		winner := []string{}
		if p.Winner != "" {
			winner = []string{p.Winner}
		}
		return suirpc.MoveCall{
			PackageID: g.cfg.PackageID,
			Module:    "game",
			Function:  "end_game",
			Args:      []any{p.GameObjectID, winner, p.Result, p.FinalFEN, suirpc.ClockObjectID},
		}, nil

	case intent.KindMintBadge:
		p := it.Payload.MintBadge
		if p == nil {
			return suirpc.MoveCall{}, fmt.Errorf("%w: missing mint_badge payload", ErrInvalidConfig)
		}
		registry := p.RegistryObjectID
		if registry == "" {
			registry = g.cfg.RegistryID
		}
		if registry == "" {
			return suirpc.MoveCall{}, fmt.Errorf("%w: mint_badge requires a registry object id", ErrInvalidConfig)
		}
		return suirpc.MoveCall{
			PackageID: g.cfg.PackageID,
			Module:    "badge",
			Function:  "mint_badge",
			Args:      []any{registry, p.RecipientAddress, p.BadgeType, p.Name, p.Description, p.SourceURL},
		}, nil

	default:
		return suirpc.MoveCall{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, it.Kind)
	}
}

// BuildSetAuthorizedMinter constructs the administrative repair call that
// rotates the registry's authorized minter.
func (g *Gateway) BuildSetAuthorizedMinter(registry, newMinter string) (suirpc.MoveCall, error) {
	if registry == "" || newMinter == "" {
		return suirpc.MoveCall{}, fmt.Errorf("%w: registry and new minter are required", ErrInvalidConfig)
	}
	return suirpc.MoveCall{
		PackageID: g.cfg.PackageID,
		Module:    "badge",
		Function:  "set_authorized_minter",
		Args:      []any{registry, newMinter},
	}, nil
}

// Submit builds the intent's call, sponsors and signs it, and broadcasts.
// Fails fast when the sponsor owns no gas coins, and when the chain reports
// a non-success execution status the chain's error string is preserved
// verbatim for classification upstream.
func (g *Gateway) Submit(ctx context.Context, it intent.Intent) (string, error) {
	call, err := g.Build(it)
	if err != nil {
		return "", err
	}
	return g.SubmitCall(ctx, call)
}

// SubmitCall sponsors, signs and broadcasts a prebuilt call.
func (g *Gateway) SubmitCall(ctx context.Context, call suirpc.MoveCall) (string, error) {
	sponsor := g.signer.Address()

	coins, err := g.rpc.GetCoins(ctx, sponsor)
	if err != nil {
		return "", fmt.Errorf("gateway: list sponsor coins: %w", err)
	}
	if len(coins) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoGasCoins, sponsor)
	}

	txBytes, err := g.rpc.BuildMoveCall(ctx, sponsor, call, coins[0].CoinObjectID, g.cfg.GasBudget)
	if err != nil {
		return "", fmt.Errorf("gateway: build tx: %w", err)
	}

	sig, err := g.signer.SignTransaction(txBytes)
	if err != nil {
		return "", fmt.Errorf("gateway: sign tx: %w", err)
	}

	res, err := g.rpc.ExecuteTransactionBlock(ctx, txBytes, []string{sig})
	if err != nil {
		return "", fmt.Errorf("gateway: execute tx: %w", err)
	}
	if !res.Effects.Status.Success() {
		return "", fmt.Errorf("%w: %s", ErrExecution, res.Effects.Status.Error)
	}
	return res.Digest, nil
}

// WaitAndExtract polls until the transaction's effects are readable and
// returns the created object id matching typePattern, or "" when no match
// surfaced within the polling window.
func (g *Gateway) WaitAndExtract(ctx context.Context, digest, typePattern string) (string, error) {
	for attempt := 1; attempt <= g.cfg.PollAttempts; attempt++ {
		tb, err := g.rpc.GetTransactionBlock(ctx, digest)
		switch {
		case errors.Is(err, suirpc.ErrTxNotFound):
			// Not indexed yet; keep polling.
		case err != nil:
			g.log.Warn("read transaction block", "digest", digest, "attempt", attempt, "err", err)
		default:
			if id, ok := extractObjectID(tb, typePattern); ok {
				return id, nil
			}
		}

		if attempt == g.cfg.PollAttempts {
			break
		}
		if err := g.cfg.Sleep(ctx, g.cfg.PollInterval); err != nil {
			return "", err
		}
	}

	g.log.Warn("no created object matched", "digest", digest, "pattern", typePattern)
	return "", nil
}

func extractObjectID(tb suirpc.TransactionBlock, typePattern string) (string, bool) {
	for _, oc := range tb.ObjectChanges {
		if oc.Type != "created" {
			continue
		}
		if typeMatches(oc.ObjectType, typePattern) {
			return oc.ObjectID, true
		}
	}

	// Event fallbacks when the created object is not directly visible.
	lower := strings.ToLower(typePattern)
	if strings.Contains(lower, "game") {
		for _, ev := range tb.Events {
			if !strings.Contains(ev.Type, "GameCreated") {
				continue
			}
			if id, ok := ev.Field("game_id"); ok && id != "" {
				return id, true
			}
		}
	}
	if strings.Contains(lower, "badge") {
		for _, ev := range tb.Events {
			if !strings.Contains(ev.Type, "BadgeMinted") {
				continue
			}
			if id, ok := ev.Field("badge_id"); ok && id != "" {
				return id, true
			}
		}
	}
	return "", false
}

func typeMatches(objectType, pattern string) bool {
	ot := strings.ToLower(objectType)
	p := strings.ToLower(pattern)
	if strings.Contains(ot, p) || strings.HasSuffix(ot, p) {
		return true
	}
	if strings.Contains(p, "game") && strings.Contains(ot, "game") {
		return true
	}
	if strings.Contains(p, "badge") && strings.Contains(ot, "badge") {
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
