package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/chesskite/chesskite-relay/internal/blobstore"
	"github.com/chesskite/chesskite-relay/internal/config"
	"github.com/chesskite/chesskite-relay/internal/dispatch"
	"github.com/chesskite/chesskite-relay/internal/events"
	gamespg "github.com/chesskite/chesskite-relay/internal/gamestore/postgres"
	"github.com/chesskite/chesskite-relay/internal/gateway"
	"github.com/chesskite/chesskite-relay/internal/httpapi"
	"github.com/chesskite/chesskite-relay/internal/intake"
	"github.com/chesskite/chesskite-relay/internal/intent"
	intentpg "github.com/chesskite/chesskite-relay/internal/intent/postgres"
	"github.com/chesskite/chesskite-relay/internal/leases"
	leasespg "github.com/chesskite/chesskite-relay/internal/leases/postgres"
	"github.com/chesskite/chesskite-relay/internal/rewards"
	"github.com/chesskite/chesskite-relay/internal/secrets"
	"github.com/chesskite/chesskite-relay/internal/suikey"
	"github.com/chesskite/chesskite-relay/internal/suirpc"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("init pgx pool", "err", err)
		os.Exit(2)
	}
	defer pool.Close()

	queue, err := intentpg.New(pool)
	if err != nil {
		log.Error("init queue store", "err", err)
		os.Exit(2)
	}
	if err := queue.EnsureSchema(ctx); err != nil {
		log.Error("ensure queue schema", "err", err)
		os.Exit(2)
	}

	games, err := gamespg.New(pool)
	if err != nil {
		log.Error("init game store", "err", err)
		os.Exit(2)
	}

	sponsorSecret, err := secrets.Resolve(ctx, cfg.SponsorRef)
	if err != nil {
		log.Error("resolve sponsor secret", "err", err)
		os.Exit(2)
	}
	signer, err := suikey.Parse(sponsorSecret)
	if err != nil {
		log.Error("parse sponsor secret", "err", err)
		os.Exit(2)
	}
	if cfg.SponsorAddr != "" && !strings.EqualFold(cfg.SponsorAddr, signer.Address()) {
		log.Error("sponsor address mismatch", "configured", cfg.SponsorAddr, "derived", signer.Address())
		os.Exit(2)
	}

	rpcURL := cfg.SuiURL
	if rpcURL == "" {
		rpcURL, err = suirpc.FullnodeURL(cfg.SuiNetwork)
		if err != nil {
			log.Error("resolve fullnode url", "err", err)
			os.Exit(2)
		}
	}
	rpc, err := suirpc.New(rpcURL)
	if err != nil {
		log.Error("init sui rpc client", "err", err)
		os.Exit(2)
	}

	gw, err := gateway.New(gateway.Config{
		PackageID:  cfg.PackageID,
		RegistryID: cfg.RegistryID,
		GasBudget:  cfg.GasBudget,
	}, rpc, signer, log)
	if err != nil {
		log.Error("init chain gateway", "err", err)
		os.Exit(2)
	}

	bus, closeBus, err := newBus(cfg, log)
	if err != nil {
		log.Error("init event bus", "err", err)
		os.Exit(2)
	}
	defer closeBus()

	engine, err := rewards.NewEngine(games)
	if err != nil {
		log.Error("init eligibility engine", "err", err)
		os.Exit(2)
	}
	in, err := intake.New(queue, games, engine, bus, log)
	if err != nil {
		log.Error("init intake", "err", err)
		os.Exit(2)
	}

	proc, err := dispatch.NewProcessor(queue, games, gw, bus, log)
	if err != nil {
		log.Error("init intent processor", "err", err)
		os.Exit(2)
	}
	if blobs, err := newBlobStore(ctx, cfg); err != nil {
		log.Error("init blob store", "err", err)
		os.Exit(2)
	} else if blobs != nil {
		proc.WithBlobStore(blobs)
	}

	disp, err := dispatch.New(dispatch.Config{
		ProcessingInterval: cfg.ProcessingInterval,
		RetryBaseDelay:     cfg.RetryBaseDelay,
		MaxRetries:         cfg.MaxRetries,
		GCInterval:         cfg.GCInterval,
		ReclaimAfter:       cfg.ReclaimAfter,
	}, queue, proc, bus, log)
	if err != nil {
		log.Error("init dispatcher", "err", err)
		os.Exit(2)
	}

	if cfg.LeaderElection {
		leaseStore, err := leasespg.New(pool)
		if err != nil {
			log.Error("init lease store", "err", err)
			os.Exit(2)
		}
		if err := leaseStore.EnsureSchema(ctx); err != nil {
			log.Error("ensure lease schema", "err", err)
			os.Exit(2)
		}
		owner := cfg.Owner
		if owner == "" {
			owner = uuid.NewString()
		}
		elector, err := leases.NewElector(leaseStore, cfg.LeaderLease, owner, cfg.LeaderTTL)
		if err != nil {
			log.Error("init maintenance elector", "err", err)
			os.Exit(2)
		}
		disp.WithLeader(elector)
	}

	handler, err := httpapi.NewHandler(httpapi.Config{CORSOrigin: cfg.CORSOrigin}, queue, log)
	if err != nil {
		log.Error("init http handler", "err", err)
		os.Exit(2)
	}
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "err", err)
		}
	}()

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		if err := disp.Run(ctx); err != nil {
			log.Error("dispatcher run", "err", err)
		}
	}()

	log.Info("relay dispatcher started",
		"network", cfg.SuiNetwork,
		"rpc", rpcURL,
		"sponsor", signer.Address(),
		"processingInterval", cfg.ProcessingInterval.String(),
		"maxRetries", cfg.MaxRetries,
	)

	runBridge(ctx, cfg, in, log)

	// Shutdown: the bridge has returned (signal), the dispatcher drains its
	// in-flight workers, then the HTTP surface goes away.
	<-dispatcherDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	log.Info("shutdown complete")
}

func newBus(cfg config.Config, log *slog.Logger) (events.Bus, func(), error) {
	switch strings.TrimSpace(strings.ToLower(cfg.BusDriver)) {
	case "kafka", "":
		kb, err := events.NewKafkaBus(events.KafkaBusConfig{
			Brokers: cfg.BusBrokers,
			Topic:   cfg.BusOutTopic,
		})
		if err != nil {
			return nil, nil, err
		}
		return kb, func() { _ = kb.Close() }, nil
	case "log":
		return logBus{log: log}, func() {}, nil
	default:
		return nil, nil, errors.New("unsupported bus driver " + cfg.BusDriver)
	}
}

// logBus prints emissions instead of publishing them. Dev only.
type logBus struct {
	log *slog.Logger
}

func (b logBus) Emit(_ context.Context, room, event string, payload any) error {
	body, _ := json.Marshal(payload)
	b.log.Info("event", "room", room, "name", event, "payload", string(body))
	return nil
}

func newBlobStore(ctx context.Context, cfg config.Config) (blobstore.Store, error) {
	bcfg := blobstore.Config{
		Driver: cfg.BlobDriver,
		Bucket: cfg.BlobBucket,
		Prefix: cfg.BlobPrefix,
	}
	if strings.EqualFold(cfg.BlobDriver, blobstore.DriverS3) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		bcfg.S3Client = s3.NewFromConfig(awsCfg)
	}
	return blobstore.New(bcfg)
}

// Inbound bridge message shapes, matching the realtime layer's client
// events.

type inboundEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type createGameMsg struct {
	TransactionID string `json:"transaction_id"`
	GameID        string `json:"game_id"`
	PlayerAddress string `json:"player_address"`
	Data          struct {
		Mode       uint8 `json:"mode"`
		Difficulty uint8 `json:"difficulty"`
	} `json:"data"`
}

type makeMoveMsg struct {
	TransactionID string `json:"transaction_id"`
	PlayerAddress string `json:"player_address"`
	Status        string `json:"status"`
	Data          struct {
		GameObjectID string `json:"game_object_id"`
		IsComputer   bool   `json:"is_computer"`
		SAN          string `json:"san"`
		FEN          string `json:"fen"`
		MoveHash     string `json:"move_hash"`
		GameID       string `json:"game_id"`
	} `json:"data"`
}

type endGameMsg struct {
	TransactionID string `json:"transaction_id"`
	PlayerAddress string `json:"player_address"`
	Data          struct {
		GameObjectID string  `json:"game_object_id"`
		Winner       *string `json:"winner"`
		Result       string  `json:"result"`
		FinalFEN     string  `json:"final_fen"`
	} `json:"data"`
}

type mintNFTMsg struct {
	TransactionID string `json:"transaction_id"`
	PlayerAddress string `json:"player_address"`
	PlayerID      string `json:"player_id"`
	Data          struct {
		RecipientAddress string `json:"recipient_address"`
		BadgeType        string `json:"badge_type"`
		Name             string `json:"name"`
		Description      string `json:"description"`
		SourceURL        string `json:"source_url"`
		RegistryObjectID string `json:"registry_object_id"`
	} `json:"data"`
}

type nftMintMsg struct {
	PlayerID         string `json:"player_id"`
	PlayerSuiAddress string `json:"player_sui_address"`
	RewardType       string `json:"reward_type"`
}

// runBridge consumes client events off the inbound topic and feeds intake
// until the context is cancelled.
func runBridge(ctx context.Context, cfg config.Config, in *intake.Intake, log *slog.Logger) {
	if strings.TrimSpace(strings.ToLower(cfg.BusDriver)) == "log" {
		<-ctx.Done()
		return
	}

	consumer, err := events.NewKafkaConsumer(ctx, events.KafkaConsumerConfig{
		Brokers: cfg.BusBrokers,
		Group:   cfg.BusGroup,
		Topic:   cfg.BusInTopic,
	})
	if err != nil {
		log.Error("init inbound consumer", "err", err)
		<-ctx.Done()
		return
	}
	defer func() { _ = consumer.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-consumer.Errors():
			if ok && err != nil {
				log.Error("inbound consumer", "err", err)
			}
		case msg, ok := <-consumer.Messages():
			if !ok {
				return
			}
			handleInbound(ctx, in, msg.Value, log)
			ackCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := msg.Ack(ackCtx); err != nil {
				log.Error("ack inbound message", "err", err)
			}
			cancel()
		}
	}
}

func handleInbound(ctx context.Context, in *intake.Intake, raw []byte, log *slog.Logger) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Error("parse inbound envelope", "err", err)
		return
	}

	var req intake.Request
	switch env.Event {
	case events.EventCreateGame:
		var m createGameMsg
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			log.Error("parse create_game", "err", err)
			return
		}
		req = intake.Request{
			TransactionID: m.TransactionID,
			Kind:          intent.KindCreateGame,
			Actor:         m.PlayerAddress,
			GameRef:       m.GameID,
			Payload: intent.Payload{CreateGame: &intent.CreateGamePayload{
				Mode:       m.Data.Mode,
				Difficulty: m.Data.Difficulty,
			}},
		}

	case events.EventMakeMove:
		var m makeMoveMsg
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			log.Error("parse make_move", "err", err)
			return
		}
		req = intake.Request{
			TransactionID: m.TransactionID,
			Kind:          intent.KindMakeMove,
			Actor:         m.PlayerAddress,
			GameRef:       m.Data.GameID,
			Status:        m.Status,
			Payload: intent.Payload{MakeMove: &intent.MakeMovePayload{
				GameObjectID: m.Data.GameObjectID,
				IsComputer:   m.Data.IsComputer,
				SAN:          m.Data.SAN,
				FEN:          m.Data.FEN,
				MoveHash:     m.Data.MoveHash,
				GameID:       m.Data.GameID,
			}},
		}

	case events.EventEndGame:
		var m endGameMsg
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			log.Error("parse end_game", "err", err)
			return
		}
		winner := ""
		if m.Data.Winner != nil {
			winner = *m.Data.Winner
		}
		req = intake.Request{
			TransactionID: m.TransactionID,
			Kind:          intent.KindEndGame,
			Actor:         m.PlayerAddress,
			Payload: intent.Payload{EndGame: &intent.EndGamePayload{
				GameObjectID: m.Data.GameObjectID,
				Winner:       winner,
				Result:       m.Data.Result,
				FinalFEN:     m.Data.FinalFEN,
			}},
		}

	case events.EventMintNFT:
		var m mintNFTMsg
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			log.Error("parse mint_nft", "err", err)
			return
		}
		req = intake.Request{
			TransactionID: m.TransactionID,
			Kind:          intent.KindMintBadge,
			Actor:         m.PlayerAddress,
			PlayerRef:     m.PlayerID,
			Payload: intent.Payload{MintBadge: &intent.MintBadgePayload{
				RecipientAddress: m.Data.RecipientAddress,
				BadgeType:        m.Data.BadgeType,
				Name:             m.Data.Name,
				Description:      m.Data.Description,
				SourceURL:        m.Data.SourceURL,
				RegistryObjectID: m.Data.RegistryObjectID,
			}},
		}

	case events.EventNFTMint:
		var m nftMintMsg
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			log.Error("parse nftMint", "err", err)
			return
		}
		if _, _, err := in.RequestReward(ctx, m.PlayerSuiAddress, rewards.Check(m.RewardType)); err != nil {
			log.Error("request reward", "actor", m.PlayerSuiAddress, "kind", m.RewardType, "err", err)
		}
		return

	case events.EventJoinPlayerRoom, events.EventLeavePlayerRoom:
		// Room membership is the realtime layer's concern.
		return

	default:
		log.Warn("unknown inbound event", "event", env.Event)
		return
	}

	if _, _, err := in.Accept(ctx, req); err != nil && !errors.Is(err, intake.ErrValidation) {
		log.Error("accept intent", "event", env.Event, "err", err)
	}
}
