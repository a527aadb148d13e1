// ABOUTME: fieldsync CLI exercises the offline-first farm data store and sync queue.
// ABOUTME: Provides init, login, add-farm, add-field, list, status, and sync commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/omerkhurshid/crops-ai-sync/fieldsync"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "init":
		initCmd()
	case "login":
		loginCmd()
	case "add-farm":
		addFarmCmd()
	case "add-field":
		addFieldCmd()
	case "list":
		listCmd()
	case "status":
		statusCmd()
	case "sync":
		syncCmd()
	default:
		usage()
	}
}

func usage() {
	fmt.Println(`fieldsync - offline-first farm data sync

Usage:
  fieldsync init    -server URL
  fieldsync login   -user-id ID -email EMAIL -token TOKEN -refresh TOKEN
  fieldsync add-farm  -name NAME [-lat F] [-lng F] [-area F]
  fieldsync add-field -farm FARM_ID -name NAME [-area F] [-soil TYPE]
  fieldsync list
  fieldsync status
  fieldsync sync [-v]`)
}

// app wires the CLI to the sync library.
type app struct {
	cfg     *Config
	syncCfg fieldsync.Config
	store   *fieldsync.Store
	monitor *fieldsync.Monitor
	syncer  *fieldsync.Synchronizer
}

func newApp(ctx context.Context, verbose bool) (*app, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
	}

	store := fieldsync.NewStore(cfg.DBPath)
	if err := store.Initialize(ctx); err != nil {
		return nil, err
	}

	syncCfg := fieldsync.Config{
		BaseURL:  cfg.Server,
		DeviceID: cfg.DeviceID,
	}
	tokens := fieldsync.NewFileTokenStore(cfg.Tokens)
	gw := fieldsync.NewGateway(syncCfg, tokens, func() {
		if u, err := store.CurrentUser(ctx); err == nil && u != nil {
			_ = store.DeleteUser(ctx, u.ID)
		}
	}, logger)

	prober := fieldsync.NewHTTPProber(cfg.Server+"/api/health", 0)
	monitor := fieldsync.NewMonitor(prober, 0, 0, logger)

	return &app{
		cfg:     cfg,
		syncCfg: syncCfg,
		store:   store,
		monitor: monitor,
		syncer:  fieldsync.NewSynchronizer(syncCfg, store, gw, monitor, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("close store: %v", err)
	}
}

func run(args []string, fs *flag.FlagSet, verbose *bool, fn func(ctx context.Context, a *app) error) {
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	v := verbose != nil && *verbose
	a, err := newApp(ctx, v)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()
	if err := fn(ctx, a); err != nil {
		log.Fatal(err)
	}
}

func initCmd() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	server := fs.String("server", "", "remote API base URL")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatal(err)
	}
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if *server != "" {
		cfg.Server = *server
	}
	if err := SaveConfig(cfg); err != nil {
		log.Fatal(err)
	}
	store := fieldsync.NewStore(cfg.DBPath)
	if err := store.Initialize(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer func() { _ = store.Close() }()
	fmt.Printf("initialized %s\n", cfg.DBPath)
}

func loginCmd() {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	userID := fs.String("user-id", "", "server user id")
	email := fs.String("email", "", "account email")
	token := fs.String("token", "", "access token")
	refresh := fs.String("refresh", "", "refresh token")
	run(os.Args[2:], fs, nil, func(ctx context.Context, a *app) error {
		if *userID == "" || *token == "" {
			return fmt.Errorf("user-id and token required")
		}
		tokens := fieldsync.NewFileTokenStore(a.cfg.Tokens)
		if err := tokens.SetTokens(fieldsync.Tokens{Access: *token, Refresh: *refresh}); err != nil {
			return err
		}
		return a.store.SaveUser(ctx, &fieldsync.User{
			ID:        *userID,
			Email:     *email,
			Role:      "FARM_OWNER",
			CreatedAt: time.Now().UTC(),
		})
	})
}

func addFarmCmd() {
	fs := flag.NewFlagSet("add-farm", flag.ExitOnError)
	name := fs.String("name", "", "farm name")
	lat := fs.Float64("lat", 0, "latitude")
	lng := fs.Float64("lng", 0, "longitude")
	area := fs.Float64("area", 0, "total area (ha)")
	run(os.Args[2:], fs, nil, func(ctx context.Context, a *app) error {
		if *name == "" {
			return fmt.Errorf("farm name required")
		}
		user, err := a.store.CurrentUser(ctx)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("not logged in; run 'fieldsync login' first")
		}
		farm := &fieldsync.Farm{
			ID:        fieldsync.NewID(),
			Name:      *name,
			OwnerID:   user.ID,
			Latitude:  *lat,
			Longitude: *lng,
			TotalArea: *area,
			CreatedAt: time.Now().UTC(),
			NeedsSync: true,
		}
		if err := a.store.SaveFarm(ctx, farm); err != nil {
			return err
		}
		if err := a.syncer.QueueCreate(ctx, fieldsync.ResourceFarms, farm.ID, farm); err != nil {
			return err
		}
		fmt.Println(farm.ID)
		return nil
	})
}

func addFieldCmd() {
	fs := flag.NewFlagSet("add-field", flag.ExitOnError)
	farmID := fs.String("farm", "", "farm id")
	name := fs.String("name", "", "field name")
	area := fs.Float64("area", 0, "area (ha)")
	soil := fs.String("soil", "", "soil type")
	run(os.Args[2:], fs, nil, func(ctx context.Context, a *app) error {
		if *farmID == "" || *name == "" {
			return fmt.Errorf("farm id and field name required")
		}
		field := &fieldsync.Field{
			ID:        fieldsync.NewID(),
			FarmID:    *farmID,
			Name:      *name,
			Area:      *area,
			SoilType:  *soil,
			CreatedAt: time.Now().UTC(),
			NeedsSync: true,
		}
		if err := a.store.SaveField(ctx, field); err != nil {
			return err
		}
		if err := a.syncer.QueueCreate(ctx, fieldsync.ResourceFields, field.ID, field); err != nil {
			return err
		}
		fmt.Println(field.ID)
		return nil
	})
}

func listCmd() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	run(os.Args[2:], fs, nil, func(ctx context.Context, a *app) error {
		farms, err := a.store.ListFarms(ctx, "")
		if err != nil {
			return err
		}
		for _, f := range farms {
			marker := " "
			if f.NeedsSync {
				marker = "*"
			}
			fmt.Printf("%s %s  %s (%.1f ha)\n", marker, f.ID, f.Name, f.TotalArea)
			fields, err := a.store.ListFields(ctx, f.ID)
			if err != nil {
				return err
			}
			for _, fl := range fields {
				fmt.Printf("    %s  %s (%.1f ha)\n", fl.ID, fl.Name, fl.Area)
			}
		}
		return nil
	})
}

func statusCmd() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	run(os.Args[2:], fs, nil, func(ctx context.Context, a *app) error {
		a.monitor.SetOnline(probe(ctx, a))
		st := a.syncer.Status(ctx)
		fmt.Printf("online:            %v\n", st.IsOnline)
		fmt.Printf("syncing:           %v\n", st.IsSyncing)
		fmt.Printf("pending uploads:   %d\n", st.PendingUploads)
		fmt.Printf("pending downloads: %d\n", st.PendingDownloads)
		if st.LastSync != nil {
			fmt.Printf("last sync:         %s\n", st.LastSync.Format(time.RFC3339))
		}
		for _, e := range st.Errors {
			fmt.Printf("error [%s] %s\n", e.Type, e.Message)
		}
		return nil
	})
}

func syncCmd() {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	verbose := fs.Bool("v", false, "verbose logging")
	run(os.Args[2:], fs, verbose, func(ctx context.Context, a *app) error {
		if !probe(ctx, a) {
			return fmt.Errorf("server unreachable: %s", a.cfg.Server)
		}
		a.monitor.SetOnline(true)
		_, err := fieldsync.WithRetry(ctx, a.syncCfg.GetRetryConfig(), "sync", func() (bool, error) {
			if !a.syncer.SyncAll(ctx) {
				return false, fieldsync.ErrNetworkFailure
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		st := a.syncer.Status(ctx)
		fmt.Printf("synced; %d uploads pending\n", st.PendingUploads)
		return nil
	})
}

func probe(ctx context.Context, a *app) bool {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return fieldsync.NewHTTPProber(a.cfg.Server+"/api/health", 0).Probe(pctx)
}
