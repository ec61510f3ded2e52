// Package main provides operator commands for KindKart.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"kindkart/internal/cache"
	"kindkart/internal/config"
	"kindkart/internal/database"
	"kindkart/internal/models"
	"kindkart/internal/observability"
	"kindkart/internal/repository"
	"kindkart/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// operator is the actor the CLI acts as. It is not a stored user.
var operator = service.Actor{Role: models.RoleAdmin}

// runtime holds the connections shared by every subcommand.
type runtime struct {
	cfg *config.Config
	db  *gorm.DB
	rdb *redis.Client
}

func (r *runtime) users() *service.UserService {
	return service.NewUserService(
		repository.NewUserRepository(r.db),
		repository.NewItemRepository(r.db),
		repository.NewRequestRepository(r.db),
		cache.NewAside(r.rdb),
		r.cfg.ProfileCacheTTL(),
	)
}

func (r *runtime) requests() *service.RequestService {
	return service.NewRequestService(r.db,
		service.WithPendingTTL(r.cfg.RequestPendingTTL()),
		service.WithCache(cache.NewAside(r.rdb)),
	)
}

// opener connects the runtime; tests replace it.
type opener func(ctx context.Context) (*runtime, error)

func connect(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	observability.ConfigureLogger(cfg.Env, cfg.LogFile)

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	cache.InitRedis(cfg.RedisURL)
	return &runtime{cfg: cfg, db: db, rdb: cache.GetClient()}, nil
}

func newRootCmd(open opener) *cobra.Command {
	var rt *runtime
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Operate the KindKart marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			rt, err = open(cmd.Context())
			return err
		},
	}
	get := func() *runtime { return rt }

	root.AddCommand(
		newSweepCmd(get),
		newPromoteCmd(get),
		newBlockCmd(get, true),
		newBlockCmd(get, false),
		newVerifyCmd(get),
		newReconcileCmd(get),
		newEventsCmd(get),
	)
	return root
}

func parseUserID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return uint(id), nil
}

func main() {
	root := newRootCmd(connect)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
