package main

import (
	"flag"
	"fmt"
	_ "time/tzdata"

	"github.com/CarPoolLink/CarPoolLink/internal/api"
	"github.com/CarPoolLink/CarPoolLink/internal/common/config"
	"github.com/CarPoolLink/CarPoolLink/internal/common/db"
	"github.com/CarPoolLink/CarPoolLink/internal/common/logger"
	"github.com/CarPoolLink/CarPoolLink/internal/common/middleware"
	"github.com/CarPoolLink/CarPoolLink/internal/common/server"
	"github.com/CarPoolLink/CarPoolLink/internal/common/tracing"
	"github.com/CarPoolLink/CarPoolLink/internal/schedule"
	"github.com/gorilla/mux"
)

var (
	configPath = flag.String("config", "configs/schedule-service.json", "配置文件路径")
	consulKey  = flag.String("consul-key", "", "从 Consul KV 读取配置的 key（设置后优先于 -config）")
)

func main() {
	flag.Parse()

	// 加载配置（优先 Consul KV，退回本地文件）
	var cfg *config.Config
	var err error
	if *consulKey != "" {
		base := config.GetConfig()
		cfg, err = config.LoadConfigFromConsulKV(base.Consul.Host, base.Consul.Port, *consulKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库并建表
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}

	store := schedule.NewStore(gormDB)
	if err := store.Migrate(); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	// 启动统一的 HTTP 服务模板
	handler := api.NewScheduleHandler(store, log)
	err = server.RunHTTPServer(cfg, log, func(r *mux.Router) {
		handler.RegisterRoutes(r)
	}, server.WithRateLimiter(middleware.NewTokenBucket(200, 100)))
	if err != nil {
		log.Fatalf("schedule-service exited with error: %v", err)
	}
}
