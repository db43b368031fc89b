package main

import (
	"messenger/internal/config"
	"messenger/internal/db"
	"messenger/internal/delivery"
	clog "messenger/internal/log"
	"messenger/internal/presence"
	"messenger/internal/server"
	"messenger/internal/service"
	"messenger/internal/store"
	"messenger/internal/upload"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	saver, err := upload.NewSaver(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Msg("upload dir")
	}

	reg := presence.NewRegistry()
	msgStore := store.NewGormStore(gdb)
	router := delivery.NewRouter(msgStore, reg)

	h := server.NewHandler(
		service.NewUserService(gdb, cfg),
		service.NewGroupService(gdb, reg),
		service.NewStoryService(gdb),
		service.NewContactService(gdb),
		service.NewWallpaperService(gdb),
		msgStore,
		saver,
	)

	r := server.SetupRouter(cfg, gdb, h, reg, router, msgStore)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
