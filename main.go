// @title Course Portal 测验 API
// @version 1.0
// @description 课程门户限时测验服务：开始作答、逐题保存、交卷评分与成绩查询。

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"context"
	"course_portal_backend/internal/app"
	"course_portal_backend/internal/config"
	"course_portal_backend/internal/seed"
	"course_portal_backend/pkg/logger"
	"flag"
	"log"
	"path/filepath"

	"go.uber.org/zap"
)

const configDir = "configs"

func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移（以及 -seed 导入），完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	seedFile := flag.String("seed", "", "启动前从 yaml 文件导入测验与章节项")
	flag.Parse()

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly
	cfg.SeedFile = *seedFile

	application := app.NewApp(cfg, filepath.Join(configDir, "config.yaml"))
	defer logger.Log.Sync()

	if cfg.SeedFile != "" {
		fixture, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			logger.Log.Fatal("Failed to load seed file", zap.String("file", cfg.SeedFile), zap.Error(err))
		}
		if err := seed.Apply(context.Background(), application.Quizzes(), fixture); err != nil {
			logger.Log.Fatal("Failed to seed quizzes", zap.Error(err))
		}
		logger.Log.Info("Seed completed", zap.Int("quizzes", len(fixture.Quizzes)), zap.Int("chapterItems", len(fixture.ChapterItems)))
	}

	if cfg.MigrateOnly {
		logger.Log.Info("数据库迁移完成，退出程序")
		return
	}

	application.Run()
}
