// 手动导入测验题库脚本
//
// 与主程序的 -seed 参数等价，但不会启动 HTTP 服务和 Redis 连接，适合在 CI 或初始化容器中使用。
//
// 用法: go run scripts/seed_quizzes.go configs/quizzes.yaml

package main

import (
	"context"
	"course_portal_backend/internal/config"
	"course_portal_backend/internal/repository"
	"course_portal_backend/internal/seed"
	"course_portal_backend/pkg/database"
	"course_portal_backend/pkg/logger"
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("用法: go run scripts/seed_quizzes.go <quizzes.yaml>")
	}

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}
	cfg.ForceMigrate = true

	logger.InitLogger(cfg)

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	fixture, err := seed.LoadFile(os.Args[1])
	if err != nil {
		log.Fatalf("解析题库文件失败: %v", err)
	}

	log.Println("开始导入测验...")
	if err := seed.Apply(context.Background(), repository.NewQuizRepository(db), fixture); err != nil {
		log.Fatalf("导入失败: %v", err)
	}
	log.Printf("完成！共导入 %d 个测验，%d 个章节项", len(fixture.Quizzes), len(fixture.ChapterItems))
}
