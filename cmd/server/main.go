// main.go

package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacl-coder/Caro-Server/config"
	"github.com/jacl-coder/Caro-Server/internal/game"
	"github.com/jacl-coder/Caro-Server/internal/gateway"
	"github.com/jacl-coder/Caro-Server/internal/match"
	"github.com/jacl-coder/Caro-Server/internal/pool"
	"github.com/jacl-coder/Caro-Server/pkg/db"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	serviceType := flag.String("service", "all", "服务类型 (game, match, pool, gateway, all)")
	flag.Parse()

	// 加载配置
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库连接
	if err := db.InitPostgres(); err != nil {
		log.Fatalf("初始化PostgreSQL失败: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(); err != nil {
		log.Fatalf("初始化数据库表结构失败: %v", err)
	}

	// 初始化Redis连接（失败时匹配队列降级为内存模式）
	if err := db.InitRedis(); err != nil {
		log.Printf("初始化Redis失败: %v", err)
	} else {
		defer db.CloseRedis()
	}

	// 根据服务类型启动不同的服务
	var stops []func()
	switch *serviceType {
	case "game":
		stops = append(stops, startGameServer())
	case "match":
		stops = append(stops, startMatchService())
	case "pool":
		stops = append(stops, startPoolService())
	case "gateway":
		stops = append(stops, startGateway())
	case "all":
		stops = append(stops, startPoolService())
		stops = append(stops, startMatchService())
		stops = append(stops, startGameServer())
		stops = append(stops, startGateway())
		log.Println("所有服务已启动")
	default:
		log.Fatalf("未知的服务类型: %s", *serviceType)
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("接收到关闭信号，正在关闭服务器...")

	// 按启动的相反顺序关闭
	for i := len(stops) - 1; i >= 0; i-- {
		stops[i]()
	}

	log.Println("服务器已安全关闭")
}

// startGameServer 启动游戏服务器
func startGameServer() func() {
	server := game.NewGameServer(&config.GlobalConfig)

	if err := server.Start(); err != nil {
		log.Fatalf("启动游戏服务器失败: %v", err)
	}

	log.Println("游戏服务器已启动")
	return func() {
		if err := server.Stop(); err != nil {
			log.Printf("关闭游戏服务器失败: %v", err)
		}
	}
}

// startMatchService 启动匹配服务
func startMatchService() func() {
	service := match.NewMatchService(&config.GlobalConfig)

	if err := service.Start(); err != nil {
		log.Fatalf("启动匹配服务失败: %v", err)
	}

	log.Println("匹配服务已启动")
	return service.Stop
}

// startPoolService 启动服务器池服务
func startPoolService() func() {
	service := pool.NewPoolService(&config.GlobalConfig)

	if err := service.Start(); err != nil {
		log.Fatalf("启动服务器池服务失败: %v", err)
	}

	log.Println("服务器池服务已启动")
	return service.Stop
}

// startGateway 启动网关服务
func startGateway() func() {
	gatewayServer := gateway.NewGateway(&config.GlobalConfig)

	if err := gatewayServer.Start(); err != nil {
		log.Fatalf("启动网关服务失败: %v", err)
	}

	log.Println("网关服务已启动")
	return func() {
		if err := gatewayServer.Stop(); err != nil {
			log.Printf("关闭网关服务失败: %v", err)
		}
	}
}
