// service.go

package pool

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jacl-coder/Caro-Server/config"
)

// PoolService 服务器池管理服务
// 对外提供注册、心跳和状态查询的HTTP接口，并周期性清理失联服务器。
type PoolService struct {
	pool   *Pool
	config *config.Config

	// HTTP服务器
	httpServer *http.Server
	handler    *PoolHandler

	// 控制通道
	shutdown  chan struct{}
	isRunning bool
}

// NewPoolService 创建服务器池管理服务
func NewPoolService(cfg *config.Config) *PoolService {
	service := &PoolService{
		pool:     NewPool(cfg),
		config:   cfg,
		shutdown: make(chan struct{}),
	}

	// 创建处理器
	service.handler = NewPoolHandler(service.pool)

	return service
}

// Start 启动服务器池管理服务
func (s *PoolService) Start() error {
	if s.isRunning {
		return fmt.Errorf("服务器池服务已经在运行")
	}

	log.Println("服务器池服务启动")
	s.isRunning = true

	// 创建HTTP服务器
	mux := http.NewServeMux()
	s.handler.RegisterHandlers(mux)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.PoolPort),
		Handler: mux,
	}

	// 启动HTTP服务器
	go func() {
		log.Printf("服务器池HTTP服务器启动，监听端口: %d", s.config.Server.PoolPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器池HTTP服务器错误: %v", err)
		}
	}()

	// 启动失联服务器清理
	go s.sweepLoop()

	return nil
}

// Stop 停止服务器池管理服务
func (s *PoolService) Stop() {
	if !s.isRunning {
		return
	}

	close(s.shutdown)
	s.isRunning = false

	// 关闭HTTP服务器
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}

	log.Println("服务器池服务已停止")
}

// sweepLoop 失联服务器清理循环
func (s *PoolService) sweepLoop() {
	period := time.Duration(s.config.Pool.SweepPeriod) * time.Second
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed, err := s.pool.SweepDead(); err != nil {
				log.Printf("清理失联服务器失败: %v", err)
			} else if removed > 0 {
				log.Printf("清理了 %d 台失联服务器", removed)
			}
		case <-s.shutdown:
			return
		}
	}
}
