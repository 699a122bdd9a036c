// service.go

package match

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jacl-coder/Caro-Server/config"
)

// MatchService 匹配服务
type MatchService struct {
	queue  *Queue
	config *config.Config

	// HTTP服务器
	httpServer *http.Server
	handler    *MatchHandler

	// 控制通道
	shutdown  chan struct{}
	isRunning bool
}

// NewMatchService 创建匹配服务
func NewMatchService(cfg *config.Config) *MatchService {
	service := &MatchService{
		queue:    NewQueue(cfg),
		config:   cfg,
		shutdown: make(chan struct{}),
	}

	// 创建处理器
	service.handler = NewMatchHandler(service)

	return service
}

// Start 启动匹配服务
func (s *MatchService) Start() error {
	if s.isRunning {
		return fmt.Errorf("匹配服务已经在运行")
	}

	log.Println("匹配服务启动")
	s.isRunning = true

	// 创建HTTP服务器
	mux := http.NewServeMux()
	s.handler.RegisterHandlers(mux)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.MatchPort),
		Handler: mux,
	}

	// 启动HTTP服务器
	go func() {
		log.Printf("匹配服务HTTP服务器启动，监听端口: %d", s.config.Server.MatchPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("匹配服务HTTP服务器错误: %v", err)
		}
	}()

	// 启动匹配循环和过期清理
	go s.matchLoop()
	go s.cleanupLoop()

	return nil
}

// Stop 停止匹配服务
func (s *MatchService) Stop() {
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

	log.Println("匹配服务已停止")
}

// Queue 返回底层匹配队列
func (s *MatchService) Queue() *Queue {
	return s.queue
}

// matchLoop 匹配循环
func (s *MatchService) matchLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.queue.MatchOnce()
		case <-s.shutdown:
			return
		}
	}
}

// cleanupLoop 过期队列成员清理循环
func (s *MatchService) cleanupLoop() {
	period := time.Duration(s.config.Matchmaking.CleanupPeriod) * time.Second
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed, err := s.queue.CleanupStale(); err != nil {
				log.Printf("清理过期队列成员失败: %v", err)
			} else if removed > 0 {
				log.Printf("清理了 %d 个过期队列成员", removed)
			}
		case <-s.shutdown:
			return
		}
	}
}
