// ============================================================================
// gridpath gRPC Server - 健康檢查端點
// ============================================================================
//
// Package: internal/server
// 文件: server.go
// 功能: 以標準 grpc.health.v1 服務暴露排程器狀態，供負載平衡器與
//       grpc_health_probe 使用
//
// 狀態對應:
//   - 網格尚未建立    -> NOT_SERVING
//   - 網格已發佈      -> SERVING
//   - Stop() 之後     -> NOT_SERVING（所有服務）
//
// 服務名稱 "" 代表整體狀態，ServiceName 代表排程器本身。
//
// ============================================================================

package server

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var log = slog.Default()

// ServiceName 排程器在健康檢查中的服務名稱
const ServiceName = "gridpath.Scheduler"

// Source 提供健康狀態的來源（scheduler.Scheduler 滿足此介面）
type Source interface {
	GridVersion() uint64
}

// Server gRPC 健康檢查伺服器
type Server struct {
	mu      sync.Mutex
	source  Source
	grpc    *grpc.Server
	health  *health.Server
	serving bool
	stopped bool
}

// NewServer 建立伺服器並註冊健康檢查服務
func NewServer(src Source) *Server {
	s := &Server{
		source: src,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	s.Refresh()
	return s
}

// Refresh 依來源狀態更新健康狀態
func (s *Server) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	serving := s.source.GridVersion() > 0
	if serving == s.serving {
		return
	}
	s.serving = serving
	if serving {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve 在 lis 上提供服務（阻塞）
func (s *Server) Serve(lis net.Listener) error {
	log.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// ListenAndServe 監聽指定埠並在背景提供服務
func (s *Server) ListenAndServe(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	go func() {
		if err := s.Serve(lis); err != nil {
			log.Error("gRPC server stopped", "error", err)
		}
	}()
	return nil
}

// Stop 將狀態設為 NOT_SERVING 並優雅關閉
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.health.Shutdown()
	s.grpc.GracefulStop()
}
