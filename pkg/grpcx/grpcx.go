package grpcx

import (
	"context"
	"net"
	"time"

	"Guardian/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServerConfig gRPC 服务器配置
type ServerConfig struct {
	Addr             string
	UnaryTimeout     time.Duration
	EnableReflection bool
}

// ClientConfig gRPC 客户端配置
type ClientConfig struct {
	Target         string
	UnaryTimeout   time.Duration
	WithInsecure   bool
	DefaultHeaders map[string]string
}

// Server gRPC 服务器及其健康检查服务
type Server struct {
	cfg    ServerConfig
	gs     *grpc.Server
	health *health.Server
}

// NewServer 创建 gRPC Server，内置恢复/超时拦截器并注册健康检查
func NewServer(cfg ServerConfig, extra ...grpc.UnaryServerInterceptor) *Server {
	interceptors := append(extra,
		serverTimeoutInterceptor(cfg.UnaryTimeout),
		recoveryInterceptor(),
	)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if cfg.EnableReflection {
		reflection.Register(gs)
	}
	return &Server{cfg: cfg, gs: gs, health: hs}
}

// SetServing 更新某个服务的健康状态，service 为空表示整体
func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

// Serve 在给定监听上阻塞服务，直到 Stop
func (s *Server) Serve(lis net.Listener) error {
	logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	return s.gs.Serve(lis)
}

// ListenAndServe 监听配置地址并服务
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Stop 标记不可用并优雅停止，ctx 到期后强制停止
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.gs.Stop()
	}
}

// Dial 创建客户端连接，内置超时与默认Header注入拦截器
func Dial(cfg ClientConfig, extra ...grpc.UnaryClientInterceptor) (*grpc.ClientConn, error) {
	var opts []grpc.DialOption
	if cfg.WithInsecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	cis := []grpc.UnaryClientInterceptor{
		clientTimeoutInterceptor(cfg.UnaryTimeout),
		clientHeaderInterceptor(cfg.DefaultHeaders),
	}
	cis = append(cis, extra...)
	opts = append(opts, grpc.WithChainUnaryInterceptor(cis...))
	return grpc.NewClient(cfg.Target, opts...)
}

// ---------- Interceptors ----------

func serverTimeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	if d <= 0 {
		d = 30 * time.Second
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		c, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(c, req)
	}
}

func recoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc handler panic", zap.String("method", info.FullMethod), zap.Any("panic", r))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func clientTimeoutInterceptor(d time.Duration) grpc.UnaryClientInterceptor {
	if d <= 0 {
		d = 30 * time.Second
	}
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		c, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return invoker(c, method, req, reply, cc, opts...)
	}
}

func clientHeaderInterceptor(headers map[string]string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if len(headers) > 0 {
			ctx = metadata.NewOutgoingContext(ctx, metadata.New(headers))
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
