package websocket

import (
	"fmt"
	"strings"
	"time"

	"Guardian/pkg/util"
)

// Config WebSocket配置
type Config struct {
	// 最大连接数
	MaxConnections int64
	// 心跳间隔
	HeartbeatInterval time.Duration
	// 连接超时时间
	ConnectionTimeout time.Duration
	// 每个连接的发送缓冲区大小
	MessageBufferSize int
	// 读缓冲区大小
	ReadBufferSize int
	// 写缓冲区大小
	WriteBufferSize int
	// 最大入站消息大小
	MaxMessageSize int
	// 是否启用压缩
	EnableCompression bool
	// 压缩等级（-2..9）
	CompressionLevel int
	// 发送缓冲区满时是否丢弃
	DropOnFull bool
	// 慢消费者策略：背压触发时直接断开
	CloseOnBackpressure bool
	// 发送阻塞超时（用于非 DropOnFull 模式）
	SendTimeout time.Duration
	// 单连接最多订阅的主题数
	MaxTopicsPerConnection int
	// 入站消息处理超时
	HandlerTimeout time.Duration
	// 允许的Origin，为空表示不校验
	AllowedOrigins []string
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:         DefaultMaxConnections,
		HeartbeatInterval:      DefaultHeartbeatInterval * time.Second,
		ConnectionTimeout:      DefaultConnectionTimeout * time.Second,
		MessageBufferSize:      DefaultMessageBufferSize,
		ReadBufferSize:         DefaultReadBufferSize,
		WriteBufferSize:        DefaultWriteBufferSize,
		MaxMessageSize:         DefaultMaxMessageSize,
		EnableCompression:      true,
		CompressionLevel:       -2,
		DropOnFull:             true,
		CloseOnBackpressure:    false,
		SendTimeout:            50 * time.Millisecond,
		MaxTopicsPerConnection: DefaultMaxTopicsPerConnection,
		HandlerTimeout:         10 * time.Second,
	}
}

// LoadConfigFromEnv 从环境变量加载WebSocket配置
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()

	if maxConnections := util.GetIntEnv(EnvWebSocketMaxConnections); maxConnections > 0 {
		config.MaxConnections = maxConnections
	}
	if heartbeatInterval := util.GetIntEnv(EnvWebSocketHeartbeatInterval); heartbeatInterval > 0 {
		config.HeartbeatInterval = time.Duration(heartbeatInterval) * time.Second
	}
	if connectionTimeout := util.GetIntEnv(EnvWebSocketConnectionTimeout); connectionTimeout > 0 {
		config.ConnectionTimeout = time.Duration(connectionTimeout) * time.Second
	}
	if messageBufferSize := util.GetIntEnv(EnvWebSocketMessageBufferSize); messageBufferSize > 0 {
		config.MessageBufferSize = int(messageBufferSize)
	}
	if util.GetEnv(EnvWebSocketEnableCompression) != "" {
		config.EnableCompression = util.GetBoolEnv(EnvWebSocketEnableCompression)
	}
	if util.GetEnv(EnvWebSocketDropOnFull) != "" {
		config.DropOnFull = util.GetBoolEnv(EnvWebSocketDropOnFull)
	}
	if compressionLevel := util.GetIntEnv(EnvWebSocketCompressionLevel); compressionLevel != 0 {
		config.CompressionLevel = int(compressionLevel)
	}
	if readBuf := util.GetIntEnv(EnvWebSocketReadBufferSize); readBuf > 0 {
		config.ReadBufferSize = int(readBuf)
	}
	if writeBuf := util.GetIntEnv(EnvWebSocketWriteBufferSize); writeBuf > 0 {
		config.WriteBufferSize = int(writeBuf)
	}
	if maxMsg := util.GetIntEnv(EnvWebSocketMaxMessageSize); maxMsg > 0 {
		config.MaxMessageSize = int(maxMsg)
	}
	if util.GetEnv(EnvWebSocketCloseOnBackpressure) != "" {
		config.CloseOnBackpressure = util.GetBoolEnv(EnvWebSocketCloseOnBackpressure)
	}
	if sendTimeoutMs := util.GetIntEnv(EnvWebSocketSendTimeoutMs); sendTimeoutMs > 0 {
		config.SendTimeout = time.Duration(sendTimeoutMs) * time.Millisecond
	}
	if maxTopics := util.GetIntEnv(EnvWebSocketMaxTopics); maxTopics > 0 {
		config.MaxTopicsPerConnection = int(maxTopics)
	}
	if origins := util.GetEnv(EnvWebSocketAllowedOrigins); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, o)
			}
		}
	}

	return config
}

// ValidateConfig 验证WebSocket配置
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config must not be nil")
	}
	if config.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be > 0")
	}
	if config.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be > 0")
	}
	if config.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be > 0")
	}
	// 心跳间隔应该小于连接超时时间
	if config.HeartbeatInterval >= config.ConnectionTimeout {
		return fmt.Errorf("heartbeat interval must be shorter than connection timeout")
	}
	if config.MessageBufferSize <= 0 {
		return fmt.Errorf("message buffer size must be > 0")
	}
	if config.ReadBufferSize <= 0 || config.WriteBufferSize <= 0 {
		return fmt.Errorf("read/write buffer sizes must be > 0")
	}
	if config.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be > 0")
	}
	if config.CompressionLevel < -2 || config.CompressionLevel > 9 {
		return fmt.Errorf("compression level must be within [-2, 9]")
	}
	if !config.DropOnFull && config.SendTimeout <= 0 {
		return fmt.Errorf("send timeout must be > 0 when drop-on-full is off")
	}
	if config.MaxTopicsPerConnection <= 0 {
		return fmt.Errorf("max topics per connection must be > 0")
	}
	return nil
}

// GetConfigSummary 获取配置摘要
func GetConfigSummary(config *Config) map[string]interface{} {
	return map[string]interface{}{
		"max_connections":       config.MaxConnections,
		"heartbeat_interval":    config.HeartbeatInterval.String(),
		"connection_timeout":    config.ConnectionTimeout.String(),
		"message_buffer_size":   config.MessageBufferSize,
		"max_message_size":      config.MaxMessageSize,
		"enable_compression":    config.EnableCompression,
		"drop_on_full":          config.DropOnFull,
		"close_on_backpressure": config.CloseOnBackpressure,
		"send_timeout":          config.SendTimeout.String(),
		"max_topics":            config.MaxTopicsPerConnection,
	}
}
