package constants

// Default session and reconnect configuration values
const (
	DefaultReconnectDelaySec   = 3
	DefaultSessionName         = "default"
	DefaultCommandPrefix       = "!"
	DefaultRetentionDays       = 30
	DefaultCleanupIntervalHrs  = 24
	DefaultServerPort          = 8082
	DefaultQRImageSizePx       = 256
	DefaultEventStreamBuffer   = 64
	DefaultContactCacheHours   = 24
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultDatabaseRetryAttempts = 3
	DefaultGracefulShutdownSec   = 30
	DefaultEngineDialTimeoutSec  = 15
	DefaultChatBotTimeoutSec     = 30
	DefaultBackoffInitialMs      = 500
	DefaultBackoffMaxMs          = 60000
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	ServerErrorChannelSize       = 1
)

// Encryption parameters for at-rest credential and contact data
const (
	EncryptionSalt       = "wagate-db-salt-v1"
	EncryptionLookupSalt = "wagate-lookup-salt-v1"
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)
