package consts

import "time"

// Tunable Options
const (
	// For Underlying Networking
	// BUFFERED_READ_BUFFSIZE is the read buffer size for observer connections
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the write buffer size for observer connections
	BUFFERED_WRITE_BUFFSIZE = 16384
	// MAX_PACKET_PAYLOAD_LENGTH is the maximum payload length of a single packet
	MAX_PACKET_PAYLOAD_LENGTH = 25 * 1024 * 1024
	// PACKET_FLUSH_DELAY is how long a packet connection waits for more packets before flushing
	PACKET_FLUSH_DELAY = time.Millisecond
	// PACKET_MAX_FLUSH_DELAY is the longest a sent packet waits before it is flushed
	PACKET_MAX_FLUSH_DELAY = time.Millisecond * 10

	// For Gate Service
	// CLIENT_PROXY_WRITE_BUFFER_SIZE is the socket write buffer size for observer connections
	CLIENT_PROXY_WRITE_BUFFER_SIZE = 1024 * 1024
	// CLIENT_PROXY_READ_BUFFER_SIZE is the socket read buffer size for observer connections
	CLIENT_PROXY_READ_BUFFER_SIZE = 1024 * 1024
	// CLIENT_PROXY_SET_TCP_NO_DELAY = true sets observer connections to TcpNoDelay
	CLIENT_PROXY_SET_TCP_NO_DELAY = true
	// CLIENT_PROXY_CLOSE_FLUSH_TIMEOUT is how long the gate waits for pending packets when it terminates
	CLIENT_PROXY_CLOSE_FLUSH_TIMEOUT = time.Second

	// For Dispatcher
	// DISPATCHER_KICK_QUEUE_SIZE is the number of pending early-tick requests per entity type
	DISPATCHER_KICK_QUEUE_SIZE = 1
	// DISPATCHER_SLOW_TICK_FACTOR marks a tick slow when it takes longer than factor * tick interval
	DISPATCHER_SLOW_TICK_FACTOR = 1

	// For Facade
	// FACADE_CREATE_WARN_THRESHOLD is the duration after which a create is reported by opmon
	FACADE_CREATE_WARN_THRESHOLD = time.Millisecond * 10

	// For Operation Monitor
	// OPMON_DUMP_INTERVAL is the interval to print opmon infos to output, 0 disables
	OPMON_DUMP_INTERVAL = 0
)

// Grid defaults, matching the geometry the sync service was tuned for
const (
	DEFAULT_GRID_WIDTH            = 50000
	DEFAULT_GRID_LENGTH           = 50000
	DEFAULT_GRID_OFFSET_X         = 10000
	DEFAULT_GRID_OFFSET_Y         = 10000
	DEFAULT_GRID_CELL_SIZE        = 100
	DEFAULT_ENTITIES_PER_CELL     = 125
	DEFAULT_OBJECTS_PER_CELL      = 350
	DEFAULT_ENTITY_RANGE          = 100
	DEFAULT_TICK_INTERVAL         = time.Millisecond * 100
	DEFAULT_CHARACTER_TICK        = time.Millisecond * 50
	DEFAULT_MARKER_TICK           = time.Millisecond * 250
	DEFAULT_STATUS_INTERVAL       = time.Minute
	DEFAULT_OBSERVER_UPDATE_HZ    = 20
	DEFAULT_OBSERVER_UPDATE_BURST = 5
)

// Debug Options
const (
	// DEBUG_PACKETS prints packet send/recv debug logs
	DEBUG_PACKETS = false
	// DEBUG_GRID prints grid clamp & relocation debug logs
	DEBUG_GRID = false
	// DEBUG_DISPATCH prints per-tick event counts
	DEBUG_DISPATCH = false
	// DEBUG_CLIENTS prints observer connect / disconnect debug logs
	DEBUG_CLIENTS = false
)

//  System level configurations
const (
	// DEBUG_MODE = true turns on debug mode
	DEBUG_MODE = false
)
