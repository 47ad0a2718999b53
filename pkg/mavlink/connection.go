package mavlink

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asgard/skylink/pkg/utils"
)

// DefaultWaitTimeout is used by requests that do not specify their own
// timeout, matching the source's 10 second default.
const DefaultWaitTimeout = 10 * time.Second

// Config configures a Connection's outgoing framing and default timeout,
// mirroring MAVLinkConfig's zero-value-defaulting in the teacher.
type Config struct {
	SystemID    uint8
	ComponentID uint8
	Version     Version
	WaitTimeout time.Duration

	// Logger, if set, is used as-is. Otherwise one is built from LogLevel/
	// LogOutput (via utils.NewLogger), so most callers never touch the
	// logging package directly and configure it through this Config alone.
	Logger *logrus.Logger

	// LogLevel and LogOutput configure the logger built when Logger is
	// left nil. LogLevel is any logrus.ParseLevel string ("debug", "info",
	// "warn", "error", ...), defaulting to "info". LogOutput is "stdout"
	// (the default) or a file path to append to.
	LogLevel  string
	LogOutput string

	// OnPacket, if set, is invoked synchronously from the reader loop for
	// every packet after it has been applied to the dispatcher, mirroring
	// the teacher's telemetry-broadcast hook. It must not block.
	OnPacket func(*Packet)
}

func (c Config) withDefaults() Config {
	if c.SystemID == 0 {
		c.SystemID = 1
	}
	if c.ComponentID == 0 {
		c.ComponentID = 1
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.Logger == nil {
		c.Logger = utils.NewLogger(c.LogLevel, c.LogOutput)
	}
	return c
}

// Connection wires a Schema, a Transport, and a dispatcher into a running
// link: one background reader goroutine owns the transport's read side,
// while Send/SendAndWait and friends may be called from any goroutine.
type Connection struct {
	schema    *Schema
	transport Transport
	config    Config
	dispatch  *dispatcher
	framer    *framer

	writeMu sync.Mutex
	seq     uint8
	seqMu   sync.Mutex

	wg   sync.WaitGroup
	done chan struct{}
}

// NewConnection builds a Connection over an already-open Transport.
func NewConnection(schema *Schema, transport Transport, config Config) *Connection {
	config = config.withDefaults()
	c := &Connection{
		schema:    schema,
		transport: transport,
		config:    config,
		dispatch:  newDispatcher(schema),
		done:      make(chan struct{}),
	}
	c.framer = newFramer(schema, transport, config.Logger)
	return c
}

// Run starts the background reader loop and blocks until the transport
// fails or the connection is closed. It is typically invoked in its own
// goroutine by the caller, matching the teacher's Run-loop convention.
func (c *Connection) Run() error {
	c.wg.Add(1)
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return nil
		default:
		}

		pkt, err := c.framer.next()
		if err != nil {
			c.config.Logger.WithError(err).Error("mavlink reader terminated")
			closeErr := err
			select {
			case <-c.done:
				closeErr = ErrClosed
			default:
			}
			c.dispatch.closeWithErr(closeErr)
			return err
		}

		c.config.Logger.WithField("message", pkt.Message.Name).Debug("dispatching packet")
		c.dispatch.dispatch(pkt)
		if c.config.OnPacket != nil {
			c.config.OnPacket(pkt)
		}
	}
}

// Close stops the reader loop (by closing the transport, which unblocks
// any in-flight read) and wakes every outstanding wait with ErrClosed.
func (c *Connection) Close() error {
	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	err := c.transport.Close()
	c.dispatch.closeWithErr(ErrClosed)
	return err
}

// Schema returns the connection's immutable message/enum registry.
func (c *Connection) Schema() *Schema { return c.schema }

// nextSeq returns the next outgoing sequence number, wrapping at 256.
func (c *Connection) nextSeq() uint8 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	s := c.seq
	c.seq++
	return s
}

// Send encodes and writes a single message using this connection's
// configured version and sysid/compid.
func (c *Connection) Send(name string, content map[string]Value) error {
	msg, ok := c.schema.Messages[name]
	if !ok {
		return &EncodeError{Message: name, Reason: "unknown message"}
	}

	var frame []byte
	var err error
	seq := c.nextSeq()
	if c.config.Version == V2 {
		frame, err = EncodeV2(c.schema, msg, seq, c.config.SystemID, c.config.ComponentID, content)
	} else {
		frame, err = EncodeV1(c.schema, msg, seq, c.config.SystemID, c.config.ComponentID, content)
	}
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.transport.Write(frame); err != nil {
		return &TransportError{Op: "write " + name, Err: err}
	}
	return nil
}

// SendAndWait atomically registers a wait-condition for inName, clears any
// stale recv-pool entry for it, sends outName, and blocks for up to the
// connection's configured timeout for a matching packet.
func (c *Connection) SendAndWait(outName string, outContent map[string]Value, inName string, predicate map[string]Value) (map[string]Value, error) {
	return c.sendAndWaitTimeout(outName, outContent, inName, predicate, c.config.WaitTimeout)
}

func (c *Connection) sendAndWaitTimeout(outName string, outContent map[string]Value, inName string, predicate map[string]Value, timeout time.Duration) (map[string]Value, error) {
	c.dispatch.clearRecv(inName)

	if err := c.Send(outName, outContent); err != nil {
		return nil, err
	}

	pkt, err := c.dispatch.waitFor(inName, predicate, timeout)
	if err != nil {
		return nil, err
	}
	return pkt.Content, nil
}

// WaitForMessage blocks until a packet named name arrives whose content
// matches every (field, value) pair in predicate, or timeout elapses.
func (c *Connection) WaitForMessage(name string, predicate map[string]Value, timeout time.Duration) (map[string]Value, error) {
	pkt, err := c.dispatch.waitFor(name, predicate, timeout)
	if err != nil {
		return nil, err
	}
	return pkt.Content, nil
}

// LastMessage returns the most recently dispatched packet for name, if any.
func (c *Connection) LastMessage(name string) (map[string]Value, bool) {
	c.dispatch.mu.Lock()
	defer c.dispatch.mu.Unlock()
	pkt, ok := c.dispatch.recvPool[name]
	if !ok {
		return nil, false
	}
	return pkt.Content, true
}
