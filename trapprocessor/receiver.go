package trapprocessor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/geekxflood/trapdirector/logging"
)

// OIDs snmptrapd adds to the bindings of an SNMPv1 trap.
const (
	sysUpTime       = ".1.3.6.1.2.1.1.3.0"
	snmpTrapAddress = ".1.3.6.1.6.3.18.1.3.0"
	snmpTrapEnt     = ".1.3.6.1.6.3.1.1.4.3.0"
)

// ErrCommunity reports a trap sent with another community than configured.
var ErrCommunity = errors.New("community mismatch")

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	// Address is the UDP listen address, host:port.
	Address string
	// Community, when set, drops traps carrying another community.
	Community string
	// Workers is the number of traps processed concurrently. 0 processes
	// each trap in the reading goroutine.
	Workers     int
	BufferSize  int
	ReadTimeout time.Duration
}

// PacketProcessor handles a raw trap datagram.
type PacketProcessor interface {
	ProcessPacket(ctx context.Context, packet []byte, addr *net.UDPAddr) error
}

// Receiver listens for SNMPv1 and SNMPv2c traps on UDP, renders each one in
// the snmptrapd line format and hands it to a Pipeline.
type Receiver struct {
	config   ReceiverConfig
	pipeline *Pipeline
	snmpLog  gosnmp.Logger
	workers  *WorkerPool
	buffers  *BufferPool
	log      logging.Logger

	mu     sync.Mutex
	conn   *net.UDPConn
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// abort cancels trap processing once Stop returns.
	abort context.CancelFunc
}

// NewReceiver creates a receiver feeding pipeline.
func NewReceiver(config ReceiverConfig, pipeline *Pipeline, log logging.Logger) (*Receiver, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline cannot be nil")
	}
	if config.Address == "" {
		return nil, errors.New("listen address cannot be empty")
	}
	if config.Workers < 0 {
		return nil, fmt.Errorf("invalid worker count %d", config.Workers)
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 65536
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = time.Second
	}
	if log == nil {
		log = logging.NewComponentLogger("trapprocessor", "receiver")
	}

	r := &Receiver{
		config:   config,
		pipeline: pipeline,
		buffers:  NewBufferPool(),
		log:      log,
		snmpLog:  gosnmp.NewLogger(snmpLogger{log}),
	}
	if config.Workers > 0 {
		r.workers = NewWorkerPool(config.Workers, r)
		r.workers.onError = func(job Job, err error) {
			log.Warn("trap dropped", "source", job.addr.String(), "error", err)
		}
	}
	return r, nil
}

// Start binds the UDP socket and starts receiving.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return errors.New("receiver already started")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", r.config.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", r.config.Address, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address %s: %w", r.config.Address, err)
	}
	r.conn = conn

	// Traps already read outlive the cancellation of ctx, they are
	// processed until Stop returns.
	var work context.Context
	work, r.abort = context.WithCancel(context.WithoutCancel(ctx))
	ctx, r.cancel = context.WithCancel(ctx)
	if r.workers != nil {
		r.workers.Start(work)
	}
	r.wg.Add(1)
	go r.listen(ctx, work, conn)

	r.log.Info("trap receiver listening", "address", conn.LocalAddr().String(), "workers", r.config.Workers)
	return nil
}

// Addr returns the bound address, nil before Start.
func (r *Receiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Stop closes the socket and waits for queued traps to be processed, or
// for ctx to expire.
func (r *Receiver) Stop(ctx context.Context) error {
	r.mu.Lock()
	conn, cancel, abort := r.conn, r.cancel, r.abort
	r.conn, r.cancel, r.abort = nil, nil, nil
	r.mu.Unlock()
	if conn == nil {
		return nil
	}

	// Closing the socket unblocks ReadFromUDP.
	cancel()
	_ = conn.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		if r.workers != nil {
			r.workers.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		abort()
		r.log.Info("trap receiver stopped")
		return nil
	case <-ctx.Done():
		abort()
		return ctx.Err()
	}
}

// listen reads datagrams until ctx is cancelled or conn is closed. Traps are
// processed with work.
func (r *Receiver) listen(ctx, work context.Context, conn *net.UDPConn) {
	defer r.wg.Done()

	buffer := make([]byte, r.config.BufferSize)
	for ctx.Err() == nil {
		if err := conn.SetReadDeadline(time.Now().Add(r.config.ReadTimeout)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Warn("failed to set read deadline", "error", err)
		}

		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			r.log.Warn("failed to read UDP packet", "error", err)
			continue
		}

		if r.workers == nil {
			if err := r.ProcessPacket(work, buffer[:n], addr); err != nil {
				r.log.Warn("trap dropped", "source", addr.String(), "error", err)
			}
			continue
		}
		// The read buffer is reused, workers get a pooled copy.
		packet := r.buffers.Get(n)
		copy(packet, buffer[:n])
		if err := r.workers.Submit(ctx, Job{packet: packet, addr: addr, pool: r.buffers}); err != nil {
			return
		}
	}
}

// ProcessPacket decodes one datagram and runs the pipeline on it.
func (r *Receiver) ProcessPacket(ctx context.Context, packet []byte, addr *net.UDPAddr) error {
	// A decoder per packet, workers decode concurrently.
	decoder := &gosnmp.GoSNMP{Version: gosnmp.Version2c, Logger: r.snmpLog}
	pkt, err := decoder.SnmpDecodePacket(packet)
	if err != nil {
		return fmt.Errorf("decoding SNMP packet: %w", err)
	}
	if pkt.PDUType != gosnmp.Trap && pkt.PDUType != gosnmp.SNMPv2Trap && pkt.PDUType != gosnmp.InformRequest {
		return fmt.Errorf("unexpected PDU type %v", pkt.PDUType)
	}
	if r.config.Community != "" && pkt.Community != r.config.Community {
		return fmt.Errorf("%w from %s", ErrCommunity, addr.IP)
	}

	var local net.Addr
	r.mu.Lock()
	if r.conn != nil {
		local = r.conn.LocalAddr()
	}
	r.mu.Unlock()

	_, err = r.pipeline.Process(ctx, strings.NewReader(FormatPacket(pkt, addr, local)))
	return err
}

// FormatPacket renders a decoded trap the way snmptrapd hands it to a trap
// handler with numeric output: source host, transport line, then one
// "<oid> <value>" line per binding. SNMPv1 traps get the snmpTrapOID
// computed from their generic and specific codes.
func FormatPacket(pkt *gosnmp.SnmpPacket, src *net.UDPAddr, dst net.Addr) string {
	var b strings.Builder
	srcIP, srcPort := splitAddr(src)
	dstIP, dstPort := splitAddr(dst)
	fmt.Fprintf(&b, "%s\nUDP: [%s]:%s->[%s]:%s\n", srcIP, srcIP, srcPort, dstIP, dstPort)

	if pkt.Version == gosnmp.Version1 {
		fmt.Fprintf(&b, "%s %d\n", sysUpTime, pkt.Timestamp)
		fmt.Fprintf(&b, "%s %s\n", snmpTrapOID, V1TrapOID(pkt))
	}
	for _, pdu := range pkt.Variables {
		fmt.Fprintf(&b, "%s %s\n", normalizeOID(pdu.Name), formatValue(pdu))
	}
	if pkt.Version == gosnmp.Version1 {
		fmt.Fprintf(&b, "%s %s\n", snmpTrapAddress, pkt.AgentAddress)
		fmt.Fprintf(&b, "%s %s\n", snmpTrapEnt, normalizeOID(pkt.Enterprise))
	}
	return b.String()
}

// V1TrapOID maps an SNMPv1 trap to its SNMPv2 trap OID (RFC 3584 3.1).
func V1TrapOID(pkt *gosnmp.SnmpPacket) string {
	if pkt.GenericTrap >= 0 && pkt.GenericTrap < 6 {
		return fmt.Sprintf(".1.3.6.1.6.3.1.1.5.%d", pkt.GenericTrap+1)
	}
	return fmt.Sprintf("%s.0.%d", normalizeOID(pkt.Enterprise), pkt.SpecificTrap)
}

func formatValue(pdu gosnmp.SnmpPDU) string {
	switch pdu.Type {
	case gosnmp.OctetString:
		raw, ok := pdu.Value.([]byte)
		if !ok {
			return fmt.Sprint(pdu.Value)
		}
		if len(raw) == 0 {
			return `""`
		}
		if !isPrintable(raw) {
			return fmt.Sprintf("% X", raw)
		}
		return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(string(raw))
	case gosnmp.ObjectIdentifier:
		return normalizeOID(fmt.Sprint(pdu.Value))
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks,
		gosnmp.Counter64, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(pdu.Value).String()
	case gosnmp.Null, gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return "NULL"
	default:
		return fmt.Sprint(pdu.Value)
	}
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if (c < 0x20 && c != '\t' && c != '\n' && c != '\r') || c > 0x7e {
			return false
		}
	}
	return true
}

func normalizeOID(oid string) string {
	oid = strings.TrimSuffix(strings.TrimSpace(oid), ".")
	if oid != "" && !strings.HasPrefix(oid, ".") {
		oid = "." + oid
	}
	return oid
}

func splitAddr(addr net.Addr) (string, string) {
	if addr == nil {
		return "", ""
	}
	if udp, ok := addr.(*net.UDPAddr); ok && udp != nil {
		return udp.IP.String(), fmt.Sprint(udp.Port)
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), ""
	}
	return host, port
}

// snmpLogger routes gosnmp debug output to a Logger.
type snmpLogger struct{ log logging.Logger }

func (l snmpLogger) Print(v ...any) {
	l.log.Debug(fmt.Sprint(v...))
}

func (l snmpLogger) Printf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
