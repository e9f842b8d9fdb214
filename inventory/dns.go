package inventory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/geekxflood/trapdirector/logging"
)

// ErrNoName is returned when an address has no PTR record.
var ErrNoName = errors.New("no name for address")

// Namer gives a host name to an address.
type Namer interface {
	Name(ctx context.Context, ip string) (string, error)
}

// DNSNamer resolves PTR records.
type DNSNamer struct {
	server string
	client *dns.Client
	log    logging.Logger
}

// NewDNSNamer returns a Namer querying server (host:port). An empty server
// uses the first nameserver of /etc/resolv.conf.
func NewDNSNamer(server string, timeout time.Duration, log logging.Logger) (*DNSNamer, error) {
	if log == nil {
		log = logging.NewComponentLogger("inventory", "dns")
	}
	if server == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("reading resolver configuration: %w", err)
		}
		if len(conf.Servers) == 0 {
			return nil, errors.New("no nameserver in resolver configuration")
		}
		server = net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DNSNamer{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
		log:    log,
	}, nil
}

// Name returns the PTR name of ip without its trailing dot.
func (n *DNSNamer) Name(ctx context.Context, ip string) (string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("reverse name of %q: %w", ip, err)
	}

	m := new(dns.Msg)
	m.SetQuestion(arpa, dns.TypePTR)

	in, _, err := n.client.ExchangeContext(ctx, m, n.server)
	if err != nil {
		return "", fmt.Errorf("PTR query for %s: %w", ip, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		n.log.Debug("PTR query failed", "ip", ip, "rcode", dns.RcodeToString[in.Rcode])
		return "", ErrNoName
	}
	for _, a := range in.Answer {
		if ptr, ok := a.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", ErrNoName
}
