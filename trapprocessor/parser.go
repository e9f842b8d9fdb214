package trapprocessor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/store"
)

// Trap OIDs carried as the value of these bindings identify the trap.
const (
	snmpTrapOID         = ".1.3.6.1.6.3.1.1.4.1.0"
	snmpTrapOIDInstance = ".1.3.6.1.6.3.1.1.4.1"
)

const maxLineSize = 1024 * 1024

var (
	// ErrRead reports a stream ending before the transport line.
	ErrRead = errors.New("error reading trap")
	// ErrParse reports a malformed transport line.
	ErrParse = errors.New("error parsing trap")
	// ErrNoTrapOID reports a trap without snmpTrapOID binding.
	ErrNoTrapOID = errors.New("no trap oid found")
)

var (
	transportLine = regexp.MustCompile(`.DP: \[(.*)\]:(.*)->\[(.*)\]:(.*)`)
	bindingLine   = regexp.MustCompile(`^([^ ]+) (.*)$`)
)

// ParseError is a trap stream that could not be parsed. The trap is still
// recorded, with Detail as status detail.
type ParseError struct {
	Code  int
	Stage string
	Line  string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("%v (code %d/%s): %q", e.Err, e.Code, e.Stage, e.Line)
	}
	return fmt.Sprintf("%v (code %d/%s)", e.Err, e.Code, e.Stage)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Detail is the status detail stored for the trap.
func (e *ParseError) Detail() string {
	switch {
	case errors.Is(e.Err, ErrNoTrapOID):
		return fmt.Sprintf("No trap oid found : check snmptrapd configuration (code %d/%s)", e.Code, e.Stage)
	case errors.Is(e.Err, ErrParse):
		return fmt.Sprintf("Error parsing trap (code %d/%s)", e.Code, e.Stage)
	default:
		return fmt.Sprintf("Error reading trap (code %d/%s)", e.Code, e.Stage)
	}
}

// Parser reads traps in the snmptrapd line format.
type Parser struct {
	log logging.Logger
}

// NewParser returns a parser logging skipped lines to log.
func NewParser(log logging.Logger) *Parser {
	if log == nil {
		log = logging.NewComponentLogger("trapprocessor", "parser")
	}
	return &Parser{log: log}
}

// ParseStream parses one trap with a default parser.
func ParseStream(r io.Reader) (*TrapRecord, error) {
	return NewParser(nil).Parse(r)
}

// Parse reads one trap from r. Bindings are kept in arrival order; lines
// that are not "<oid> <value>" are logged and skipped. The stream ends at
// EOF or at the first empty line.
//
// On a *ParseError the returned record holds what was read so far.
func (p *Parser) Parse(r io.Reader) (*TrapRecord, error) {
	rec := &TrapRecord{Status: store.StatusWaiting}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimRight(scanner.Text(), " \t\r\n"), true
	}

	host, ok := next()
	if !ok {
		return rec, p.readError(scanner, "Line Host")
	}
	rec.Host = host

	transport, ok := next()
	if !ok {
		return rec, p.readError(scanner, "Line IP")
	}
	m := transportLine.FindStringSubmatch(transport)
	if m == nil {
		p.log.Error("error parsing transport line", "line", transport)
		return rec, &ParseError{Code: 2, Stage: "IP", Line: transport, Err: ErrParse}
	}
	rec.SourceIP, rec.SourcePort = m[1], m[2]
	rec.DestinationIP, rec.DestinationPort = m[3], m[4]

	for {
		line, ok := next()
		if !ok || line == "" {
			break
		}
		m := bindingLine.FindStringSubmatch(line)
		if m == nil {
			p.log.Warn("no match on trap data", "line", line)
			continue
		}
		if m[1] == snmpTrapOID || m[1] == snmpTrapOIDInstance {
			rec.TrapOID = m[2]
			continue
		}
		rec.Bindings = append(rec.Bindings, Binding{OID: m[1], Value: m[2]})
	}
	if err := scanner.Err(); err != nil {
		return rec, p.readError(scanner, "Data")
	}

	if rec.TrapOID == "" {
		p.log.Error("no trap oid found", "source_ip", rec.SourceIP)
		return rec, &ParseError{Code: 3, Stage: "OID", Err: ErrNoTrapOID}
	}
	return rec, nil
}

func (p *Parser) readError(scanner *bufio.Scanner, stage string) error {
	err := ErrRead
	if scanErr := scanner.Err(); scanErr != nil {
		err = fmt.Errorf("%w: %w", ErrRead, scanErr)
	}
	p.log.Error("error reading trap", "stage", stage, "error", err)
	return &ParseError{Code: 1, Stage: stage, Err: err}
}
