// Package devicesim is a loopback stand-in for a Knox Chameleon64i behind its
// serial-to-Ethernet adapter. It speaks enough of the protocol to exercise
// the transport and scheduler, and reproduces the adapter's bad habits on
// demand: unsolicited bytes after connect, burst delays, and dropped
// responses.
package devicesim

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type zone struct {
	input  int
	volume int
	muted  bool
}

type Sim struct {
	ln net.Listener

	// InitNoise is written to every new connection before any command is
	// read, imitating the adapter's post-connect chatter.
	InitNoise []byte

	// ResponseDelay is slept before every reply.
	ResponseDelay time.Duration

	// HangAfter, when positive, makes the device stop answering after that
	// many commands. Connections stay open; nothing is written.
	HangAfter int

	mu       sync.Mutex
	zones    map[int]*zone
	commands int
	conns    int
	wg       sync.WaitGroup
}

func New() *Sim {
	zones := make(map[int]*zone, 64)
	for z := 1; z <= 64; z++ {
		zones[z] = &zone{input: 1, volume: z % 64}
	}
	return &Sim{zones: zones}
}

// Start listens on an ephemeral loopback port and serves until Stop.
func (s *Sim) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()
	return ln.Addr().String(), nil
}

func (s *Sim) Stop() {
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()
}

func (s *Sim) Addr() string { return s.ln.Addr().String() }

// Commands returns how many commands the device has processed.
func (s *Sim) Commands() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands
}

// Connections returns how many TCP connections have been accepted.
func (s *Sim) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// SetZone seeds device state for a test.
func (s *Sim) SetZone(z, input, volume int, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[z] = &zone{input: input, volume: volume, muted: muted}
}

func (s *Sim) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Sim) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	if len(s.InitNoise) > 0 {
		_, _ = conn.Write(s.InitNoise)
	}

	r := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		line, err := r.ReadString('\r')
		if err != nil {
			return
		}
		command := strings.TrimSpace(line)
		if command == "" {
			continue
		}

		s.mu.Lock()
		s.commands++
		count := s.commands
		s.mu.Unlock()

		if s.HangAfter > 0 && count > s.HangAfter {
			continue
		}
		if s.ResponseDelay > 0 {
			time.Sleep(s.ResponseDelay)
		}
		if reply := s.process(command); reply != "" {
			if _, err := conn.Write([]byte(reply)); err != nil {
				return
			}
		}
	}
}

func (s *Sim) process(command string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.HasPrefix(command, "$M") && len(command) == 5:
		z, ok := s.zoneArg(command[2:4])
		if !ok {
			return "ERROR\r\n"
		}
		z.muted = command[4] == '1'
		return "DONE\r\n"

	case strings.HasPrefix(command, "$V") && len(command) == 6:
		z, ok := s.zoneArg(command[2:4])
		if !ok {
			return "ERROR\r\n"
		}
		vol, err := strconv.Atoi(command[4:6])
		if err != nil {
			return "ERROR\r\n"
		}
		z.volume = vol
		return "DONE\r\n"

	case strings.HasPrefix(command, "$D") && len(command) == 4:
		z, ok := s.zoneArg(command[2:4])
		if !ok {
			return "ERROR\r\n"
		}
		m := 0
		if z.muted {
			m = 1
		}
		// single line, no DONE terminator, exactly like the hardware
		return fmt.Sprintf("V:%d  M:%d  L:0  BL:00 BR:00 B: 0 T: 0\r\n", z.volume, m)

	case len(command) == 5 && (command[0] == 'B' || command[0] == 'V' || command[0] == 'A'):
		z, ok := s.zoneArg(command[1:3])
		if !ok {
			return "ERROR\r\n"
		}
		input, err := strconv.Atoi(command[3:5])
		if err != nil || input < 1 || input > 64 {
			return "ERROR\r\n"
		}
		z.input = input
		return "DONE\r\n"

	case command[0] == 'D' && len(command) == 3:
		n, err := strconv.Atoi(command[1:3])
		if err != nil {
			return "ERROR\r\n"
		}
		return s.crosspointRows(n, n) + "DONE\r\n"

	case command[0] == 'D' && len(command) == 5:
		first, err1 := strconv.Atoi(command[1:3])
		last, err2 := strconv.Atoi(command[3:5])
		if err1 != nil || err2 != nil || last < first {
			return "ERROR\r\n"
		}
		return s.crosspointRows(first, last) + "DONE\r\n"

	case (command[0] == 'S' || command[0] == 'R') && len(command) == 3:
		if n, err := strconv.Atoi(command[1:3]); err != nil || n < 1 || n > 20 {
			return "ERROR\r\n"
		}
		return "DONE\r\n"

	case command == "M":
		return s.crosspointRows(1, 64) + "DONE\r\n"

	case command == "I":
		return "Knox Chameleon64i v1.0 (SIM)\r\nDONE\r\n"

	default:
		return "ERROR\r\n"
	}
}

func (s *Sim) zoneArg(raw string) (*zone, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, false
	}
	z, ok := s.zones[n]
	return z, ok
}

func (s *Sim) crosspointRows(first, last int) string {
	var b strings.Builder
	for n := first; n <= last; n++ {
		z, ok := s.zones[n]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "OUTPUT   %2d   VIDEO   %2d   AUDIO   %2d\r\n", n, z.input, z.input)
	}
	return b.String()
}
