// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: run.go — production event loop
//
// Purpose:
//   - Wires a maap.Client to a real interface and wall clock, and drives
//     it exactly the way the engine's concurrency model requires: every
//     HandlePacket/HandleTimer call runs to completion on one goroutine
//     before the next begins.
//   - A single background goroutine only pulls bytes off the raw socket
//     (an inherently blocking read) and hands them to the loop goroutine
//     over a channel; it never touches engine state itself.
//
// Notes:
//   - Mirrors this codebase's ancestor's phased bootstrap-then-loop
//     shape in main.go, and its setupSignalHandling for graceful
//     shutdown, adapted from a WebSocket ingestion pipeline to a raw
//     multicast socket.
// ─────────────────────────────────────────────────────────────────────────────
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maapnet/maapd/audit"
	"github.com/maapnet/maapd/clock"
	"github.com/maapnet/maapd/flowid"
	"github.com/maapnet/maapd/macutil"
	"github.com/maapnet/maapd/maap"
	"github.com/maapnet/maapd/obslog"
	"github.com/maapnet/maapd/reservation"
	"github.com/maapnet/maapd/statusjson"
	"github.com/maapnet/maapd/transport"
)

func newRunCmd() *cobra.Command {
	var (
		ifaceName string
		localMAC  string
		poolBase  string
		poolLen   uint32
		auditPath string
		rngSeed   uint64
	)

	var statusAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the MAAP negotiation engine against a live interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(runConfig{
				ifaceName:  ifaceName,
				localMAC:   localMAC,
				poolBase:   poolBase,
				poolLen:    poolLen,
				auditPath:  auditPath,
				rngSeed:    rngSeed,
				statusAddr: statusAddr,
			})
		},
	}

	cmd.Flags().StringVar(&ifaceName, "interface", "eth0", "network interface to send/receive MAAP frames on")
	cmd.Flags().StringVar(&localMAC, "local-mac", "", "this station's MAC address, hex-6-byte no separators, e.g. 020000000001")
	cmd.Flags().StringVar(&poolBase, "pool-base", "91E0F0000000", "pool base address, hex-6-byte no separators")
	cmd.Flags().Uint32Var(&poolLen, "pool-len", 0xFE00, "pool length in addresses")
	cmd.Flags().StringVar(&auditPath, "audit-db", "", "path to a SQLite audit log (disabled if empty)")
	cmd.Flags().Uint64Var(&rngSeed, "rng-seed", 0, "seed for the negotiation engine's jitter generator (0 picks a fresh one)")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "address to serve a debug GET /status endpoint on (disabled if empty)")
	cmd.MarkFlagRequired("local-mac")

	return cmd
}

type runConfig struct {
	ifaceName  string
	localMAC   string
	poolBase   string
	poolLen    uint32
	auditPath  string
	rngSeed    uint64
	statusAddr string
}

func runDaemon(cfg runConfig) error {
	log := obslog.Default()

	local, err := parseMAC(cfg.localMAC)
	if err != nil {
		return fmt.Errorf("run: local-mac: %w", err)
	}
	base, err := parseMAC(cfg.poolBase)
	if err != nil {
		return fmt.Errorf("run: pool-base: %w", err)
	}

	sock, err := transport.NewRawSocket(cfg.ifaceName)
	if err != nil {
		return fmt.Errorf("run: open transport: %w", err)
	}
	defer sock.Close()

	var auditLog *audit.Log
	if cfg.auditPath != "" {
		auditLog, err = audit.Open(cfg.auditPath)
		if err != nil {
			return fmt.Errorf("run: open audit log: %w", err)
		}
		defer auditLog.Close()
	}

	seed := cfg.rngSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	sysClock := clock.NewSystem()
	client := maap.New(maap.Config{
		LocalMAC:  local,
		Transport: sock,
		Clock:     sysClock,
		RNGSeed:   seed,
		Logger:    log,
	})

	sender := reservation.Sender(1) // the daemon itself is the sole local owner
	if err := client.Init(base, cfg.poolLen, sender); err != nil {
		return fmt.Errorf("run: init pool: %w", err)
	}

	frames := make(chan []byte, 64)
	go func() {
		for {
			n, err := sock.Receive()
			if err != nil {
				log.DropError("run: receive failed", err)
				return
			}
			buf := make([]byte, n)
			copy(buf, sock.Buffer()[:n])
			frames <- buf
		}
	}()

	// statusReqs lets the debug HTTP handler (running on its own
	// goroutine) ask the loop goroutine for a snapshot without ever
	// touching Client state itself -- the engine's single-goroutine
	// invariant holds even with a concurrent inspection surface.
	statusReqs := make(chan chan []byte)
	var statusSrv *http.Server
	if cfg.statusAddr != "" {
		statusSrv = newStatusServer(cfg.statusAddr, statusReqs)
		go func() {
			if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.DropError("run: status server failed", err)
			}
		}()
		defer statusSrv.Close()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	log.DropMessage("INIT", map[string]any{"interface": cfg.ifaceName, "pool_base": cfg.poolBase, "pool_len": cfg.poolLen})

	for {
		timer := time.NewTimer(client.DelayToNextTimer())
		select {
		case <-shutdown:
			timer.Stop()
			log.DropMessage("SHUTDOWN", nil)
			return nil
		case buf := <-frames:
			timer.Stop()
			client.HandlePacket(buf)
		case <-timer.C:
			client.HandleTimer()
		case reply := <-statusReqs:
			timer.Stop()
			reply <- marshalStatus(client)
		}
		drainNotifications(client, auditLog, sysClock, log)
	}
}

func newStatusServer(addr string, statusReqs chan chan []byte) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []byte, 1)
		statusReqs <- reply
		body := <-reply
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func marshalStatus(client *maap.Client) []byte {
	pool := client.Pool()
	snap := statusjson.FromClientSnapshot(client.Snapshot(), pool.Base, pool.Len)
	body, err := statusjson.Marshal(snap)
	if err != nil {
		return []byte(`{"error":"` + err.Error() + `"}`)
	}
	return body
}

func drainNotifications(client *maap.Client, auditLog *audit.Log, clk *clock.System, log *obslog.Logger) {
	base := client.Pool().Base
	for _, n := range client.Notifications() {
		log.DropMessage("NOTIFY", map[string]any{"kind": n.Kind.String(), "id": n.ID, "result": n.Result.String()})
		if auditLog == nil {
			continue
		}
		flow := flowid.Derive(n.Sender, n.ID, base)
		if err := auditLog.Record(clk.Now(), flow, n); err != nil {
			log.DropError("audit: record failed", err)
		}
	}
}

// parseMAC decodes a 12-hex-digit (6-byte, no separators) MAC into an
// Addr.
func parseMAC(s string) (macutil.Addr, error) {
	if len(s) != 12 {
		return 0, fmt.Errorf("expected 12 hex digits, got %q", s)
	}
	var b [6]byte
	for i := 0; i < 6; i++ {
		v, err := hexByte(s[i*2], s[i*2+1])
		if err != nil {
			return 0, err
		}
		b[i] = v
	}
	return macutil.FromBytes(b), nil
}

func hexByte(hi, lo byte) (byte, error) {
	h, err := hexNibble(hi)
	if err != nil {
		return 0, err
	}
	l, err := hexNibble(lo)
	if err != nil {
		return 0, err
	}
	return h<<4 | l, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", c)
	}
}
