// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command pumpd drives one end of a pmux shell-transport pump: it
// establishes the peer transport (plain TCP, KCP over UDP, or a raw TCP
// socket via tcpraw), bridges it to the two fds the pump's FROM_PEER and
// TO_PEER channels poll, and on the server role spawns a child process
// whose stdio becomes the pump's user channels.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	kcp "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/tcpraw"

	"github.com/xtaci/pmux/channel"
	"github.com/xtaci/pmux/pmux"
	"github.com/xtaci/pmux/std"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

// Channel layout: the two transport channels the core reserves, plus one
// user channel per direction of the child process's stdio.
const (
	chStdout = pmux.FirstUserCH     // child stdout -> local stdout
	chStdin  = pmux.FirstUserCH + 1 // local stdin -> child stdin
	nrch     = chStdin + 1
)

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "pumpd"
	app.Usage = "windowed multi-channel shell-transport pump"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "role", Value: "client", Usage: "client or server"},
		cli.StringFlag{Name: "listen, l", Value: ":29900", Usage: "server: peer transport listen address"},
		cli.StringFlag{Name: "dial, d", Value: "127.0.0.1:29900", Usage: "client: peer transport address"},
		cli.StringFlag{Name: "transport", Value: "tcp", Usage: "tcp, kcp, or tcpraw"},
		cli.BoolFlag{Name: "nocomp", Usage: "disable snappy compression of the peer transport"},
		cli.StringFlag{Name: "exec", Value: "/bin/sh", Usage: "server: command to spawn as the remote shell"},
		cli.IntFlag{Name: "mtu", Value: 1350, Usage: "kcp: maximum transmission unit"},
		cli.IntFlag{Name: "sndwnd", Value: 128, Usage: "kcp: send window size (packets)"},
		cli.IntFlag{Name: "rcvwnd", Value: 512, Usage: "kcp: receive window size (packets)"},
		cli.IntFlag{Name: "datashard, ds", Value: 10, Usage: "kcp: reed-solomon datashard count"},
		cli.IntFlag{Name: "parityshard, ps", Value: 3, Usage: "kcp: reed-solomon parityshard count"},
		cli.IntFlag{Name: "maxoutgoingmsg", Value: 4096, Usage: "cap on any single emitted message, header included"},
		cli.IntFlag{Name: "ringcapacity", Value: 65536, Usage: "per-channel ring buffer capacity"},
		cli.StringFlag{Name: "snmplog", Value: "", Usage: "collect engine stats to file, aware of time format"},
		cli.IntFlag{Name: "snmpperiod", Value: 60, Usage: "stats collection period, in seconds"},
		cli.StringFlag{Name: "log", Value: "", Usage: "log file; default stderr"},
		cli.StringFlag{Name: "c", Value: "", Usage: "config from json file, overrides flags"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(c *cli.Context) error {
	cfg := Config{
		Role:           c.String("role"),
		Listen:         c.String("listen"),
		Dial:           c.String("dial"),
		Transport:      c.String("transport"),
		NoComp:         c.Bool("nocomp"),
		Exec:           c.String("exec"),
		MTU:            c.Int("mtu"),
		SndWnd:         c.Int("sndwnd"),
		RcvWnd:         c.Int("rcvwnd"),
		DataShard:      c.Int("datashard"),
		ParityShard:    c.Int("parityshard"),
		MaxOutgoingMsg: c.Int("maxoutgoingmsg"),
		RingCapacity:   c.Int("ringcapacity"),
		SnmpLog:        c.String("snmplog"),
		SnmpPeriod:     c.Int("snmpperiod"),
		Log:            c.String("log"),
	}
	if path := c.String("c"); path != "" {
		if err := parseJSONConfig(&cfg, path); err != nil {
			return errors.Wrap(err, "parseJSONConfig")
		}
	}

	if cfg.Log != "" {
		f, err := os.OpenFile(cfg.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		defer f.Close()
		log.SetOutput(f)
	}

	log.Println("version:", VERSION)
	log.Println("role:", cfg.Role, "transport:", cfg.Transport, "compression:", !cfg.NoComp)

	conn, err := establishTransport(&cfg)
	if err != nil {
		return errors.Wrap(err, "establishTransport")
	}
	defer conn.Close()

	var wire *countingConn
	if !cfg.NoComp {
		netConn, ok := conn.(net.Conn)
		if !ok {
			return errors.New("pumpd: transport does not support compression wrapping")
		}
		wrapped := wrapCompression(netConn)
		wire = wrapped.countingConn
		conn = wrapped
	}

	engine, cleanup, err := buildEngine(&cfg, conn)
	if err != nil {
		return errors.Wrap(err, "buildEngine")
	}
	defer cleanup()

	if cfg.SnmpLog != "" {
		go std.StatsLogger(cfg.SnmpLog, time.Duration(cfg.SnmpPeriod)*time.Second, engine)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(ctx); err != nil && err != context.Canceled {
		return errors.Wrap(err, "engine.Run")
	}
	log.Println("pump finished:", engine.Stats())
	if wire != nil {
		wireIn, wireOut := wire.wireBytes()
		stats := engine.Stats()
		log.Printf("compression: wire_in=%d wire_out=%d plain_in=%d plain_out=%d", wireIn, wireOut, stats.BytesIn, stats.BytesOut)
	}
	return nil
}

// establishTransport dials (client) or accepts one connection (server)
// over the configured transport kind.
func establishTransport(cfg *Config) (transportConn, error) {
	switch cfg.Role {
	case "client":
		return dialTransport(cfg)
	case "server":
		return acceptTransport(cfg)
	default:
		return nil, errors.Errorf("unknown role %q", cfg.Role)
	}
}

// transportConn is the minimal surface the pump's fd bridge needs from
// whatever net.Conn-like thing the chosen transport produces.
type transportConn interface {
	io.ReadWriteCloser
}

func dialTransport(cfg *Config) (transportConn, error) {
	switch cfg.Transport {
	case "tcp":
		return dialTCP(cfg.Dial)
	case "kcp":
		return kcp.DialWithOptions(cfg.Dial, nil, cfg.DataShard, cfg.ParityShard)
	case "tcpraw":
		raw, err := tcpraw.Dial("tcp", cfg.Dial)
		if err != nil {
			return nil, err
		}
		return kcp.NewConn(cfg.Dial, nil, cfg.DataShard, cfg.ParityShard, raw)
	default:
		return nil, errors.Errorf("unknown transport %q", cfg.Transport)
	}
}

// acceptTransport binds every port named by cfg.Listen (a single port or
// a "host:minport-maxport" range, per std.ParseMultiPort) for the
// configured transport kind and returns the first connection accepted
// across the whole range.
func acceptTransport(cfg *Config) (transportConn, error) {
	return acceptPortRange(cfg)
}

// buildEngine wires up a pmux.Engine whose FROM_PEER/TO_PEER channels
// are bridged to conn via a pair of os.Pipe fd pairs (conn itself is
// rarely a pollable fd once KCP or tcpraw sits underneath it), and whose
// user channels are bound either to a spawned child's stdio (server
// role) or to this process's own stdio (client role).
func buildEngine(cfg *Config, conn transportConn) (*pmux.Engine, func(), error) {
	peerInR, peerInW, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	peerOutR, peerOutW, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	// Bridge the (possibly non-fd-backed) transport conn to the two
	// local pipes the engine actually polls.
	go func() {
		std.Copy(peerInW, conn)
		peerInW.Close()
	}()
	go func() {
		std.Copy(conn, peerOutR)
		peerOutR.Close()
	}()

	specs := make([]pmux.ChannelSpec, nrch)
	specs[pmux.FromPeer] = pmux.ChannelSpec{Dir: channel.FromFD, FD: int(peerInR.Fd()), Capacity: cfg.RingCapacity}
	specs[pmux.ToPeer] = pmux.ChannelSpec{Dir: channel.ToFD, FD: int(peerOutW.Fd()), Capacity: cfg.RingCapacity}

	var cleanupExtra func()
	if cfg.Role == "server" {
		cmd := exec.Command("/bin/sh", "-c", cfg.Exec)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, err
		}
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, err
		}

		stdoutFD, ok1 := fdOf(stdout)
		stdinFD, ok2 := fdOf(stdin)
		if !ok1 || !ok2 {
			return nil, nil, fmt.Errorf("pumpd: child stdio is not fd-backed on this platform")
		}

		specs[chStdout] = pmux.ChannelSpec{Dir: channel.FromFD, FD: stdoutFD, Capacity: cfg.RingCapacity, InitialWindow: uint32(cfg.RingCapacity)}
		specs[chStdin] = pmux.ChannelSpec{Dir: channel.ToFD, FD: stdinFD, Capacity: cfg.RingCapacity}
		cleanupExtra = func() { cmd.Process.Kill(); cmd.Wait() }
	} else {
		specs[chStdout] = pmux.ChannelSpec{Dir: channel.ToFD, FD: int(os.Stdout.Fd()), Capacity: cfg.RingCapacity}
		specs[chStdin] = pmux.ChannelSpec{Dir: channel.FromFD, FD: int(os.Stdin.Fd()), Capacity: cfg.RingCapacity, InitialWindow: uint32(cfg.RingCapacity)}
		cleanupExtra = func() {}
	}

	engine, err := pmux.NewEngine(pmux.Config{
		MaxOutgoingMsg: uint32(cfg.MaxOutgoingMsg),
		NRCh:           nrch,
	}, specs)
	if err != nil {
		cleanupExtra()
		return nil, nil, err
	}
	if err := engine.IOLoopInit(); err != nil {
		cleanupExtra()
		return nil, nil, err
	}

	cleanup := func() {
		cleanupExtra()
		peerInR.Close()
		peerOutW.Close()
	}
	return engine, cleanup, nil
}
