package main

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
	kcp "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/tcpraw"

	"github.com/xtaci/pmux/std"
)

// multiListener is the minimal surface acceptTransport needs from a
// single bound port, regardless of transport kind.
type multiListener interface {
	Accept() (transportConn, error)
	Close() error
}

// listenOnePort binds cfg's transport kind on host:port and returns a
// multiListener wrapping it, ready to be raced against its siblings in
// acceptTransport.
func listenOnePort(cfg *Config, host string, port uint64) (multiListener, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	switch cfg.Transport {
	case "tcp":
		ln, err := listenTCP(addr)
		if err != nil {
			return nil, err
		}
		return &netMultiListener{ln: ln}, nil
	case "kcp":
		ln, err := kcp.ListenWithOptions(addr, nil, cfg.DataShard, cfg.ParityShard)
		if err != nil {
			return nil, err
		}
		return &kcpMultiListener{ln: ln}, nil
	case "tcpraw":
		raw, err := tcpraw.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		ln, err := kcp.ServeConn(nil, cfg.DataShard, cfg.ParityShard, raw)
		if err != nil {
			return nil, err
		}
		return &kcpMultiListener{ln: ln}, nil
	default:
		return nil, errors.Errorf("unknown transport %q", cfg.Transport)
	}
}

// netMultiListener adapts a plain net.Listener (the "tcp" transport).
type netMultiListener struct{ ln net.Listener }

func (m *netMultiListener) Accept() (transportConn, error) { return m.ln.Accept() }
func (m *netMultiListener) Close() error                   { return m.ln.Close() }

// kcpMultiListener adapts a *kcp.Listener (the "kcp" and "tcpraw"
// transports, which both end up serving KCP sessions).
type kcpMultiListener struct{ ln *kcp.Listener }

func (m *kcpMultiListener) Accept() (transportConn, error) { return m.ln.AcceptKCP() }
func (m *kcpMultiListener) Close() error                   { return m.ln.Close() }

// acceptPortRange parses cfg.Listen as a (possibly single-port) range via
// std.ParseMultiPort, binds every port in the range for the configured
// transport, and returns the first connection accepted on any of them.
// The rest of the listeners are closed once a connection arrives, so
// their blocked Accept calls unblock with an error and their goroutines
// exit without leaking.
func acceptPortRange(cfg *Config) (transportConn, error) {
	mp, err := std.ParseMultiPort(cfg.Listen)
	if err != nil {
		return nil, errors.Wrap(err, "parse listen address")
	}

	var listeners []multiListener
	closeAll := func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}

	for port := mp.MinPort; port <= mp.MaxPort; port++ {
		ln, err := listenOnePort(cfg, mp.Host, port)
		if err != nil {
			closeAll()
			return nil, errors.Wrapf(err, "listen on port %d", port)
		}
		listeners = append(listeners, ln)
	}

	type result struct {
		conn transportConn
		err  error
	}
	accepted := make(chan result, len(listeners))
	for _, ln := range listeners {
		go func(ln multiListener) {
			conn, err := ln.Accept()
			accepted <- result{conn, err}
		}(ln)
	}

	for i := 0; i < len(listeners); i++ {
		r := <-accepted
		if r.err == nil {
			closeAll()
			return r.conn, nil
		}
	}
	closeAll()
	return nil, errors.Errorf("no connection accepted across ports %d-%d", mp.MinPort, mp.MaxPort)
}
