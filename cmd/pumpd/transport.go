package main

import "net"

func dialTCP(addr string) (net.Conn, error) {
	return net.Dial("tcp", addr)
}

func listenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
