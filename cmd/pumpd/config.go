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

package main

import (
	"encoding/json"
	"os"
)

// Config drives one pumpd process, either end of the shell-transport
// pump. Shaped after server/config.go's flat, json-tagged struct so the
// same values can arrive from CLI flags or a config file.
type Config struct {
	Role   string `json:"role"`   // "client" or "server"
	Listen string `json:"listen"` // server: address to accept the peer transport on
	Dial   string `json:"dial"`   // client: address of the peer transport to connect to

	Transport string `json:"transport"` // "tcp", "kcp", or "tcpraw"
	NoComp    bool   `json:"nocomp"`

	Exec string `json:"exec"` // server only: command line to spawn as the remote shell

	MTU         int `json:"mtu"`
	SndWnd      int `json:"sndwnd"`
	RcvWnd      int `json:"rcvwnd"`
	DataShard   int `json:"datashard"`
	ParityShard int `json:"parityshard"`

	MaxOutgoingMsg int `json:"maxoutgoingmsg"`
	RingCapacity   int `json:"ringcapacity"`

	SnmpLog    string `json:"snmplog"`
	SnmpPeriod int    `json:"snmpperiod"`
	Log        string `json:"log"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
