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

package std

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/xtaci/pmux/pmux"
)

var statsHeader = []string{
	"Unix", "BytesIn", "BytesOut", "WindowMsgsSent",
	"CloseMsgsSent", "CloseMsgsRecv", "DiscardedLateData", "ProtocolErrorCount",
}

func statsRow(s pmux.Stats) []string {
	return []string{
		fmt.Sprint(time.Now().Unix()),
		fmt.Sprint(s.BytesIn),
		fmt.Sprint(s.BytesOut),
		fmt.Sprint(s.WindowMsgsSent),
		fmt.Sprint(s.CloseMsgsSent),
		fmt.Sprint(s.CloseMsgsRecv),
		fmt.Sprint(s.DiscardedLateData),
		fmt.Sprint(s.ProtocolErrorCount),
	}
}

// StatsLogger periodically appends a CSV row of e.Stats() to path, in the
// style SnmpLogger used to dump kcp.DefaultSnmp: path is run through
// time.Format so log files can rotate by day/hour, and a header row is
// written once per fresh file. It blocks; run it in its own goroutine
// alongside (never inside) the engine's own single pump goroutine, since
// Engine.Stats() must not be called concurrently with a pump turn.
func StatsLogger(path string, interval time.Duration, e *pmux.Engine) {
	if path == "" || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		logdir, logfile := filepath.Split(path)
		f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Println(err)
			return
		}

		w := csv.NewWriter(f)
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			if err := w.Write(statsHeader); err != nil {
				log.Println(err)
			}
		}
		if err := w.Write(statsRow(e.Stats())); err != nil {
			log.Println(err)
		}
		w.Flush()
		f.Close()
	}
}
