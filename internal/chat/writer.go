package chat

import (
	"bufio"
	"sync"
)

// startOutboundWriter drains out to the connection, one line per message.
// Each write-and-flush holds wmu so Terminate's direct notice cannot
// interleave mid-line. The returned channel closes once out is closed and
// drained, so the caller can flush farewell lines before tearing the
// connection down.
func startOutboundWriter(conn Conn, out <-chan string, wmu *sync.Mutex) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w := bufio.NewWriter(conn)
		for msg := range out {
			// Best-effort. If the connection breaks, just stop the writer.
			wmu.Lock()
			_, err := w.WriteString(msg + "\n")
			if err == nil {
				err = w.Flush()
			}
			wmu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	return done
}
