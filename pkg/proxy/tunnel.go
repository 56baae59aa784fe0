package proxy

import (
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultDialTimeout bounds the connection to a CONNECT target.
const DefaultDialTimeout = 30 * time.Second

// tunnelConnect handles CONNECT by splicing the client connection to the
// target. Tunneled traffic is opaque and never matched against rules.
func (p *Proxy) tunnelConnect(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if !strings.Contains(host, ":") {
		host += ":443"
	}

	targetConn, err := net.DialTimeout("tcp", host, DefaultDialTimeout)
	if err != nil {
		p.log.Warn("error connecting to tunnel target", "host", host, "error", err)
		http.Error(w, "Error connecting to target", http.StatusBadGateway)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		p.log.Error("HTTP server does not support hijacking")
		_ = targetConn.Close()
		http.Error(w, "HTTP server does not support hijacking", http.StatusInternalServerError)
		return
	}

	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		p.log.Warn("error hijacking connection", "error", err)
		_ = targetConn.Close()
		return
	}

	_, err = clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
	if err != nil {
		p.log.Warn("error sending CONNECT response", "error", err)
		_ = clientConn.Close()
		_ = targetConn.Close()
		return
	}

	p.log.Debug("tunnel opened", "host", host)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_, _ = io.Copy(targetConn, clientConn)
		_ = targetConn.Close()
	}()

	go func() {
		defer wg.Done()
		_, _ = io.Copy(clientConn, targetConn)
		_ = clientConn.Close()
	}()

	wg.Wait()
}
