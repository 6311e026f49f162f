package gateway

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"sshgateway/pkg/models"
)

// dialViaProxy establishes the outbound SSH transport through a
// SOCKS4/SOCKS5/HTTP-CONNECT proxy.
func dialViaProxy(ctx context.Context, cfg models.SessionConfig, targetAddr string, sshConfig *ssh.ClientConfig) (*ssh.Client, error) {
	if cfg.ProxyHost == "" {
		return nil, fmt.Errorf("proxy connection mode requires a proxy host")
	}
	proxyPort := cfg.ProxyPort
	if proxyPort == 0 {
		proxyPort = 1080
	}
	proxyAddr := net.JoinHostPort(cfg.ProxyHost, fmt.Sprintf("%d", proxyPort))

	var conn net.Conn
	var err error
	switch cfg.ProxyType {
	case "socks5", "":
		conn, err = dialSOCKS(ctx, proxyAddr, targetAddr, cfg.ProxyUsername, cfg.ProxyPassword, true)
	case "socks4":
		conn, err = dialSOCKS(ctx, proxyAddr, targetAddr, cfg.ProxyUsername, cfg.ProxyPassword, false)
	case "http":
		conn, err = dialHTTPProxy(ctx, proxyAddr, targetAddr, cfg.ProxyUsername, cfg.ProxyPassword)
	default:
		return nil, fmt.Errorf("unsupported proxy type: %s", cfg.ProxyType)
	}
	if err != nil {
		return nil, errors.Wrap(err, "connect via proxy")
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, targetAddr, sshConfig)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "ssh handshake through proxy")
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// dialSOCKS performs a SOCKS4 or SOCKS5 handshake and returns the
// resulting TCP connection positioned after the CONNECT reply.
func dialSOCKS(ctx context.Context, proxyAddr, targetAddr, user, pass string, isSocks5 bool) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: connectDeadline}
	conn, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, err
	}

	host, portStr, err := net.SplitHostPort(targetAddr)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	var port int
	_, _ = fmt.Sscanf(portStr, "%d", &port)

	if isSocks5 {
		if err := socks5Handshake(conn, host, port, user, pass); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
	if err := socks4Handshake(conn, host, port, user); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func socks5Handshake(conn net.Conn, host string, port int, user, pass string) error {
	authMethod := byte(0x00)
	if user != "" {
		authMethod = 0x02
	}
	if _, err := conn.Write([]byte{0x05, 0x01, authMethod}); err != nil {
		return err
	}
	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return errors.Wrap(err, "socks5 greeting")
	}
	if resp[0] != 0x05 {
		return fmt.Errorf("socks5 version mismatch")
	}
	if resp[1] == 0x02 {
		req := []byte{0x01, byte(len(user))}
		req = append(req, []byte(user)...)
		req = append(req, byte(len(pass)))
		req = append(req, []byte(pass)...)
		if _, err := conn.Write(req); err != nil {
			return err
		}
		authResp := make([]byte, 2)
		if _, err := io.ReadFull(conn, authResp); err != nil {
			return errors.Wrap(err, "socks5 auth")
		}
		if authResp[1] != 0x00 {
			return fmt.Errorf("socks5 auth rejected")
		}
	}
	req := []byte{0x05, 0x01, 0x00, 0x03, byte(len(host))}
	req = append(req, []byte(host)...)
	req = append(req, byte(port>>8), byte(port&0xff))
	if _, err := conn.Write(req); err != nil {
		return err
	}
	connectResp := make([]byte, 10)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		return errors.Wrap(err, "socks5 connect")
	}
	if connectResp[1] != 0x00 {
		return fmt.Errorf("socks5 connect rejected: %d", connectResp[1])
	}
	return nil
}

func socks4Handshake(conn net.Conn, host string, port int, user string) error {
	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return fmt.Errorf("resolve hostname for socks4: %w", err)
	}
	ip := ips[0].To4()
	if ip == nil {
		return fmt.Errorf("socks4 does not support IPv6")
	}
	req := []byte{0x04, 0x01, byte(port >> 8), byte(port & 0xff)}
	req = append(req, ip...)
	req = append(req, []byte(user)...)
	req = append(req, 0x00)
	if _, err := conn.Write(req); err != nil {
		return err
	}
	resp := make([]byte, 8)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return errors.Wrap(err, "socks4 handshake")
	}
	if resp[1] != 0x5a {
		return fmt.Errorf("socks4 connect rejected: %d", resp[1])
	}
	return nil
}

// dialHTTPProxy connects through an HTTP CONNECT proxy.
func dialHTTPProxy(ctx context.Context, proxyAddr, targetAddr, user, pass string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: connectDeadline}
	conn, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, err
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", targetAddr, targetAddr)
	if user != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		req += fmt.Sprintf("Proxy-Authorization: Basic %s\r\n", auth)
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		_ = conn.Close()
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(connectDeadline))
	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, nil)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "read CONNECT response")
	}
	_ = resp.Body.Close()
	_ = conn.SetReadDeadline(time.Time{})

	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("HTTP CONNECT failed: %s", resp.Status)
	}
	return conn, nil
}
