package providers

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// maxReferenceBytes caps one downloaded reference image.
const maxReferenceBytes int64 = 10 << 20

const maxReferenceRedirects = 3

var errBlockedAddress = errors.New("reference image host is not publicly routable")

// sharedAddressSpace is the carrier-grade NAT range, which netip does not
// classify as private.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

func publicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(),
		ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	if ip.Is4() && ip.As4()[0] == 0 {
		return false
	}
	return true
}

// checkReferenceURL rejects non-http(s) URLs and hosts that name the local
// machine or a non-public address literally. Hostnames are checked again at
// dial time by the reference client.
func checkReferenceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, fmt.Errorf("reference image must be a data URL or http(s) URL")
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".internal") || strings.HasSuffix(host, ".local") {
		return nil, errBlockedAddress
	}
	if ip, err := netip.ParseAddr(host); err == nil && !publicAddr(ip) {
		return nil, errBlockedAddress
	}
	return u, nil
}

// dialPublicOnly is a net.Dialer Control hook. It runs after DNS resolution,
// so a public hostname that resolves to an internal address is refused too.
func dialPublicOnly(_, address string, _ syscall.RawConn) error {
	addrPort, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("reference dial %q: %w", address, err)
	}
	if !publicAddr(addrPort.Addr()) {
		return errBlockedAddress
	}
	return nil
}

// newReferenceClient downloads user-supplied reference images. It never uses
// a proxy, so the dial guard sees the real destination.
func newReferenceClient() *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: dialPublicOnly}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	tr.DialContext = dialer.DialContext
	return &http.Client{
		Transport:     tr,
		CheckRedirect: checkReferenceRedirect,
	}
}

func checkReferenceRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxReferenceRedirects {
		return fmt.Errorf("reference image: too many redirects")
	}
	_, err := checkReferenceURL(req.URL.String())
	return err
}
