package mdns

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
)

func TestTXTRoundTrip(t *testing.T) {
	txt := map[string]string{"id": "abc", "format": "s16le", "rate": "48000"}
	records := EncodeTXT(txt)
	assert.Equal(t, []string{"format=s16le", "id=abc", "rate=48000"}, records)
	assert.Equal(t, txt, DecodeTXT(records))
	assert.Equal(t, map[string]string{"flag": ""}, DecodeTXT([]string{"flag", "=orphan"}))
}

func TestHostFromEntry(t *testing.T) {
	e := zeroconf.NewServiceEntry(`udp\ source`, Service, Domain)
	e.HostName = "radio.local."
	e.Port = 9998
	e.AddrIPv4 = []net.IP{net.IPv4(192, 168, 1, 5)}
	e.Text = []string{"id=abc"}

	h := hostFromEntry(e)
	assert.Equal(t, "udp source", h.Instance)
	assert.Equal(t, 9998, h.Port)
	assert.Len(t, h.Addresses, 1)
	assert.Equal(t, "abc", h.TXT["id"])
}

func TestAdvertiseValidates(t *testing.T) {
	_, err := Advertise(Advertisement{Port: 9998})
	assert.Error(t, err)
	_, err = Advertise(Advertisement{Instance: "x", Port: 0})
	assert.Error(t, err)

	var a *Advertiser
	a.Update(nil)
	a.Shutdown()
}
