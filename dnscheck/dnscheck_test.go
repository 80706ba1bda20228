package dnscheck

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startNameserver runs a local DNS server answering from the records map
// (fqdn -> A record addresses).
func startNameserver(t *testing.T, records map[string][]string) string {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		for _, q := range r.Question {
			if q.Qtype != dns.TypeA {
				continue
			}
			for _, addr := range records[q.Name] {
				m.Answer = append(m.Answer, &dns.A{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
					A:   net.ParseIP(addr),
				})
			}
		}
		w.WriteMsg(m)
	})

	srv := &dns.Server{PacketConn: conn, Handler: mux}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })

	return conn.LocalAddr().String()
}

func TestResolveA(t *testing.T) {
	ns := startNameserver(t, map[string][]string{
		"notes.example.com.": {"203.0.113.7", "203.0.113.8"},
	})

	addrs, err := ResolveA("notes.example.com", ns)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"203.0.113.7", "203.0.113.8"}, addrs)

	addrs, err = ResolveA("other.example.com", ns)
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestVerifyPointsTo(t *testing.T) {
	ns := startNameserver(t, map[string][]string{
		"notes.example.com.": {"203.0.113.7"},
	})

	tests := []struct {
		name    string
		domain  string
		hostIP  string
		wantErr bool
	}{
		{"matching record", "notes.example.com", "203.0.113.7", false},
		{"empty host ip only checks resolution", "notes.example.com", "", false},
		{"wrong address", "notes.example.com", "198.51.100.1", true},
		{"no records", "missing.example.com", "203.0.113.7", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPointsTo(tt.domain, tt.hostIP, ns)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifyPointsTo_UnreachableNameserver(t *testing.T) {
	err := VerifyPointsTo("notes.example.com", "203.0.113.7", "127.0.0.1:1")
	assert.Error(t, err)
}

func TestSystemNameserver(t *testing.T) {
	conf := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(conf, []byte("nameserver 10.0.0.53\nsearch example.com\n"), 0644))

	ns, err := SystemNameserver(conf)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.53:53", ns)
}

func TestSystemNameserver_Empty(t *testing.T) {
	conf := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(conf, []byte("search example.com\n"), 0644))

	_, err := SystemNameserver(conf)
	assert.Error(t, err)
}
