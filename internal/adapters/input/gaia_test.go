package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaiaParser_ValidDrop(t *testing.T) {
	p := NewGaiaParser()
	line := "Sep 3 15:12:20 192.168.99.1 Checkpoint: 3Sep2007 15:12:08 drop " +
		"192.168.11.7 >eth8 rule: 113; rule_uid: {AAAAAAAA-9999-8888-FFCF33A92D27}; " +
		"service_id: http; src: 192.168.11.34; dst: 4.23.34.126; proto: tcp; " +
		"product: VPN-1 & FireWall-1; service: 80; s_port: 2854;"

	event, ok := p.Parse(line)
	require.True(t, ok)
	assert.Equal(t, "192.168.11.34", event.SourceIP.String())
	assert.Equal(t, "4.23.34.126", event.DestIP.String())
	assert.Equal(t, uint16(80), event.DestPort)
	assert.Equal(t, "tcp", event.Protocol)
	assert.Equal(t, "drop", event.Action)
	assert.Equal(t, line, event.RawLine)
}

func TestGaiaParser_ValidAccept(t *testing.T) {
	p := NewGaiaParser()
	line := "Sep 3 15:10:54 192.168.99.1 Checkpoint: 3Sep2007 15:10:28 accept " +
		"192.168.99.1 >eth2 rule: 9; rule_uid: {11111111-2222-3333-8A67-F54CED606693}; " +
		"service_id: domain-udp; src: 200.14.120.9; dst: 192.168.99.184; proto: udp; " +
		"product: VPN-1 & FireWall-1; service: 53; s_port: 32769;"

	event, ok := p.Parse(line)
	require.True(t, ok)
	assert.Equal(t, "accept", event.Action)
	assert.Equal(t, "200.14.120.9", event.SourceIP.String())
	assert.Equal(t, uint16(53), event.DestPort)
	assert.Equal(t, "udp", event.Protocol)
}

func TestGaiaParser_RejectActionSkipped(t *testing.T) {
	p := NewGaiaParser()
	line := "Sep 3 15:10:54 192.168.99.1 Checkpoint: 3Sep2007 15:10:28 reject " +
		"192.168.99.1 >eth2 rule: 9; src: 200.14.120.9; proto: udp; service: 53;"

	_, ok := p.Parse(line)
	assert.False(t, ok)
}

func TestGaiaParser_CaseInsensitiveAction(t *testing.T) {
	p := NewGaiaParser()
	line := "Sep 3 15:10:54 192.168.99.1 Checkpoint: 3Sep2007 15:10:28 DROP " +
		"192.168.99.1 >eth2 rule: 9; src: 200.14.120.9; proto: udp; service: 53;"

	event, ok := p.Parse(line)
	require.True(t, ok)
	assert.Equal(t, "drop", event.Action)
}

func TestGaiaParser_BroadcastWithoutSrc(t *testing.T) {
	p := NewGaiaParser()
	line := "Sep 3 15:10:54 192.168.99.1 Checkpoint: 3Sep2007 15:10:52 drop " +
		"192.168.99.1 >eth8 rule: 134; rule_uid: {11111111-2222-3333-BD17-711F536C7C33}; " +
		"dst: 255.255.255.255; proto: udp; product: VPN-1 & FireWall-1; service: 67; " +
		"s_port: 68;"

	_, ok := p.Parse(line)
	assert.False(t, ok)
}

func TestGaiaParser_ICMPWithoutService(t *testing.T) {
	p := NewGaiaParser()
	line := "Sep 3 15:12:56 192.168.99.1 Checkpoint: 3Sep2007 15:13:53 drop " +
		"192.168.11.7 >eth2 rule: 134; rule_uid: {11111111-2222-3333-BD17-711F536C7C33}; " +
		"ICMP: Echo Request; src: 203.193.149.227; dst: 64.129.8.245; proto: icmp; " +
		"ICMP Type: 8; ICMP Code: 0; product: VPN-1 & FireWall-1;"

	_, ok := p.Parse(line)
	assert.False(t, ok)
}

func TestGaiaParser_MissingDstIsOptional(t *testing.T) {
	p := NewGaiaParser()
	line := "Sep 3 15:11:40 192.168.99.1 Checkpoint: 3Sep2007 15:10:54 drop " +
		"192.168.99.1 >eth8 rule: 134; src: 192.168.99.185; proto: tcp; " +
		"product: VPN-1 & FireWall-1; service: 43; s_port: 57172;"

	event, ok := p.Parse(line)
	require.True(t, ok)
	assert.False(t, event.DestIP.IsValid())
	assert.Equal(t, uint16(43), event.DestPort)
}

func TestGaiaParser_MissingProtoDefaultsEmpty(t *testing.T) {
	p := NewGaiaParser()
	line := "Sep 3 15:11:40 192.168.99.1 Checkpoint: 3Sep2007 15:10:54 drop " +
		"192.168.99.1 >eth8 rule: 134; src: 192.168.99.185; service: 43;"

	event, ok := p.Parse(line)
	require.True(t, ok)
	assert.Equal(t, "", event.Protocol)
}

func TestGaiaParser_InvalidInputs(t *testing.T) {
	p := NewGaiaParser()

	tests := []struct {
		name string
		line string
	}{
		{"random text", "some random text that is not a firewall log"},
		{"empty", ""},
		{"bad src", "x Checkpoint: 3Sep2007 15:10:54 drop gw >eth0 rule: 1; src: not-an-ip; service: 80;"},
		{"bad service", "x Checkpoint: 3Sep2007 15:10:54 drop gw >eth0 rule: 1; src: 10.0.0.1; service: http;"},
		{"service zero", "x Checkpoint: 3Sep2007 15:10:54 drop gw >eth0 rule: 1; src: 10.0.0.1; service: 0;"},
		{"service overflow", "x Checkpoint: 3Sep2007 15:10:54 drop gw >eth0 rule: 1; src: 10.0.0.1; service: 70000;"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := p.Parse(tc.line)
			assert.False(t, ok)
		})
	}
}

func TestGaiaParser_IPv6Source(t *testing.T) {
	p := NewGaiaParser()
	line := "x Checkpoint: 3Sep2007 15:10:54 drop gw >eth0 rule: 1; src: 2001:db8::1; proto: tcp; service: 443;"

	event, ok := p.Parse(line)
	require.True(t, ok)
	assert.Equal(t, "2001:db8::1", event.SourceIP.String())
}

func BenchmarkGaiaParser(b *testing.B) {
	p := NewGaiaParser()
	line := "Sep 3 15:12:20 192.168.99.1 Checkpoint: 3Sep2007 15:12:08 drop " +
		"192.168.11.7 >eth8 rule: 113; src: 192.168.11.34; dst: 4.23.34.126; " +
		"proto: tcp; service: 80; s_port: 2854;"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Parse(line)
	}
}
