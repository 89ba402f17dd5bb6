// Package payload builds the request bodies sent to the Orb control plane and
// the YAML config files handed to agents.
//
// Policy options are checked against per input type and per handler tables
// (kind plus an optional validator rule). Builders never panic: the first bad
// option is kept and returned as an InvalidOptionError by Build or Marshal.
//
//	req, err := payload.NewPolicy(payload.RandomName(payload.PolicyPrefix), payload.BackendPktvisor).
//	    Tap("default_pcap", payload.InputPcap).
//	    PcapSource("libpcap").
//	    Module("dns_1", payload.HandlerDNS).
//	    OnlyRcode("dns_1", 3).
//	    Build()
package payload
