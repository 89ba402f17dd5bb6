package payload

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind is the JSON shape an option value must have.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindStringList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindStringList:
		return "string list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// OptionSpec describes one configurable key. Rule is an optional validator tag
// applied to the value once its kind matches.
type OptionSpec struct {
	Kind Kind
	Rule string
}

// OptionTable maps option keys to their spec.
type OptionTable map[string]OptionSpec

// Input types understood by pktvisor taps.
const (
	InputPcap     = "pcap"
	InputFlow     = "flow"
	InputDnstap   = "dnstap"
	InputNetprobe = "netprobe"
)

// Handler module types.
const (
	HandlerDNS      = "dns"
	HandlerNet      = "net"
	HandlerDHCP     = "dhcp"
	HandlerBGP      = "bgp"
	HandlerPcap     = "pcap"
	HandlerFlow     = "flow"
	HandlerNetprobe = "netprobe"
)

var (
	inputConfigOptions = map[string]OptionTable{
		InputPcap: {
			"iface":       {Kind: KindString},
			"host_spec":   {Kind: KindString},
			"pcap_source": {Kind: KindString, Rule: "oneof=af_packet libpcap"},
			"debug":       {Kind: KindBool},
		},
		InputFlow: {
			"port":       {Kind: KindInt, Rule: "min=1,max=65535"},
			"bind":       {Kind: KindString, Rule: "ip"},
			"flow_type":  {Kind: KindString, Rule: "oneof=sflow netflow"},
			"only_ports": {Kind: KindStringList},
		},
		InputDnstap: {
			"socket":     {Kind: KindString},
			"tcp":        {Kind: KindString, Rule: "hostname_port"},
			"only_hosts": {Kind: KindStringList},
		},
		InputNetprobe: {
			"test_type":             {Kind: KindString, Rule: "oneof=ping tcp"},
			"interval_msec":         {Kind: KindInt, Rule: "min=1"},
			"timeout_msec":          {Kind: KindInt, Rule: "min=1"},
			"packets_per_test":      {Kind: KindInt, Rule: "min=1"},
			"packets_interval_msec": {Kind: KindInt, Rule: "min=1"},
			"packet_payload_size":   {Kind: KindInt, Rule: "min=1"},
			"targets":               {Kind: KindMap},
		},
	}

	inputFilterOptions = map[string]OptionTable{
		InputPcap:     {"bpf": {Kind: KindString}},
		InputFlow:     {},
		InputDnstap:   {"only_hosts": {Kind: KindStringList}},
		InputNetprobe: {},
	}

	moduleConfigOptions = map[string]OptionTable{
		HandlerDNS: {"public_suffix_list": {Kind: KindBool}},
		HandlerNet: {},
		HandlerDHCP: {},
		HandlerBGP:  {},
		HandlerPcap: {},
		HandlerFlow: {
			"sample_rate_scaling": {Kind: KindBool},
			"recorded_stream":     {Kind: KindBool},
		},
		HandlerNetprobe: {},
	}

	moduleFilterOptions = map[string]OptionTable{
		HandlerDNS: {
			"only_rcode":           {Kind: KindInt, Rule: "oneof=0 2 3 5"},
			"exclude_noerror":      {Kind: KindBool},
			"only_dnssec_response": {Kind: KindBool},
			"answer_count":         {Kind: KindInt, Rule: "min=0"},
			"only_qtype":           {Kind: KindStringList},
			"only_qname_suffix":    {Kind: KindStringList},
			"geoloc_notfound":      {Kind: KindBool},
			"asn_notfound":         {Kind: KindBool},
			"dnstap_msg_type":      {Kind: KindString, Rule: "oneof=auth client"},
		},
		HandlerNet: {
			"geoloc_notfound":    {Kind: KindBool},
			"asn_notfound":       {Kind: KindBool},
			"only_geoloc_prefix": {Kind: KindStringList},
			"only_asn_number":    {Kind: KindStringList},
		},
		HandlerDHCP: {},
		HandlerBGP:  {},
		HandlerPcap: {},
		HandlerFlow: {
			"only_devices":    {Kind: KindStringList},
			"only_ips":        {Kind: KindStringList},
			"only_ports":      {Kind: KindStringList},
			"only_interfaces": {Kind: KindStringList},
			"geoloc_notfound": {Kind: KindBool},
			"asn_notfound":    {Kind: KindBool},
		},
		HandlerNetprobe: {},
	}
)

var validate = validator.New()

// InputConfigOptions returns the config table of an input type.
func InputConfigOptions(inputType string) (OptionTable, bool) {
	t, ok := inputConfigOptions[inputType]
	return t, ok
}

// ModuleFilterOptions returns the filter table of a handler.
func ModuleFilterOptions(handler string) (OptionTable, bool) {
	t, ok := moduleFilterOptions[handler]
	return t, ok
}

// check returns the normalized value or the reason it is rejected.
func (t OptionTable) check(key string, value any) (any, string) {
	spec, ok := t[key]
	if !ok {
		return nil, "unknown option"
	}

	v, ok := coerce(spec.Kind, value)
	if !ok {
		return nil, fmt.Sprintf("expected %s, got %T", spec.Kind, value)
	}

	if spec.Rule == "" {
		return v, ""
	}
	if spec.Kind == KindStringList {
		for _, item := range v.([]string) {
			if err := validate.Var(item, spec.Rule); err != nil {
				return nil, fmt.Sprintf("value %q does not satisfy %q", item, spec.Rule)
			}
		}
		return v, ""
	}
	if err := validate.Var(v, spec.Rule); err != nil {
		return nil, fmt.Sprintf("value %v does not satisfy %q", v, spec.Rule)
	}
	return v, ""
}

func coerce(kind Kind, value any) (any, bool) {
	switch kind {
	case KindString:
		v, ok := value.(string)
		return v, ok
	case KindBool:
		v, ok := value.(bool)
		return v, ok
	case KindInt:
		switch n := value.(type) {
		case int:
			return n, true
		case int32:
			return int(n), true
		case int64:
			return int(n), true
		}
		return nil, false
	case KindStringList:
		switch l := value.(type) {
		case []string:
			return append([]string(nil), l...), true
		case string:
			return []string{l}, true
		}
		return nil, false
	case KindMap:
		switch m := value.(type) {
		case map[string]any:
			return m, true
		case map[string]string:
			out := make(map[string]any, len(m))
			for k, v := range m {
				out[k] = v
			}
			return out, true
		}
		return nil, false
	}
	return nil, false
}
