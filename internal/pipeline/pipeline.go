// Package pipeline implements the request pipeline (C6): decoding an
// inbound SNMP message, resolving its target agent via internal/selector,
// running its varbinds through internal/lookup, applying the GETBULK
// expansion and v2c->v1 translation rules, and encoding the response.
// Packet decode/encode follows the teacher's internal/agent/agent.go HandlePacket/decodePacket/
// buildResponseFromRequest; GETBULK math and the v2c->v1 exception
// translation are new, grounded directly in spec.md §4.6.
package pipeline

import (
	"errors"
	"fmt"
	"log"

	"github.com/gosnmp/gosnmp"

	"github.com/dmukherjee/snmprecsim/internal/lookup"
	"github.com/dmukherjee/snmprecsim/internal/record"
	"github.com/dmukherjee/snmprecsim/internal/recfile"
	"github.com/dmukherjee/snmprecsim/internal/recindex"
	"github.com/dmukherjee/snmprecsim/internal/selector"
	"github.com/dmukherjee/snmprecsim/internal/snmperr"
	"github.com/dmukherjee/snmprecsim/internal/v3"
)

// AgentSource resolves an agent identifier to its open record store
// (file + index) and its loaded variation modules. internal/store's
// HandleCache plus internal/variation's Host satisfy this together; the
// daemon wires them in at startup.
type AgentSource interface {
	Open(agentID string) (*recfile.File, *recindex.Index, record.ModuleSet, error)
}

// Config carries the fixed, per-process settings the pipeline needs:
// which arch mode is active, the v3 engine settings, and (for v2c) the
// agent-directory context table. The transport identity used to build
// selector candidates arrives per call as an Endpoint instead.
type Config struct {
	V2CArch      bool
	MaxVarBinds  int
	ContextTable *selector.ContextTable
	V3           *v3.Config
	EngineState  *v3.EngineStateStore

	// Boots is this process incarnation's snmpEngineBoots value, fetched
	// once at startup via EngineState.EnsureBoots. It does not change for
	// the life of the process; only EngineState.EngineTime() advances.
	Boots uint32
}

// Endpoint describes the receiving socket, the half of ProbeInput that
// does not change per-request.
type Endpoint struct {
	Family          selector.TransportFamily
	TransportDotted string
}

// Pipeline ties a Config to an AgentSource and answers one request at a
// time — it holds no per-request state, matching spec.md §5's
// single-threaded, no-lock design.
type Pipeline struct {
	cfg    Config
	agents AgentSource
}

// New constructs a Pipeline.
func New(cfg Config, agents AgentSource) *Pipeline {
	return &Pipeline{cfg: cfg, agents: agents}
}

// HandleDatagram decodes one inbound UDP/Unix datagram, processes it
// against the resolved agent's record store, and returns the encoded
// response bytes. A nil return with nil error means the request was
// dropped (NoDataNotification) and nothing should be sent.
func (p *Pipeline) HandleDatagram(ep Endpoint, remoteAddr string, payload []byte) ([]byte, error) {
	req, err := p.decodePacket(payload)
	if err != nil {
		log.Printf("pipeline: decode failed from %s: %v", remoteAddr, err)
		return nil, nil
	}

	switch req.Version {
	case gosnmp.Version1, gosnmp.Version2c:
		return p.handleCommunity(ep, remoteAddr, req)
	case gosnmp.Version3:
		return p.handleV3(ep, remoteAddr, req)
	default:
		log.Printf("pipeline: unsupported SNMP version %v from %s", req.Version, remoteAddr)
		return nil, nil
	}
}

func (p *Pipeline) handleCommunity(ep Endpoint, remoteAddr string, req *gosnmp.SnmpPacket) ([]byte, error) {
	if req.Version == gosnmp.Version1 && req.PDUType == gosnmp.GetBulkRequest {
		log.Printf("pipeline: GETBULK over v1 from %s, dropping", remoteAddr)
		return nil, nil
	}

	candidates := selector.ProbeContext(selector.ProbeInput{
		TransportFamily:  ep.Family,
		TransportDotted:  ep.TransportDotted,
		TransportAddress: remoteAddr,
		ContextEngineID:  "self",
		ContextName:      req.Community,
	})
	agentID, ok := p.cfg.ContextTable.Resolve(candidates, req.Community)
	if !ok {
		log.Printf("pipeline: no agent for community %q from %s, dropping", req.Community, remoteAddr)
		return nil, nil
	}

	respVars, dropped, err := p.runVarBinds(agentID, req)
	if dropped {
		return nil, nil
	}
	if err != nil {
		log.Printf("pipeline: request error for agent %q: %v", agentID, err)
		return nil, nil
	}

	errStatus, errIndex := gosnmp.NoError, 0
	if req.Version == gosnmp.Version1 {
		respVars, errStatus, errIndex = translateV2cToV1(req.Variables, respVars)
	}

	resp := buildResponse(req, respVars, errStatus, errIndex)
	return marshalPacket(resp)
}

func (p *Pipeline) handleV3(ep Endpoint, remoteAddr string, req *gosnmp.SnmpPacket) ([]byte, error) {
	usm, _ := req.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	contextName := req.ContextName
	contextEngineID := req.ContextEngineID
	if p.cfg.V3 != nil && contextEngineID == p.cfg.V3.EngineID {
		contextEngineID = "self"
	}

	candidates := selector.ProbeContext(selector.ProbeInput{
		TransportFamily:  ep.Family,
		TransportDotted:  ep.TransportDotted,
		TransportAddress: remoteAddr,
		ContextEngineID:  contextEngineID,
		ContextName:      contextName,
	})
	agentID, ok := p.cfg.ContextTable.Resolve(candidates, contextName)
	if !ok {
		log.Printf("pipeline: no agent for v3 context %q from %s (user %s), dropping", contextName, remoteAddr, usernameOf(usm))
		return nil, nil
	}

	if req.PDUType == gosnmp.GetBulkRequest && req.Version != gosnmp.Version3 {
		return nil, nil
	}

	respVars, dropped, err := p.runVarBinds(agentID, req)
	if dropped {
		return nil, nil
	}
	if err != nil {
		log.Printf("pipeline: request error for agent %q: %v", agentID, err)
		return nil, nil
	}

	resp := buildResponse(req, respVars, gosnmp.NoError, 0)
	return marshalPacket(resp)
}

func usernameOf(usm *gosnmp.UsmSecurityParameters) string {
	if usm == nil {
		return ""
	}
	return usm.UserName
}

// runVarBinds resolves the agent's record store and modules, then
// dispatches by PDU type to lookup.ProcessVarBinds (GET/SET/GETNEXT) or
// the local GETBULK expansion.
func (p *Pipeline) runVarBinds(agentID string, req *gosnmp.SnmpPacket) (respVars []gosnmp.SnmpPDU, dropped bool, err error) {
	f, idx, mods, err := p.agents.Open(agentID)
	if err != nil {
		return nil, false, err
	}

	reqVars := toLookupVarBinds(req.Variables)

	readNext := func(vars []lookup.VarBind) ([]lookup.VarBind, error) {
		return lookup.ProcessVarBinds(f, idx, mods, vars, lookup.RequestContext{NextFlag: true})
	}

	var out []lookup.VarBind
	switch req.PDUType {
	case gosnmp.GetRequest:
		out, err = lookup.ProcessVarBinds(f, idx, mods, reqVars, lookup.RequestContext{})
	case gosnmp.SetRequest:
		out, err = lookup.ProcessVarBinds(f, idx, mods, reqVars, lookup.RequestContext{SetFlag: true})
	case gosnmp.GetNextRequest:
		out, err = readNext(reqVars)
	case gosnmp.GetBulkRequest:
		out, err = expandBulk(reqVars, int(req.NonRepeaters), int(req.MaxRepetitions), p.cfg.MaxVarBinds, readNext)
	default:
		return nil, false, fmt.Errorf("unsupported PDU type %v", req.PDUType)
	}

	if err != nil {
		if snmperr.Dropped(err) {
			return nil, true, nil
		}
		return nil, false, err
	}
	return fromLookupVarBinds(out), false, nil
}

// expandBulk implements spec.md §4.6's GETBULK expansion:
// N = min(N, len(vars)), R = max(len(vars)-N, 0), M clamped by
// floor(maxVarBinds/R) when R>0; response = readNext(vars[:N]) followed
// by M rounds of readNext, the first on the request's last R varbinds and
// each later one on the last R varbinds of the response so far.
func expandBulk(reqVars []lookup.VarBind, nonRepeaters, maxRepetitions, maxVarBinds int, readNext func([]lookup.VarBind) ([]lookup.VarBind, error)) ([]lookup.VarBind, error) {
	n := nonRepeaters
	if n > len(reqVars) {
		n = len(reqVars)
	}
	if n < 0 {
		n = 0
	}
	r := len(reqVars) - n
	if r < 0 {
		r = 0
	}

	m := maxRepetitions
	if r > 0 && maxVarBinds > 0 {
		cap := maxVarBinds / r
		if m > cap {
			m = cap
		}
	}
	if m < 0 {
		m = 0
	}

	response, err := readNext(reqVars[:n])
	if err != nil {
		return nil, err
	}

	if r == 0 {
		return response, nil
	}

	tail := reqVars[n:]
	for i := 0; i < m; i++ {
		next, err := readNext(tail)
		if err != nil {
			return nil, err
		}
		response = append(response, next...)
		tail = response[len(response)-r:]
	}
	return response, nil
}

// translateV2cToV1 implements spec.md §4.6's v2c->v1 translation rule:
// the first response varbind carrying a value v1 cannot represent
// (Counter64, noSuchObject, noSuchInstance, endOfMibView) reverts the
// whole varbind list to the request and sets errorStatus/errorIndex.
func translateV2cToV1(reqVars []gosnmp.SnmpPDU, respVars []gosnmp.SnmpPDU) ([]gosnmp.SnmpPDU, gosnmp.SNMPError, int) {
	for i, vb := range respVars {
		switch vb.Type {
		case gosnmp.Counter64:
			return reqVars, gosnmp.GenErr, i + 1
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
			return reqVars, gosnmp.NoSuchName, i + 1
		}
	}
	return respVars, gosnmp.NoError, 0
}

func toLookupVarBinds(vars []gosnmp.SnmpPDU) []lookup.VarBind {
	out := make([]lookup.VarBind, len(vars))
	for i, v := range vars {
		var val *record.Value
		if v.Value != nil {
			val = &record.Value{Type: v.Type, Data: v.Value}
		}
		out[i] = lookup.VarBind{OID: record.Canonical(v.Name), Value: val}
	}
	return out
}

func fromLookupVarBinds(vars []lookup.VarBind) []gosnmp.SnmpPDU {
	out := make([]gosnmp.SnmpPDU, len(vars))
	for i, v := range vars {
		pdu := gosnmp.SnmpPDU{Name: "." + v.OID}
		if v.Value != nil {
			pdu.Type = v.Value.Type
			pdu.Value = v.Value.Data
		}
		out[i] = pdu
	}
	return out
}

// decodePacket tries each version this daemon understands in turn:
// v2c/v1 framing shares a decoder (community is read off the wire, not
// matched here), then v3 with this engine's USM parameters, then a plain
// v1 retry for agents that send v1 with a v2c-shaped probe failing first.
// USM digest verification and privacy decryption happen inside gosnmp's
// own SnmpDecodePacket, not here.
func (p *Pipeline) decodePacket(payload []byte) (*gosnmp.SnmpPacket, error) {
	probe := &gosnmp.GoSNMP{Version: gosnmp.Version2c, Community: "public"}
	packet, err := probe.SnmpDecodePacket(payload)
	if err == nil {
		return packet, nil
	}

	if p.cfg.V3 != nil && p.cfg.V3.Enabled {
		var boots, engineTime uint32
		if p.cfg.EngineState != nil {
			boots, engineTime = p.cfg.Boots, p.cfg.EngineState.EngineTime()
		}
		secure := &gosnmp.GoSNMP{
			Version:            gosnmp.Version3,
			SecurityModel:      gosnmp.UserSecurityModel,
			MsgFlags:           p.cfg.V3.SecurityLevel(),
			SecurityParameters: p.cfg.V3.BuildUSM(boots, engineTime),
		}
		if packet, serr := secure.SnmpDecodePacket(payload); serr == nil {
			return packet, nil
		}
	}

	decoderV1 := &gosnmp.GoSNMP{Version: gosnmp.Version1, Community: "public"}
	if packet, err := decoderV1.SnmpDecodePacket(payload); err == nil {
		return packet, nil
	}
	return nil, errors.New("could not decode packet under any known version")
}

func buildResponse(req *gosnmp.SnmpPacket, vars []gosnmp.SnmpPDU, errStatus gosnmp.SNMPError, errIndex int) *gosnmp.SnmpPacket {
	resp := &gosnmp.SnmpPacket{
		Version:        req.Version,
		Community:      req.Community,
		PDUType:        gosnmp.GetResponse,
		RequestID:      req.RequestID,
		Error:          errStatus,
		ErrorIndex:     uint8(errIndex),
		Variables:      vars,
		SecurityModel:  req.SecurityModel,
		MsgFlags:       req.MsgFlags,
		ContextEngineID: req.ContextEngineID,
		ContextName:    req.ContextName,
	}
	if req.Version == gosnmp.Version3 {
		resp.SecurityParameters = req.SecurityParameters
	}
	return resp
}

func marshalPacket(packet *gosnmp.SnmpPacket) ([]byte, error) {
	return packet.MarshalMsg()
}
