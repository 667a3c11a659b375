package web

import (
	"sync/atomic"
	"time"

	"healthd-ng/internal/charging"
)

const serviceName = "healthd-ng"

// Status holds process-level facts for /api/status. The charging value itself
// is read from the node on every snapshot.
type Status struct {
	startUnixNano int64
	rpcSocket     atomic.Value // string
	webListen     atomic.Value // string
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.rpcSocket.Store("")
	s.webListen.Store("")
	return s
}

func (s *Status) SetStatic(rpcSocket, webListen string) {
	if rpcSocket != "" {
		s.rpcSocket.Store(rpcSocket)
	}
	if webListen != "" {
		s.webListen.Store(webListen)
	}
}

type ChargingSnapshot struct {
	Bound      bool                   `json:"bound"`
	Node       *charging.ControlNode  `json:"node,omitempty"`
	Candidates []charging.ControlNode `json:"candidates"`
	Enabled    *bool                  `json:"enabled,omitempty"`
	ErrorKind  string                 `json:"error_kind,omitempty"`
	LastError  string                 `json:"last_error,omitempty"`
}

type StatusSnapshot struct {
	Service   string           `json:"service"`
	NowUTC    string           `json:"now_utc"`
	UptimeSec int64            `json:"uptime_sec"`
	RPCSocket string           `json:"rpc_socket,omitempty"`
	WebListen string           `json:"web_listen,omitempty"`
	Charging  ChargingSnapshot `json:"charging"`
}

func (s *Status) Snapshot(nowUTC time.Time, ctl ChargingController) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   serviceName,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		RPCSocket: s.rpcSocket.Load().(string),
		WebListen: s.webListen.Load().(string),
	}
	if ctl == nil {
		return snap
	}

	snap.Charging.Candidates = ctl.Candidates()
	if n, ok := ctl.Node(); ok {
		snap.Charging.Bound = true
		snap.Charging.Node = &n
	}
	v, err := ctl.GetEnabled()
	if err != nil {
		snap.Charging.ErrorKind = charging.KindOf(err).String()
		snap.Charging.LastError = err.Error()
	} else {
		snap.Charging.Enabled = &v
	}
	return snap
}
