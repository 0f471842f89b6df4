package qlab

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/hypebeast/go-osc/osc"
)

// SimCue is a cue served by the Simulator.
type SimCue struct {
	ID       string
	Number   string
	Name     string
	Type     string
	Duration float64
}

// SimWorkspace is a workspace served by the Simulator.
type SimWorkspace struct {
	ID       string
	Name     string
	Passcode string
	Cues     []SimCue
}

// Simulator is a minimal QLab OSC endpoint for tests and local development.
// It answers the requests this package issues and pushes cue updates to
// subscribed clients.
type Simulator struct {
	conn net.PacketConn

	// OnMessage, when set before Serve, observes every decoded request.
	OnMessage func(from net.Addr, address string, args []any)

	mu          sync.Mutex
	workspaces  []*SimWorkspace
	subscribers map[string]map[string]net.Addr // workspace ID -> addr string -> addr
	running     map[string]bool
	commands    []string
}

// NewSimulator creates a simulator serving workspaces.
func NewSimulator(workspaces ...*SimWorkspace) *Simulator {
	return &Simulator{
		workspaces:  workspaces,
		subscribers: make(map[string]map[string]net.Addr),
		running:     make(map[string]bool),
	}
}

// Listen binds the UDP socket, e.g. "127.0.0.1:0".
func (s *Simulator) Listen(addr string) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Addr is the bound address.
func (s *Simulator) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Serve answers requests until ctx is cancelled or the socket closes.
func (s *Simulator) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, maxPacket)
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			continue
		}
		if msg, ok := packet.(*osc.Message); ok {
			if s.OnMessage != nil {
				s.OnMessage(from, msg.Address, msg.Arguments)
			}
			s.handle(from, msg)
		}
	}
}

// Close releases the socket.
func (s *Simulator) Close() error {
	return s.conn.Close()
}

// Commands lists the cue and workspace commands received, in order.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Running reports whether a cue has been started and not stopped.
func (s *Simulator) Running(cueID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[cueID]
}

// SetCues replaces a workspace's cues and notifies subscribers.
func (s *Simulator) SetCues(workspaceID string, cues []SimCue) {
	s.mu.Lock()
	for _, ws := range s.workspaces {
		if ws.ID == workspaceID {
			ws.Cues = cues
		}
	}
	s.mu.Unlock()

	s.PushUpdate(workspaceID, "")
}

// PushUpdate sends /update/workspace/<id>[/suffix] to subscribers.
func (s *Simulator) PushUpdate(workspaceID, suffix string) {
	address := updatePrefix + "/workspace/" + workspaceID
	if suffix != "" {
		address += "/" + suffix
	}
	data, err := osc.NewMessage(address).MarshalBinary()
	if err != nil {
		return
	}

	s.mu.Lock()
	var targets []net.Addr
	for _, addr := range s.subscribers[workspaceID] {
		targets = append(targets, addr)
	}
	s.mu.Unlock()

	for _, addr := range targets {
		_, _ = s.conn.WriteTo(data, addr)
	}
}

// Subscribers counts clients subscribed to a workspace's updates.
func (s *Simulator) Subscribers(workspaceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers[workspaceID])
}

func (s *Simulator) handle(from net.Addr, msg *osc.Message) {
	if msg.Address == "/workspaces" {
		s.reply(from, msg.Address, "", "ok", s.workspaceInfos())
		return
	}

	parts := strings.Split(strings.TrimPrefix(msg.Address, "/"), "/")
	if len(parts) < 3 || parts[0] != "workspace" {
		s.reply(from, msg.Address, "", "error", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.findWorkspace(parts[1])
	if ws == nil {
		s.replyLocked(from, msg.Address, parts[1], "error", nil)
		return
	}

	switch parts[2] {
	case "connect":
		passcode := ""
		if len(msg.Arguments) > 0 {
			passcode, _ = msg.Arguments[0].(string)
		}
		if ws.Passcode != "" && passcode != ws.Passcode {
			s.replyLocked(from, msg.Address, ws.ID, "ok", badPasscode)
			return
		}
		s.replyLocked(from, msg.Address, ws.ID, "ok", "ok")

	case "updates":
		subscribe := len(msg.Arguments) > 0 && isTruthy(msg.Arguments[0])
		if s.subscribers[ws.ID] == nil {
			s.subscribers[ws.ID] = make(map[string]net.Addr)
		}
		if subscribe {
			s.subscribers[ws.ID][from.String()] = from
		} else {
			delete(s.subscribers[ws.ID], from.String())
		}

	case "disconnect":
		delete(s.subscribers[ws.ID], from.String())

	case "cueLists":
		s.replyLocked(from, msg.Address, ws.ID, "ok", []cueInfo{{
			UniqueID: "list-" + ws.ID,
			Name:     "Main Cue List",
			Type:     "Cue List",
			Cues:     cueInfos(ws.Cues),
		}})

	case "stop":
		s.commands = append(s.commands, "stop")
		s.running = make(map[string]bool)
		s.replyLocked(from, msg.Address, ws.ID, "ok", nil)

	case "cue_id":
		s.handleCue(from, msg, ws, parts[3:])

	default:
		s.replyLocked(from, msg.Address, ws.ID, "error", nil)
	}
}

func (s *Simulator) handleCue(from net.Addr, msg *osc.Message, ws *SimWorkspace, rest []string) {
	if len(rest) < 2 {
		s.replyLocked(from, msg.Address, ws.ID, "error", nil)
		return
	}

	var cue *SimCue
	for i := range ws.Cues {
		if ws.Cues[i].ID == rest[0] {
			cue = &ws.Cues[i]
		}
	}
	if cue == nil {
		s.replyLocked(from, msg.Address, ws.ID, "error", nil)
		return
	}

	switch rest[1] {
	case "start":
		s.commands = append(s.commands, "start "+cue.ID)
		s.running[cue.ID] = true
		s.replyLocked(from, msg.Address, ws.ID, "ok", nil)
	case "stop":
		s.commands = append(s.commands, "stop "+cue.ID)
		delete(s.running, cue.ID)
		s.replyLocked(from, msg.Address, ws.ID, "ok", nil)
	case "duration":
		s.replyLocked(from, msg.Address, ws.ID, "ok", cue.Duration)
	case "name":
		s.replyLocked(from, msg.Address, ws.ID, "ok", cue.Name)
	case "number":
		s.replyLocked(from, msg.Address, ws.ID, "ok", cue.Number)
	default:
		s.replyLocked(from, msg.Address, ws.ID, "error", nil)
	}
}

func (s *Simulator) findWorkspace(id string) *SimWorkspace {
	for _, ws := range s.workspaces {
		if ws.ID == id {
			return ws
		}
	}
	return nil
}

func (s *Simulator) workspaceInfos() []workspaceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]workspaceInfo, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		infos = append(infos, workspaceInfo{
			UniqueID:    ws.ID,
			DisplayName: ws.Name,
			HasPasscode: ws.Passcode != "",
			Version:     "4.6.12",
		})
	}
	return infos
}

func (s *Simulator) reply(to net.Addr, address, workspaceID, status string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyLocked(to, address, workspaceID, status, data)
}

func (s *Simulator) replyLocked(to net.Addr, address, workspaceID, status string, data any) {
	body := map[string]any{
		"address": address,
		"status":  status,
	}
	if workspaceID != "" {
		body["workspace_id"] = workspaceID
	}
	if data != nil {
		body["data"] = data
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return
	}
	packet, err := osc.NewMessage(replyPrefix+address, string(raw)).MarshalBinary()
	if err != nil {
		return
	}
	_, _ = s.conn.WriteTo(packet, to)
}

func cueInfos(cues []SimCue) []cueInfo {
	out := make([]cueInfo, 0, len(cues))
	for _, c := range cues {
		out = append(out, cueInfo{
			UniqueID: c.ID,
			Number:   c.Number,
			Name:     c.Name,
			ListName: c.Name,
			Type:     c.Type,
		})
	}
	return out
}

func isTruthy(arg any) bool {
	switch v := arg.(type) {
	case int32:
		return v != 0
	case int64:
		return v != 0
	case float32:
		return v != 0
	case bool:
		return v
	case string:
		return v == "1" || v == "true"
	}
	return false
}
