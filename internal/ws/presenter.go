package ws

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remote-cue-control/backend/internal/buffer"
	"github.com/remote-cue-control/backend/internal/logging"
	"github.com/remote-cue-control/backend/internal/model"
	"github.com/remote-cue-control/backend/internal/monitoring"
	"github.com/remote-cue-control/backend/internal/session"
)

// DefaultConfirmTimeout is how long a confirmation waits for an operator.
const DefaultConfirmTimeout = 30 * time.Second

// Alert texts shown to operators.
const (
	alertEmptyServerTitle    = "Empty Server"
	alertEmptyServerText     = "The selected server contains no workspaces"
	alertEmptyWorkspaceTitle = "Empty Workspace"
	alertEmptyWorkspaceText  = "The selected workspace contains no cues"
	alertNotConnectedTitle   = "Not Connected"
	alertNotConnectedText    = "Connect to a workspace before controlling cues"
	alertConnectFailedTitle  = "Connection Failed"
	confirmDisconnectTitle   = "Disconnect"
)

// Activity is one entry of the operator-facing event log.
type Activity struct {
	Time time.Time `json:"time"`
	Kind string    `json:"kind"`
	Text string    `json:"text"`
}

// WorkspaceView is a workspace row.
type WorkspaceView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	FullName    string `json:"fullName"`
	Server      string `json:"server"`
	HasPasscode bool   `json:"hasPasscode"`
}

// CueView is a cue row.
type CueView struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Name   string `json:"name"`
	Label  string `json:"label"`
	Type   string `json:"type,omitempty"`
}

// Prompt is an unanswered confirmation.
type Prompt struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Text    string    `json:"text"`
	Created time.Time `json:"created"`
}

type pendingConfirm struct {
	prompt Prompt
	answer func(bool)
	timer  *time.Timer
}

// Presenter renders controller signals as WebSocket broadcasts and routes
// confirmation answers back to the controller.
type Presenter struct {
	hub            *Hub
	activity       *buffer.Ring[Activity]
	confirmTimeout time.Duration
	metrics        *monitoring.Metrics
	log            *logging.Logger

	mu      sync.Mutex
	pending map[string]*pendingConfirm
}

var _ session.Presenter = (*Presenter)(nil)

// NewPresenter creates a presenter broadcasting on hub.
func NewPresenter(hub *Hub, activitySize int, confirmTimeout time.Duration, metrics *monitoring.Metrics, logger *logging.Logger) *Presenter {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	return &Presenter{
		hub:            hub,
		activity:       buffer.NewRing[Activity](activitySize),
		confirmTimeout: confirmTimeout,
		metrics:        metrics,
		log:            logger.Named("presenter"),
		pending:        make(map[string]*pendingConfirm),
	}
}

// ServerListChanged broadcasts the workspace rows.
func (p *Presenter) ServerListChanged(workspaces []*model.Workspace) {
	p.broadcastPayload(MessageTypeServers, WorkspaceViews(workspaces))
}

// CueListChanged broadcasts the cue rows.
func (p *Presenter) CueListChanged(cues []*model.Cue) {
	p.broadcastPayload(MessageTypeCues, CueViews(cues))
}

// CurrentCueChanged broadcasts the playing cue, or null.
func (p *Presenter) CurrentCueChanged(cue *model.Cue) {
	var view *CueView
	if cue != nil {
		v := cueView(cue)
		view = &v
		p.record("cue", "Started "+cue.Label())
	}
	p.broadcastPayload(MessageTypeCurrentCue, view)
}

// ConnectionStatusChanged broadcasts the status line.
func (p *Presenter) ConnectionStatusChanged(text string) {
	if text == "" {
		p.record("connection", "Disconnected")
	} else {
		p.record("connection", text)
	}
	p.broadcast(&Message{Type: MessageTypeStatus, Text: text})
}

// ShadowVisibilityChanged broadcasts the disconnected marker.
func (p *Presenter) ShadowVisibilityChanged(visible bool) {
	p.broadcast(&Message{Type: MessageTypeShadow, Visible: &visible})
}

// EmptyWorkspaceListError alerts that no server offers a workspace.
func (p *Presenter) EmptyWorkspaceListError() {
	p.alert(alertEmptyServerTitle, alertEmptyServerText)
}

// EmptyCueListError alerts that the connected workspace has no cues.
func (p *Presenter) EmptyCueListError() {
	p.alert(alertEmptyWorkspaceTitle, alertEmptyWorkspaceText)
}

// NotConnectedError alerts that a command needs a connected workspace.
func (p *Presenter) NotConnectedError() {
	p.alert(alertNotConnectedTitle, alertNotConnectedText)
}

// ConnectionFailed alerts that connecting to workspace failed.
func (p *Presenter) ConnectionFailed(workspace string, err error) {
	p.alert(alertConnectFailedTitle, fmt.Sprintf("Could not connect to %s: %v", workspace, err))
}

// ConfirmDisconnect asks operators to confirm. The prompt stays pending until
// a WebSocket or HTTP client answers it or the timeout answers no.
func (p *Presenter) ConfirmDisconnect(workspace string, answer func(bool)) {
	prompt := Prompt{
		ID:      uuid.NewString(),
		Title:   confirmDisconnectTitle,
		Text:    fmt.Sprintf("Are you sure you want to disconnect from %s?", workspace),
		Created: time.Now(),
	}
	pc := &pendingConfirm{prompt: prompt, answer: answer}

	p.mu.Lock()
	p.pending[prompt.ID] = pc
	pc.timer = time.AfterFunc(p.confirmTimeout, func() {
		if p.Resolve(prompt.ID, false) {
			p.log.Info("confirmation timed out", zap.String("id", prompt.ID))
		}
	})
	p.mu.Unlock()

	if !p.hub.HasClients() {
		p.log.Debug("confirmation pending with no operators attached", zap.String("workspace", workspace))
	}
	p.broadcast(&Message{
		Type:  MessageTypeConfirm,
		ID:    prompt.ID,
		Title: prompt.Title,
		Text:  prompt.Text,
	})
}

// Resolve answers a pending confirmation. It reports false for unknown or
// already answered IDs.
func (p *Presenter) Resolve(id string, ok bool) bool {
	p.mu.Lock()
	pc, found := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()

	if !found {
		return false
	}
	if pc.timer != nil {
		pc.timer.Stop()
	}

	pc.answer(ok)
	p.broadcast(&Message{Type: MessageTypeConfirmClosed, ID: id, Confirmed: ok})
	return true
}

// DeclineAll answers every pending confirmation with no.
func (p *Presenter) DeclineAll() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.Resolve(id, false)
	}
}

// Pending lists unanswered confirmations, oldest first.
func (p *Presenter) Pending() []Prompt {
	p.mu.Lock()
	prompts := make([]Prompt, 0, len(p.pending))
	for _, pc := range p.pending {
		prompts = append(prompts, pc.prompt)
	}
	p.mu.Unlock()

	sort.Slice(prompts, func(i, j int) bool {
		return prompts[i].Created.Before(prompts[j].Created)
	})
	return prompts
}

// Activity returns the recent activity log, oldest first.
func (p *Presenter) Activity() []Activity {
	return p.activity.Items()
}

func (p *Presenter) alert(title, text string) {
	p.record("alert", title+": "+text)
	p.broadcast(&Message{Type: MessageTypeAlert, Title: title, Text: text})
}

func (p *Presenter) record(kind, text string) {
	entry := Activity{Time: time.Now(), Kind: kind, Text: text}
	p.activity.Push(entry)
	p.broadcastPayload(MessageTypeActivity, entry)
}

func (p *Presenter) broadcastPayload(t MessageType, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Error("encoding payload failed", zap.String("type", string(t)), zap.Error(err))
		return
	}
	p.broadcast(&Message{Type: t, Payload: payload})
}

func (p *Presenter) broadcast(msg *Message) {
	if err := p.hub.Publish(msg); err != nil {
		p.log.Error("broadcast failed", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}
	p.metrics.RecordWSMessage("out", string(msg.Type))
}

// WorkspaceViews converts workspaces to rows.
func WorkspaceViews(workspaces []*model.Workspace) []WorkspaceView {
	views := make([]WorkspaceView, 0, len(workspaces))
	for _, ws := range workspaces {
		views = append(views, WorkspaceView{
			ID:          ws.ID,
			Name:        ws.Name,
			DisplayName: ws.DisplayName(),
			FullName:    ws.FullName(),
			Server:      ws.ServerName,
			HasPasscode: ws.HasPasscode,
		})
	}
	return views
}

// CueViews converts cues to rows.
func CueViews(cues []*model.Cue) []CueView {
	views := make([]CueView, 0, len(cues))
	for _, c := range cues {
		views = append(views, cueView(c))
	}
	return views
}

func cueView(c *model.Cue) CueView {
	return CueView{
		ID:     c.ID,
		Number: c.Number,
		Name:   c.Name,
		Label:  c.Label(),
		Type:   c.Type,
	}
}
