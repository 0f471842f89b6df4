package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Server is a control-capable host discovered on the network.
type Server struct {
	Name       string       `json:"name"`
	Host       string       `json:"host"`
	Port       int          `json:"port"`
	Workspaces []*Workspace `json:"workspaces"`
}

// Key identifies a server by its network address.
func (s *Server) Key() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Workspace is a named collection of cues reachable through one server.
type Workspace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ServerName  string `json:"serverName"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	HasPasscode bool   `json:"hasPasscode"`
}

// Key identifies a workspace across discovery updates.
func (w *Workspace) Key() string {
	return net.JoinHostPort(w.Host, strconv.Itoa(w.Port)) + "/" + w.ID
}

// FullName is the workspace name qualified by the server that reports it.
func (w *Workspace) FullName() string {
	if w.ServerName == "" {
		return w.Name
	}
	return fmt.Sprintf("%s (%s)", w.Name, w.ServerName)
}

// DisplayName is the row text used in workspace lists.
func (w *Workspace) DisplayName() string {
	return strings.ToUpper(w.Name)
}

// Equal reports whether both values reference the same workspace.
func (w *Workspace) Equal(other *Workspace) bool {
	if w == nil || other == nil {
		return w == other
	}
	return w.Key() == other.Key()
}

// Cue is a playable show item.
type Cue struct {
	ID       string `json:"id"`
	Number   string `json:"number"`
	Name     string `json:"name"`
	ListName string `json:"listName,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Label is the row text used in cue lists, e.g. "#12 House lights".
func (c *Cue) Label() string {
	name := c.ListName
	if name == "" {
		name = c.Name
	}
	return "#" + c.Number + " " + name
}

// Equal reports whether both values reference the same cue.
func (c *Cue) Equal(other *Cue) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.ID == other.ID
}

// FlattenWorkspaces lists every server's workspaces in server order, then
// workspace order.
func FlattenWorkspaces(servers []*Server) []*Workspace {
	var out []*Workspace
	for _, s := range servers {
		if s == nil {
			continue
		}
		out = append(out, s.Workspaces...)
	}
	return out
}
