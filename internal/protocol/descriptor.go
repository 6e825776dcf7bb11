package protocol

import "fmt"

// ConnectionDescriptor describes a saved remote endpoint. It is owned by the
// connection-management collaborator (backend API or local catalog) and never
// mutated here.
type ConnectionDescriptor struct {
	ID          string `json:"id" yaml:"id"`
	Protocol    Kind   `json:"protocol" yaml:"protocol"`
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Username    string `json:"username" yaml:"username"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

// Info builds the auth message summary for a session on this connection.
func (d ConnectionDescriptor) Info(sessionID string) ConnectionInfo {
	return ConnectionInfo{
		Protocol:  d.Protocol,
		Host:      d.Host,
		Port:      d.Port,
		Username:  d.Username,
		SessionID: sessionID,
	}
}

// Normalize checks the fields the bridge relies on and lower-cases the
// protocol name.
func (d *ConnectionDescriptor) Normalize() error {
	if d.ID == "" {
		return fmt.Errorf("connection descriptor: missing id")
	}
	k, err := ParseKind(string(d.Protocol))
	if err != nil {
		return fmt.Errorf("connection descriptor %s: %w", d.ID, err)
	}
	d.Protocol = k
	return nil
}

// Title is the label shown for a tab on this connection.
func (d ConnectionDescriptor) Title() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	if d.Username != "" {
		return fmt.Sprintf("%s@%s", d.Username, d.Host)
	}
	return d.Host
}
