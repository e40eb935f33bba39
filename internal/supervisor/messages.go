package supervisor

import (
	"wsagent/internal/notifications"
	"wsagent/internal/ports"

	"google.golang.org/protobuf/encoding/protowire"
)

// supervisor.StatusService

type PortsStatusRequest struct {
	Observe bool
}

func (m *PortsStatusRequest) marshal(b []byte) []byte {
	return appendBool(b, 1, m.Observe)
}

func (m *PortsStatusRequest) unmarshal(b []byte) error {
	*m = PortsStatusRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return readBool(&m.Observe, typ, b)
		}
		return skip, nil
	})
}

type PortsStatusResponse struct {
	Ports []*PortsStatus
}

func (m *PortsStatusResponse) marshal(b []byte) []byte {
	for _, p := range m.Ports {
		b = appendMessage(b, 1, p)
	}
	return b
}

func (m *PortsStatusResponse) unmarshal(b []byte) error {
	*m = PortsStatusResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			p := &PortsStatus{}
			n, err := readMessage(p, typ, b)
			if err == nil {
				m.Ports = append(m.Ports, p)
			}
			return n, err
		}
		return skip, nil
	})
}

// Statuses converts the snapshot into the agent's port model.
func (m *PortsStatusResponse) Statuses() []ports.Status {
	out := make([]ports.Status, 0, len(m.Ports))
	for _, p := range m.Ports {
		st := ports.Status{
			LocalPort:  p.LocalPort,
			GlobalPort: p.GlobalPort,
			Served:     p.Served,
		}
		if p.Exposed != nil {
			st.Exposed = &ports.Exposure{
				GlobalPort: p.GlobalPort,
				URL:        p.Exposed.URL,
				Visibility: ports.Visibility(p.Exposed.Visibility),
				OnExposed:  ports.ExposedAction(p.Exposed.OnExposed),
			}
		}
		out = append(out, st)
	}
	return out
}

type PortsStatus struct {
	LocalPort  uint32
	GlobalPort uint32
	Served     bool
	Exposed    *ExposedPortInfo
}

func (m *PortsStatus) marshal(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.LocalPort))
	b = appendVarint(b, 2, uint64(m.GlobalPort))
	b = appendBool(b, 4, m.Served)
	if m.Exposed != nil {
		b = appendMessage(b, 5, m.Exposed)
	}
	return b
}

func (m *PortsStatus) unmarshal(b []byte) error {
	*m = PortsStatus{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readUint32(&m.LocalPort, typ, b)
		case 2:
			return readUint32(&m.GlobalPort, typ, b)
		case 4:
			return readBool(&m.Served, typ, b)
		case 5:
			m.Exposed = &ExposedPortInfo{}
			return readMessage(m.Exposed, typ, b)
		}
		return skip, nil
	})
}

type ExposedPortInfo struct {
	Visibility int32
	URL        string
	OnExposed  int32
}

func (m *ExposedPortInfo) marshal(b []byte) []byte {
	b = appendInt32(b, 1, m.Visibility)
	b = appendString(b, 2, m.URL)
	return appendInt32(b, 3, m.OnExposed)
}

func (m *ExposedPortInfo) unmarshal(b []byte) error {
	*m = ExposedPortInfo{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readInt32(&m.Visibility, typ, b)
		case 2:
			return readString(&m.URL, typ, b)
		case 3:
			return readInt32(&m.OnExposed, typ, b)
		}
		return skip, nil
	})
}

// supervisor.NotificationService

type SubscribeRequest struct{}

func (m *SubscribeRequest) marshal(b []byte) []byte { return b }

func (m *SubscribeRequest) unmarshal(b []byte) error {
	return decodeFields(b, func(protowire.Number, protowire.Type, []byte) (int, error) { return skip, nil })
}

type SubscribeResponse struct {
	RequestID uint64
	Request   *NotifyRequest
}

func (m *SubscribeResponse) marshal(b []byte) []byte {
	b = appendVarint(b, 1, m.RequestID)
	if m.Request != nil {
		b = appendMessage(b, 2, m.Request)
	}
	return b
}

func (m *SubscribeResponse) unmarshal(b []byte) error {
	*m = SubscribeResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readUint64(&m.RequestID, typ, b)
		case 2:
			m.Request = &NotifyRequest{}
			return readMessage(m.Request, typ, b)
		}
		return skip, nil
	})
}

// Notification converts the message into a bridge request. Messages without
// a request carry nothing to present.
func (m *SubscribeResponse) Notification() (notifications.Request, bool) {
	if m.Request == nil {
		return notifications.Request{}, false
	}
	return notifications.Request{
		ID:      m.RequestID,
		Key:     notifications.RequestKey(m.RequestID),
		Level:   notifications.Level(m.Request.Level),
		Message: m.Request.Message,
		Actions: append([]string(nil), m.Request.Actions...),
	}, true
}

type NotifyRequest struct {
	Level   int32
	Message string
	Actions []string
}

func (m *NotifyRequest) marshal(b []byte) []byte {
	b = appendInt32(b, 1, m.Level)
	b = appendString(b, 2, m.Message)
	return appendStrings(b, 3, m.Actions)
}

func (m *NotifyRequest) unmarshal(b []byte) error {
	*m = NotifyRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readInt32(&m.Level, typ, b)
		case 2:
			return readString(&m.Message, typ, b)
		case 3:
			return readStrings(&m.Actions, typ, b)
		}
		return skip, nil
	})
}

type RespondRequest struct {
	RequestID uint64
	Response  *NotifyResponse
}

func (m *RespondRequest) marshal(b []byte) []byte {
	b = appendVarint(b, 1, m.RequestID)
	if m.Response != nil {
		b = appendMessage(b, 2, m.Response)
	}
	return b
}

func (m *RespondRequest) unmarshal(b []byte) error {
	*m = RespondRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readUint64(&m.RequestID, typ, b)
		case 2:
			m.Response = &NotifyResponse{}
			return readMessage(m.Response, typ, b)
		}
		return skip, nil
	})
}

type NotifyResponse struct {
	Action string
}

func (m *NotifyResponse) marshal(b []byte) []byte {
	return appendString(b, 1, m.Action)
}

func (m *NotifyResponse) unmarshal(b []byte) error {
	*m = NotifyResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return readString(&m.Action, typ, b)
		}
		return skip, nil
	})
}

// Empty is the response of calls without a meaningful result.
type Empty struct{}

func (m *Empty) marshal(b []byte) []byte { return b }

func (m *Empty) unmarshal(b []byte) error {
	return decodeFields(b, func(protowire.Number, protowire.Type, []byte) (int, error) { return skip, nil })
}

// supervisor.ControlService

type ExposePortRequest struct {
	Port       uint32
	TargetPort uint32
}

func (m *ExposePortRequest) marshal(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.Port))
	return appendVarint(b, 2, uint64(m.TargetPort))
}

func (m *ExposePortRequest) unmarshal(b []byte) error {
	*m = ExposePortRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readUint32(&m.Port, typ, b)
		case 2:
			return readUint32(&m.TargetPort, typ, b)
		}
		return skip, nil
	})
}

// supervisor.InfoService

type WorkspaceInfoResponse struct {
	WorkspaceID         string
	InstanceID          string
	CheckoutLocation    string
	GitpodAPI           *GitpodAPI
	GitpodHost          string
	WorkspaceContextURL string
}

type GitpodAPI struct {
	Endpoint string
	Host     string
}

func (m *WorkspaceInfoResponse) marshal(b []byte) []byte {
	b = appendString(b, 1, m.WorkspaceID)
	b = appendString(b, 2, m.InstanceID)
	b = appendString(b, 3, m.CheckoutLocation)
	if m.GitpodAPI != nil {
		b = appendMessage(b, 7, m.GitpodAPI)
	}
	b = appendString(b, 8, m.GitpodHost)
	return appendString(b, 9, m.WorkspaceContextURL)
}

func (m *WorkspaceInfoResponse) unmarshal(b []byte) error {
	*m = WorkspaceInfoResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(&m.WorkspaceID, typ, b)
		case 2:
			return readString(&m.InstanceID, typ, b)
		case 3:
			return readString(&m.CheckoutLocation, typ, b)
		case 7:
			m.GitpodAPI = &GitpodAPI{}
			return readMessage(m.GitpodAPI, typ, b)
		case 8:
			return readString(&m.GitpodHost, typ, b)
		case 9:
			return readString(&m.WorkspaceContextURL, typ, b)
		}
		return skip, nil
	})
}

func (m *GitpodAPI) marshal(b []byte) []byte {
	b = appendString(b, 1, m.Endpoint)
	return appendString(b, 2, m.Host)
}

func (m *GitpodAPI) unmarshal(b []byte) error {
	*m = GitpodAPI{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(&m.Endpoint, typ, b)
		case 2:
			return readString(&m.Host, typ, b)
		}
		return skip, nil
	})
}

// supervisor.TokenService

type GetTokenRequest struct {
	Host        string
	Scope       []string
	Description string
	Kind        string
}

func (m *GetTokenRequest) marshal(b []byte) []byte {
	b = appendString(b, 1, m.Host)
	b = appendStrings(b, 2, m.Scope)
	b = appendString(b, 3, m.Description)
	return appendString(b, 4, m.Kind)
}

func (m *GetTokenRequest) unmarshal(b []byte) error {
	*m = GetTokenRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(&m.Host, typ, b)
		case 2:
			return readStrings(&m.Scope, typ, b)
		case 3:
			return readString(&m.Description, typ, b)
		case 4:
			return readString(&m.Kind, typ, b)
		}
		return skip, nil
	})
}

type GetTokenResponse struct {
	Token string
	User  string
	Scope []string
}

func (m *GetTokenResponse) marshal(b []byte) []byte {
	b = appendString(b, 1, m.Token)
	b = appendString(b, 2, m.User)
	return appendStrings(b, 3, m.Scope)
}

func (m *GetTokenResponse) unmarshal(b []byte) error {
	*m = GetTokenResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(&m.Token, typ, b)
		case 2:
			return readString(&m.User, typ, b)
		case 3:
			return readStrings(&m.Scope, typ, b)
		}
		return skip, nil
	})
}
