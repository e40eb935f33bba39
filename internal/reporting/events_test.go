package reporting

import (
	"errors"
	"testing"

	"wsagent/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPortsChangedEvent(t *testing.T) {
	r := ports.NewReconciler()
	r.ApplySnapshot([]ports.Status{{LocalPort: 3000}, {LocalPort: 5000}})
	diff := r.ApplySnapshot([]ports.Status{{LocalPort: 3000, Served: true}, {LocalPort: 8080}})

	event := NewPortsChangedEvent(diff, r.Ports())
	assert.Equal(t, EventTypePortsChanged, event.Type())
	assert.Equal(t, "Reconciler", event.Source())
	assert.False(t, event.Timestamp().IsZero())
	assert.Equal(t, []uint32{8080}, event.Added)
	assert.Equal(t, []uint32{3000}, event.Updated)
	assert.Equal(t, []uint32{5000}, event.Removed)
	assert.Len(t, event.Ports, 2)
	assert.Equal(t, "Ports added 8080; updated 3000; removed 5000", event.String())

	assert.Equal(t, "Ports unchanged", NewPortsChangedEvent(ports.Diff{}, nil).String())
}

func TestNewPortExposedEvent(t *testing.T) {
	r := ports.NewReconciler()
	diff := r.ApplySnapshot([]ports.Status{{
		LocalPort: 8080,
		Served:    true,
		Exposed:   &ports.Exposure{URL: "https://8080-x", Visibility: ports.VisibilityPublic, OnExposed: ports.ActionOpenPreview},
	}})
	require.Len(t, diff.Edges, 1)

	event := NewPortExposedEvent(diff.Edges[0])
	assert.Equal(t, EventTypePortExposed, event.Type())
	assert.Equal(t, uint32(8080), event.Port)
	assert.Equal(t, ports.ActionOpenPreview, event.OnExposed)
	assert.Equal(t, "Port 8080 is open (public) at https://8080-x", event.String())
}

func TestNewLoopStateEvent(t *testing.T) {
	connected := NewLoopStateEvent("PortsLoop", LoopConnected, "", nil)
	assert.Equal(t, SeverityInfo, connected.Severity())
	assert.Equal(t, "PortsLoop connected", connected.String())

	failed := NewLoopStateEvent("PortsLoop", LoopDisconnected, "transient", errors.New("connection refused"))
	assert.Equal(t, SeverityError, failed.Severity())
	assert.Equal(t, "PortsLoop disconnected (transient): connection refused", failed.String())

	stopped := NewLoopStateEvent("NotificationsLoop", LoopStopped, "unimplemented", nil)
	assert.Equal(t, SeverityWarn, stopped.Severity())
}

func TestNotificationAndActionEvents(t *testing.T) {
	n := NewNotificationEvent("Notifications", "request/4", "Disk almost full", "answered", "Clean up")
	assert.Equal(t, SeverityInfo, n.Severity())
	assert.Equal(t, `"Disk almost full" answered: Clean up`, n.String())

	failed := NewNotificationEvent("Notifications", "request/5", "x", "failed", "")
	assert.Equal(t, SeverityWarn, failed.Severity())

	a := NewActionEvent("open-preview", 3000, "https://3000-x")
	assert.Equal(t, "Port 3000: open-preview https://3000-x", a.String())
	assert.Equal(t, "Port 3000: make-public", NewActionEvent("make-public", 3000, "").String())
}
