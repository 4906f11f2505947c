package p2p_test

import (
	"testing"

	"aethercast/internal/p2p"
)

func TestSelectorDedicatedInterfaceOnlyAcceptsMatchingName(t *testing.T) {
	manager := &fakeManagerProxy{}
	var selected []p2p.InterfaceInfo
	sel := p2p.NewInterfaceSelector("p2p0", manager, func(info p2p.InterfaceInfo) {
		selected = append(selected, info)
	}, testLog())

	sel.OnInterfaceAdded(p2p.InterfaceInfo{Name: "wlan0", P2PReady: true})
	if len(selected) != 0 {
		t.Fatalf("got %d selections for non-dedicated interface, want 0", len(selected))
	}

	sel.OnInterfaceAdded(p2p.InterfaceInfo{Name: "p2p0", P2PReady: false})
	if len(selected) != 1 {
		t.Fatalf("got %d selections for dedicated interface, want 1", len(selected))
	}
	if selected[0].Name != "p2p0" {
		t.Errorf("selected name = %q, want %q", selected[0].Name, "p2p0")
	}
}

func TestSelectorWithoutDedicatedAcceptsAnyP2PReady(t *testing.T) {
	manager := &fakeManagerProxy{}
	var selected []p2p.InterfaceInfo
	sel := p2p.NewInterfaceSelector("", manager, func(info p2p.InterfaceInfo) {
		selected = append(selected, info)
	}, testLog())

	sel.OnInterfaceAdded(p2p.InterfaceInfo{Name: "eth0", P2PReady: false})
	if len(selected) != 0 {
		t.Fatalf("got %d selections for a non-P2P-ready interface, want 0", len(selected))
	}

	sel.OnInterfaceAdded(p2p.InterfaceInfo{Name: "wlan0", P2PReady: true})
	if len(selected) != 1 {
		t.Fatalf("got %d selections for a P2P-ready interface, want 1", len(selected))
	}
}

func TestSelectorRequestsCreateInterfaceWhenDedicatedMissing(t *testing.T) {
	manager := &fakeManagerProxy{}
	sel := p2p.NewInterfaceSelector("p2p0", manager, func(p2p.InterfaceInfo) {}, testLog())

	sel.Refresh()
	if len(manager.created) != 1 || manager.created[0] != "p2p0" {
		t.Fatalf("got created = %v, want a single request for p2p0", manager.created)
	}

	// A second Refresh that still finds nothing must not request creation
	// again (requestedCreate latches once).
	sel.Refresh()
	if len(manager.created) != 1 {
		t.Errorf("got %d create requests, want still 1 after a second empty Refresh", len(manager.created))
	}
}

func TestSelectorRefreshFindsExistingDedicatedInterface(t *testing.T) {
	manager := &fakeManagerProxy{interfaces: []p2p.InterfaceInfo{
		{Name: "wlan0", P2PReady: true},
		{Name: "p2p0", P2PReady: true},
	}}
	var selected []p2p.InterfaceInfo
	sel := p2p.NewInterfaceSelector("p2p0", manager, func(info p2p.InterfaceInfo) {
		selected = append(selected, info)
	}, testLog())

	sel.Refresh()
	if len(selected) != 1 || selected[0].Name != "p2p0" {
		t.Fatalf("got selected = %v, want a single selection of p2p0", selected)
	}
	if len(manager.created) != 0 {
		t.Errorf("should not request creation when the dedicated interface already exists, got %v", manager.created)
	}
}

func TestSelectorOnInterfaceCreationFailedReconsiders(t *testing.T) {
	manager := &fakeManagerProxy{interfaces: []p2p.InterfaceInfo{
		{Name: "p2p0", P2PReady: true},
	}}
	var selected []p2p.InterfaceInfo
	sel := p2p.NewInterfaceSelector("p2p0", manager, func(info p2p.InterfaceInfo) {
		selected = append(selected, info)
	}, testLog())

	sel.OnInterfaceCreationFailed("already exists")
	if len(selected) != 1 {
		t.Fatalf("got %d selections after creation-failed re-scan, want 1", len(selected))
	}
}
